// Package storage provides blob storage with an Azure Blob Storage implementation.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// System stores and retrieves blobs by key.
type System interface {
	// Init creates the container if it does not exist.
	Init(ctx context.Context) error
	// Upload writes data to key with the given content type.
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	// Download returns the blob at key. Returns ErrNotFound if absent.
	Download(ctx context.Context, key string) ([]byte, error)
	// List returns blob keys under prefix in lexical order, up to the configured page size.
	List(ctx context.Context, prefix string) ([]string, error)
	// Exists reports whether a blob exists at key.
	Exists(ctx context.Context, key string) (bool, error)
}

type azure struct {
	client      *azblob.Client
	container   string
	maxListSize int32
	logger      *slog.Logger
}

// New creates an Azure-backed System. It returns nil, nil when cfg is not
// enabled.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &azure{
		client:      client,
		container:   cfg.ContainerName,
		maxListSize: cfg.MaxListSize,
		logger:      logger.With("system", "storage"),
	}, nil
}

func (a *azure) Init(ctx context.Context) error {
	_, err := a.client.CreateContainer(ctx, a.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", a.container, err)
	}

	a.logger.Debug("storage container ready", "container", a.container)
	return nil
}

func (a *azure) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	opts := &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	}

	if _, err := a.client.UploadBuffer(ctx, a.container, key, data, opts); err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}

	return nil
}

func (a *azure) Download(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download blob %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, nil
}

func (a *azure) List(ctx context.Context, prefix string) ([]string, error) {
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix:     &prefix,
		MaxResults: &a.maxListSize,
	})

	keys := make([]string, 0)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list blobs %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}

	return keys, nil
}

func (a *azure) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	_, err := a.client.
		ServiceClient().
		NewContainerClient(a.container).
		NewBlobClient(key).
		GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check blob %s: %w", key, err)
	}

	return true, nil
}

// ValidateKey rejects empty keys and keys containing "..".
func ValidateKey(key string) error {
	return validateKey(key)
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
