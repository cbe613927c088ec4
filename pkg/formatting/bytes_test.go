package formatting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tenet/pkg/formatting"
)

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"64KB", 64 << 10},
		{" 1.5 mb ", 3 << 19},
		{"2GB", 2 << 30},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := formatting.ParseBytes(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBytesRejects(t *testing.T) {
	for _, in := range []string{"", "MB", "-1KB", "10 parsecs", "1.2.3MB"} {
		_, err := formatting.ParseBytes(in)
		assert.ErrorIs(t, err, formatting.ErrInvalidSize, in)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", formatting.FormatBytes(0))
	assert.Equal(t, "1023 B", formatting.FormatBytes(1023))
	assert.Equal(t, "1.0 KB", formatting.FormatBytes(1024))
	assert.Equal(t, "1.5 MB", formatting.FormatBytes(3<<19))
	assert.Equal(t, "2048.0 TB", formatting.FormatBytes(2<<50))
}
