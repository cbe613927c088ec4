// Package query builds parameterized SELECT statements from a projection
// of logical field names onto table columns.
package query

import (
	"fmt"
	"strings"
)

// ProjectionMap maps logical field names to alias-qualified columns and
// keeps their declaration order, which is the scan order.
type ProjectionMap struct {
	table      string
	alias      string
	columns    map[string]string
	columnList []string
}

// NewProjectionMap creates a projection over schema.table with the given alias.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		table:   fmt.Sprintf("%s.%s", schema, table),
		alias:   alias,
		columns: make(map[string]string),
	}
}

// Project maps column to field and appends it to the select list.
func (p *ProjectionMap) Project(column, field string) *ProjectionMap {
	qualified := p.alias + "." + column
	p.columns[field] = qualified
	p.columnList = append(p.columnList, qualified)
	return p
}

// From returns "schema.table alias".
func (p *ProjectionMap) From() string {
	return p.table + " " + p.alias
}

// Column resolves a field to its qualified column. Unmapped names are
// returned unchanged so raw expressions still work.
func (p *ProjectionMap) Column(field string) string {
	if col, ok := p.columns[field]; ok {
		return col
	}
	return field
}

// Columns returns the select list.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.columnList, ", ")
}
