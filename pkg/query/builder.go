package query

import (
	"fmt"
	"reflect"
	"strings"
)

const placeholder = "$%d"

type condition struct {
	clause string
	args   []any
}

// SortField is one ORDER BY term expressed as a logical field.
type SortField struct {
	Field      string
	Descending bool
}

// Builder accumulates WHERE conditions and renders numbered placeholders.
type Builder struct {
	projection  *ProjectionMap
	conditions  []condition
	orderBy     []SortField
	defaultSort []SortField
	forUpdate   bool
}

// NewBuilder starts a query over projection with optional default ordering.
func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{
		projection:  projection,
		defaultSort: defaultSort,
	}
}

// Build renders a SELECT with every condition and the current ordering.
func (b *Builder) Build() (string, []any) {
	where, args := b.buildWhere()
	sql := fmt.Sprintf(
		"SELECT %s FROM %s%s%s%s",
		b.projection.Columns(),
		b.projection.From(),
		where,
		b.buildOrderBy(),
		b.lockClause(),
	)
	return sql, args
}

// BuildCount renders SELECT COUNT(*) with every condition.
func (b *Builder) BuildCount() (string, []any) {
	where, args := b.buildWhere()
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", b.projection.From(), where), args
}

// BuildPage renders a SELECT limited to one page. page is 1-based.
func (b *Builder) BuildPage(page, pageSize int) (string, []any) {
	where, args := b.buildWhere()
	sql := fmt.Sprintf(
		"SELECT %s FROM %s%s%s LIMIT %d OFFSET %d",
		b.projection.Columns(),
		b.projection.From(),
		where,
		b.buildOrderBy(),
		pageSize,
		(page-1)*pageSize,
	)
	return sql, args
}

// BuildFirst renders a SELECT limited to the first row.
func (b *Builder) BuildFirst() (string, []any) {
	where, args := b.buildWhere()
	sql := fmt.Sprintf(
		"SELECT %s FROM %s%s%s LIMIT 1%s",
		b.projection.Columns(),
		b.projection.From(),
		where,
		b.buildOrderBy(),
		b.lockClause(),
	)
	return sql, args
}

// ForUpdate appends FOR UPDATE to Build and BuildFirst.
func (b *Builder) ForUpdate() *Builder {
	b.forUpdate = true
	return b
}

// OrderBy replaces the default ordering.
func (b *Builder) OrderBy(fields ...SortField) *Builder {
	b.orderBy = fields
	return b
}

// WhereEquals adds field = value. Nil values are ignored.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	return b.add(fmt.Sprintf("%s = %s", b.projection.Column(field), placeholder), value)
}

// WhereNotEquals adds field <> value. Nil values are ignored.
func (b *Builder) WhereNotEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	return b.add(fmt.Sprintf("%s <> %s", b.projection.Column(field), placeholder), value)
}

// WhereIn adds field IN (...). Empty value lists are ignored.
func (b *Builder) WhereIn(field string, values ...any) *Builder {
	if len(values) == 0 {
		return b
	}
	marks := make([]string, len(values))
	for i := range values {
		marks[i] = placeholder
	}
	return b.add(
		fmt.Sprintf("%s IN (%s)", b.projection.Column(field), strings.Join(marks, ", ")),
		values...,
	)
}

// WhereAtLeast adds field >= value. Nil values are ignored.
func (b *Builder) WhereAtLeast(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	return b.add(fmt.Sprintf("%s >= %s", b.projection.Column(field), placeholder), value)
}

// WhereAtMost adds field <= value. Nil values are ignored.
func (b *Builder) WhereAtMost(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	return b.add(fmt.Sprintf("%s <= %s", b.projection.Column(field), placeholder), value)
}

// WhereNotNull adds field IS NOT NULL.
func (b *Builder) WhereNotNull(field string) *Builder {
	return b.add(b.projection.Column(field) + " IS NOT NULL")
}

func (b *Builder) add(clause string, args ...any) *Builder {
	b.conditions = append(b.conditions, condition{clause: clause, args: args})
	return b
}

func (b *Builder) buildWhere() (string, []any) {
	if len(b.conditions) == 0 {
		return "", nil
	}

	clauses := make([]string, 0, len(b.conditions))
	args := make([]any, 0)
	next := 1

	for _, c := range b.conditions {
		clause := c.clause
		for _, arg := range c.args {
			clause = strings.Replace(clause, placeholder, fmt.Sprintf("$%d", next), 1)
			args = append(args, arg)
			next++
		}
		clauses = append(clauses, clause)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (b *Builder) buildOrderBy() string {
	fields := b.orderBy
	if len(fields) == 0 {
		fields = b.defaultSort
	}
	if len(fields) == 0 {
		return ""
	}

	parts := make([]string, len(fields))
	for i, f := range fields {
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		parts[i] = b.projection.Column(f.Field) + " " + dir
	}

	return " ORDER BY " + strings.Join(parts, ", ")
}

func (b *Builder) lockClause() string {
	if b.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func isNil(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}

	return false
}
