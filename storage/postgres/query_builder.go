package postgres

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/samber/lo"
	"github.com/trevex/tenantscope"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	selectTmpl = template.Must(template.New("Select").Parse(`
SELECT {{ .Columns }} FROM {{ .Table }} AS t0
 WHERE {{ .Where }}
{{- if .After }} AND t0."id" > {{ .After }}{{ end }}
 ORDER BY t0."id"
{{- if .Limit }} LIMIT {{ .Limit }}{{ end }}
	`))

	countTmpl = template.Must(template.New("Count").Parse(`
SELECT COUNT(*) FROM {{ .Table }} AS t0 WHERE {{ .Where }}
	`))

	// Both single-record forms pick the first match in id order via a sub-select.
	targetTmpl = `
{{- define "target" -}}
"id" {{ if .One }}={{ else }}IN{{ end }} (SELECT t0."id" FROM {{ .Table }} AS t0 WHERE {{ .Where }}
{{- if .One }} ORDER BY t0."id" LIMIT 1{{ end }})
{{- end -}}`

	updateTmpl = template.Must(template.Must(template.New("Update").Parse(targetTmpl)).Parse(`
UPDATE {{ .Table }} SET {{ .Set }} WHERE {{ template "target" . }}
{{- if .One }} RETURNING {{ .Returning }}{{ end }}
	`))

	deleteTmpl = template.Must(template.Must(template.New("Delete").Parse(targetTmpl)).Parse(`
DELETE FROM {{ .Table }} WHERE {{ template "target" . }}
{{- if .One }} RETURNING {{ .Returning }}{{ end }}
	`))

	insertTmpl = template.Must(template.New("Insert").Parse(`
INSERT INTO {{ .Table }} ({{ .Insert }}) VALUES ({{ .Values }}) RETURNING {{ .Returning }}
	`))
)

// Placeholder renders the n-th (1-based) bind parameter of a statement.
type Placeholder func(n int) string

// Numbered renders postgres-style placeholders: $1, $2, ...
func Numbered(n int) string {
	return "$" + strconv.Itoa(n)
}

// Positional renders sqlite-style placeholders.
func Positional(int) string {
	return "?"
}

type Query struct {
	SQL  string
	Args []any
}

// QueryBuilder translates storage requests into SQL. It expects requests
// normalized by [tenantscope.Schema.NormalizeRequest].
type QueryBuilder struct {
	schema      tenantscope.Schema
	placeholder Placeholder
}

func NewQueryBuilder(schema tenantscope.Schema, placeholder Placeholder) *QueryBuilder {
	return &QueryBuilder{schema, placeholder}
}

func (b *QueryBuilder) Select(entity string, where tenantscope.Filter, page tenantscope.Page) (Query, error) {
	s, e, err := b.statement(entity)
	if err != nil {
		return Query{}, err
	}
	cond, err := s.filter(e, "t0", where)
	if err != nil {
		return Query{}, err
	}
	data := map[string]any{
		"Table":   quote(e.Table),
		"Columns": columns(e, "t0"),
		"Where":   cond,
		"After":   "",
		"Limit":   page.Limit,
	}
	if page.After != "" {
		data["After"] = s.arg(page.After)
	}
	return s.render(selectTmpl, data)
}

func (b *QueryBuilder) Count(entity string, where tenantscope.Filter) (Query, error) {
	s, e, err := b.statement(entity)
	if err != nil {
		return Query{}, err
	}
	cond, err := s.filter(e, "t0", where)
	if err != nil {
		return Query{}, err
	}
	return s.render(countTmpl, map[string]any{"Table": quote(e.Table), "Where": cond})
}

// Update sets data on the first match in id order if one is set, on all
// matches otherwise. Only the single-record form returns the row.
func (b *QueryBuilder) Update(entity string, where tenantscope.Filter, data tenantscope.Record, one bool) (Query, error) {
	s, e, err := b.statement(entity)
	if err != nil {
		return Query{}, err
	}
	fields := sortedKeys(data)
	if len(fields) == 0 {
		return Query{}, fmt.Errorf("%w: nothing to update", tenantscope.ErrInvalidRequest)
	}
	set := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, ok := e.Fields[field]; !ok {
			return Query{}, fmt.Errorf("%w: %s.%s", tenantscope.ErrUnknownField, entity, field)
		}
		set = append(set, quote(field)+" = "+s.arg(data[field]))
	}
	cond, err := s.filter(e, "t0", where)
	if err != nil {
		return Query{}, err
	}
	return s.render(updateTmpl, map[string]any{
		"Table":     quote(e.Table),
		"Set":       strings.Join(set, ", "),
		"Where":     cond,
		"One":       one,
		"Returning": columns(e, ""),
	})
}

func (b *QueryBuilder) Delete(entity string, where tenantscope.Filter, one bool) (Query, error) {
	s, e, err := b.statement(entity)
	if err != nil {
		return Query{}, err
	}
	cond, err := s.filter(e, "t0", where)
	if err != nil {
		return Query{}, err
	}
	return s.render(deleteTmpl, map[string]any{
		"Table":     quote(e.Table),
		"Where":     cond,
		"One":       one,
		"Returning": columns(e, ""),
	})
}

func (b *QueryBuilder) Insert(entity string, record tenantscope.Record) (Query, error) {
	s, e, err := b.statement(entity)
	if err != nil {
		return Query{}, err
	}
	fields := sortedKeys(record)
	values := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, ok := e.Fields[field]; !ok {
			return Query{}, fmt.Errorf("%w: %s.%s", tenantscope.ErrUnknownField, entity, field)
		}
		values = append(values, s.arg(record[field]))
	}
	return s.render(insertTmpl, map[string]any{
		"Table":     quote(e.Table),
		"Insert":    strings.Join(lo.Map(fields, func(f string, _ int) string { return quote(f) }), ", "),
		"Values":    strings.Join(values, ", "),
		"Returning": columns(e, ""),
	})
}

// statement collects the bind parameters of a single query. Parameters are
// numbered in the order they are rendered, so callers have to render clauses
// in the order they appear in the template.
type statement struct {
	b       *QueryBuilder
	args    []any
	aliases int
}

func (b *QueryBuilder) statement(entity string) (*statement, tenantscope.Entity, error) {
	e, err := b.schema.Entity(entity)
	if err != nil {
		return nil, e, err
	}
	return &statement{b: b}, e, nil
}

func (s *statement) arg(v any) string {
	s.args = append(s.args, v)
	return s.b.placeholder(len(s.args))
}

func (s *statement) render(tmpl *template.Template, data map[string]any) (Query, error) {
	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return Query{}, err
	}
	return Query{SQL: strings.Join(strings.Fields(out.String()), " "), Args: s.args}, nil
}

func (s *statement) filter(e tenantscope.Entity, alias string, where tenantscope.Filter) (string, error) {
	if len(where) == 0 {
		return "1 = 1", nil
	}
	clauses := make([]string, 0, len(where))
	for _, key := range sortedKeys(where) {
		clause, err := s.condition(e, alias, key, where[key])
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), nil
}

func (s *statement) condition(e tenantscope.Entity, alias, key string, value any) (string, error) {
	if key == tenantscope.And {
		filters, ok := value.([]tenantscope.Filter)
		if !ok {
			return "", fmt.Errorf("%w: %s expects []Filter, got %T", tenantscope.ErrInvalidValue, key, value)
		}
		if len(filters) == 0 {
			return "(1 = 1)", nil
		}
		clauses := make([]string, 0, len(filters))
		for _, f := range filters {
			clause, err := s.filter(e, alias, f)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, "("+clause+")")
		}
		return "(" + strings.Join(clauses, " AND ") + ")", nil
	}

	if r, ok := e.Relations[key]; ok {
		switch c := value.(type) {
		case tenantscope.SomeCondition:
			return s.exists(alias, r, c.Where, "EXISTS")
		case tenantscope.NoneCondition:
			return s.exists(alias, r, c.Where, "NOT EXISTS")
		default:
			return "", fmt.Errorf("%w: relation %s expects Some or None, got %T", tenantscope.ErrInvalidValue, key, value)
		}
	}

	if _, ok := e.Fields[key]; !ok {
		return "", fmt.Errorf("%w: %s", tenantscope.ErrUnknownField, key)
	}
	column := alias + "." + quote(key)
	switch c := value.(type) {
	case nil:
		return column + " IS NULL", nil
	case tenantscope.InCondition:
		values := lo.Filter(c.Values, func(v any, _ int) bool { return v != nil })
		clauses := []string{}
		if len(values) > 0 {
			clauses = append(clauses, column+" IN ("+strings.Join(lo.Map(values, func(v any, _ int) string { return s.arg(v) }), ", ")+")")
		}
		if len(values) < len(c.Values) {
			clauses = append(clauses, column+" IS NULL")
		}
		if len(clauses) == 0 {
			return "(1 = 0)", nil
		}
		return "(" + strings.Join(clauses, " OR ") + ")", nil
	case tenantscope.NeCondition:
		if c.Value == nil {
			return column + " IS NOT NULL", nil
		}
		return "(" + column + " <> " + s.arg(c.Value) + " OR " + column + " IS NULL)", nil
	case tenantscope.SomeCondition, tenantscope.NoneCondition:
		return "", fmt.Errorf("%w: %s is a field, not a relation", tenantscope.ErrInvalidValue, key)
	default:
		return column + " = " + s.arg(value), nil
	}
}

func (s *statement) exists(alias string, r tenantscope.Relation, where tenantscope.Filter, keyword string) (string, error) {
	target, err := s.b.schema.Entity(r.Entity)
	if err != nil {
		return "", err
	}
	s.aliases++
	inner := "t" + strconv.Itoa(s.aliases)
	cond := inner + "." + quote(r.ForeignKey) + " = " + alias + "." + quote(r.LocalKey)
	if len(where) > 0 {
		sub, err := s.filter(target, inner, where)
		if err != nil {
			return "", err
		}
		cond += " AND " + sub
	}
	return keyword + " (SELECT 1 FROM " + quote(target.Table) + " AS " + inner + " WHERE " + cond + ")", nil
}

func columns(e tenantscope.Entity, alias string) string {
	return strings.Join(lo.Map(e.Columns(), func(c string, _ int) string {
		if alias == "" {
			return quote(c)
		}
		return alias + "." + quote(c)
	}), ", ")
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
