package xrefdb

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// MethodRef is a method row as returned by the query helpers.
type MethodRef struct {
	Idx       uint32
	Class     string
	Signature string
}

// DuplicateGroup is a set of methods whose bodies share a fingerprint.
type DuplicateGroup struct {
	Fingerprint string
	Methods     []MethodRef
}

func (d *DB) methods(ctx context.Context, b sq.SelectBuilder) ([]MethodRef, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("xrefdb: build query: %w", err)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("xrefdb: query: %w", err)
	}
	defer rows.Close()

	var out []MethodRef
	for rows.Next() {
		var m MethodRef
		if err := rows.Scan(&m.Idx, &m.Class, &m.Signature); err != nil {
			return nil, fmt.Errorf("xrefdb: scan row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var methodCols = []string{"m.method_idx", "m.class", "m.signature"}

// Callers returns the methods that invoke the method with the given
// signature, ordered by method index.
func (d *DB) Callers(ctx context.Context, signature string) ([]MethodRef, error) {
	return d.methods(ctx, sq.Select(methodCols...).
		From("invokes i").
		Join("methods m ON m.method_idx = i.caller_idx").
		Join("methods c ON c.method_idx = i.callee_idx").
		Where(sq.Eq{"c.signature": signature}).
		OrderBy("m.method_idx"))
}

// Callees returns the methods invoked by the method with the given
// signature.
func (d *DB) Callees(ctx context.Context, signature string) ([]MethodRef, error) {
	return d.methods(ctx, sq.Select(methodCols...).
		From("invokes i").
		Join("methods m ON m.method_idx = i.callee_idx").
		Join("methods c ON c.method_idx = i.caller_idx").
		Where(sq.Eq{"c.signature": signature}).
		OrderBy("m.method_idx"))
}

// StringUsers returns the methods that load the string value.
func (d *DB) StringUsers(ctx context.Context, value string) ([]MethodRef, error) {
	return d.methods(ctx, sq.Select(methodCols...).
		From("string_refs r").
		Join("strings s ON s.string_idx = r.string_idx").
		Join("methods m ON m.method_idx = r.method_idx").
		Where(sq.Eq{"s.value": value}).
		OrderBy("m.method_idx"))
}

// FieldAccessors returns the methods that read (write == false) or
// assign (write == true) the named field.
func (d *DB) FieldAccessors(ctx context.Context, field string, write bool) ([]MethodRef, error) {
	w := 0
	if write {
		w = 1
	}
	return d.methods(ctx, sq.Select(methodCols...).
		From("field_refs r").
		Join("fields f ON f.field_idx = r.field_idx").
		Join("methods m ON m.method_idx = r.method_idx").
		Where(sq.Eq{"f.name": field, "r.is_write": w}).
		OrderBy("m.method_idx"))
}

// DuplicateBodies groups methods by body fingerprint, keeping only
// fingerprints shared by two or more methods.
func (d *DB) DuplicateBodies(ctx context.Context) ([]DuplicateGroup, error) {
	query, args, err := sq.Select("m.fingerprint", "m.method_idx", "m.class", "m.signature").
		From("methods m").
		Where("m.fingerprint IN (SELECT fingerprint FROM methods WHERE fingerprint IS NOT NULL GROUP BY fingerprint HAVING COUNT(*) > 1)").
		OrderBy("m.fingerprint", "m.method_idx").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("xrefdb: build query: %w", err)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("xrefdb: query duplicates: %w", err)
	}
	defer rows.Close()

	var groups []DuplicateGroup
	for rows.Next() {
		var fp string
		var m MethodRef
		if err := rows.Scan(&fp, &m.Idx, &m.Class, &m.Signature); err != nil {
			return nil, fmt.Errorf("xrefdb: scan row: %w", err)
		}
		if n := len(groups); n == 0 || groups[n-1].Fingerprint != fp {
			groups = append(groups, DuplicateGroup{Fingerprint: fp})
		}
		g := &groups[len(groups)-1]
		g.Methods = append(g.Methods, m)
	}
	return groups, rows.Err()
}

// Count returns the number of rows in table, which must be one of the
// schema's tables.
func (d *DB) Count(ctx context.Context, table string) (int, error) {
	known := false
	for _, t := range tables {
		known = known || t.name == table
	}
	if !known {
		return 0, fmt.Errorf("xrefdb: unknown table %q", table)
	}
	var n int
	err := sq.Select("COUNT(*)").From(table).RunWith(d.db).QueryRowContext(ctx).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("xrefdb: count %s: %w", table, err)
	}
	return n, nil
}
