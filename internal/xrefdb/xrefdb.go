// Package xrefdb stores a DEX cross-reference index in SQLite: classes,
// members, string references, field reads and writes, and invocations.
package xrefdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	_ "github.com/mattn/go-sqlite3"

	"dexlens/internal/bytecode"
	"dexlens/internal/session"
	"dexlens/internal/visit"
)

// DB is an open cross-reference database.
type DB struct {
	db     *sql.DB
	ownsDB bool
	logger log.Logger
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string, logger log.Logger) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("xrefdb: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("xrefdb: enable foreign keys: %w", err)
	}
	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, ownsDB: true, logger: orNop(logger)}, nil
}

// NewWithDB wraps an existing connection. The caller owns its lifecycle
// and must have created the schema.
func NewWithDB(db *sql.DB, logger log.Logger) *DB {
	return &DB{db: db, logger: orNop(logger)}
}

func orNop(l log.Logger) log.Logger {
	if l == nil {
		return log.NewNopLogger()
	}
	return l
}

// Close closes the connection if this DB opened it.
func (d *DB) Close() error {
	if !d.ownsDB || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Stats counts what Index wrote.
type Stats struct {
	Classes    int
	Methods    int
	Bodies     int
	ScanErrors int
	StringRefs int
	FieldRefs  int
	Invokes    int
}

// Index replaces the database contents with the cross-references of s.
// Every method body is scanned through the session's visitor.
func (d *DB) Index(ctx context.Context, s *session.Session) (Stats, error) {
	start := time.Now()
	var st Stats

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return st, fmt.Errorf("xrefdb: begin: %w", err)
	}
	defer tx.Rollback()

	if err := clearTables(tx); err != nil {
		return st, err
	}
	if err := writeTables(tx, s, &st); err != nil {
		return st, err
	}

	iv := &indexVisitor{ctx: ctx, tx: tx, s: s, st: &st}
	if err := s.Visit(iv); err != nil {
		return st, err
	}
	if iv.err != nil {
		return st, iv.err
	}
	if err := tx.Commit(); err != nil {
		return st, fmt.Errorf("xrefdb: commit: %w", err)
	}

	level.Info(d.logger).Log("msg", "indexed",
		"classes", st.Classes, "methods", st.Methods, "bodies", st.Bodies,
		"scan_errors", st.ScanErrors, "invokes", st.Invokes, "elapsed", time.Since(start))
	return st, nil
}

func writeTables(tx *sql.Tx, s *session.Session, st *Stats) error {
	t := s.Tables()
	for i, str := range t.Strings {
		if _, err := sq.Insert("strings").Columns("string_idx", "value").
			Values(i, str).RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("xrefdb: insert string %d: %w", i, err)
		}
	}
	for i := range t.Fields {
		if _, err := sq.Insert("fields").Columns("field_idx", "name").
			Values(i, s.FieldName(uint32(i))).RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("xrefdb: insert field %d: %w", i, err)
		}
	}
	for i, m := range t.Methods {
		if _, err := sq.Insert("methods").Columns("method_idx", "class", "name", "signature").
			Values(i, s.TypeName(m[0]), s.MemberName(uint32(i)), s.MethodName(uint32(i))).
			RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("xrefdb: insert method %d: %w", i, err)
		}
		st.Methods++
	}
	for i, cd := range s.Classes() {
		if _, err := sq.Insert("classes").Columns("class_def", "type_idx", "descriptor", "super", "flags").
			Values(i, cd.Def.ClassIdx, s.TypeName(cd.Def.ClassIdx), s.TypeName(cd.Def.SuperclassIdx), cd.Def.AccessFlags).
			RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("xrefdb: insert class %d: %w", i, err)
		}
		st.Classes++
	}
	return nil
}

// indexVisitor writes member definitions and body references. The first
// error is kept and stops the traversal.
type indexVisitor struct {
	visit.Members
	ctx context.Context
	tx  *sql.Tx
	s   *session.Session
	st  *Stats
	err error
}

func (v *indexVisitor) VisitClass(visit.ClassInfo) (visit.MemberVisitor, visit.Capability) {
	if v.err == nil {
		v.err = v.ctx.Err()
	}
	return v, visit.CapMethodBodies
}

func (v *indexVisitor) VisitMethod(m visit.MethodInfo) {
	if v.err != nil {
		return
	}
	_, err := sq.Update("methods").
		Set("defined", 1).
		Set("flags", m.Method.Flags).
		Set("code_off", m.Method.CodeOff).
		Where(sq.Eq{"method_idx": m.Method.Idx}).
		RunWith(v.tx).Exec()
	if err != nil {
		v.err = fmt.Errorf("xrefdb: update method %d: %w", m.Method.Idx, err)
	}
}

func (v *indexVisitor) VisitMethodBody(m visit.MethodInfo, body *bytecode.MethodBody, scanErr error) {
	if v.err != nil {
		return
	}
	idx := m.Method.Idx
	if scanErr != nil {
		v.st.ScanErrors++
		v.exec(sq.Update("methods").Set("scan_error", scanErr.Error()).Where(sq.Eq{"method_idx": idx}))
		return
	}
	v.st.Bodies++
	v.exec(sq.Update("methods").
		Set("fingerprint", fmt.Sprintf("%016x", body.Fingerprint())).
		Where(sq.Eq{"method_idx": idx}))
	for _, si := range body.Strings {
		v.exec(sq.Insert("string_refs").Columns("method_idx", "string_idx").Values(idx, si))
		v.st.StringRefs++
	}
	for _, f := range body.AccessedFields {
		v.exec(sq.Insert("field_refs").Columns("method_idx", "field_idx", "is_write").Values(idx, f, 0))
		v.st.FieldRefs++
	}
	for _, f := range body.AssignedFields {
		v.exec(sq.Insert("field_refs").Columns("method_idx", "field_idx", "is_write").Values(idx, f, 1))
		v.st.FieldRefs++
	}
	for _, callee := range body.InvokedMethods {
		v.exec(sq.Insert("invokes").Columns("caller_idx", "callee_idx").Values(idx, callee))
		v.st.Invokes++
	}
}

func (v *indexVisitor) exec(b sq.Sqlizer) {
	if v.err != nil {
		return
	}
	query, args, err := b.ToSql()
	if err == nil {
		_, err = v.tx.ExecContext(v.ctx, query, args...)
	}
	if err != nil {
		v.err = fmt.Errorf("xrefdb: %s: %w", query, err)
	}
}

func (v *indexVisitor) Stop() bool { return v.err != nil }
