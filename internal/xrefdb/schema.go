package xrefdb

import (
	"database/sql"
	"fmt"
)

const createClassesTable = `
CREATE TABLE IF NOT EXISTS classes (
	class_def INTEGER PRIMARY KEY,
	type_idx INTEGER NOT NULL,
	descriptor TEXT NOT NULL,
	super TEXT,
	flags INTEGER NOT NULL
)`

const createMethodsTable = `
CREATE TABLE IF NOT EXISTS methods (
	method_idx INTEGER PRIMARY KEY,
	class TEXT NOT NULL,
	name TEXT NOT NULL,
	signature TEXT NOT NULL,
	defined INTEGER NOT NULL DEFAULT 0,
	flags INTEGER NOT NULL DEFAULT 0,
	code_off INTEGER NOT NULL DEFAULT 0,
	fingerprint TEXT,
	scan_error TEXT
)`

const createFieldsTable = `
CREATE TABLE IF NOT EXISTS fields (
	field_idx INTEGER PRIMARY KEY,
	name TEXT NOT NULL
)`

const createStringsTable = `
CREATE TABLE IF NOT EXISTS strings (
	string_idx INTEGER PRIMARY KEY,
	value TEXT NOT NULL
)`

const createStringRefsTable = `
CREATE TABLE IF NOT EXISTS string_refs (
	method_idx INTEGER NOT NULL REFERENCES methods(method_idx),
	string_idx INTEGER NOT NULL REFERENCES strings(string_idx),
	PRIMARY KEY (method_idx, string_idx)
)`

const createFieldRefsTable = `
CREATE TABLE IF NOT EXISTS field_refs (
	method_idx INTEGER NOT NULL REFERENCES methods(method_idx),
	field_idx INTEGER NOT NULL REFERENCES fields(field_idx),
	is_write INTEGER NOT NULL,
	PRIMARY KEY (method_idx, field_idx, is_write)
)`

const createInvokesTable = `
CREATE TABLE IF NOT EXISTS invokes (
	caller_idx INTEGER NOT NULL REFERENCES methods(method_idx),
	callee_idx INTEGER NOT NULL REFERENCES methods(method_idx),
	PRIMARY KEY (caller_idx, callee_idx)
)`

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_methods_signature ON methods(signature)",
	"CREATE INDEX IF NOT EXISTS idx_methods_fingerprint ON methods(fingerprint)",
	"CREATE INDEX IF NOT EXISTS idx_strings_value ON strings(value)",
	"CREATE INDEX IF NOT EXISTS idx_string_refs_string ON string_refs(string_idx)",
	"CREATE INDEX IF NOT EXISTS idx_field_refs_field ON field_refs(field_idx)",
	"CREATE INDEX IF NOT EXISTS idx_invokes_callee ON invokes(callee_idx)",
}

// tables lists every table in dependency order.
var tables = []struct {
	name string
	ddl  string
}{
	{"classes", createClassesTable},
	{"methods", createMethodsTable},
	{"fields", createFieldsTable},
	{"strings", createStringsTable},
	{"string_refs", createStringRefsTable},
	{"field_refs", createFieldRefsTable},
	{"invokes", createInvokesTable},
}

// CreateSchema creates all tables and indexes in one transaction.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("xrefdb: begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tables {
		if _, err := tx.Exec(t.ddl); err != nil {
			return fmt.Errorf("xrefdb: create %s table: %w", t.name, err)
		}
	}
	for _, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("xrefdb: create index: %w", err)
		}
	}
	return tx.Commit()
}

// clearTables deletes every row, children first.
func clearTables(tx *sql.Tx) error {
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := tx.Exec("DELETE FROM " + tables[i].name); err != nil {
			return fmt.Errorf("xrefdb: clear %s: %w", tables[i].name, err)
		}
	}
	return nil
}
