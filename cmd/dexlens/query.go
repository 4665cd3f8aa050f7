package main

import (
	"context"
	"flag"
	"fmt"

	"dexlens/internal/xrefdb"
)

func cmdQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "path to dexlens.toml")
	debug := fs.Bool("debug", false, "debug logging")
	dbPath := fs.String("db", "", "SQLite database path (default from config)")
	callers := fs.String("callers", "", "methods invoking this signature")
	callees := fs.String("callees", "", "methods invoked by this signature")
	str := fs.String("string", "", "methods loading this string")
	field := fs.String("field", "", "methods reading this field (with --write, assigning it)")
	write := fs.Bool("write", false, "with --field, list writers instead of readers")
	dups := fs.Bool("dups", false, "groups of methods with identical bodies")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cf := &commonFlags{fs: fs, config: configPath, strict: new(bool), debug: debug}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.Index.DB = *dbPath
	}

	db, err := xrefdb.Open(cfg.DBPath(), cf.logger())
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	var refs []xrefdb.MethodRef
	switch {
	case *callers != "":
		refs, err = db.Callers(ctx, *callers)
	case *callees != "":
		refs, err = db.Callees(ctx, *callees)
	case *str != "":
		refs, err = db.StringUsers(ctx, *str)
	case *field != "":
		refs, err = db.FieldAccessors(ctx, *field, *write)
	case *dups:
		groups, err := db.DuplicateBodies(ctx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			fmt.Printf("%s\n", g.Fingerprint)
			for _, m := range g.Methods {
				fmt.Printf("  %s\n", m.Signature)
			}
		}
		return nil
	default:
		return fmt.Errorf("one of --callers, --callees, --string, --field or --dups is required")
	}
	if err != nil {
		return err
	}
	for _, m := range refs {
		fmt.Println(m.Signature)
	}
	return nil
}
