package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"dexlens/internal/session"
	"dexlens/internal/xrefdb"
)

func cmdIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	cf := addCommon(fs)
	dbPath := fs.String("db", "", "SQLite database path (default from config)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.Index.DB = *dbPath
	}
	ins, err := cf.inputs()
	if err != nil {
		return err
	}
	logger := cf.logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return eachSession(ins, cfg, logger, func(in input, s *session.Session) error {
		path := cfg.DBPath()
		if len(ins) > 1 {
			path = dbFor(path, in.Name)
		}
		db, err := xrefdb.Open(path, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		_, err = db.Index(ctx, s)
		return err
	})
}

// dbFor derives a per-input database path: "xref.db" + "classes2.dex"
// gives "xref-classes2.db".
func dbFor(path, name string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return strings.TrimSuffix(path, ext) + "-" + stem + ext
}
