package main

import (
	"flag"

	"github.com/go-kit/log/level"

	"dexlens/internal/output"
	"dexlens/internal/session"
)

func cmdAnnotations(args []string) error {
	fs := flag.NewFlagSet("annotations", flag.ExitOnError)
	cf := addCommon(fs)
	outDir := fs.String("out", "", "output directory (default from config)")
	useCBOR := fs.Bool("cbor", false, "write canonical CBOR instead of JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	cfg.Annotations = true
	if cf.set("cbor") {
		cfg.Output.Format = "json"
		if *useCBOR {
			cfg.Output.Format = "cbor"
		}
	}
	ins, err := cf.inputs()
	if err != nil {
		return err
	}
	logger := cf.logger()
	base := outFlag(*outDir, cfg)

	return eachSession(ins, cfg, logger, func(in input, s *session.Session) error {
		dir, err := outputDir(base, in, len(ins) > 1)
		if err != nil {
			return err
		}
		p := output.PoolsOf(s)
		if cfg.Output.Format == "cbor" {
			err = output.WritePoolsCBOR(dir, p)
		} else {
			err = output.WritePoolsJSON(dir, p)
		}
		if err != nil {
			return err
		}
		level.Info(logger).Log("msg", "wrote pools", "input", in.Name, "format", cfg.Output.Format,
			"annotations", len(p.Annotations), "arrays", len(p.Arrays), "dir", dir)
		return nil
	})
}
