package main

import (
	"flag"

	"github.com/go-kit/log/level"

	"dexlens/internal/output"
	"dexlens/internal/session"
)

func cmdXrefs(args []string) error {
	fs := flag.NewFlagSet("xrefs", flag.ExitOnError)
	cf := addCommon(fs)
	outDir := fs.String("out", "", "output directory (default from config)")
	maxSteps := fs.Int("max-steps", 0, "per-method instruction cap (0 = config)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	if *maxSteps > 0 {
		cfg.MaxSteps = *maxSteps
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
		out, err := output.CreateJSONL(dir, "bodies.jsonl")
		if err != nil {
			return err
		}
		defer out.Close()

		w := &output.BodyWriter{S: s, Out: out}
		if err := s.Visit(w); err != nil {
			return err
		}
		if w.Err != nil {
			return w.Err
		}
		level.Info(logger).Log("msg", "wrote bodies", "input", in.Name,
			"bodies", out.Count(), "scans", s.BodyScans(), "dir", dir)
		return nil
	})
}
