package main

import (
	"flag"

	"github.com/go-kit/log/level"

	"dexlens/internal/output"
	"dexlens/internal/session"
)

func cmdClasses(args []string) error {
	fs := flag.NewFlagSet("classes", flag.ExitOnError)
	cf := addCommon(fs)
	outDir := fs.String("out", "", "output directory (default from config)")
	annotations := fs.Bool("annotations", true, "decode annotations and static values")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	if cf.set("annotations") {
		cfg.Annotations = *annotations
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
		out, err := output.CreateJSONL(dir, "classes.jsonl")
		if err != nil {
			return err
		}
		defer out.Close()
		for i := range s.Classes() {
			if err := out.Write(output.NewClassRecord(s, i)); err != nil {
				return err
			}
		}
		level.Info(logger).Log("msg", "wrote classes", "input", in.Name, "classes", out.Count(), "dir", dir)
		return nil
	})
}
