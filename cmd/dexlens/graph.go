package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/go-kit/log/level"
	lrender "github.com/zboralski/lattice/render"

	"dexlens/internal/callgraph"
	"dexlens/internal/output"
	"dexlens/internal/render"
	"dexlens/internal/session"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	cf := addCommon(fs)
	outDir := fs.String("out", "", "output directory (default from config)")
	match := fs.String("match", "", "build CFGs only for methods whose name contains this")
	withStrings := fs.Bool("strings", false, "show const-string loads in CFGs")
	maxNodes := fs.Int("max-nodes", 0, "max class nodes in the class graph (0 = all)")
	noCFG := fs.Bool("no-cfg", false, "skip per-method CFGs")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.load()
	if err != nil {
		return err
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

		cg, err := callgraph.BuildCallGraph(s)
		if err != nil {
			return fmt.Errorf("call graph: %w", err)
		}
		entries := render.FindEntryPoints(cg)
		reachable := render.ReachableSet(entries, cg)
		docs := map[string]string{
			"callgraph.dot": lrender.DOT(cg, in.Name),
			"classes.dot":   render.ClassgraphDOT(cg, in.Name+" (class level)", render.NASA, *maxNodes),
			"reachable.dot": render.ReachabilityDOT(cg, reachable, entries, in.Name+" (reachable)", render.NASA),
		}
		stats := render.ComputeStats(cg)

		if !*noCFG {
			var filter func(string) bool
			if *match != "" {
				filter = func(name string) bool { return strings.Contains(name, *match) }
			}
			cfgs, skipped, err := callgraph.BuildCFG(s, filter, callgraph.Options{Strings: *withStrings, MaxSteps: cfg.MaxSteps})
			if err != nil {
				return fmt.Errorf("cfg: %w", err)
			}
			if skipped > 0 {
				level.Warn(logger).Log("msg", "methods without a CFG", "input", in.Name, "skipped", skipped)
			}
			docs["cfg.dot"] = lrender.DOTCFG(cfgs, in.Name)
			level.Debug(logger).Log("msg", "built CFGs", "input", in.Name, "funcs", len(cfgs.Funcs))
		}

		for name, dot := range docs {
			if err := output.WriteText(dir, name, dot); err != nil {
				return err
			}
		}
		if err := output.WriteJSON(dir, "graph_stats.json", stats); err != nil {
			return err
		}
		level.Info(logger).Log("msg", "wrote graphs", "input", in.Name, "methods", stats.Methods,
			"edges", stats.Edges, "entry_points", stats.EntryPoints, "reachable", stats.Reachable, "dir", dir)
		return nil
	})
}
