package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log/level"

	"dexlens/internal/callgraph"
	"dexlens/internal/output"
	"dexlens/internal/render"
	"dexlens/internal/session"
	"dexlens/internal/signal"
)

func cmdSignal(args []string) error {
	fs := flag.NewFlagSet("signal", flag.ExitOnError)
	cf := addCommon(fs)
	outDir := fs.String("out", "", "output directory (default from config)")
	hops := fs.Int("hops", 0, "context hops around signal methods (default from config)")
	top := fs.Int("top", 20, "signal methods to print (0 = none)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	if cf.set("hops") {
		if *hops < 0 {
			return fmt.Errorf("--hops must not be negative")
		}
		cfg.Signal.Hops = *hops
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
		refs, err := signal.Collect(s)
		if err != nil {
			return fmt.Errorf("collect refs: %w", err)
		}
		cg, err := callgraph.BuildCallGraph(s)
		if err != nil {
			return fmt.Errorf("call graph: %w", err)
		}
		sg := signal.Build(cg, refs, cfg.Signal.Hops, render.FindEntryPoints(cg))

		if err := output.WriteJSON(dir, "signal.json", sg); err != nil {
			return err
		}
		if err := output.WriteText(dir, "signal.dot", render.SignalDOT(sg, in.Name+" (signal)", render.NASA)); err != nil {
			return err
		}
		printSignals(os.Stdout, in.Name, sg, *top)
		level.Info(logger).Log("msg", "wrote signal graph", "input", in.Name, "signal", sg.Stats.SignalMethods,
			"context", sg.Stats.ContextMethods, "hops", cfg.Signal.Hops, "dir", dir)
		return nil
	})
}

func printSignals(w io.Writer, name string, sg *signal.Graph, top int) {
	fmt.Fprintf(w, "%s: %d signal, %d context of %d methods\n", name,
		sg.Stats.SignalMethods, sg.Stats.ContextMethods, sg.Stats.TotalMethods)
	n := 0
	for _, m := range sg.Methods {
		if n >= top || m.Role != signal.RoleSignal {
			break
		}
		fmt.Fprintf(w, "  %-6s %s %v\n", m.Severity, m.Name, m.Categories)
		n++
	}
}
