package main

import (
	"flag"
	"fmt"

	"dexlens/internal/output"
	"dexlens/internal/session"
)

func cmdScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	cf := addCommon(fs)
	outDir := fs.String("out", "", "write summary.json and tables.json to this directory")

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

	return eachSession(ins, cfg, logger, func(in input, s *session.Session) error {
		sum := output.NewSummary(in.Name, s)
		fmt.Printf("%s: version %s, %d bytes\n", in.Name, sum.Header.Version, sum.Header.FileSize)
		fmt.Printf("  strings=%d types=%d protos=%d fields=%d methods=%d classes=%d\n",
			sum.Strings, sum.Types, sum.Protos, sum.Fields, sum.Methods, sum.Classes)
		if n := len(sum.Diags); n > 0 {
			fmt.Printf("  diags=%d\n", n)
			for _, d := range sum.Diags {
				fmt.Printf("    %s\n", d)
			}
		}

		if *outDir == "" {
			return nil
		}
		dir, err := outputDir(*outDir, in, len(ins) > 1)
		if err != nil {
			return err
		}
		if err := output.WriteSummaryJSON(dir, sum); err != nil {
			return err
		}
		return output.WriteTablesJSON(dir, s.Tables())
	})
}
