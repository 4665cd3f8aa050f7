package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"dexlens/internal/apk"
	"dexlens/internal/disasm"
	"dexlens/internal/elfx"
	"dexlens/internal/jni"
	"dexlens/internal/output"
	"dexlens/internal/render"
	"dexlens/internal/session"
)

func cmdNatives(args []string) error {
	fs := flag.NewFlagSet("natives", flag.ExitOnError)
	cf := addCommon(fs)
	outDir := fs.String("out", "", "output directory (default from config)")
	abi := fs.String("abi", "", "library ABI inside the APK (default from config)")
	libPaths := fs.String("lib", "", "comma-separated .so paths, used with --dex")
	preview := fs.Int("preview", 0, "instructions previewed per entry (0 = config)")
	asm := fs.Bool("asm", false, "print entry previews")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	if *abi != "" {
		cfg.Natives.ABI = *abi
	}
	if *preview > 0 {
		cfg.Natives.Preview = *preview
	}
	if *cf.dex != "" && *libPaths == "" {
		return fmt.Errorf("--dex needs --lib")
	}
	ins, err := cf.inputs()
	if err != nil {
		return err
	}
	logger := cf.logger()

	var natives []jni.Native
	err = eachSession(ins, cfg, logger, func(in input, s *session.Session) error {
		ns, err := jni.Natives(s)
		if err != nil {
			return err
		}
		level.Debug(logger).Log("msg", "natives", "input", in.Name, "count", len(ns))
		natives = append(natives, ns...)
		return nil
	})
	if err != nil {
		return err
	}

	var libs []jni.Library
	if *cf.apk != "" {
		libs, err = apkLibraries(*cf.apk, cfg.Natives.ABI, logger)
	} else {
		libs, err = fileLibraries(strings.Split(*libPaths, ","), logger)
	}
	if err != nil {
		return err
	}
	defer func() {
		for _, l := range libs {
			l.File.Close()
		}
	}()

	rep, err := jni.NewResolver(logger, cfg.Natives.Preview).Resolve(natives, libs)
	if err != nil {
		return err
	}
	printReport(rep, *asm)

	dir, err := outputDir(outFlag(*outDir, cfg), input{}, false)
	if err != nil {
		return err
	}
	return writeNatives(dir, rep)
}

// apkLibraries opens the APK's libraries for abi. Libraries that are not
// 64-bit ARM shared objects are skipped.
func apkLibraries(path, abi string, logger log.Logger) ([]jni.Library, error) {
	a, err := apk.Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	entries := a.Libs(abi)
	if len(entries) == 0 {
		level.Warn(logger).Log("msg", "no libraries for ABI", "abi", abi, "available", strings.Join(a.ABIs(), ","))
	}
	var libs []jni.Library
	for _, e := range entries {
		data, err := a.Read(e.Name)
		if err != nil {
			return nil, err
		}
		f, err := elfx.NewFile(data)
		if err != nil {
			level.Warn(logger).Log("msg", "skipping library", "lib", e.Name, "err", err)
			continue
		}
		libs = append(libs, jni.Library{Name: e.Base, File: f})
	}
	return libs, nil
}

func fileLibraries(paths []string, logger log.Logger) ([]jni.Library, error) {
	var libs []jni.Library
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := elfx.Open(p)
		if errors.Is(err, elfx.ErrNotARM64) || errors.Is(err, elfx.ErrNot64Bit) {
			level.Warn(logger).Log("msg", "skipping library", "lib", p, "err", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		libs = append(libs, jni.Library{Name: filepath.Base(p), File: f})
	}
	return libs, nil
}

func printReport(rep *jni.Report, asm bool) {
	for _, b := range rep.Bound {
		fmt.Printf("%s\n  -> %s!%s @ 0x%x\n", b.Signature, b.Lib, b.Symbol, b.Addr)
		for _, c := range b.Calls {
			if callee := c.Callee(); callee != "" {
				fmt.Printf("     calls %s\n", callee)
			}
		}
		if asm {
			fmt.Print(indent(disasm.Format(b.Insts, nil, disasm.EdgeAnnotator(b.Calls)), "     "))
		}
	}
	for _, n := range rep.Unbound {
		fmt.Printf("%s\n  -> unbound\n", n.Signature)
	}
	for _, o := range rep.Orphans {
		fmt.Printf("orphan export %s!%s\n", o.Lib, o.Export.Name)
	}
	if len(rep.Unbound) > 0 && rep.Registers {
		fmt.Println("JNI_OnLoad calls RegisterNatives; unbound methods may be registered at runtime")
	}
}

func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l != "" {
			b.WriteString(prefix + l)
		}
	}
	return b.String()
}

func writeNatives(dir string, rep *jni.Report) error {
	out, err := output.CreateJSONL(dir, "natives.jsonl")
	if err != nil {
		return err
	}
	defer out.Close()
	for _, rec := range output.NativeRecords(rep) {
		if err := out.Write(rec); err != nil {
			return err
		}
	}
	if err := output.WriteText(dir, "natives.dot", render.NativesDOT(rep, "JNI bindings", render.NASA)); err != nil {
		return err
	}

	cfgDir := filepath.Join(dir, "native_cfg")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	entries := make([]jni.Entry, 0, len(rep.Bound)+len(rep.OnLoads))
	for _, b := range rep.Bound {
		entries = append(entries, b.Entry)
	}
	entries = append(entries, rep.OnLoads...)
	for _, e := range entries {
		g := disasm.BuildCFG(e.Symbol, e.Insts)
		dot := render.CFGDOT(g, disasm.EdgeAnnotator(e.Calls), render.NASA)
		if dot == "" {
			continue
		}
		if err := output.WriteText(cfgDir, e.Lib+"_"+e.Symbol+".dot", dot); err != nil {
			return err
		}
	}
	return nil
}
