package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"dexlens/internal/apk"
	"dexlens/internal/config"
	"dexlens/internal/session"
)

// commonFlags are accepted by every command.
type commonFlags struct {
	fs     *flag.FlagSet
	config *string
	strict *bool
	debug  *bool
	dex    *string
	apk    *string
}

func addCommon(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		fs:     fs,
		config: fs.String("config", "", "path to dexlens.toml"),
		strict: fs.Bool("strict", false, "fail on first structural error"),
		debug:  fs.Bool("debug", false, "debug logging"),
		dex:    fs.String("dex", "", "path to a .dex file"),
		apk:    fs.String("apk", "", "path to an APK"),
	}
}

// set reports whether name was given on the command line.
func (c *commonFlags) set(name string) bool {
	found := false
	c.fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// load reads the config file and applies command-line overrides.
func (c *commonFlags) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if *c.config != "" {
		cfg, err = config.Load(*c.config)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if *c.strict {
		cfg.Strict = true
	}
	return cfg, nil
}

func (c *commonFlags) logger() log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	l = log.With(l, "ts", log.DefaultTimestampUTC)
	if *c.debug {
		return level.NewFilter(l, level.AllowDebug())
	}
	return level.NewFilter(l, level.AllowInfo())
}

// input is one DEX image to process.
type input struct {
	Name string
	Data []byte
}

// inputs reads --dex, or every classes*.dex in --apk in load order.
func (c *commonFlags) inputs() ([]input, error) {
	switch {
	case *c.dex != "" && *c.apk != "":
		return nil, fmt.Errorf("--dex and --apk are exclusive")
	case *c.dex != "":
		data, err := os.ReadFile(*c.dex)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		return []input{{Name: filepath.Base(*c.dex), Data: data}}, nil
	case *c.apk != "":
		a, err := apk.Open(*c.apk)
		if err != nil {
			return nil, err
		}
		defer a.Close()
		var ins []input
		for _, name := range a.DexFiles() {
			data, err := a.Read(name)
			if err != nil {
				return nil, err
			}
			ins = append(ins, input{Name: name, Data: data})
		}
		if len(ins) == 0 {
			return nil, fmt.Errorf("%s: no classes.dex", *c.apk)
		}
		return ins, nil
	}
	return nil, fmt.Errorf("--dex or --apk is required")
}

// eachSession opens every input in turn and calls fn with the open
// session. In best-effort mode a file that fails to open is logged and
// skipped; in strict mode it stops the command.
func eachSession(ins []input, cfg *config.Config, logger log.Logger, fn func(in input, s *session.Session) error) error {
	for _, in := range ins {
		s, err := session.Open(in.Data, cfg.SessionOptions())
		if err != nil {
			if cfg.Strict {
				return fmt.Errorf("%s: %w", in.Name, err)
			}
			level.Warn(logger).Log("msg", "skipping input", "input", in.Name, "err", err)
			continue
		}
		for _, d := range s.Diags() {
			level.Debug(logger).Log("msg", "diag", "input", in.Name, "diag", d.String())
		}
		err = fn(in, s)
		s.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
	}
	return nil
}

// outputDir returns the directory for an input's results, creating it.
// With several inputs each gets a subdirectory named after its file.
func outputDir(base string, in input, multi bool) (string, error) {
	dir := base
	if multi {
		dir = filepath.Join(base, strings.TrimSuffix(filepath.Base(in.Name), filepath.Ext(in.Name)))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	return dir, nil
}

// outFlag resolves an --out flag against the configured output directory.
func outFlag(flagVal string, cfg *config.Config) string {
	if flagVal != "" {
		return flagVal
	}
	return cfg.OutputPath("")
}
