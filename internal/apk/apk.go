// Package apk enumerates the DEX files and native libraries inside an
// Android APK. Only classes*.dex at the archive root and lib/<abi>/*.so
// are considered; manifests and resources are ignored.
package apk

import (
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

var (
	ErrNoEntry  = errors.New("apk: entry not found")
	ErrTooLarge = errors.New("apk: entry too large")
)

// MaxEntrySize bounds the uncompressed size of an entry read into memory.
const MaxEntrySize = 1 << 30

var isDex = regexp.MustCompile(`^classes(\d*)\.dex$`)

// Lib is a native library entry.
type Lib struct {
	Name string // full entry name, e.g. lib/arm64-v8a/libfoo.so
	ABI  string
	Base string // file name, e.g. libfoo.so
	Size uint64
}

// Archive is an open APK.
type Archive struct {
	Path   string
	zr     *zip.ReadCloser
	byName map[string]*zip.File
	dex    []string
	libs   []Lib
}

// Open opens the APK at p and indexes its DEX and library entries.
func Open(p string) (*Archive, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("apk: open %s: %w", p, err)
	}
	a := &Archive{Path: p, zr: zr, byName: make(map[string]*zip.File)}

	var order []int
	for _, f := range zr.File {
		if m := isDex.FindStringSubmatch(f.Name); m != nil {
			// classes.dex is the first file; classesN.dex follow numerically.
			n := 1
			if m[1] != "" {
				if n, err = strconv.Atoi(m[1]); err != nil {
					continue
				}
			}
			a.byName[f.Name] = f
			a.dex = append(a.dex, f.Name)
			order = append(order, n)
			continue
		}
		dir, base := path.Split(f.Name)
		parts := strings.Split(strings.TrimSuffix(dir, "/"), "/")
		if len(parts) == 2 && parts[0] == "lib" && strings.HasSuffix(base, ".so") {
			a.byName[f.Name] = f
			a.libs = append(a.libs, Lib{Name: f.Name, ABI: parts[1], Base: base, Size: f.UncompressedSize64})
		}
	}
	sort.Sort(byNumber{a.dex, order})
	sort.Slice(a.libs, func(i, j int) bool { return a.libs[i].Name < a.libs[j].Name })
	return a, nil
}

type byNumber struct {
	names []string
	n     []int
}

func (b byNumber) Len() int           { return len(b.names) }
func (b byNumber) Less(i, j int) bool { return b.n[i] < b.n[j] }
func (b byNumber) Swap(i, j int) {
	b.names[i], b.names[j] = b.names[j], b.names[i]
	b.n[i], b.n[j] = b.n[j], b.n[i]
}

// Close closes the archive.
func (a *Archive) Close() error { return a.zr.Close() }

// DexFiles returns the DEX entry names in load order.
func (a *Archive) DexFiles() []string { return a.dex }

// Libs returns native libraries, restricted to abi unless it is empty.
func (a *Archive) Libs(abi string) []Lib {
	if abi == "" {
		return a.libs
	}
	var out []Lib
	for _, l := range a.libs {
		if l.ABI == abi {
			out = append(out, l)
		}
	}
	return out
}

// ABIs returns the distinct library ABIs in name order.
func (a *Archive) ABIs() []string {
	var out []string
	for _, l := range a.libs {
		if len(out) == 0 || out[len(out)-1] != l.ABI {
			out = append(out, l.ABI)
		}
	}
	return out
}

// Read returns the uncompressed contents of a DEX or library entry.
func (a *Archive) Read(name string) ([]byte, error) {
	f, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEntry, name)
	}
	if f.UncompressedSize64 > MaxEntrySize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("apk: open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("apk: read %s: %w", name, err)
	}
	if len(data) > MaxEntrySize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, name)
	}
	return data, nil
}
