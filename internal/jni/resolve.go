package jni

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"dexlens/internal/dexfile"
	"dexlens/internal/disasm"
	"dexlens/internal/elfx"
	"dexlens/internal/session"
	"dexlens/internal/visit"
)

// OnLoad is the library initializer the VM calls on System.loadLibrary.
const OnLoad = "JNI_OnLoad"

// DefaultPreview is the entry instruction limit when none is configured.
const DefaultPreview = 64

// Native is a method declared with ACC_NATIVE.
type Native struct {
	Method    uint32
	Signature string // "Lcls;->name(params)ret"
	Class     string
	Name      string
	Params    string
}

// Natives lists the native methods s defines, in class order.
func Natives(s *session.Session) ([]Native, error) {
	c := &nativeCollector{s: s}
	if err := s.Visit(c); err != nil {
		return nil, err
	}
	return c.out, nil
}

type nativeCollector struct {
	visit.Members
	s   *session.Session
	out []Native
}

func (c *nativeCollector) VisitClass(visit.ClassInfo) (visit.MemberVisitor, visit.Capability) {
	return c, visit.CapMethods
}

func (c *nativeCollector) VisitMethod(m visit.MethodInfo) {
	if m.Method.Flags&dexfile.AccNative == 0 {
		return
	}
	sig := c.s.MethodName(m.Method.Idx)
	class, name, params, ok := splitSignature(sig)
	if !ok {
		return
	}
	c.out = append(c.out, Native{
		Method:    m.Method.Idx,
		Signature: sig,
		Class:     class,
		Name:      name,
		Params:    params,
	})
}

// Library is an opened native library and the name it was loaded under.
type Library struct {
	Name string
	File *elfx.File
}

// Entry is a previewed exported function.
type Entry struct {
	Lib    string
	Symbol string
	Addr   uint64
	Size   uint64
	Insts  []disasm.Inst
	Calls  []disasm.CallEdge
}

// Binding ties a native method to the export that implements it.
type Binding struct {
	Native
	Entry
	Long bool // bound through the overloaded name
}

// Orphan is a Java_ export no native method binds to.
type Orphan struct {
	Lib    string
	Export elfx.Export
	Symbol Symbol
}

// Report is the result of resolving natives against a set of libraries.
type Report struct {
	Bound   []Binding
	Unbound []Native
	Orphans []Orphan
	OnLoads []Entry

	// Registers reports that some JNI_OnLoad reaches RegisterNatives,
	// so unbound natives may be registered at runtime.
	Registers bool
}

// Resolver binds native methods to library exports.
type Resolver struct {
	logger  log.Logger
	preview int
}

// NewResolver returns a Resolver that previews up to preview instructions
// of each entry. preview <= 0 selects DefaultPreview.
func NewResolver(logger log.Logger, preview int) *Resolver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if preview <= 0 {
		preview = DefaultPreview
	}
	return &Resolver{logger: logger, preview: preview}
}

type export struct {
	lib *Library
	exp elfx.Export
}

// Resolve binds each native to the first library exporting its short or
// long JNI name, in library order. The long name wins when both exist.
func (r *Resolver) Resolve(natives []Native, libs []Library) (*Report, error) {
	byName := make(map[string]export)
	lookups := make(map[*Library]disasm.SymbolLookup, len(libs))
	rep := &Report{}
	for i := range libs {
		lib := &libs[i]
		exps, err := lib.File.Exports()
		if err != nil {
			return nil, fmt.Errorf("jni: %s: %w", lib.Name, err)
		}
		level.Debug(r.logger).Log("msg", "exports", "lib", lib.Name, "count", len(exps))
		addrs := make(map[uint64]string, len(exps))
		for _, e := range exps {
			addrs[e.Addr] = e.Name
		}
		lookups[lib] = disasm.MapLookup(addrs)
		for _, e := range exps {
			if _, dup := byName[e.Name]; !dup {
				byName[e.Name] = export{lib: lib, exp: e}
			}
			if e.Name == OnLoad {
				ent, err := r.entry(lib, e, lookups[lib], disasm.RootJavaVM)
				if err != nil {
					return nil, err
				}
				rep.OnLoads = append(rep.OnLoads, ent)
			}
		}
	}

	used := make(map[string]bool)
	for _, n := range natives {
		long := LongName(n.Class, n.Name, n.Params)
		hit, isLong := byName[long], true
		if hit.lib == nil {
			hit, isLong = byName[ShortName(n.Class, n.Name)], false
		}
		if hit.lib == nil {
			level.Debug(r.logger).Log("msg", "unbound native", "method", n.Signature)
			rep.Unbound = append(rep.Unbound, n)
			continue
		}
		used[hit.exp.Name] = true
		ent, err := r.entry(hit.lib, hit.exp, lookups[hit.lib], disasm.RootJNIEnv)
		if err != nil {
			return nil, err
		}
		rep.Bound = append(rep.Bound, Binding{Native: n, Entry: ent, Long: isLong})
	}

	for name, e := range byName {
		if used[name] || !strings.HasPrefix(name, prefix) {
			continue
		}
		sym, ok := Demangle(name)
		if !ok {
			level.Warn(r.logger).Log("msg", "malformed JNI export", "lib", e.lib.Name, "symbol", name)
		}
		rep.Orphans = append(rep.Orphans, Orphan{Lib: e.lib.Name, Export: e.exp, Symbol: sym})
	}
	sort.Slice(rep.Orphans, func(i, j int) bool { return rep.Orphans[i].Export.Name < rep.Orphans[j].Export.Name })

	for _, ol := range rep.OnLoads {
		if registersNatives(ol) {
			rep.Registers = true
		}
	}

	level.Info(r.logger).Log("msg", "natives resolved", "libs", len(libs),
		"bound", len(rep.Bound), "unbound", len(rep.Unbound),
		"orphans", len(rep.Orphans), "onload", len(rep.OnLoads))
	return rep, nil
}

// entry decodes the start of an export and extracts its calls, tracking
// the interface pointer passed in X0 from root.
func (r *Resolver) entry(lib *Library, e elfx.Export, syms disasm.SymbolLookup, root string) (Entry, error) {
	ent := Entry{Lib: lib.Name, Symbol: e.Name, Addr: e.Addr, Size: e.Size}
	n := r.preview * 4
	if e.Size > 0 && e.Size < uint64(n) {
		n = int(e.Size)
	}
	code, err := lib.File.ReadBytesAtVA(e.Addr, n)
	if err != nil {
		return ent, fmt.Errorf("jni: %s: %s: %w", lib.Name, e.Name, err)
	}
	ent.Insts = disasm.Preview(code, e.Addr, e.Size, r.preview)
	ent.Calls = disasm.ExtractCallEdges(ent.Insts, syms, root, 0)
	return ent, nil
}

// registersNatives reports whether an entry calls RegisterNatives, either
// through a tracked JNIEnv or by loading its table slot. JNI_OnLoad gets
// its JNIEnv from GetEnv's out parameter, so the slot load is the usual
// evidence.
func registersNatives(e Entry) bool {
	for _, c := range e.Calls {
		if strings.HasSuffix(c.Via, "->RegisterNatives") {
			return true
		}
	}
	off, _ := disasm.JNIEnvSlot("RegisterNatives")
	return len(disasm.SlotLoads(e.Insts, off)) > 0
}
