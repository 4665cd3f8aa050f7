// Package dexfmt provides the byte stream, shared types and diagnostics for DEX parsing.
package dexfmt

import "fmt"

// DiagKind classifies a diagnostic message.
type DiagKind string

const (
	DiagTruncated DiagKind = "truncated"
	DiagInvalid   DiagKind = "invalid"
	DiagBadValue  DiagKind = "bad_value"
	DiagBadCode   DiagKind = "bad_code"
)

// Diag records a non-fatal issue encountered during parsing.
type Diag struct {
	Offset uint64   `json:"offset"`
	Kind   DiagKind `json:"kind"`
	Msg    string   `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset uint64, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset uint64, kind DiagKind, format string, args ...any) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Mode controls error handling behavior.
type Mode int

const (
	ModeBestEffort Mode = iota // record a diag and keep going with what decoded
	ModeStrict                 // first structural error returns error
)

// Options controls parsing behavior across packages.
type Options struct {
	Mode     Mode
	MaxDepth int // encoded_value nesting cap; 0 = use default
	MaxSteps int // per-method instruction cap; 0 = use default
}

// DefaultMaxDepth bounds encoded_value recursion.
const DefaultMaxDepth = 256

// DefaultMaxSteps bounds the instruction walk of a single method.
const DefaultMaxSteps = 10_000_000

func (o Options) EffectiveMaxDepth() int {
	if o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return DefaultMaxDepth
}

func (o Options) EffectiveMaxSteps() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return DefaultMaxSteps
}
