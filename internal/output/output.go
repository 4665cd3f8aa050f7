// Package output writes dexlens results to files: JSON documents, JSONL
// record streams and canonical CBOR pool dumps.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"dexlens/internal/dexfile"
	"dexlens/internal/dexfmt"
	"dexlens/internal/encval"
	"dexlens/internal/session"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("output: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Summary is the scan command's report.
type Summary struct {
	Path    string         `json:"path,omitempty"`
	Header  dexfile.Header `json:"header"`
	Strings int            `json:"strings"`
	Types   int            `json:"types"`
	Protos  int            `json:"protos"`
	Fields  int            `json:"fields"`
	Methods int            `json:"methods"`
	Classes int            `json:"classes"`
	Diags   []dexfmt.Diag  `json:"diags,omitempty"`
}

// NewSummary summarizes an open session.
func NewSummary(path string, s *session.Session) *Summary {
	t := s.Tables()
	return &Summary{
		Path:    path,
		Header:  s.File().Header(),
		Strings: len(t.Strings),
		Types:   len(t.Types),
		Protos:  len(t.Protos),
		Fields:  len(t.Fields),
		Methods: len(t.Methods),
		Classes: len(s.Classes()),
		Diags:   s.Diags(),
	}
}

// WriteSummaryJSON writes summary.json.
func WriteSummaryJSON(dir string, sum *Summary) error {
	return writeJSON(filepath.Join(dir, "summary.json"), sum)
}

// WriteTablesJSON writes tables.json.
func WriteTablesJSON(dir string, t *session.Tables) error {
	return writeJSON(filepath.Join(dir, "tables.json"), t)
}

// Pools is the bulk annotation and array export. Positions in Value
// payloads index into these slices.
type Pools struct {
	Annotations []encval.AnnotationRecord `json:"annotations" cbor:"1,keyasint"`
	Arrays      []encval.ArrayRecord      `json:"arrays" cbor:"2,keyasint"`
}

// PoolsOf flattens a session's pools in position order.
func PoolsOf(s *session.Session) *Pools {
	return &Pools{Annotations: s.Annotations(), Arrays: s.Arrays()}
}

// MarshalPoolsCBOR encodes p as canonical CBOR.
func MarshalPoolsCBOR(p *Pools) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// UnmarshalPoolsCBOR decodes a CBOR pool dump.
func UnmarshalPoolsCBOR(data []byte) (*Pools, error) {
	var p Pools
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("output: unmarshal pools: %w", err)
	}
	return &p, nil
}

// WritePoolsJSON writes annotations.json.
func WritePoolsJSON(dir string, p *Pools) error {
	return writeJSON(filepath.Join(dir, "annotations.json"), p)
}

// WritePoolsCBOR writes annotations.cbor.
func WritePoolsCBOR(dir string, p *Pools) error {
	data, err := MarshalPoolsCBOR(p)
	if err != nil {
		return fmt.Errorf("output: marshal pools: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "annotations.cbor"), data, 0644)
}

// WriteJSON writes v as indented JSON to dir/name.
func WriteJSON(dir, name string, v any) error {
	return writeJSON(filepath.Join(dir, name), v)
}

// WriteText writes a rendered document such as DOT to dir/name.
func WriteText(dir, name, text string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

// JSONL writes one JSON document per line.
type JSONL struct {
	f   *os.File
	enc *json.Encoder
	n   int
}

// CreateJSONL creates dir/name.
func CreateJSONL(dir, name string) (*JSONL, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("output: create %s: %w", path, err)
	}
	return &JSONL{f: f, enc: json.NewEncoder(f)}, nil
}

// Write encodes v as one line.
func (w *JSONL) Write(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("output: write %s: %w", w.f.Name(), err)
	}
	w.n++
	return nil
}

// Count returns the number of records written.
func (w *JSONL) Count() int { return w.n }

// Close closes the file.
func (w *JSONL) Close() error { return w.f.Close() }

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}
