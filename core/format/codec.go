// Package format provides the pluggable parse/serialize codecs selected
// by file extension. Codecs are stateless; a single instance is shared by
// every rule that resolves to it.
package format

import (
	"strings"

	"github.com/adalundhe/watchkit/core/errs"
)

// Record is one parsed data record. Codecs that carry a document body
// place it under the codec's configured body field.
type Record map[string]any

// Schema validates a parsed record. A nil Schema accepts everything.
// Implementations are plain Go types, so an ill-typed schema is rejected
// at compile time rather than by runtime introspection.
type Schema interface {
	// Validate returns the field-level violations for rec, or nil when
	// the record is acceptable.
	Validate(rec Record) []errs.FieldError
}

// Codec parses file content into validated records and serializes
// records back to text.
//
// Parse returns *errs.FormatError for malformed syntax and
// *errs.ValidationError for schema violations; the caller attaches the
// file path before surfacing either.
type Codec interface {
	Parse(content []byte, schema Schema) ([]Record, error)
	Write(records []Record) ([]byte, error)
	Extension() string
}

// Registry maps lowercase file extensions to codecs. Unknown extensions
// fall back to the line-delimited codec.
type Registry struct {
	codecs   map[string]Codec
	fallback Codec
}

// NewRegistry builds the default registry: .jsonl, .json, .md, .toml and
// .txt, with JSONLines as the fallback.
func NewRegistry() *Registry {
	jsonl := JSONLines{}
	r := &Registry{
		codecs:   make(map[string]Codec),
		fallback: jsonl,
	}
	r.Add(jsonl)
	r.Add(JSONSingle{})
	r.Add(NewMarkdown(DefaultBodyField))
	r.Add(TOML{})
	r.Add(NewText(DefaultBodyField))
	return r
}

// Add registers a codec under its canonical extension, replacing any
// previous codec for that extension.
func (r *Registry) Add(c Codec) {
	r.codecs[strings.ToLower(c.Extension())] = c
}

// ForPath resolves a codec by the path's lowercase extension.
func (r *Registry) ForPath(path string) Codec {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return r.fallback
	}
	return r.ForExtension(path[idx:])
}

// ForExtension resolves a codec by extension (leading dot, any case).
func (r *Registry) ForExtension(ext string) Codec {
	if c, ok := r.codecs[strings.ToLower(ext)]; ok {
		return c
	}
	return r.fallback
}

// Extensions returns every registered extension.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.codecs))
	for ext := range r.codecs {
		exts = append(exts, ext)
	}
	return exts
}

// validate runs the schema over records, reporting the first offending
// record as a ValidationError.
func validate(records []Record, schema Schema) error {
	if schema == nil {
		return nil
	}
	for i, rec := range records {
		if fields := schema.Validate(rec); len(fields) > 0 {
			return &errs.ValidationError{Record: i, Fields: fields}
		}
	}
	return nil
}
