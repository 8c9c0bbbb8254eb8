package format

import (
	"bytes"
	"strings"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/adalundhe/watchkit/core/errs"
)

// DefaultBodyField is the record key document-body codecs use when no
// explicit mapping is configured.
const DefaultBodyField = "content"

// Markdown is the codec for .md files with optional YAML (---) or TOML
// (+++) front matter. Front matter keys become record fields; the
// document body lands under the configured body field. The mapping is
// declared at construction rather than discovered from the record shape.
type Markdown struct {
	bodyField string
}

// NewMarkdown builds a markdown codec writing the body to bodyField
// (DefaultBodyField when empty).
func NewMarkdown(bodyField string) Markdown {
	if bodyField == "" {
		bodyField = DefaultBodyField
	}
	return Markdown{bodyField: bodyField}
}

func (Markdown) Extension() string { return ".md" }

func (m Markdown) Parse(content []byte, schema Schema) ([]Record, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}

	rec := Record{}
	body, err := frontmatter.Parse(bytes.NewReader(content), &rec)
	if err != nil {
		return nil, errs.Formatf("invalid front matter: %v", err)
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		rec[m.bodyField] = trimmed
	}
	if len(rec) == 0 {
		return nil, nil
	}

	records := []Record{rec}
	if err := validate(records, schema); err != nil {
		return nil, err
	}
	return records, nil
}

// Write serializes the first record: non-body fields become YAML front
// matter, the body field becomes the document. A record with no metadata
// is written as a bare document.
func (m Markdown) Write(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}

	rec := records[0]
	body, _ := rec[m.bodyField].(string)

	meta := make(Record, len(rec))
	for k, v := range rec {
		if k == m.bodyField || v == nil || v == "" {
			continue
		}
		meta[k] = v
	}

	if len(meta) == 0 {
		return []byte(body), nil
	}

	fm, err := yaml.Marshal(meta)
	if err != nil {
		return nil, errs.Formatf("serialize front matter: %v", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}
