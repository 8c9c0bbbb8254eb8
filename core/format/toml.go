package format

import (
	"bytes"

	"github.com/BurntSushi/toml"

	"github.com/adalundhe/watchkit/core/errs"
)

// TOML is the codec for .toml files holding a single document, which
// parses to exactly one record.
type TOML struct{}

func (TOML) Extension() string { return ".toml" }

func (TOML) Parse(content []byte, schema Schema) ([]Record, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}

	rec := Record{}
	if err := toml.Unmarshal(content, &rec); err != nil {
		return nil, errs.Formatf("invalid TOML document: %v", err)
	}

	records := []Record{rec}
	if err := validate(records, schema); err != nil {
		return nil, err
	}
	return records, nil
}

// Write serializes the first record only; TOML has no list-of-documents
// form.
func (TOML) Write(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(records[0]); err != nil {
		return nil, errs.Formatf("serialize record: %v", err)
	}
	return buf.Bytes(), nil
}
