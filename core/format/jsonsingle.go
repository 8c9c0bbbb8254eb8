package format

import (
	"bytes"
	"encoding/json"

	"github.com/adalundhe/watchkit/core/errs"
)

// JSONSingle is the codec for .json files holding either a single object
// or an array of objects. Unlike JSONLines, a syntax error anywhere fails
// the whole file.
type JSONSingle struct{}

func (JSONSingle) Extension() string { return ".json" }

func (JSONSingle) Parse(content []byte, schema Schema) ([]Record, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var records []Record
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, errs.Formatf("invalid JSON array: %v", err)
		}
	default:
		var rec Record
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, errs.Formatf("invalid JSON document: %v", err)
		}
		records = []Record{rec}
	}

	if err := validate(records, schema); err != nil {
		return nil, err
	}
	return records, nil
}

// Write always emits a compact JSON array, so round-tripping a single
// record produces `[{...}]`.
func (JSONSingle) Write(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	out, err := json.Marshal(records)
	if err != nil {
		return nil, errs.Formatf("serialize records: %v", err)
	}
	return append(out, '\n'), nil
}
