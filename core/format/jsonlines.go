package format

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/adalundhe/watchkit/core/errs"
)

// JSONLines is the codec for line-delimited JSON (.jsonl): one object per
// line. It is also the fallback for unknown extensions.
//
// Parsing is resilient at the line level: blank lines are skipped, and a
// line that is not valid JSON is logged and skipped rather than failing
// the whole file. Schema violations do fail the file, as a
// ValidationError.
type JSONLines struct{}

func (JSONLines) Extension() string { return ".jsonl" }

func (JSONLines) Parse(content []byte, schema Schema) ([]Record, error) {
	var records []Record
	lineNo := 0
	for _, line := range bytes.Split(content, []byte("\n")) {
		lineNo++
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("skipping invalid JSON line", "line", lineNo, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := validate(records, schema); err != nil {
		return nil, err
	}
	return records, nil
}

// Write emits one compact JSON object per line. The output always ends
// with a newline, even for an empty record set.
func (JSONLines) Write(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	for i, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, errs.Formatf("serialize record %d: %v", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if buf.Len() == 0 {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
