package format

import (
	"github.com/adalundhe/watchkit/core/errs"
)

// Text is the codec for plain .txt files: the whole file is one record
// with its content under the configured body field.
type Text struct {
	bodyField string
}

// NewText builds a text codec writing the content to bodyField
// (DefaultBodyField when empty).
func NewText(bodyField string) Text {
	if bodyField == "" {
		bodyField = DefaultBodyField
	}
	return Text{bodyField: bodyField}
}

func (Text) Extension() string { return ".txt" }

func (t Text) Parse(content []byte, schema Schema) ([]Record, error) {
	if len(content) == 0 {
		return nil, nil
	}

	records := []Record{{t.bodyField: string(content)}}
	if err := validate(records, schema); err != nil {
		return nil, err
	}
	return records, nil
}

func (t Text) Write(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}

	body, ok := records[0][t.bodyField].(string)
	if !ok {
		return nil, errs.Formatf("record has no %q string field", t.bodyField)
	}
	return []byte(body), nil
}
