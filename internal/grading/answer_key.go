package grading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrAnswerKeyMalformed indicates the answer key document matches no accepted shape.
var ErrAnswerKeyMalformed = errors.New("answer key malformed")

// MatchMode controls how an observed value is compared to the expected one.
type MatchMode string

// MatchExact requires case-insensitive, whitespace-trimmed equality.
const MatchExact MatchMode = "exact"

// FieldKey is one expected answer in an answer key.
type FieldKey struct {
	FieldName     string
	ExpectedValue string
	MatchMode     MatchMode
}

const sectionsSchema = `{
  "type": "object",
  "required": ["sections"],
  "properties": {
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "fields": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["field"],
              "properties": {
                "field": {"type": "string", "minLength": 1},
                "expected": {"type": ["string", "number", "boolean", "null"]},
                "match": {"type": ["string", "null"], "pattern": "^(?i)\\s*(exact)?\\s*$"}
              }
            }
          }
        }
      }
    }
  }
}`

const flatSchema = `{
  "type": "object",
  "not": {"required": ["sections"]},
  "additionalProperties": {
    "oneOf": [
      {"type": ["string", "number", "boolean", "null"]},
      {
        "type": "object",
        "properties": {
          "expected": {"type": ["string", "number", "boolean", "null"]},
          "match": {"type": ["string", "null"], "pattern": "^(?i)\\s*(exact)?\\s*$"}
        }
      }
    ]
  }
}`

var (
	sectionsShape = jsonschema.MustCompileString("answer-key-sections.json", sectionsSchema)
	flatShape     = jsonschema.MustCompileString("answer-key-flat.json", flatSchema)
)

// ParseAnswerKey decodes an answer key document into an ordered field list.
// The nested sections shape is tried first, then the flat mapping shape.
func ParseAnswerKey(data []byte) ([]FieldKey, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnswerKeyMalformed, err)
	}

	if err := sectionsShape.Validate(document); err == nil {
		return parseSections(data)
	}

	if err := flatShape.Validate(document); err == nil {
		return parseFlat(data)
	}

	return nil, fmt.Errorf("%w: document is neither a sections list nor a field mapping", ErrAnswerKeyMalformed)
}

type sectionField struct {
	Field    string      `json:"field"`
	Expected interface{} `json:"expected"`
	Match    string      `json:"match"`
}

type sectionDocument struct {
	Sections []struct {
		Fields []sectionField `json:"fields"`
	} `json:"sections"`
}

func parseSections(data []byte) ([]FieldKey, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var doc sectionDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnswerKeyMalformed, err)
	}

	keys := make([]FieldKey, 0)
	for _, section := range doc.Sections {
		for _, field := range section.Fields {
			keys = append(keys, FieldKey{
				FieldName:     field.Field,
				ExpectedValue: scalarString(field.Expected),
				MatchMode:     normalizeMatch(field.Match),
			})
		}
	}

	return keys, nil
}

// parseFlat walks the top-level object token by token so the declared field
// order survives decoding. A repeated name keeps its first position and its
// last value.
func parseFlat(data []byte) ([]FieldKey, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnswerKeyMalformed, err)
	}

	keys := make([]FieldKey, 0)
	positions := make(map[string]int)
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAnswerKeyMalformed, err)
		}
		name, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected key %v", ErrAnswerKeyMalformed, token)
		}

		var value interface{}
		if err := decoder.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAnswerKeyMalformed, err)
		}

		key := FieldKey{FieldName: name, MatchMode: MatchExact}
		if object, isObject := value.(map[string]interface{}); isObject {
			key.ExpectedValue = scalarString(object["expected"])
			if match, ok := object["match"].(string); ok {
				key.MatchMode = normalizeMatch(match)
			}
		} else {
			key.ExpectedValue = scalarString(value)
		}

		if at, seen := positions[name]; seen {
			keys[at] = key
			continue
		}
		positions[name] = len(keys)
		keys = append(keys, key)
	}

	return keys, nil
}

func normalizeMatch(value string) MatchMode {
	if strings.TrimSpace(value) == "" {
		return MatchExact
	}
	return MatchMode(strings.ToLower(strings.TrimSpace(value)))
}

func scalarString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// BuildAnswerKey renders the filled fields of a completed form as a flat
// answer key in sorted field order. Empty and unchecked values are skipped.
func BuildAnswerKey(fields map[string]string) ([]byte, int, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	count := 0
	for _, name := range sortedNames(fields) {
		value := strings.TrimSpace(fields[name])
		if value == "" || normalize(value) == uncheckedValue {
			continue
		}

		encodedName, err := json.Marshal(name)
		if err != nil {
			return nil, 0, err
		}
		encodedValue, err := json.Marshal(value)
		if err != nil {
			return nil, 0, err
		}

		if count > 0 {
			buf.WriteByte(',')
		}
		buf.Write(encodedName)
		buf.WriteByte(':')
		buf.Write(encodedValue)
		count++
	}

	buf.WriteByte('}')
	return buf.Bytes(), count, nil
}
