package opentelemetry

import (
	"encoding/json"
	"strings"
)

// ObfuscatedValue replaces redacted field values.
const ObfuscatedValue = "********"

// defaultSensitiveFields are matched case-insensitively after removing
// separators, so "account_number" and "accountNumber" both match.
var defaultSensitiveFields = []string{
	"authorization",
	"token",
	"accesstoken",
	"refreshtoken",
	"password",
	"secret",
	"pin",
	"accountnumber",
	"cardnumber",
	"idnumber",
	"phonenumber",
}

// FieldObfuscator decides which fields are redacted and with what.
type FieldObfuscator interface {
	ShouldObfuscate(fieldName string) bool
	GetObfuscatedValue() string
}

type fieldSet struct {
	fields map[string]struct{}
}

// NewDefaultObfuscator redacts credentials and account or card numbers.
func NewDefaultObfuscator() FieldObfuscator {
	return NewCustomObfuscator(defaultSensitiveFields)
}

// NewCustomObfuscator redacts exactly the given field names.
func NewCustomObfuscator(sensitiveFields []string) FieldObfuscator {
	fields := make(map[string]struct{}, len(sensitiveFields))
	for _, field := range sensitiveFields {
		fields[normalizeFieldName(field)] = struct{}{}
	}

	return &fieldSet{fields: fields}
}

func (s *fieldSet) ShouldObfuscate(fieldName string) bool {
	_, ok := s.fields[normalizeFieldName(fieldName)]

	return ok
}

func (s *fieldSet) GetObfuscatedValue() string {
	return ObfuscatedValue
}

func normalizeFieldName(name string) string {
	return strings.NewReplacer("_", "", "-", "", ".", "").Replace(strings.ToLower(strings.TrimSpace(name)))
}

func obfuscateStructFields(data any, obfuscator FieldObfuscator) any {
	switch v := data.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))

		for key, value := range v {
			if obfuscator.ShouldObfuscate(key) {
				result[key] = obfuscator.GetObfuscatedValue()
				continue
			}

			result[key] = obfuscateStructFields(value, obfuscator)
		}

		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = obfuscateStructFields(item, obfuscator)
		}

		return result
	default:
		return data
	}
}

// ObfuscateStruct returns the JSON-shaped form of valueStruct with sensitive
// fields replaced. A nil obfuscator returns valueStruct unchanged.
func ObfuscateStruct(valueStruct any, obfuscator FieldObfuscator) (any, error) {
	if obfuscator == nil {
		return valueStruct, nil
	}

	encoded, err := json.Marshal(valueStruct)
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return nil, err
	}

	return obfuscateStructFields(decoded, obfuscator), nil
}
