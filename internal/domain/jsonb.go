package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

var errUnsupportedJSONType = errors.New("unsupported type for JSON column")

// JSONBMap maps a JSON object column (jsonb in postgres, text in sqlite)
// to map[string]any.
type JSONBMap map[string]any

// Scan implements the sql.Scanner interface.
func (j *JSONBMap) Scan(value any) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*j = JSONBMap{}
		return nil
	}
	return json.Unmarshal(data, j)
}

// Value implements the driver.Valuer interface.
func (j JSONBMap) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(j))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// StringList maps a JSON array column to []string.
type StringList []string

// Scan implements the sql.Scanner interface.
func (s *StringList) Scan(value any) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = StringList{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// Value implements the driver.Valuer interface.
func (s StringList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// CitationList maps a JSON array column to []Citation.
type CitationList []Citation

// Scan implements the sql.Scanner interface.
func (c *CitationList) Scan(value any) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*c = CitationList{}
		return nil
	}
	return json.Unmarshal(data, c)
}

// Value implements the driver.Valuer interface.
func (c CitationList) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]Citation(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, errUnsupportedJSONType
	}
}
