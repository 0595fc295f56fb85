package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"slices"
	"strings"
)

// StringArray stores an ordered list of ids as JSON text so the same column
// works on PostgreSQL, MySQL and SQLite. Scan also accepts the PostgreSQL
// array literal for columns created as TEXT[].
type StringArray []string

// Contains reports whether s is an element.
func (a StringArray) Contains(s string) bool {
	return slices.Contains(a, s)
}

// Without returns a copy with every occurrence of s removed.
func (a StringArray) Without(s string) StringArray {
	out := make(StringArray, 0, len(a))
	for _, v := range a {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// Scan implements the sql.Scanner interface.
func (a *StringArray) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return a.scanString(string(v))
	case string:
		return a.scanString(v)
	default:
		return errors.New("StringArray: unsupported scan type")
	}
}

func (a *StringArray) scanString(str string) error {
	if strings.HasPrefix(str, "[") {
		return json.Unmarshal([]byte(str), a)
	}

	if strings.HasPrefix(str, "{") && strings.HasSuffix(str, "}") {
		str = strings.TrimSuffix(strings.TrimPrefix(str, "{"), "}")
		if str == "" {
			*a = StringArray{}
			return nil
		}
		*a = parsePostgresArray(str)
		return nil
	}

	*a = StringArray{str}
	return nil
}

// parsePostgresArray parses the body of a PostgreSQL array literal, honouring quotes.
func parsePostgresArray(s string) StringArray {
	var (
		result   StringArray
		current  strings.Builder
		inQuotes bool
		escaped  bool
	)

	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			result = append(result, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(result, current.String())
}

// Value implements the driver.Valuer interface. Nil is stored as an empty list.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GormDataType returns the GORM data type hint.
func (StringArray) GormDataType() string {
	return "text"
}
