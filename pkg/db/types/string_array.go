package types

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// StringArray maps a Postgres text[] column onto a Go string slice.
type StringArray []string

// Value encodes the slice as a Postgres array literal.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	parts := make([]string, 0, len(a))
	for _, item := range a {
		parts = append(parts, quoteArrayElement(item))
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// Scan decodes a Postgres array literal into the slice.
func (a *StringArray) Scan(value any) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}

	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("string array: unsupported scan type %T", value)
	}

	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return fmt.Errorf("string array: malformed literal %q", raw)
	}
	inner := raw[1 : len(raw)-1]
	if inner == "" {
		*a = StringArray{}
		return nil
	}

	*a = parseArrayElements(inner)
	return nil
}

// GormDataType tells GORM the backing column type.
func (StringArray) GormDataType() string {
	return "text[]"
}

func quoteArrayElement(item string) string {
	escaped := strings.ReplaceAll(item, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

func parseArrayElements(inner string) []string {
	out := []string{}
	var sb strings.Builder
	inQuotes := false
	escaped := false
	for _, r := range inner {
		switch {
		case escaped:
			sb.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			out = append(out, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	out = append(out, sb.String())
	return out
}
