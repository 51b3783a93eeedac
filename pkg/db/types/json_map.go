package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap maps a jsonb column onto a flat string-to-string map. Used for
// profile social links where keys are platform names and values are URLs.
type JSONMap map[string]string

// Value encodes the map as jsonb.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("json map: %w", err)
	}
	return string(data), nil
}

// Scan decodes jsonb into the map.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("json map: unsupported scan type %T", value)
	}

	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// GormDataType tells GORM the backing column type.
func (JSONMap) GormDataType() string {
	return "jsonb"
}
