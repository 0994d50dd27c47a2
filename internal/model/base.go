package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/dispatch-api/pkg/geo"
)

// Location is a GPS coordinate.
type Location = geo.Point

// jsonValue and scanJSON back the JSONB columns.
func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported type %T for json column", src)
	}
}
