package sqlgen

import (
	"fmt"

	"github.com/roach88/uow/internal/ir"
)

// ToParam converts a column value to a database/sql parameter.
func ToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case nil, ir.Null:
		return nil, nil
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.UUID:
		return val.String(), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}

// FromColumn converts a scanned column to a value of kind k.
func FromColumn(raw any, k ir.Kind) (ir.Value, error) {
	switch r := raw.(type) {
	case []byte:
		raw = string(r)
	case int64:
		if k == ir.KindBool {
			return ir.Bool(r != 0), nil
		}
	}
	return ir.FromAny(raw, k)
}
