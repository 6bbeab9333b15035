package dp

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DataType identifies the encoding of a Tuya datapoint payload, as carried in
// the datatype field of the manufacturer cluster frame.
type DataType uint8

const (
	TypeRaw    DataType = 0x00
	TypeBool   DataType = 0x01
	TypeValue  DataType = 0x02
	TypeString DataType = 0x03
	TypeEnum   DataType = 0x04
	TypeBitmap DataType = 0x05
)

func (t DataType) String() string {
	switch t {
	case TypeRaw:
		return "Raw"
	case TypeBool:
		return "Bool"
	case TypeValue:
		return "Value"
	case TypeString:
		return "String"
	case TypeEnum:
		return "Enum"
	case TypeBitmap:
		return "Bitmap"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

var (
	ErrUnsupportedDataType = errors.New("unsupported datapoint data type")
	ErrInvalidLength       = errors.New("datapoint data has invalid length")
	ErrInvalidValue        = errors.New("value can not be encoded as datapoint data type")
)

// Decode interprets raw datapoint data, returning bool for TypeBool, int64
// for TypeValue, uint64 for TypeBitmap, uint8 for TypeEnum, string for
// TypeString and []byte for TypeRaw. An unrecognised data type is an error,
// never a silent default.
func Decode(t DataType, data []byte) (any, error) {
	switch t {
	case TypeRaw:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case TypeBool:
		if len(data) != 1 {
			return nil, fmt.Errorf("%w: bool wants 1 byte, got %d", ErrInvalidLength, len(data))
		}
		return data[0] == 1, nil
	case TypeValue:
		acc, err := accumulateBigEndian(data)
		return int64(acc), err
	case TypeBitmap:
		return accumulateBigEndian(data)
	case TypeString:
		var sb strings.Builder
		for _, b := range data {
			sb.WriteRune(rune(b))
		}
		return sb.String(), nil
	case TypeEnum:
		if len(data) < 1 {
			return nil, fmt.Errorf("%w: enum wants at least 1 byte", ErrInvalidLength)
		}
		return data[0], nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedDataType, uint8(t))
	}
}

// Encode produces the canonical wire form for a value: single byte booleans,
// 4 byte big endian integers and bitmaps, Latin-1 strings, single byte enums
// and passthrough raw data.
func Encode(t DataType, value any) ([]byte, error) {
	switch t {
	case TypeRaw:
		b, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: raw wants []byte, got %T", ErrInvalidValue, value)
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: bool wants bool, got %T", ErrInvalidValue, value)
		}
		if b {
			return []byte{0x01}, nil
		}
		return []byte{0x00}, nil
	case TypeValue:
		v, ok := toInt64(value)
		if !ok {
			return nil, fmt.Errorf("%w: value wants integer, got %T", ErrInvalidValue, value)
		}
		if v < math.MinInt32 || v > math.MaxUint32 {
			return nil, fmt.Errorf("%w: value %d outside 32 bit range", ErrInvalidValue, v)
		}
		return spreadBigEndian(uint64(uint32(v))), nil
	case TypeBitmap:
		v, ok := toUint64(value)
		if !ok {
			return nil, fmt.Errorf("%w: bitmap wants unsigned integer, got %T", ErrInvalidValue, value)
		}
		if v > math.MaxUint32 {
			return nil, fmt.Errorf("%w: bitmap %d outside 32 bit range", ErrInvalidValue, v)
		}
		return spreadBigEndian(v), nil
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: string wants string, got %T", ErrInvalidValue, value)
		}
		out := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xff {
				return nil, fmt.Errorf("%w: rune %q outside Latin-1 range", ErrInvalidValue, r)
			}
			out = append(out, byte(r))
		}
		return out, nil
	case TypeEnum:
		v, ok := toInt64(value)
		if !ok || v < 0 || v > math.MaxUint8 {
			return nil, fmt.Errorf("%w: enum wants a byte value, got %v (%T)", ErrInvalidValue, value, value)
		}
		return []byte{uint8(v)}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedDataType, uint8(t))
	}
}

func accumulateBigEndian(data []byte) (uint64, error) {
	if len(data) == 0 || len(data) > 8 {
		return 0, fmt.Errorf("%w: integer wants 1 to 8 bytes, got %d", ErrInvalidLength, len(data))
	}

	var acc uint64
	for _, b := range data {
		acc = (acc << 8) | uint64(b)
	}

	return acc, nil
}

func spreadBigEndian(v uint64) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint:
		return int64(v), true
	default:
		return 0, false
	}
}

func toUint64(value any) (uint64, bool) {
	v, ok := toInt64(value)
	if !ok || v < 0 {
		return 0, false
	}

	return uint64(v), true
}
