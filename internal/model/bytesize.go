package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ByteSize wraps a byte count so it can be configured as a human string
// ("256kB", "10MB"). It renders back out as a plain byte count: String gives
// "256000B" for "256kB", and JSON gives the bare integer.
type ByteSize int64

var sizeUnits = []struct {
	suffix string
	factor int64
}{
	{"kB", 1000},
	{"KB", 1000},
	{"MB", 1000 * 1000},
	{"GB", 1000 * 1000 * 1000},
	{"KiB", 1024},
	{"MiB", 1024 * 1024},
	{"GiB", 1024 * 1024 * 1024},
	{"B", 1},
}

// ParseByteSize parses a human-readable byte size such as "256kB" or "10MB".
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			numPart := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			if numPart == "" {
				continue
			}
			val, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("unable to parse size %q", s)
			}
			return ByteSize(int64(val * float64(u.factor))), nil
		}
	}

	// Bare number, interpreted as bytes.
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse size %q", s)
	}
	return ByteSize(val), nil
}

func (b ByteSize) String() string {
	return fmt.Sprintf("%dB", int64(b))
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(b))
}

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := ParseByteSize(v)
		if err != nil {
			return err
		}
		*b = parsed
	case float64:
		*b = ByteSize(int64(v))
	default:
		return fmt.Errorf("unsupported byte size value: %v", raw)
	}
	return nil
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
