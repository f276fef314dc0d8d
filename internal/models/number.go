package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is a float64 that also decodes from numeric JSON strings.
// Decimal columns are frequently serialized as "12.500" by REST backends.
type Number float64

// UnmarshalJSON accepts 12.5, "12.5" and null (left unchanged).
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q", s)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Float returns the value as float64.
func (n Number) Float() float64 {
	return float64(n)
}

// NumberPtr returns a pointer to Number(f).
func NumberPtr(f float64) *Number {
	n := Number(f)
	return &n
}

// Round3 rounds to three decimal places, the precision stored for generation values.
func Round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
