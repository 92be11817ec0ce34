package schema

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
)

// The source files are loosely typed: numbers sometimes arrive as strings,
// ids sometimes as numbers, and empty strings stand in for missing values.
// The nullable scalars below accept all of these and keep "absent" distinct
// from a zero value.

var null = []byte("null")

// NullString accepts a JSON string, number or null.
type NullString struct {
	V     string
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*n = NullString{}
	if bytes.Equal(b, null) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &n.V); err != nil {
			return err
		}
		n.Valid = true
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return errors.Newf("expected string or number, got %s", truncate(b))
	}
	n.V, n.Valid = num.String(), true
	return nil
}

// Ptr returns nil when the value is absent.
func (n NullString) Ptr() *string {
	if !n.Valid {
		return nil
	}
	v := n.V
	return &v
}

// NullInt64 accepts a JSON integer, an integral float, a numeric string, or
// null. The empty string decodes as null.
type NullInt64 struct {
	V     int64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullInt64) UnmarshalJSON(b []byte) error {
	s, ok, err := numericText(b)
	*n = NullInt64{}
	if err != nil || !ok {
		return err
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		n.V, n.Valid = v, true
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return errors.Newf("expected integer, got %s", truncate(b))
	}
	n.V, n.Valid = int64(f), true
	return nil
}

// Ptr returns nil when the value is absent.
func (n NullInt64) Ptr() *int64 {
	if !n.Valid {
		return nil
	}
	v := n.V
	return &v
}

// NullFloat64 accepts a JSON number, a numeric string, or null. The empty
// string decodes as null.
type NullFloat64 struct {
	V     float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullFloat64) UnmarshalJSON(b []byte) error {
	s, ok, err := numericText(b)
	*n = NullFloat64{}
	if err != nil || !ok {
		return err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Newf("expected number, got %s", truncate(b))
	}
	n.V, n.Valid = f, true
	return nil
}

// Ptr returns nil when the value is absent.
func (n NullFloat64) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.V
	return &v
}

// numericText unwraps a JSON number or numeric string. ok is false for null
// and for the empty string.
func numericText(b []byte) (s string, ok bool, err error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		return "", false, nil
	}
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false, err
		}
		s = string(bytes.TrimSpace([]byte(s)))
		if s == "" {
			return "", false, nil
		}
		return s, true, nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return "", false, errors.Newf("expected number, got %s", truncate(b))
	}
	return num.String(), true, nil
}

func truncate(b []byte) string {
	if len(b) > 32 {
		return string(b[:32]) + "..."
	}
	return string(b)
}
