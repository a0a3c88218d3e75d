package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Upstream panels are inconsistent about whether numeric IDs are JSON numbers
// or numeric strings. FlexInt and FlexString absorb both forms at decode time
// so the rest of the pipeline deals in plain values.

// FlexInt is an int64 decoded from either a JSON number or a numeric string.
// Valid is false when the field was absent, null, or unparseable.
type FlexInt struct {
	Int64 int64
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	f.Int64, f.Valid = 0, false
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil
		}
		f.Int64, f.Valid = n, true
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return nil
	}
	v, err := n.Int64()
	if err != nil {
		// Some panels emit floats for IDs.
		fv, ferr := n.Float64()
		if ferr != nil {
			return nil
		}
		v = int64(fv)
	}
	f.Int64, f.Valid = v, true
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Int64, 10)), nil
}

// Ptr returns the value as *int64, nil when invalid.
func (f FlexInt) Ptr() *int64 {
	if !f.Valid {
		return nil
	}
	v := f.Int64
	return &v
}

// FlexString is a string decoded from either a JSON string or a JSON number.
// Absent/null/empty-after-trim all decode to the empty string.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	*f = ""
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Empty reports whether no usable value was decoded.
func (f FlexString) Empty() bool { return f == "" }
