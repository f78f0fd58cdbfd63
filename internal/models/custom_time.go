package models

import (
	"encoding/json"
	"strings"
	"time"
)

// FlexibleDate unmarshals RFC3339, "YYYY-MM-DD" and "YYYYMMDD" values.
// Empty strings and null leave the zero time.
type FlexibleDate struct {
	time.Time
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (f *FlexibleDate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		f.Time = time.Time{}
		return nil
	}
	t, err := ParseFlexibleDate(s)
	if err != nil {
		return err
	}
	f.Time = t
	return nil
}

// MarshalJSON writes the date as "YYYY-MM-DD".
func (f FlexibleDate) MarshalJSON() ([]byte, error) {
	if f.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(f.Format("2006-01-02"))
}

// ParseFlexibleDate parses s using each supported layout in turn.
func ParseFlexibleDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t.UTC(), nil
	}
	if t, err2 := time.Parse("20060102", s); err2 == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
