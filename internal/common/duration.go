package common

import (
	"fmt"
	"strconv"
	"time"
)

// Duration wraps time.Duration so it can be read from YAML, JSON, and TOML
// configuration as a human string like "30s" or "1h30m" instead of a raw
// integer count of nanoseconds.
type Duration struct {
	time.Duration
}

// NewDuration wraps a time.Duration in a Duration.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText parses a duration string such as "30s" or "1h30m45s".
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration back to its string form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalJSON supports both quoted duration strings and plain numeric
// nanosecond counts.
func (d *Duration) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return d.UnmarshalText([]byte(s[1 : len(s)-1]))
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d.Duration = time.Duration(n)
		return nil
	}
	return d.UnmarshalText(data)
}

// MarshalJSON renders the duration as a quoted string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", d.Duration.String())), nil
}

// UnmarshalYAML supports the yaml.v3 unmarshaler interface.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalYAML supports the yaml.v3 marshaler interface.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}
