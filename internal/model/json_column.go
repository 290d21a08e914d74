package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON-encoded columns. gorm stores them as text so the same schema runs on MySQL and SQLite.

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src any, dst any) error {
	switch s := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(s) == 0 {
			return nil
		}
		return json.Unmarshal(s, dst)
	case string:
		if s == "" {
			return nil
		}
		return json.Unmarshal([]byte(s), dst)
	default:
		return fmt.Errorf("unsupported json column source %T", src)
	}
}

// Tags is an ordered list of unique tag names.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return jsonValue([]string{})
	}
	return jsonValue([]string(t))
}

func (t *Tags) Scan(src any) error {
	*t = nil
	return jsonScan(src, (*[]string)(t))
}

// Has reports whether name is already present, ignoring case.
func (t Tags) Has(name string) bool {
	for _, existing := range t {
		if equalFold(existing, name) {
			return true
		}
	}
	return false
}

// With returns a copy with name appended unless it is already present.
func (t Tags) With(name string) Tags {
	out := make(Tags, 0, len(t)+1)
	out = append(out, t...)
	if t.Has(name) {
		return out
	}
	return append(out, name)
}

type Conditions []Condition

func (c Conditions) Value() (driver.Value, error) {
	if c == nil {
		return jsonValue([]Condition{})
	}
	return jsonValue([]Condition(c))
}

func (c *Conditions) Scan(src any) error {
	*c = nil
	return jsonScan(src, (*[]Condition)(c))
}

type Actions []Action

func (a Actions) Value() (driver.Value, error) {
	if a == nil {
		return jsonValue([]Action{})
	}
	return jsonValue([]Action(a))
}

func (a *Actions) Scan(src any) error {
	*a = nil
	return jsonScan(src, (*[]Action)(a))
}
