package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IsActiveStatus reports whether a status column value means "active".
// The column has been written as 1, true and "1" over time; all three are
// active. Everything else, including nil, is inactive.
func IsActiveStatus(v any) bool {
	switch s := v.(type) {
	case nil:
		return false
	case bool:
		return s
	case int:
		return s == 1
	case int8:
		return s == 1
	case int16:
		return s == 1
	case int32:
		return s == 1
	case int64:
		return s == 1
	case uint:
		return s == 1
	case uint8:
		return s == 1
	case uint16:
		return s == 1
	case uint32:
		return s == 1
	case uint64:
		return s == 1
	case float32:
		return s == 1
	case float64:
		return s == 1
	case string:
		return s == "1"
	case []byte:
		return string(s) == "1"
	case ActiveFlag:
		return bool(s)
	default:
		return false
	}
}

// ActiveFlag is a status column normalized through IsActiveStatus at scan time.
type ActiveFlag bool

// Scan implements sql.Scanner.
func (f *ActiveFlag) Scan(value any) error {
	*f = ActiveFlag(IsActiveStatus(value))
	return nil
}

// Value implements driver.Valuer. Active flags are stored as 1/0.
func (f ActiveFlag) Value() (driver.Value, error) {
	if f {
		return int64(1), nil
	}
	return int64(0), nil
}

// Active returns the flag as a plain bool.
func (f ActiveFlag) Active() bool { return bool(f) }

// LooseInt is an integer column that may arrive as a number or a string.
// A value that cannot be parsed leaves Valid false rather than yielding zero.
type LooseInt struct {
	Int   int
	Valid bool
}

// Ptr returns nil when the value is unresolved.
func (li LooseInt) Ptr() *int {
	if !li.Valid {
		return nil
	}
	v := li.Int
	return &v
}

// Scan implements sql.Scanner.
func (li *LooseInt) Scan(value any) error {
	*li = LooseInt{}
	switch v := value.(type) {
	case nil:
	case int64:
		li.Int, li.Valid = int(v), true
	case int32:
		li.Int, li.Valid = int(v), true
	case int:
		li.Int, li.Valid = v, true
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			li.Int, li.Valid = int(v), true
		}
	case []byte:
		li.parse(string(v))
	case string:
		li.parse(v)
	default:
		return fmt.Errorf("failed to scan LooseInt: unsupported type %T", value)
	}
	return nil
}

func (li *LooseInt) parse(s string) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return
	}
	li.Int, li.Valid = n, true
}

// Value implements driver.Valuer.
func (li LooseInt) Value() (driver.Value, error) {
	if !li.Valid {
		return nil, nil
	}
	return int64(li.Int), nil
}

// CodeList is an aggregated list of codes stored as a JSON array.
// Postgres array literals ({a,b}) are accepted as well.
type CodeList []string

// Scan implements sql.Scanner.
func (cl *CodeList) Scan(value any) error {
	*cl = nil
	var raw string
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("failed to scan CodeList: expected []byte or string, got %T", value)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}

	var codes []string
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if inner != "" {
			for _, part := range strings.Split(inner, ",") {
				codes = append(codes, strings.Trim(part, `" `))
			}
		}
	} else {
		var items []*string
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return fmt.Errorf("failed to scan CodeList: %w", err)
		}
		for _, item := range items {
			if item != nil {
				codes = append(codes, *item)
			}
		}
	}

	*cl = CleanCodes(codes)
	return nil
}

// Value implements driver.Valuer.
func (cl CodeList) Value() (driver.Value, error) {
	if cl == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(cl))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// CleanCodes trims every code and drops empty entries and exact duplicates,
// keeping first-seen order.
func CleanCodes(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
