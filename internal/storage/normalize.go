package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeValue converts a key or foreign-key value to a canonical string
// form, suitable for component-wise comparison and in-memory key sets.
//
// Backends must not assume a particular underlying type for values; this
// helper keeps lookups consistent across backends and across the type drift
// a JSON round-trip introduces (ints arriving as float64, bools as spellings,
// dates as strings).
//
// Canonical forms:
//   - nil            -> ""
//   - numbers        -> decimal without trailing zeros ("1.0" == "1")
//   - booleans       -> "true"/"false", including spellings like yes/no, y/n, t/f
//   - dates          -> "2006-01-02" for recognized layouts
//   - structured     -> compact JSON with sorted object keys
//   - anything else  -> trimmed string
func NormalizeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return normalizeString(t)
	case []byte:
		return normalizeString(string(t))
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format("2006-01-02")
	case map[string]any, []any:
		// encoding/json writes object keys in sorted order, which makes the
		// serialized form canonical for comparison purposes.
		b, err := json.Marshal(t)
		if err != nil {
			return strings.TrimSpace(fmt.Sprint(v))
		}
		return string(b)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// IsNull reports whether a value is absent for key/FK purposes: nil or an
// empty/whitespace string.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func normalizeString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Numeric first: "1.0" and "1" must compare equal, and "1,234" style
	// thousands separators collapse.
	if n, ok := normalizeNumeric(s); ok {
		return n
	}

	if b, ok := normalizeBool(s); ok {
		return b
	}

	if d, ok := normalizeDate(s); ok {
		return d
	}

	return s
}

func normalizeNumeric(s string) (string, bool) {
	c := s
	if strings.Contains(c, ",") && !strings.Contains(c, " ") {
		c = strings.ReplaceAll(c, ",", "")
	}
	if i, err := strconv.ParseInt(c, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), true
	}
	if f, err := strconv.ParseFloat(c, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// normalizeBool accepts the boolean spellings commonly seen in business
// exports. Bare digits are deliberately excluded; "1"/"0" stay numeric.
func normalizeBool(s string) (string, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y":
		return "true", true
	case "false", "f", "no", "n":
		return "false", true
	}
	return "", false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
}

func normalizeDate(s string) (string, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC().Format("2006-01-02"), true
		}
	}
	return "", false
}
