package envfile

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Entry represents a single key-value pair from a .env file.
type Entry struct {
	Key   string
	Value string
}

// Parse reads a .env document and returns its entries in file order.
// It skips blank lines, lines starting with # and lines without "=".
// An optional "export " prefix and matching surrounding quotes are removed.
func Parse(data []byte) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("invalid key %q", key)
		}
		entries = append(entries, Entry{
			Key:   key,
			Value: unquote(strings.TrimSpace(value)),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env document: %w", err)
	}
	return entries, nil
}

// Lookup returns the value of key, searching from the end.
func Lookup(entries []Entry, key string) (string, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Key == key {
			return entries[i].Value, true
		}
	}
	return "", false
}

// Merge appends the keys of add that existing does not define yet, sorted by
// key. Existing entries are kept unchanged and in order.
func Merge(existing []Entry, add map[string]string) []Entry {
	have := make(map[string]bool, len(existing))
	for _, e := range existing {
		have[e.Key] = true
	}
	keys := make([]string, 0, len(add))
	for k := range add {
		if !have[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := append([]Entry(nil), existing...)
	for _, k := range keys {
		out = append(out, Entry{Key: k, Value: add[k]})
	}
	return out
}

// Format renders entries as KEY=value lines. Values containing whitespace
// or # are double-quoted.
func Format(entries []Entry) []byte {
	var b bytes.Buffer
	for _, e := range entries {
		v := e.Value
		if strings.ContainsAny(v, " \t#") {
			v = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
		}
		fmt.Fprintf(&b, "%s=%s\n", e.Key, v)
	}
	return b.Bytes()
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return strings.ReplaceAll(v[1:len(v)-1], `\"`, `"`)
		}
	}
	return v
}

// sensitivePatterns are substrings that indicate a value should be redacted.
var sensitivePatterns = []string{"TOKEN", "SECRET", "PASSWORD", "KEY", "CREDENTIAL"}

// RedactValue returns a redacted version of value if the key name contains
// a sensitive pattern (case-insensitive substring match).
// Values with 4+ chars show the first 4 chars + "***".
// Values with fewer than 4 chars are fully redacted as "***".
func RedactValue(key, value string) string {
	upper := strings.ToUpper(key)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(upper, pattern) {
			if len(value) >= 4 {
				return value[:4] + "***"
			}
			return "***"
		}
	}
	return value
}
