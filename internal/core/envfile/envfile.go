// Package envfile models the durable configuration record: an ordered
// KEY=value file derived from a template on first run. It preserves line
// order and comments so re-serializing an untouched record is byte-stable.
// This is part of the Functional Core - all functions are pure with no I/O.
package envfile

import (
	"fmt"
	"strings"
)

// =============================================================================
// Record
// =============================================================================

// line is one physical line of the record. Non-pair lines (comments, blanks)
// are carried verbatim.
type line struct {
	raw    string
	key    string
	value  string
	isPair bool
}

// Record is an ordered mapping of setting name to value.
type Record struct {
	lines []line
	index map[string]int // key -> position in lines
}

// Parse reads .env-style content into a Record. Lines that are not KEY=value
// pairs (comments, blanks, malformed text) are preserved as-is.
func Parse(content string) *Record {
	r := &Record{index: make(map[string]int)}
	for _, raw := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			r.lines = append(r.lines, line{raw: raw})
			continue
		}
		eq := strings.Index(trimmed, "=")
		if eq <= 0 {
			r.lines = append(r.lines, line{raw: raw})
			continue
		}
		key := strings.TrimSpace(trimmed[:eq])
		value := trimmed[eq+1:]
		r.lines = append(r.lines, line{raw: raw, key: key, value: value, isPair: true})
		if _, exists := r.index[key]; !exists {
			r.index[key] = len(r.lines) - 1
		}
	}
	// Drop a single trailing blank produced by a trailing newline so String
	// round-trips without growing the file.
	if n := len(r.lines); n > 0 && !r.lines[n-1].isPair && r.lines[n-1].raw == "" {
		r.lines = r.lines[:n-1]
	}
	return r
}

// Get returns the value for key and whether it is present.
func (r *Record) Get(key string) (string, bool) {
	i, ok := r.index[key]
	if !ok {
		return "", false
	}
	return r.lines[i].value, true
}

// Set updates an existing key in place or appends a new pair at the end.
func (r *Record) Set(key, value string) {
	if i, ok := r.index[key]; ok {
		r.lines[i].value = value
		r.lines[i].raw = key + "=" + value
		return
	}
	r.lines = append(r.lines, line{raw: key + "=" + value, key: key, value: value, isPair: true})
	r.index[key] = len(r.lines) - 1
}

// Pairs returns the settings as a plain map, for callers that feed the
// record into variable interpolation.
func (r *Record) Pairs() map[string]string {
	pairs := make(map[string]string, len(r.index))
	for _, l := range r.lines {
		if l.isPair {
			pairs[l.key] = l.value
		}
	}
	return pairs
}

// Keys returns all setting names in file order.
func (r *Record) Keys() []string {
	var keys []string
	for _, l := range r.lines {
		if l.isPair {
			keys = append(keys, l.key)
		}
	}
	return keys
}

// String serializes the record back to file content.
func (r *Record) String() string {
	var b strings.Builder
	for _, l := range r.lines {
		b.WriteString(l.raw)
		b.WriteByte('\n')
	}
	return b.String()
}

// =============================================================================
// Malformed-Key Healing
// =============================================================================

// malformedKeys maps setting-name typos seen in records in the wild to the
// names the stack actually reads. Correcting these is a deliberate
// self-healing layer, not silent failure tolerance: callers must log every
// rewrite.
var malformedKeys = map[string]string{
	"POSTGRES_PASWORD":   "POSTGRES_PASSWORD",
	"POSTGRES_PASSSWORD": "POSTGRES_PASSWORD",
	"REDIS_PASWORD":      "REDIS_PASSWORD",
	"ALLOWED_HOST":       "ALLOWED_HOSTS",
	"SMTP_PASWORD":       "SMTP_PASSWORD",
}

// Correction records one malformed-key rewrite.
type Correction struct {
	From string
	To   string
}

func (c Correction) String() string {
	return fmt.Sprintf("%s -> %s", c.From, c.To)
}

// CorrectMalformedKeys rewrites known-malformed setting names in place,
// keeping each setting's position and value. A malformed key whose correct
// form already exists is left alone - the correct one wins and there is
// nothing safe to rewrite. Returns the corrections applied.
func (r *Record) CorrectMalformedKeys() []Correction {
	var applied []Correction
	for from, to := range malformedKeys {
		i, ok := r.index[from]
		if !ok {
			continue
		}
		if _, exists := r.index[to]; exists {
			continue
		}
		r.lines[i].key = to
		r.lines[i].raw = to + "=" + r.lines[i].value
		delete(r.index, from)
		r.index[to] = i
		applied = append(applied, Correction{From: from, To: to})
	}
	return applied
}

// =============================================================================
// Secret Fields
// =============================================================================

// SecretKeys are the settings whose values are generated once on first
// materialization and never regenerated while the record exists.
var SecretKeys = []string{
	"SECRET_KEY",
	"POSTGRES_PASSWORD",
	"REDIS_PASSWORD",
	"SMTP_PASSWORD",
}

// IsSecret reports whether a setting name is secret-marked.
func IsSecret(key string) bool {
	for _, s := range SecretKeys {
		if key == s {
			return true
		}
	}
	return false
}
