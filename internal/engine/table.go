package engine

import "fmt"

// MappingEntry documents one reversible substitution: every occurrence of
// Original (of type Type) in the source text was replaced by Placeholder.
// The JSON field names are the wire contract shared with the reconstruction
// side and with downstream consumers.
type MappingEntry struct {
	Type        EntityType `json:"type"`
	Original    string     `json:"original"`
	Placeholder string     `json:"anonymized"`
}

type mappingKey struct {
	original string
	typ      EntityType
}

// Table is the bidirectional placeholder store for a single redaction pass.
// Its lifetime is one Redact call: it is never shared across calls, so
// per-type counters can never leak between requests (and no locking is
// needed — a pass is a pure, single-threaded computation).
type Table struct {
	forward  map[mappingKey]string // (original, type) -> placeholder
	reverse  map[string]string     // placeholder -> original
	counters map[EntityType]int
	entries  []MappingEntry
}

// NewTable creates an empty per-pass mapping table.
func NewTable() *Table {
	return &Table{
		forward:  make(map[mappingKey]string),
		reverse:  make(map[string]string),
		counters: make(map[EntityType]int),
	}
}

// Placeholder returns the canonical placeholder for (original, typ), creating
// it on first sight. The returned bool reports whether a new entry was
// created. Counters are per type and start at 1; they advance in the order
// keys are first encountered, which during redaction is back-to-front text
// order (see Redact).
func (t *Table) Placeholder(original string, typ EntityType) (string, bool) {
	key := mappingKey{original: original, typ: typ}
	if ph, ok := t.forward[key]; ok {
		return ph, false
	}
	t.counters[typ]++
	ph := fmt.Sprintf("<%s_%d>", typ, t.counters[typ])
	t.forward[key] = ph
	t.reverse[ph] = original
	t.entries = append(t.entries, MappingEntry{Type: typ, Original: original, Placeholder: ph})
	return ph, true
}

// Lookup resolves a placeholder back to its original value.
func (t *Table) Lookup(placeholder string) (string, bool) {
	original, ok := t.reverse[placeholder]
	return original, ok
}

// Entries returns the mapping records in creation order.
func (t *Table) Entries() []MappingEntry {
	return t.entries
}

// Len returns the number of distinct (original, type) pairs seen.
func (t *Table) Len() int {
	return len(t.entries)
}
