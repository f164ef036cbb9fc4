// Package snapshot defines the interchange form of a knowledge store: a
// Project holding every thing and every edge flattened into statements.
//
// The JSON encoding is canonical:
//
//	{"things": [{"label": "cat", "value": null}],
//	 "statements": [{"source": "cat", "reltype": "color", "target": "red",
//	                 "weight": 1, "ttl": null}]}
//
// The XML encoding is a structural mapping of the same document: maps
// become child elements (keys sorted for deterministic output), slices
// become repeated <item> elements, scalars become text, and nil fields are
// omitted. Both formats carry the same logical statement set.
//
// The snapshot boundary is documented lossy: weight and TTL survive a round
// trip exactly; hit/miss counters, clause links and usage clocks do not.
package snapshot

import (
	"encoding/json"
	"fmt"
)

// Project is a complete exported store.
type Project struct {
	Things     []ThingRecord     `json:"things"`
	Statements []StatementRecord `json:"statements"`
}

// ThingRecord is one exported thing. Value keeps whatever JSON re-reads it
// as; typing across a round trip is best-effort, not exact.
type ThingRecord struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// StatementRecord is one exported edge, referenced by labels. Target is nil
// for bare edges; TTL is remaining-agnostic seconds, nil for permanent
// edges.
type StatementRecord struct {
	Source  string   `json:"source"`
	RelType string   `json:"reltype"`
	Target  *string  `json:"target"`
	Weight  float64  `json:"weight"`
	TTL     *float64 `json:"ttl"`
}

// JSON renders the project in the canonical indented encoding.
func (p *Project) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	return data, nil
}

// FromJSON parses a canonical JSON project.
func FromJSON(data []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &p, nil
}
