package uks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/orneryd/uks/pkg/snapshot"
)

// Export flattens the whole store into a snapshot project: every thing as a
// (label, value) record, every edge as a (source, reltype, target, weight,
// ttl) statement, in creation order. Weight and TTL survive a round trip
// exactly; hit/miss counters, clause links and usage clocks are documented
// lossy.
func (s *Store) Export() *snapshot.Project {
	things := s.Things()
	p := &snapshot.Project{
		Things: make([]snapshot.ThingRecord, 0, len(things)),
	}
	for _, t := range things {
		p.Things = append(p.Things, snapshot.ThingRecord{
			Label: t.Label(),
			Value: t.Value(),
		})
	}
	for _, t := range things {
		for _, rel := range t.Relationships() {
			p.Statements = append(p.Statements, statementOf(rel))
		}
	}
	return p
}

func statementOf(rel *Relationship) snapshot.StatementRecord {
	rec := snapshot.StatementRecord{
		Source:  rel.Source().Label(),
		RelType: rel.RelType().Label(),
	}
	if tgt := rel.Target(); tgt != nil {
		label := tgt.Label()
		rec.Target = &label
	}
	weight, ttl, _ := rel.usage()
	rec.Weight = weight
	if ttl != InfiniteTTL {
		secs := ttl.Seconds()
		rec.TTL = &secs
	}
	return rec
}

// Import materializes a snapshot project into the store. merge=false wipes
// the graph and re-bootstraps the minimal structure first, so statement
// replay can always resolve "has-child"; merge=true adds into the existing
// graph, resolving things by label. Things import parentless; structure
// comes back through the has-child statements. Statements replay through
// AddRelationship, so they upsert, fire events, and restart TTL clocks.
func (s *Store) Import(p *snapshot.Project, merge bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if p == nil {
		return ErrNilProject
	}
	if !merge {
		s.wipe()
		s.bootstrap()
	}

	seen := make(map[string]bool)
	for _, tr := range p.Things {
		key := strings.ToLower(tr.Label)
		if seen[key] || s.labels.lookup(tr.Label) != nil {
			continue
		}
		seen[key] = true
		s.newThing(tr.Label, tr.Value)
	}

	for _, sr := range p.Statements {
		opts := []Option{WithWeight(sr.Weight)}
		if sr.TTL != nil {
			opts = append(opts, WithTTL(time.Duration(*sr.TTL*float64(time.Second))))
		}
		var target any
		if sr.Target != nil {
			target = *sr.Target
		}
		if _, err := s.AddRelationship(sr.Source, sr.RelType, target, opts...); err != nil {
			return fmt.Errorf("import statement %s/%s: %w", sr.Source, sr.RelType, err)
		}
	}
	return nil
}

// Save exports the store to path. A ".xml" extension selects the XML codec;
// anything else writes canonical JSON.
func (s *Store) Save(path string) error {
	p := s.Export()
	var data []byte
	var err error
	if isXMLPath(path) {
		data, err = p.XML()
	} else {
		data, err = p.JSON()
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load reads path and imports it, picking the codec by extension like Save.
// Parse errors propagate unchanged; nothing is imported on a parse failure.
func (s *Store) Load(path string, merge bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var p *snapshot.Project
	if isXMLPath(path) {
		p, err = snapshot.FromXML(data)
	} else {
		p, err = snapshot.FromJSON(data)
	}
	if err != nil {
		return err
	}
	return s.Import(p, merge)
}

func isXMLPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xml")
}
