// Package knowledge owns the distilled knowledge document: the XML codec
// for codebase_knowledge.xml and the referential-integrity checks that
// gate planning.
package knowledge

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// DocumentName is the artifact filename within a run's output directory.
const DocumentName = "codebase_knowledge.xml"

// RootTag is the document's root element name.
const RootTag = "codebase_knowledge"

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// document is the wire form of a KnowledgeArtifact. The files and
// relationships sections are always present, even when empty.
type document struct {
	XMLName       xml.Name            `xml:"codebase_knowledge"`
	Project       string              `xml:"project,attr"`
	Generated     string              `xml:"generated,attr,omitempty"`
	Files         filesSection        `xml:"files"`
	Relationships relationshipSection `xml:"relationships"`
	Rejected      []rejectedEdge      `xml:"rejected>edge"`
}

type filesSection struct {
	Entries []fileEntry `xml:"file"`
}

type relationshipSection struct {
	Entries []relationshipEdge `xml:"relationship"`
}

type fileEntry struct {
	ID       string `xml:"id,attr"`
	Role     string `xml:"role,attr"`
	Mode     string `xml:"mode,attr"`
	Lines    int    `xml:"lines,attr"`
	Degraded bool   `xml:"degraded,attr,omitempty"`
	Content  string `xml:"content,omitempty"`
	Summary  string `xml:"summary,omitempty"`
}

type relationshipEdge struct {
	Source string `xml:"source,attr"`
	Target string `xml:"target,attr"`
	Kind   string `xml:"kind,attr"`
}

type rejectedEdge struct {
	Source string `xml:"source,attr"`
	Target string `xml:"target,attr"`
	Kind   string `xml:"kind,attr"`
	Reason string `xml:"reason,attr"`
}

// Encode renders the artifact as an indented XML document. Units are
// emitted in sorted identifier order so encoding is deterministic.
func Encode(a *models.KnowledgeArtifact) ([]byte, error) {
	doc := document{Project: a.Target}
	if !a.GeneratedAt.IsZero() {
		doc.Generated = a.GeneratedAt.UTC().Format(time.RFC3339)
	}

	for _, id := range a.UnitIDs() {
		u := a.Units[id]
		doc.Files.Entries = append(doc.Files.Entries, fileEntry{
			ID:       u.ID,
			Role:     string(u.Role),
			Mode:     string(u.Mode),
			Lines:    u.Lines,
			Degraded: u.Degraded,
			Content:  u.Content,
			Summary:  u.Summary,
		})
	}
	for _, r := range a.Relationships {
		doc.Relationships.Entries = append(doc.Relationships.Entries, relationshipEdge{
			Source: r.Source,
			Target: r.Target,
			Kind:   string(r.Kind),
		})
	}
	for _, rej := range a.Rejected {
		doc.Rejected = append(doc.Rejected, rejectedEdge{
			Source: rej.Edge.Source,
			Target: rej.Edge.Target,
			Kind:   string(rej.Edge.Kind),
			Reason: rej.Reason,
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding knowledge document: %w", err)
	}
	return append([]byte(xmlHeader), append(out, '\n')...), nil
}

// Decode parses a knowledge document back into an artifact.
func Decode(data []byte) (*models.KnowledgeArtifact, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing knowledge document: %w", err)
	}

	a := models.NewKnowledgeArtifact(doc.Project)
	if doc.Generated != "" {
		t, err := time.Parse(time.RFC3339, doc.Generated)
		if err != nil {
			return nil, fmt.Errorf("parsing generated timestamp %q: %w", doc.Generated, err)
		}
		a.GeneratedAt = t
	}

	for _, f := range doc.Files.Entries {
		if f.ID == "" {
			return nil, fmt.Errorf("knowledge document contains a file entry with no id")
		}
		if _, ok := a.Units[f.ID]; ok {
			return nil, fmt.Errorf("knowledge document contains duplicate unit %q", f.ID)
		}
		a.Units[f.ID] = &models.KnowledgeUnit{
			ID:       f.ID,
			Role:     models.Role(f.Role),
			Mode:     models.UnitMode(f.Mode),
			Lines:    f.Lines,
			Content:  f.Content,
			Summary:  f.Summary,
			Degraded: f.Degraded,
		}
	}
	for _, r := range doc.Relationships.Entries {
		a.Relationships = append(a.Relationships, models.Relationship{
			Source: r.Source,
			Target: r.Target,
			Kind:   models.RelationshipKind(r.Kind),
		})
	}
	for _, rej := range doc.Rejected {
		a.Rejected = append(a.Rejected, models.RejectedEdge{
			Edge: models.Relationship{
				Source: rej.Source,
				Target: rej.Target,
				Kind:   models.RelationshipKind(rej.Kind),
			},
			Reason: rej.Reason,
		})
	}
	return a, nil
}

// WriteDocument validates integrity and writes the document to path.
// A dangling edge here means an upstream bug; the document is never
// written with one.
func WriteDocument(path string, a *models.KnowledgeArtifact) error {
	if err := ValidateIntegrity(a); err != nil {
		return err
	}
	data, err := Encode(a)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing knowledge document: %w", err)
	}
	return nil
}

// ReadDocument loads and parses the document at path.
func ReadDocument(path string) (*models.KnowledgeArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge document: %w", err)
	}
	return Decode(data)
}
