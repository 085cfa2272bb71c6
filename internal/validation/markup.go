package validation

import (
	"encoding/xml"
	"io"
	"strings"
)

// CheckPlantUML validates cleaned PlantUML source: exactly one
// @startuml/@enduml envelope, in order, with a non-empty body.
func CheckPlantUML(source string) []Violation {
	var violations []Violation

	start := strings.Index(source, "@startuml")
	end := strings.Index(source, "@enduml")

	switch {
	case start < 0:
		violations = append(violations, Violation{
			Rule: RuleMarkup, Detail: "missing @startuml directive",
		})
	case strings.Count(source, "@startuml") > 1:
		violations = append(violations, Violation{
			Rule: RuleMarkup, Detail: "multiple @startuml directives",
		})
	}

	switch {
	case end < 0:
		violations = append(violations, Violation{
			Rule: RuleMarkup, Detail: "missing @enduml directive",
		})
	case strings.Count(source, "@enduml") > 1:
		violations = append(violations, Violation{
			Rule: RuleMarkup, Detail: "multiple @enduml directives",
		})
	}

	if start >= 0 && end >= 0 {
		if end < start {
			violations = append(violations, Violation{
				Rule: RuleMarkup, Detail: "@enduml appears before @startuml",
			})
		} else {
			body := strings.TrimSpace(source[start+len("@startuml") : end])
			if body == "" {
				violations = append(violations, Violation{
					Rule: RuleMarkup, Detail: "diagram body is empty",
				})
			}
		}
	}

	return violations
}

// CheckXMLDocument validates that raw parses as XML with the expected
// root element and that each required section appears somewhere in the
// document.
func CheckXMLDocument(raw, rootTag string, requiredSections []string) []Violation {
	var violations []Violation

	dec := xml.NewDecoder(strings.NewReader(raw))
	var root string
	seen := make(map[string]bool)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return []Violation{{
				Rule: RuleMarkup, Detail: "document is not well-formed XML: " + err.Error(),
			}}
		}
		if start, ok := tok.(xml.StartElement); ok {
			if root == "" {
				root = start.Name.Local
			}
			seen[start.Name.Local] = true
		}
	}

	if root == "" {
		return []Violation{{
			Rule: RuleMarkup, Detail: "document contains no XML elements",
		}}
	}
	if root != rootTag {
		violations = append(violations, Violation{
			Rule:   RuleMarkup,
			Detail: `root element is "` + root + `", expected "` + rootTag + `"`,
		})
	}
	for _, section := range requiredSections {
		if !seen[section] {
			violations = append(violations, Violation{
				Field: section, Rule: RuleRequired,
				Detail: "required section <" + section + "> is missing",
			})
		}
	}

	return violations
}
