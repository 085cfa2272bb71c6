// Package draft runs the Drafted stage: one supervised PlantUML draft per
// selected plan item, each reviewed by a critic that validates syntax,
// flags complexity, and drives the render boundary with bounded corrective
// redrafts. A draft that cannot be rendered degrades to render-failed with
// the service's reason; it never aborts the stage.
package draft

import (
	"regexp"
	"strings"
)

var (
	fenceRE  = regexp.MustCompile("(?is)```[a-z]*[ \t]*\\n(.*?)\\n?[ \t]*```")
	escapeRE = regexp.MustCompile("\\\\+([<>_\\[\\]!#\\-*`'\"])")
)

// Clean normalizes a raw draft response into bare PlantUML source:
// markdown fences and surrounding prose are stripped, backslash-escape
// artifacts removed, and the @startuml/@enduml envelope forced. The
// result still goes through CheckPlantUML; Clean only repairs the
// decoration an LLM wraps around otherwise-usable source.
func Clean(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	text = stripFence(text)
	text = escapeRE.ReplaceAllString(text, "$1")

	if !strings.Contains(text, "@startuml") {
		text = "@startuml\n" + text
	}
	if !strings.Contains(text, "@enduml") {
		text = text + "\n@enduml"
	}

	// Drop prose outside the envelope.
	start := strings.Index(text, "@startuml")
	end := strings.Index(text, "@enduml")
	if end > start {
		text = text[start : end+len("@enduml")]
	}

	return strings.TrimSpace(text)
}

// stripFence unwraps the first fenced code block, tolerating a language
// tag after the opening backticks. Text without a complete fence pair is
// returned as is, minus any dangling opening fence line.
func stripFence(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	if m := fenceRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	lines := strings.Split(text, "\n")
	if len(lines) >= 2 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}
	return text
}
