// Package validation checks raw LLM responses against expected structural
// schemas. Malformed input is the expected case here, not an exceptional
// one: checks return violation lists and never fail on garbage.
package validation

import (
	"fmt"
	"strings"
)

// Rule names for violations.
const (
	// RuleJSON means the response held no decodable JSON body.
	RuleJSON = "json"
	// RuleMarkup means a markup document was malformed or missing sections.
	RuleMarkup = "markup"
	// RuleRequired means a required field was absent or empty.
	RuleRequired = "required"
	// RuleEnum means a field held a value outside its allowed set.
	RuleEnum = "enum"
	// RuleCoverage means a response did not cover every requested item.
	RuleCoverage = "coverage"
	// RuleRange means a count or size constraint was broken.
	RuleRange = "range"
)

// Violation describes one way a response failed its schema.
type Violation struct {
	// Field locates the problem ("items[2].type"); empty for whole-response
	// problems.
	Field string
	// Rule is the broken rule name.
	Rule string
	// Detail is the specific problem, phrased for a corrective prompt.
	Detail string
}

// String renders the violation for logs and corrective prompts.
func (v Violation) String() string {
	if v.Field == "" {
		return fmt.Sprintf("%s: %s", v.Rule, v.Detail)
	}
	return fmt.Sprintf("%s (%s): %s", v.Field, v.Rule, v.Detail)
}

// Result is the outcome of validating one raw response.
type Result struct {
	// Valid is true when the response parsed cleanly.
	Valid bool
	// Value is the parsed structure when Valid.
	Value any
	// Violations lists everything wrong when not Valid.
	Violations []Violation
}

// Schema describes the expected structure of one LLM response. Check
// parses raw text and returns the parsed value or the violations found.
// Check implementations must be side-effect-free.
type Schema struct {
	// Name identifies the schema in logs and failure reports.
	Name string
	// Instructions is the format contract, restated in corrective prompts.
	Instructions string
	// Check parses and validates a raw response.
	Check func(raw string) (any, []Violation)
}

// Validate runs the schema against a raw response. A panicking Check is
// converted into a violation so callers always get a Result back.
func (s Schema) Validate(raw string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Violations: []Violation{{
				Rule:   RuleMarkup,
				Detail: fmt.Sprintf("validator panic: %v", r),
			}}}
		}
	}()

	value, violations := s.Check(raw)
	if len(violations) > 0 {
		return Result{Violations: violations}
	}
	return Result{Valid: true, Value: value}
}

// FormatViolations renders a violation list as a bulleted block for
// embedding in a corrective prompt.
func FormatViolations(violations []Violation) string {
	var b strings.Builder
	for _, v := range violations {
		b.WriteString("- ")
		b.WriteString(v.String())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
