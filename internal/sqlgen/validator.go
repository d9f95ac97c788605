// Package sqlgen implements the text-to-SQL pipeline: context assembly, a
// single-shot generation call, and static safety validation of the result.
// The validator never executes SQL; it is text analysis only.
package sqlgen

import (
	"regexp"
	"strings"
)

// Reason identifies why a SQL candidate was rejected.
type Reason string

const (
	ReasonNotASelect         Reason = "not_a_select"
	ReasonForbiddenKeyword   Reason = "forbidden_keyword"
	ReasonMultipleStatements Reason = "multiple_statements"
	ReasonWildcardSelect     Reason = "wildcard_select"
	ReasonMissingLimit       Reason = "missing_limit"
)

// ClarifyPrefix marks a candidate where the model could not determine a
// required scope. The remainder must still validate as an empty-result
// query.
const ClarifyPrefix = "-- NEED_CLARIFY:"

var (
	forbiddenPattern = regexp.MustCompile(`(?i)\b(insert|update|delete|alter|drop|truncate|create)\b`)
	selectPattern    = regexp.MustCompile(`(?i)^\s*select\b`)
	wildcardPattern  = regexp.MustCompile(`(?i)\bselect\s+\*`)
	limitPattern     = regexp.MustCompile(`(?i)\blimit\b`)
)

// Verdict is the validator's decision on one candidate.
type Verdict struct {
	Accepted bool
	Reason   Reason

	// NeedsClarification is set when the candidate carries a leading
	// NEED_CLARIFY comment. The candidate is still accepted if the rest
	// validates.
	NeedsClarification bool

	// Clarification is the question extracted from the NEED_CLARIFY comment.
	Clarification string
}

// Validate applies the static safety rules in order, first failure wins.
// It is pure and deterministic: the same text always yields the same
// verdict.
//
// The forbidden-keyword rule runs first and scans the full candidate text,
// comments included, so a modification keyword anywhere rejects the
// candidate before any other rule gets a say.
func Validate(sqlText string) Verdict {
	if forbiddenPattern.MatchString(sqlText) {
		return Verdict{Reason: ReasonForbiddenKeyword}
	}

	body, clarification, needsClarify := stripLeadingComments(sqlText)

	v := Verdict{
		NeedsClarification: needsClarify,
		Clarification:      clarification,
	}

	if !selectPattern.MatchString(body) {
		v.Reason = ReasonNotASelect
		return v
	}

	if hasTrailingStatement(body) {
		v.Reason = ReasonMultipleStatements
		return v
	}

	if wildcardPattern.MatchString(body) {
		v.Reason = ReasonWildcardSelect
		return v
	}

	if !limitPattern.MatchString(body) {
		v.Reason = ReasonMissingLimit
		return v
	}

	v.Accepted = true
	return v
}

// ContainsForbiddenKeyword reports whether free text contains a
// data-modification or schema-modification keyword as a standalone token.
// Used to pre-screen inbound questions before spending a model call.
func ContainsForbiddenKeyword(text string) (string, bool) {
	if match := forbiddenPattern.FindString(text); match != "" {
		return strings.ToUpper(match), true
	}
	return "", false
}

// stripLeadingComments removes leading blank and `--` comment lines,
// extracting the NEED_CLARIFY question when present.
func stripLeadingComments(text string) (body, clarification string, needsClarify bool) {
	lines := strings.Split(text, "\n")
	i := 0
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "--") {
			if q, ok := strings.CutPrefix(trimmed, ClarifyPrefix); ok && !needsClarify {
				needsClarify = true
				clarification = strings.TrimSpace(q)
			}
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n")), clarification, needsClarify
}

// hasTrailingStatement reports whether a statement separator is followed by
// further non-whitespace, non-comment content. A bare trailing semicolon is
// allowed.
func hasTrailingStatement(body string) bool {
	parts := strings.Split(body, ";")
	for _, part := range parts[1:] {
		for _, line := range strings.Split(part, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			return true
		}
	}
	return false
}
