// Package replyparse implements the strict line-template parsers for
// Room-2 doctor decisions and Room-3 scheduler replies. Keys and enum
// values are matched case- and diacritic-insensitively; failures carry a
// machine-readable code that is echoed back to the room.
package replyparse

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Parse failure codes shared by both parsers.
const (
	CodeEmptyMessage    = "empty_message"
	CodeInvalidCaseLine = "invalid_case_line"
	CodeCaseIDMismatch  = "case_id_mismatch"
)

// Doctor parser failure codes.
const (
	CodeInvalidLineFormat         = "invalid_line_format"
	CodeUnknownField              = "unknown_field"
	CodeDuplicateField            = "duplicate_field"
	CodeInvalidDecisionValue      = "invalid_decision_value"
	CodeInvalidSupportFlagValue   = "invalid_support_flag_value"
	CodeInvalidSupportForDecision = "invalid_support_flag_for_decision"
)

// Scheduler parser failure codes.
const (
	CodeInvalidConfirmedDatetime = "invalid_confirmed_datetime"
	CodeMissingLocationLine      = "missing_location_line"
	CodeMissingInstructionsLine  = "missing_instructions_line"
	CodeMissingCaseLine          = "missing_case_line"
)

// ParseError is a deterministic parse failure. Code is stable and safe to
// quote back to the sender.
type ParseError struct {
	Code string
}

func (e *ParseError) Error() string {
	return e.Code
}

func parseError(code string) *ParseError {
	return &ParseError{Code: code}
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldKey lowercases and strips diacritics so "Decisão" matches "decisao".
func foldKey(s string) string {
	stripped, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		stripped = s
	}
	return strings.ToLower(stripped)
}

// meaningfulLines trims each line and drops blanks and ``` fence lines.
func meaningfulLines(body string) []string {
	var lines []string
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// lineValue returns the trimmed value of the first line whose key part
// (before the first colon) folds to one of the given keys.
func lineValue(lines []string, keys ...string) (string, bool) {
	for _, line := range lines {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := foldKey(strings.TrimSpace(line[:idx]))
		for _, want := range keys {
			if key == want {
				return strings.TrimSpace(line[idx+1:]), true
			}
		}
	}
	return "", false
}
