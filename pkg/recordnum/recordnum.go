// Package recordnum extracts the agency record number from report text and
// strips the repeated watermark the agency stamps across report pages.
package recordnum

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	codeLabelPattern = regexp.MustCompile(`(?i)\bC[oóOÓ]digo\s*:\s*([0-9]{5,})\b`)

	reportHeaderFlowPattern = regexp.MustCompile(
		`(?i)RELAT[OÓ]RIO\s+DE\s+OCORR[EÊ]NCIAS(?:\s*[:\-])?[\s\S]{0,120}?\b([0-9]{5,})\b`)

	fiveDigitToken = regexp.MustCompile(`^\d{5}$`)
)

// watermarkMinRepeat is how many identical tokens a line needs before it is
// treated as a watermark block.
const watermarkMinRepeat = 4

// Result carries the selected agency record number and the cleaned text.
type Result struct {
	AgencyRecordNumber string
	CleanedText        string
}

// Extract selects the agency record number from the text and returns the
// text with the number and any repeated watermark stripped.
//
// Selection prefers explicit registration patterns ("Código: <digits>" or
// the "RELATÓRIO DE OCORRÊNCIAS" header followed by digits within 120
// characters), first occurrence in document order. When no pattern matches,
// the current epoch milliseconds stand in as a placeholder so downstream
// stages always have a stable token to key on.
func Extract(text string) Result {
	return extract(text, func() int64 { return time.Now().UnixMilli() })
}

func extract(text string, nowMillis func() int64) Result {
	selected := firstRegistrationCode(text)
	if selected == "" {
		selected = strconv.FormatInt(nowMillis(), 10)
	}
	return Result{
		AgencyRecordNumber: selected,
		CleanedText:        stripAndNormalize(text, selected),
	}
}

type codeMatch struct {
	offset int
	code   string
}

// firstRegistrationCode returns the explicit registration code occurring
// earliest in the text, or "" when no pattern matches. Matches from both
// patterns are merged by position and deduplicated by (offset, code).
func firstRegistrationCode(text string) string {
	seen := make(map[codeMatch]bool)
	var matches []codeMatch

	for _, pattern := range []*regexp.Regexp{codeLabelPattern, reportHeaderFlowPattern} {
		for _, idx := range pattern.FindAllStringSubmatchIndex(text, -1) {
			m := codeMatch{offset: idx[2], code: text[idx[2]:idx[3]]}
			if seen[m] {
				continue
			}
			seen[m] = true
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return ""
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.offset < best.offset {
			best = m
		}
	}
	return best.code
}

// stripAndNormalize removes watermark block lines and their later residuals,
// removes every occurrence of the selected token, and collapses runs of
// spaces and tabs while keeping the line structure intact.
func stripAndNormalize(text, selected string) string {
	lines := strings.Split(text, "\n")
	seenWatermark := make(map[string]bool)
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		if token, ok := watermarkBlockToken(line); ok {
			seenWatermark[token] = true
			continue
		}
		if token, ok := uniformTokenLine(line); ok && seenWatermark[token] {
			continue
		}
		kept = append(kept, line)
	}

	tokenPattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(selected) + `\b`)
	out := make([]string, 0, len(kept))
	for _, line := range kept {
		stripped := tokenPattern.ReplaceAllString(line, " ")
		normalized := strings.Join(strings.Fields(stripped), " ")
		if normalized == "" && strings.TrimSpace(line) != "" {
			// The line held nothing but the stripped token.
			continue
		}
		out = append(out, normalized)
	}
	return strings.Join(out, "\n")
}

// watermarkBlockToken reports whether the line is a watermark block: at
// least watermarkMinRepeat identical 5-digit tokens and nothing else.
func watermarkBlockToken(line string) (string, bool) {
	token, ok := uniformTokenLine(line)
	if !ok {
		return "", false
	}
	if len(strings.Fields(line)) < watermarkMinRepeat {
		return "", false
	}
	return token, true
}

// uniformTokenLine reports whether the line consists solely of repetitions
// of one 5-digit token.
func uniformTokenLine(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	first := fields[0]
	if !fiveDigitToken.MatchString(first) {
		return "", false
	}
	for _, f := range fields[1:] {
		if f != first {
			return "", false
		}
	}
	return first, true
}
