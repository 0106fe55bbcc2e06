package vietqr

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchOutcome tags the result of scanning a transfer description.
type MatchOutcome string

const (
	// OutcomeMatched means exactly one plausible reservation code was found.
	OutcomeMatched MatchOutcome = "matched"
	// OutcomeAmbiguous means multiple distinct codes were found. Policy is
	// to take the first in scan order and log the ambiguity; this is a
	// known limitation, not a silent best-match resolution.
	OutcomeAmbiguous MatchOutcome = "ambiguous"
	// OutcomeNoMatch means the description contains no plausible code.
	OutcomeNoMatch MatchOutcome = "no_match"
)

// MatchResult is the tagged outcome of a description scan. Code holds the
// canonical form of the first match; Candidates lists all distinct codes in
// scan order.
type MatchResult struct {
	Outcome    MatchOutcome
	Code       string
	Candidates []string
}

// Matcher extracts reservation codes from free-text bank transfer
// descriptions. The text is merchant-controlled: codes may appear with or
// without hyphens, in any case, surrounded by arbitrary noise.
type Matcher struct {
	prefix  string
	pattern *regexp.Regexp
}

// NewMatcher builds a matcher for codes of the form PREFIX-YYYYMMDD-NNNN.
func NewMatcher(prefix string) *Matcher {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	// Tolerates case differences and optional hyphens between the three
	// segments. The trailing (\d?) group detects a sequence segment that
	// runs into further digits; RE2 has no lookahead, so the overflow is
	// captured and the match discarded in Match. Without it a longer digit
	// run would be truncated into a well-formed but wrong code.
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(prefix) + `-?(\d{8})-?(\d{4})(\d?)`)
	return &Matcher{prefix: prefix, pattern: pattern}
}

// Match scans the description for reservation-code-shaped tokens.
func (m *Matcher) Match(description string) MatchResult {
	found := m.pattern.FindAllStringSubmatch(description, -1)

	seen := make(map[string]struct{})
	var candidates []string
	for _, sub := range found {
		if sub[3] != "" {
			// Sequence segment bleeds into a longer digit run; this is
			// some other number, not a reservation code.
			continue
		}
		code := fmt.Sprintf("%s-%s-%s", m.prefix, sub[1], sub[2])
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		candidates = append(candidates, code)
	}
	if len(candidates) == 0 {
		return MatchResult{Outcome: OutcomeNoMatch}
	}

	if len(candidates) == 1 {
		return MatchResult{Outcome: OutcomeMatched, Code: candidates[0], Candidates: candidates}
	}
	return MatchResult{Outcome: OutcomeAmbiguous, Code: candidates[0], Candidates: candidates}
}
