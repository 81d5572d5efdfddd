// Package extraction pulls structured scam intelligence out of raw message
// text using fixed, deterministic patterns.
package extraction

import (
	"regexp"
	"strings"

	"honeypot-agent/internal/domain"
)

var (
	// Word boundaries are emulated with explicit non-word guards because RE2
	// has no lookaround; the guard characters are kept outside the capture.
	// Phone numbers are captured without the +91 or 0 trunk prefix so every
	// spelling of one subscriber number dedupes to the same ten digits.
	upiPattern   = regexp.MustCompile(`(?:^|[^A-Za-z0-9_])([A-Za-z0-9._-]{2,}@[A-Za-z]{2,})(?:[^A-Za-z0-9_]|$)`)
	phonePattern = regexp.MustCompile(`(?:^|[^0-9A-Za-z_+])(?:\+91[-\s]?|0)?([6-9][0-9]{9})(?:[^0-9A-Za-z_]|$)`)
	urlPattern   = regexp.MustCompile(`https?://\S+`)
)

// SuspiciousKeywords is the vocabulary reported as suspicious phrases.
var SuspiciousKeywords = []string{
	"urgent",
	"verify",
	"blocked",
	"suspended",
	"otp",
	"payment",
	"bank",
	"account",
	"click",
	"immediately",
}

// Result is the intelligence found in a single message.
type Result struct {
	Intelligence domain.IntelligenceSet
	// DeltaDetected reports whether this call found anything at all. It says
	// nothing about whether the session learned something new.
	DeltaDetected bool
}

// Extract scans text for payment handles, phone numbers, links and
// suspicious keywords. Bank accounts are never reported.
func Extract(text string) Result {
	intel := domain.IntelligenceSet{
		UPIIDs:             domain.NewStringSet(findAll(upiPattern, text)...),
		PhoneNumbers:       domain.NewStringSet(findAll(phonePattern, text)...),
		PhishingLinks:      domain.NewStringSet(urlPattern.FindAllString(text, -1)...),
		SuspiciousKeywords: domain.NewStringSet(matchKeywords(text, SuspiciousKeywords)...),
	}
	return Result{
		Intelligence:  intel,
		DeltaDetected: !intel.IsEmpty(),
	}
}

// findAll returns the first capture group of every match. Matches are found
// one at a time from the end of the previous capture so a shared separator
// between two tokens does not hide the second one.
func findAll(re *regexp.Regexp, text string) []string {
	var out []string
	for offset := 0; offset < len(text); {
		loc := re.FindStringSubmatchIndex(text[offset:])
		if loc == nil {
			break
		}
		out = append(out, text[offset+loc[2]:offset+loc[3]])
		offset += loc[3]
	}
	return out
}

func matchKeywords(text string, vocabulary []string) []string {
	lowered := strings.ToLower(text)
	var out []string
	for _, kw := range vocabulary {
		if strings.Contains(lowered, kw) {
			out = append(out, kw)
		}
	}
	return out
}

// ContainsAny reports whether text contains any of keywords, ignoring case.
func ContainsAny(text string, keywords []string) bool {
	return len(matchKeywords(text, keywords)) > 0
}
