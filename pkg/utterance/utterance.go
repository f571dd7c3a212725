// Package utterance centralizes the regex-based parsing of free-text user
// input: confirmation/negation detection, booking-reference and name
// extraction, nationality normalization, and duration formatting. The rules
// are intentionally simple pattern tables, not NLU; callers depend on their
// exact quirks (negation always wins over confirmation words in the same
// utterance).
package utterance

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

var (
	negationRe     = regexp.MustCompile(`\b(no|not|nope|dont|don't|decline|cancel|stop)\b`)
	confirmationRe = regexp.MustCompile(`\b(yes|yep|yeah|confirm|confirmed|proceed|ok|okay|sure|continue|go ahead|please do)\b`)

	keyedPNRRe  = regexp.MustCompile(`(?i)\b(?:pnr|booking\s*reference|bookingreference)\s*(?:is\s+)?[:\-]?\s*([A-Za-z0-9]{6})\b`)
	barePNRRe   = regexp.MustCompile(`\b[A-Z0-9]{6}\b`)
	hasDigitRe  = regexp.MustCompile(`[0-9]`)
	hasLetterRe = regexp.MustCompile(`[A-Z]`)

	lastNameRe = regexp.MustCompile(`(?i)\blast\s*name\s*(?:is\s+)?[:\-]?\s*([A-Za-z][A-Za-z'\-]*)`)
	ffnRe      = regexp.MustCompile(`(?i)\bfrequent\s*flyer(?:\s*card)?(?:\s*number)?\s*(?:is\s+)?[:\-]?\s*([A-Za-z0-9]+)\b`)
)

// IsConfirming reports whether the utterance reads as a user confirmation.
// Negation short-circuits: "ok, cancel" is not a confirmation even though it
// contains "ok". Text with no match either way defaults to false.
func IsConfirming(text string) bool {
	lower := strings.ToLower(text)
	if negationRe.MatchString(lower) {
		return false
	}
	return confirmationRe.MatchString(lower)
}

// IsNegating reports whether the utterance reads as a refusal.
func IsNegating(text string) bool {
	return negationRe.MatchString(strings.ToLower(text))
}

// FindBookingReference extracts a PNR / booking reference from the utterance.
// A keyed form ("PNR X1Y2Z3", "booking reference ABC123") is preferred; a bare
// six-character candidate is accepted only when it mixes letters and digits,
// which keeps ordinary six-letter words out.
func FindBookingReference(text string) string {
	if m := keyedPNRRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	upper := strings.ToUpper(text)
	for _, candidate := range barePNRRe.FindAllString(upper, -1) {
		if hasDigitRe.MatchString(candidate) && hasLetterRe.MatchString(candidate) {
			return candidate
		}
	}
	return ""
}

// FindLastName extracts a last name from a "last name X" / "lastName X" form.
func FindLastName(text string) string {
	if m := lastNameRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// FindFrequentFlyerNumber extracts a frequent-flyer card number if the
// utterance names one.
func FindFrequentFlyerNumber(text string) string {
	if m := ffnRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// nationalityCodes maps spoken nationality words to the code the regulatory
// backend expects.
var nationalityCodes = map[string]string{
	"american":    "US",
	"australian":  "AU",
	"british":     "GB",
	"canadian":    "CA",
	"chinese":     "CN",
	"dutch":       "NL",
	"french":      "FR",
	"german":      "DE",
	"indian":      "IN",
	"irish":       "IE",
	"italian":     "IT",
	"japanese":    "JP",
	"singaporean": "SG",
	"spanish":     "ES",
}

// NationalityCode returns the code for a spoken nationality word, or "" when
// the word is unknown.
func NationalityCode(word string) string {
	return nationalityCodes[strings.ToLower(strings.TrimSpace(word))]
}

// MapNationalities rewrites spoken nationality words in the utterance to their
// codes, so the regulatory agent receives "IN" where the user said "indian".
func MapNationalities(text string) string {
	fields := strings.Fields(text)
	for i, field := range fields {
		trimmed := strings.Trim(field, ".,!?;:")
		if code := NationalityCode(trimmed); code != "" {
			fields[i] = strings.Replace(field, trimmed, code, 1)
		}
	}
	return strings.Join(fields, " ")
}

// DurationMinutes computes the whole-minute duration between departure and
// arrival, rounding the millisecond delta the way the journey backend does.
func DurationMinutes(departure, arrival time.Time) int {
	ms := arrival.Sub(departure).Milliseconds()
	return int(math.Round(float64(ms) / 60000.0))
}

// FormatDuration renders minutes as "2h 30m"; durations under an hour render
// as "45m".
func FormatDuration(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
