package validate

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	errNotANumber = errors.New("not a number")
	errNotADate   = errors.New("not a recognizable date")
)

var (
	nameExpr   = regexp.MustCompile(`^\p{L}[\p{L}'\-. ]*$`)
	spaceExpr  = regexp.MustCompile(`\s+`)
	letterExpr = regexp.MustCompile(`[A-Za-z]`)
)

// collapse trims s and folds internal whitespace runs to single spaces.
func collapse(s string) string {
	return spaceExpr.ReplaceAllString(strings.TrimSpace(s), " ")
}

// titleName capitalizes each word of a personal or place name.
func titleName(s string) string {
	// A Caser keeps state and must not be shared across goroutines.
	return cases.Title(language.English).String(collapse(s))
}

// parseMoney accepts "$450,000", "450k", "1.2m", "2 million" and plain
// numbers. The result is rounded to cents and keeps its sign.
func parseMoney(raw string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, "usd")
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(s[1:])
	}
	s = strings.TrimPrefix(s, "$")
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}

	multiplier := 1.0
	for _, suffix := range []struct {
		text  string
		scale float64
	}{
		{"thousand", 1e3},
		{"million", 1e6},
		{"mm", 1e6},
		{"k", 1e3},
		{"m", 1e6},
	} {
		if strings.HasSuffix(s, suffix.text) {
			multiplier = suffix.scale
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix.text))
			break
		}
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, errNotANumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, errNotANumber
	}

	v = math.Round(v*multiplier*100) / 100
	if math.IsInf(v, 0) {
		return 0, errNotANumber
	}
	if negative {
		v = -v
	}
	return v, nil
}

// phoneResult is a normalized phone number plus an optional warning for
// lengths the policy accepts without being able to format.
type phoneResult struct {
	value   string
	warning string
}

// normalizePhone applies the phone policy: 10 digits, or 11 with a leading
// country code 1, are canonical and formatted "(555) 111-2222". Any other
// length between MinPhoneDigits and MaxPhoneDigits is stored as bare digits
// with a warning. Everything else is malformed.
func normalizePhone(raw string, policy Policy) (phoneResult, error) {
	if letterExpr.MatchString(strings.TrimSpace(raw)) {
		return phoneResult{}, fmt.Errorf("phone %q contains letters", raw)
	}

	var sb strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	digits := sb.String()

	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) == 10 {
		return phoneResult{value: fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])}, nil
	}
	if len(digits) < policy.MinPhoneDigits || len(digits) > policy.MaxPhoneDigits {
		return phoneResult{}, fmt.Errorf("phone %q has %d digits", raw, len(digits))
	}
	return phoneResult{
		value:   digits,
		warning: fmt.Sprintf("phone number %s has %d digits and was saved as entered", digits, len(digits)),
	}, nil
}

var dateLayouts = []string{
	time.DateOnly,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// parseDate accepts ISO dates and the common US forms. Month names match
// case-insensitively.
func parseDate(raw string) (time.Time, error) {
	s := collapse(raw)
	s = strings.ReplaceAll(s, ".", "")
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "sept") && !strings.HasPrefix(lower, "september") {
		s = "Sep" + s[4:]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNotADate
}

// parseCount parses a room count. Half steps are allowed only when half is
// true.
func parseCount(raw string, half bool) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, errNotANumber
	}
	step := 1.0
	if half {
		step = 0.5
	}
	if math.Mod(v, step) != 0 {
		return 0, errNotANumber
	}
	return v, nil
}

var statusAliases = map[string]string{
	"open":           StatusOpen,
	"active":         StatusOpen,
	"under_contract": StatusUnderContract,
	"pending":        StatusUnderContract,
	"in_escrow":      StatusUnderContract,
	"closed":         StatusClosed,
	"sold":           StatusClosed,
	"cancelled":      StatusCancelled,
	"canceled":       StatusCancelled,
}

// Transaction statuses.
const (
	StatusOpen          = "open"
	StatusUnderContract = "under_contract"
	StatusClosed        = "closed"
	StatusCancelled     = "cancelled"
)

func normalizeStatus(raw string) (string, bool) {
	key := strings.ToLower(collapse(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	status, ok := statusAliases[key]
	return status, ok
}

var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true,
	"DE": true, "DC": true, "FL": true, "GA": true, "HI": true, "ID": true, "IL": true,
	"IN": true, "IA": true, "KS": true, "KY": true, "LA": true, "ME": true, "MD": true,
	"MA": true, "MI": true, "MN": true, "MS": true, "MO": true, "MT": true, "NE": true,
	"NV": true, "NH": true, "NJ": true, "NM": true, "NY": true, "NC": true, "ND": true,
	"OH": true, "OK": true, "OR": true, "PA": true, "RI": true, "SC": true, "SD": true,
	"TN": true, "TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "PR": true,
}

func normalizeZip(raw string) string {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if len(s) == 9 && !strings.Contains(s, "-") {
		s = s[:5] + "-" + s[5:]
	}
	return s
}
