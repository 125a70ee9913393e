package intake

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// CloseDateLayout is the date format the close-date prompt asks for.
const CloseDateLayout = "2006-01-02"

// ParseAmount keeps only digits and dots from raw and reads the longest
// numeric prefix of what is left. It returns NaN when nothing numeric remains.
//
//	"$12,345.67 please" -> 12345.67
//	"1.2.3"             -> 1.2
//	"no numbers here"   -> NaN
func ParseAmount(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}

	s := numericPrefix(b.String())
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// numericPrefix returns the longest prefix of s made of digits with at most
// one dot, or "" when that prefix holds no digit.
func numericPrefix(s string) string {
	var (
		end    int
		digits int
		dot    bool
	)
	for end < len(s) {
		c := s[end]
		if c == '.' {
			if dot {
				break
			}
			dot = true
		} else {
			digits++
		}
		end++
	}
	if digits == 0 {
		return ""
	}
	return s[:end]
}

// IsFiniteAmount reports whether v can be submitted as a deal amount.
func IsFiniteAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseContacts splits raw on commas and keeps every token that starts with
// an integer, in first-seen order and without repeats. Blank input yields an
// empty, non-nil list.
func ParseContacts(raw string) []int {
	out := []int{}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out
	}

	seen := make(map[int]struct{})
	for _, tok := range strings.Split(trimmed, ",") {
		n, ok := leadingInt(strings.TrimSpace(tok))
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// leadingInt parses an optionally signed run of digits at the start of s.
func leadingInt(s string) (int, bool) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ValidCloseDate reports whether s is a calendar date in CloseDateLayout.
func ValidCloseDate(s string) bool {
	_, err := time.Parse(CloseDateLayout, strings.TrimSpace(s))
	return err == nil
}
