// Package naming makes folder names and note titles unique within a sibling
// scope by appending " N" suffixes.
package naming

import (
	"strconv"
	"strings"
)

// MaxAttempts bounds how many times a caller re-resolves a name after the
// store rejected it as a duplicate.
const MaxAttempts = 3

// Separator joins a base name and its numeric suffix.
const Separator = " "

// Prefix is the suffix-form prefix for intended, e.g. "Untitled ".
func Prefix(intended string) string {
	return intended + Separator
}

// IsCandidate reports whether name can collide with intended: it equals
// intended or starts with intended followed by the separator.
func IsCandidate(name, intended string) bool {
	return name == intended || strings.HasPrefix(name, Prefix(intended))
}

// Candidates filters names down to the ones IsCandidate accepts.
func Candidates(names []string, intended string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if IsCandidate(n, intended) {
			out = append(out, n)
		}
	}
	return out
}

// Resolve returns intended when it is not taken, otherwise intended with a
// suffix one higher than the largest numeric suffix in existing. Gaps are not
// reused and suffixes that are not positive integers are ignored.
//
//	Resolve("Untitled", []string{"Untitled", "Untitled 1", "Untitled 3"}) == "Untitled 4"
func Resolve(intended string, existing []string) string {
	taken := false
	max := 0
	prefix := Prefix(intended)

	for _, name := range existing {
		if name == intended {
			taken = true
			continue
		}
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		n, ok := parseSuffix(rest)
		if ok && n > max {
			max = n
		}
	}

	if !taken {
		return intended
	}
	return prefix + strconv.Itoa(max+1)
}

// parseSuffix accepts plain decimal digits only, so "2a", "+3", " 4" and
// "-1" do not count.
func parseSuffix(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
