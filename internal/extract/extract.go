// Package extract turns semi-structured artifact text into typed facts.
//
// Extraction is anchored, never heuristic: a key is only read inside the
// bounded section that declares it, and markers are only counted inside
// their section. When a value cannot be derived mechanically the result is
// null with a recorded reason, never a guess. In particular the three-way
// distinction for marker counts is load-bearing:
//
//   - artifact missing            -> null ("artifact missing")
//   - section structurally absent -> null ("section ... absent")
//   - section present but empty   -> 0
//
// Collapsing absent-section to 0 is an observable regression; callers
// depend on the difference to route workflow-incomplete vs clean-empty.
package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// Section delimiters. A section named NAME is the lines strictly between
// "--- NAME ---" and "--- END NAME ---". The begin line is the structural
// anchor: a document without it does not have the section, no matter what
// its prose says.
const (
	// SummarySection is the conventional machine summary section name.
	SummarySection = "MACHINE SUMMARY"
)

// BeginDelimiter returns the begin line for a section.
func BeginDelimiter(section string) string {
	return "--- " + section + " ---"
}

// EndDelimiter returns the end line for a section.
func EndDelimiter(section string) string {
	return "--- END " + section + " ---"
}

// LookupOutcome tags the result of an anchored key lookup.
type LookupOutcome string

const (
	// LookupFound means the key was present in the section with a value.
	LookupFound LookupOutcome = "found"

	// LookupSectionMissing means the section's begin delimiter is absent.
	LookupSectionMissing LookupOutcome = "section_missing"

	// LookupKeyMissing means the section exists but the key line does not.
	LookupKeyMissing LookupOutcome = "key_missing"

	// LookupEmpty means the key line exists with an empty value.
	LookupEmpty LookupOutcome = "empty"
)

// Lookup is the typed result of Key. When Outcome is anything other than
// LookupFound, Value is empty and Reason says why.
type Lookup struct {
	Outcome LookupOutcome
	Value   string
	Reason  string
}

// Ok returns true if a non-empty value was found.
func (l Lookup) Ok() bool {
	return l.Outcome == LookupFound
}

// Int parses the looked-up value as an integer.
// Returns (0, false) when the lookup failed or the value is not an integer;
// the caller records null, never a coerced number.
func (l Lookup) Int() (int, bool) {
	if !l.Ok() {
		return 0, false
	}
	n, err := strconv.Atoi(l.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Key performs an anchored key lookup: the value on the "key: value" line
// inside the named section, and only there. A key appearing elsewhere in
// the document (prose, code blocks, other sections) is ignored. There is no
// whole-document fallback.
func Key(doc, section, key string) Lookup {
	body, ok := sectionBody(doc, section)
	if !ok {
		return Lookup{
			Outcome: LookupSectionMissing,
			Reason:  fmt.Sprintf("section %q absent", section),
		}
	}
	for _, line := range body {
		k, v, found := splitKeyLine(line)
		if !found || k != key {
			continue
		}
		if v == "" {
			return Lookup{
				Outcome: LookupEmpty,
				Reason:  fmt.Sprintf("key %q present but empty in section %q", key, section),
			}
		}
		return Lookup{Outcome: LookupFound, Value: v}
	}
	return Lookup{
		Outcome: LookupKeyMissing,
		Reason:  fmt.Sprintf("key %q not found in section %q", key, section),
	}
}

// Count is the typed result of CountMarkers. N is nil exactly when the
// count could not be derived mechanically; Reason then says why.
type Count struct {
	N      *int
	Reason string
}

// Null returns true when no count could be derived.
func (c Count) Null() bool {
	return c.N == nil
}

// Value returns the count, or (0, false) when null.
func (c Count) Value() (int, bool) {
	if c.N == nil {
		return 0, false
	}
	return *c.N, true
}

// NullCount builds a null count with a reason.
func NullCount(reason string) Count {
	return Count{Reason: reason}
}

// CountOf builds a derived count.
func CountOf(n int) Count {
	return Count{N: &n}
}

// CountMarkers counts inventory marker lines inside the named section.
//
// A marker line begins with the fixed prefix followed by at least one
// non-space character (a bare prefix with nothing after it identifies
// nothing and is not counted). The section rule is the one documented at
// package level: absent section -> null, empty section -> 0.
func CountMarkers(doc, section, prefix string) Count {
	body, ok := sectionBody(doc, section)
	if !ok {
		return NullCount(fmt.Sprintf("section %q absent", section))
	}
	n := 0
	for _, line := range body {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, prefix) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		if rest == "" {
			continue
		}
		n++
	}
	return CountOf(n)
}

// Markers returns the identifiers carried by marker lines in the section,
// in document order. Null cases mirror CountMarkers.
func Markers(doc, section, prefix string) ([]string, Count) {
	body, ok := sectionBody(doc, section)
	if !ok {
		return nil, NullCount(fmt.Sprintf("section %q absent", section))
	}
	var ids []string
	for _, line := range body {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, prefix) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		if rest == "" {
			continue
		}
		ids = append(ids, rest)
	}
	return ids, CountOf(len(ids))
}

// sectionBody returns the lines strictly between the section's begin and
// end delimiters, or ok=false when the begin delimiter is absent.
//
// A begin delimiter without a matching end bounds the section at EOF; the
// section still structurally exists. Only the first occurrence of the
// section is read.
func sectionBody(doc, section string) (lines []string, ok bool) {
	begin := BeginDelimiter(section)
	end := EndDelimiter(section)

	inSection := false
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inSection {
			if trimmed == begin {
				inSection = true
				ok = true
			}
			continue
		}
		if trimmed == end {
			return lines, true
		}
		lines = append(lines, line)
	}
	return lines, ok
}

// splitKeyLine splits a "key: value" line. Lines without a colon are not
// key lines. The value may be empty.
func splitKeyLine(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	idx := strings.Index(trimmed, ":")
	if idx <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(trimmed[:idx]), strings.TrimSpace(trimmed[idx+1:]), true
}
