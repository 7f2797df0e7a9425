// Package forensic cross-checks a claimed outcome against independently
// derived evidence.
//
// The checker never decides which side is right. When both sides resolve
// and disagree it surfaces a Mismatch; when either side is null it reports
// insufficient evidence instead, because absence of proof is not proof of
// contradiction. Conflating the two would let missing evidence either mask
// a real contradiction or fabricate one.
package forensic

import "fmt"

// Fact is one side of a cross-check: a named value extracted from an
// artifact. Value is nil when extraction returned null; Reason then carries
// the extraction reason for the report.
type Fact struct {
	// Source names the artifact the fact came from, e.g. "build/summary.txt".
	Source string

	// Name is the fact's key, e.g. "tests_passed".
	Name string

	// Value is the extracted value, nil when extraction was null.
	Value *string

	// Reason explains a nil Value.
	Reason string
}

// StringFact builds a resolved fact.
func StringFact(source, name, value string) Fact {
	return Fact{Source: source, Name: name, Value: &value}
}

// IntFact builds a resolved fact from an integer.
func IntFact(source, name string, value int) Fact {
	return StringFact(source, name, fmt.Sprintf("%d", value))
}

// NullFact builds an unresolved fact with the extraction reason.
func NullFact(source, name, reason string) Fact {
	return Fact{Source: source, Name: name, Reason: reason}
}

// Resolved returns true when the fact carries a value.
func (f Fact) Resolved() bool {
	return f.Value != nil
}

func (f Fact) String() string {
	if f.Value == nil {
		return fmt.Sprintf("%s[%s]=null (%s)", f.Source, f.Name, f.Reason)
	}
	return fmt.Sprintf("%s[%s]=%q", f.Source, f.Name, *f.Value)
}

// Comparator reports whether a claim value and an evidence value agree.
// Both inputs are always non-null; the checker handles null before calling.
type Comparator func(claim, evidence string) bool

// Equal is the default comparator: exact string equality.
func Equal(claim, evidence string) bool {
	return claim == evidence
}

// Check is one (claim, evidence, comparator) triple.
type Check struct {
	// Description names what is being cross-checked, for reports.
	Description string

	Claim    Fact
	Evidence Fact

	// Compare defaults to Equal when nil.
	Compare Comparator
}

// Mismatch records a contradiction between a claim and its evidence.
// It is surfaced as a blocker, never auto-resolved in either direction.
type Mismatch struct {
	Description string
	Claim       Fact
	Evidence    Fact
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: claim %s contradicts evidence %s", m.Description, m.Claim, m.Evidence)
}

// Insufficiency records a cross-check that could not run because one or
// both sides were null. This is a separate condition from Mismatch.
type Insufficiency struct {
	Description string
	Claim       Fact
	Evidence    Fact
}

func (i Insufficiency) String() string {
	missing := i.Claim
	if missing.Resolved() {
		missing = i.Evidence
	}
	return fmt.Sprintf("%s: insufficient evidence, %s", i.Description, missing)
}

// Findings is the result of running a set of checks.
type Findings struct {
	Mismatches   []Mismatch
	Insufficient []Insufficiency
}

// Clean returns true when no mismatch was found and every check had
// evidence to run against.
func (f Findings) Clean() bool {
	return len(f.Mismatches) == 0 && len(f.Insufficient) == 0
}

// CrossCheck runs every check and collects findings. It never short
// circuits: all disagreements are surfaced together so the receipt lists
// every blocker at once.
func CrossCheck(checks []Check) Findings {
	var findings Findings
	for _, c := range checks {
		if !c.Claim.Resolved() || !c.Evidence.Resolved() {
			findings.Insufficient = append(findings.Insufficient, Insufficiency{
				Description: c.Description,
				Claim:       c.Claim,
				Evidence:    c.Evidence,
			})
			continue
		}
		cmp := c.Compare
		if cmp == nil {
			cmp = Equal
		}
		if !cmp(*c.Claim.Value, *c.Evidence.Value) {
			findings.Mismatches = append(findings.Mismatches, Mismatch{
				Description: c.Description,
				Claim:       c.Claim,
				Evidence:    c.Evidence,
			})
		}
	}
	return findings
}
