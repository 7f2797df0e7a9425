package forensic

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossCheck_Agreement(t *testing.T) {
	f := CrossCheck([]Check{{
		Description: "tests passed",
		Claim:       IntFact("build/summary.txt", "tests_passed", 5),
		Evidence:    IntFact("build/tests.txt", "tests_passed", 5),
	}})
	assert.True(t, f.Clean())
}

func TestCrossCheck_Mismatch(t *testing.T) {
	f := CrossCheck([]Check{{
		Description: "tests passed",
		Claim:       IntFact("build/summary.txt", "tests_passed", 5),
		Evidence:    IntFact("build/tests.txt", "tests_passed", 3),
	}})
	require.Len(t, f.Mismatches, 1)
	assert.Empty(t, f.Insufficient)
	assert.False(t, f.Clean())

	m := f.Mismatches[0]
	assert.Contains(t, m.String(), "tests passed")
	assert.Contains(t, m.String(), "contradicts")
}

func TestCrossCheck_NullEvidence_IsInsufficientNotMismatch(t *testing.T) {
	// A claim without evidence is not a contradiction. The evidence
	// artifact may simply not have been produced yet.
	f := CrossCheck([]Check{{
		Description: "tests passed",
		Claim:       IntFact("build/summary.txt", "tests_passed", 5),
		Evidence:    NullFact("build/tests.txt", "tests_passed", "artifact missing: tests.txt"),
	}})
	assert.Empty(t, f.Mismatches)
	require.Len(t, f.Insufficient, 1)
	assert.Contains(t, f.Insufficient[0].String(), "insufficient evidence")
	assert.Contains(t, f.Insufficient[0].String(), "artifact missing")
}

func TestCrossCheck_NullClaim_IsInsufficient(t *testing.T) {
	f := CrossCheck([]Check{{
		Description: "tests passed",
		Claim:       NullFact("build/summary.txt", "tests_passed", "key missing"),
		Evidence:    IntFact("build/tests.txt", "tests_passed", 5),
	}})
	assert.Empty(t, f.Mismatches)
	require.Len(t, f.Insufficient, 1)
	// The report names the unresolved side.
	assert.Contains(t, f.Insufficient[0].String(), "summary.txt")
}

func TestCrossCheck_NoShortCircuit(t *testing.T) {
	f := CrossCheck([]Check{
		{
			Description: "first",
			Claim:       StringFact("a", "x", "1"),
			Evidence:    StringFact("b", "x", "2"),
		},
		{
			Description: "second",
			Claim:       StringFact("a", "y", "ok"),
			Evidence:    NullFact("b", "y", "section missing"),
		},
		{
			Description: "third",
			Claim:       StringFact("a", "z", "3"),
			Evidence:    StringFact("b", "z", "4"),
		},
	})
	assert.Len(t, f.Mismatches, 2)
	assert.Len(t, f.Insufficient, 1)
}

func TestCrossCheck_CustomComparator(t *testing.T) {
	numeric := func(claim, evidence string) bool {
		c, err1 := strconv.Atoi(claim)
		e, err2 := strconv.Atoi(evidence)
		if err1 != nil || err2 != nil {
			return claim == evidence
		}
		return c == e
	}
	f := CrossCheck([]Check{{
		Description: "numerically equal despite formatting",
		Claim:       StringFact("a", "n", "05"),
		Evidence:    StringFact("b", "n", "5"),
		Compare:     numeric,
	}})
	assert.True(t, f.Clean())
}

func TestCrossCheck_NilComparatorDefaultsToEqual(t *testing.T) {
	f := CrossCheck([]Check{{
		Claim:    StringFact("a", "n", "5"),
		Evidence: StringFact("b", "n", "5"),
	}})
	assert.True(t, f.Clean())
}

func TestFact_String(t *testing.T) {
	assert.Equal(t, `build/summary.txt[status]="ok"`, StringFact("build/summary.txt", "status", "ok").String())
	assert.Equal(t, "build/tests.txt[n]=null (key missing)", NullFact("build/tests.txt", "n", "key missing").String())
}
