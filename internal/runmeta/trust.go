package runmeta

// Flag is a three-point trust lattice:
//
//	unset < allowed
//	unset < restricted
//	restricted < allowed   (restricted is the bottom of the known values)
//
// Merges use Meet, so a flag can tighten (allowed -> restricted) but never
// loosen (restricted -> allowed). Unset is "no writer has spoken yet" and
// loses to any explicit value.
type Flag string

const (
	FlagUnset      Flag = ""
	FlagAllowed    Flag = "allowed"
	FlagRestricted Flag = "restricted"
)

// Meet combines two flag values, preferring the more restrictive.
// Meet is commutative, associative, and idempotent, which is what makes
// the monotonicity invariant mechanically checkable: merging in any order
// any number of times yields the same flag.
func Meet(a, b Flag) Flag {
	if a == FlagRestricted || b == FlagRestricted {
		return FlagRestricted
	}
	if a == FlagAllowed || b == FlagAllowed {
		return FlagAllowed
	}
	return FlagUnset
}

// Allowed reports whether the flag explicitly permits the operation.
// Unset does not permit: permission must have been granted by some writer.
func (f Flag) Allowed() bool {
	return f == FlagAllowed
}
