package pipeline

import "fmt"

// ValidationError reports one structural problem in a definition.
type ValidationError struct {
	Flow    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Flow != "" {
		return fmt.Sprintf("pipeline flow %q: %s", e.Flow, e.Message)
	}
	return fmt.Sprintf("pipeline: %s", e.Message)
}

// Comparators names the closed comparator vocabulary checks may use.
// Resolution to functions happens in the engine; validation only checks
// membership so a typo fails at load time, not seal time.
var Comparators = map[string]bool{
	"":          true, // defaults to equal
	"equal":     true,
	"int-equal": true,
}

// Validate checks a definition's structure and collects every problem
// rather than stopping at the first:
//
//   - flow names come from the closed set, appear at most once, and in
//     canonical order
//   - every flow has at least one station; station names unique per flow
//   - every artifact name is owned by exactly one station, globally
//   - marker and keyed-count names do not collide within a flow
//   - check fact refs point at declared artifacts and use exactly one of
//     key/prefix; comparator names are known
//   - gates reference earlier flows only
func Validate(def *Definition) []error {
	var errs []error
	if len(def.Flows) == 0 {
		return []error{&ValidationError{Message: "no flows declared"}}
	}

	seenFlows := make(map[string]bool)
	owners := make(map[string]string) // artifact name -> "flow/station"
	lastRank := -1

	for _, f := range def.Flows {
		if FlowRank(f.Name) < 0 {
			errs = append(errs, &ValidationError{Flow: f.Name, Message: "unknown flow name"})
			continue
		}
		if seenFlows[f.Name] {
			errs = append(errs, &ValidationError{Flow: f.Name, Message: "flow declared twice"})
			continue
		}
		seenFlows[f.Name] = true
		if rank := FlowRank(f.Name); rank < lastRank {
			errs = append(errs, &ValidationError{Flow: f.Name, Message: "flows out of canonical order"})
		} else {
			lastRank = rank
		}

		if len(f.Stations) == 0 {
			errs = append(errs, &ValidationError{Flow: f.Name, Message: "no stations declared"})
		}

		declared := make(map[string]bool) // artifacts in this flow
		counts := make(map[string]string) // count name -> artifact
		stations := make(map[string]bool)
		for _, s := range f.Stations {
			if s.Name == "" {
				errs = append(errs, &ValidationError{Flow: f.Name, Message: "station with empty name"})
				continue
			}
			if stations[s.Name] {
				errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("station %q declared twice", s.Name)})
			}
			stations[s.Name] = true

			for _, a := range s.Produces {
				if a.Name == "" {
					errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("station %q produces artifact with empty name", s.Name)})
					continue
				}
				if owner, dup := owners[a.Name]; dup {
					errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("artifact %q already owned by %s", a.Name, owner)})
				}
				owners[a.Name] = f.Name + "/" + s.Name
				declared[a.Name] = true

				if a.Summary != nil {
					for _, k := range a.Summary.Keys {
						if k.Name == "" {
							errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("artifact %q declares summary key with empty name", a.Name)})
						}
						if k.Count != "" {
							if prev, dup := counts[k.Count]; dup {
								errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("count %q declared by both %s and %s", k.Count, prev, a.Name)})
							}
							counts[k.Count] = a.Name
						}
					}
				}
				for _, m := range a.Markers {
					if m.Prefix == "" {
						errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("artifact %q declares marker with empty prefix", a.Name)})
					}
					if m.Count == "" {
						errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("artifact %q declares marker %q without a count name", a.Name, m.Prefix)})
						continue
					}
					if prev, dup := counts[m.Count]; dup {
						errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("count %q declared by both %s and %s", m.Count, prev, a.Name)})
					}
					counts[m.Count] = a.Name
				}
			}
		}

		for _, c := range f.Checks {
			errs = append(errs, validateFactRef(f.Name, c.Description, "claim", c.Claim, declared)...)
			errs = append(errs, validateFactRef(f.Name, c.Description, "evidence", c.Evidence, declared)...)
			if !Comparators[c.Comparator] {
				errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("check %q uses unknown comparator %q", c.Description, c.Comparator)})
			}
		}

		for _, n := range f.Needs {
			ownerFlow, _, ok := def.Owner(n)
			if !ok {
				errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("needs undeclared artifact %q", n)})
				continue
			}
			if FlowRank(ownerFlow) >= FlowRank(f.Name) {
				errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("need %q is not produced by an earlier flow", n)})
			}
		}

		for _, g := range f.Gates {
			gr := FlowRank(g)
			if gr < 0 {
				errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("gate references unknown flow %q", g)})
				continue
			}
			if gr >= FlowRank(f.Name) {
				errs = append(errs, &ValidationError{Flow: f.Name, Message: fmt.Sprintf("gate %q is not an earlier flow", g)})
			}
		}
	}

	return errs
}

func validateFactRef(flow, check, side string, ref FactRef, declared map[string]bool) []error {
	var errs []error
	if ref.Artifact == "" {
		errs = append(errs, &ValidationError{Flow: flow, Message: fmt.Sprintf("check %q %s has no artifact", check, side)})
		return errs
	}
	if !declared[ref.Artifact] {
		errs = append(errs, &ValidationError{Flow: flow, Message: fmt.Sprintf("check %q %s references undeclared artifact %q", check, side, ref.Artifact)})
	}
	hasKey := ref.Key != ""
	hasPrefix := ref.Prefix != ""
	if hasKey == hasPrefix {
		errs = append(errs, &ValidationError{Flow: flow, Message: fmt.Sprintf("check %q %s must set exactly one of key or prefix", check, side)})
	}
	return errs
}
