package runmeta

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mergeNow = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func TestMeet(t *testing.T) {
	cases := []struct {
		a, b, want Flag
	}{
		{FlagUnset, FlagUnset, FlagUnset},
		{FlagUnset, FlagAllowed, FlagAllowed},
		{FlagUnset, FlagRestricted, FlagRestricted},
		{FlagAllowed, FlagAllowed, FlagAllowed},
		{FlagAllowed, FlagRestricted, FlagRestricted},
		{FlagRestricted, FlagRestricted, FlagRestricted},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Meet(c.a, c.b))
		assert.Equal(t, c.want, Meet(c.b, c.a), "Meet must be commutative")
	}
}

func TestFlag_Allowed(t *testing.T) {
	assert.True(t, FlagAllowed.Allowed())
	assert.False(t, FlagRestricted.Allowed())
	assert.False(t, FlagUnset.Allowed(), "unset is not permission")
}

func TestMerge_SetOnceIdentity(t *testing.T) {
	n := 42
	existing := &Run{
		RunID:        "run-1",
		RunIDKind:    KindIssue,
		IssueNumber:  &n,
		RepoExpected: "org/repo",
	}
	incoming := &Run{
		RunID:        "run-other",
		RunIDKind:    KindLocal,
		RepoExpected: "org/elsewhere",
		RepoActual:   "org/repo",
	}
	merged := Merge(existing, incoming, mergeNow)

	assert.Equal(t, "run-1", merged.RunID, "identity never rebinds")
	assert.Equal(t, KindIssue, merged.RunIDKind)
	assert.Equal(t, "org/repo", merged.RepoExpected)
	assert.Equal(t, "org/repo", merged.RepoActual, "empty field accepts first value")
	require.NotNil(t, merged.IssueNumber)
	assert.Equal(t, 42, *merged.IssueNumber)
}

func TestMerge_EmptyIncomingNeverClears(t *testing.T) {
	n := 7
	existing := &Run{
		RunID:        "run-1",
		CanonicalKey: "key-1",
		IssueNumber:  &n,
		OpsAllowed:   FlagRestricted,
		Aliases:      []string{"a"},
	}
	merged := Merge(existing, &Run{}, mergeNow)

	assert.Equal(t, "key-1", merged.CanonicalKey)
	require.NotNil(t, merged.IssueNumber)
	assert.Equal(t, 7, *merged.IssueNumber)
	assert.Equal(t, FlagRestricted, merged.OpsAllowed)
	assert.Equal(t, []string{"a"}, merged.Aliases)
}

func TestMerge_TrustOnlyTightens(t *testing.T) {
	merged := Merge(&Run{OpsAllowed: FlagAllowed}, &Run{OpsAllowed: FlagRestricted}, mergeNow)
	assert.Equal(t, FlagRestricted, merged.OpsAllowed)

	// The reverse direction never loosens.
	merged = Merge(&Run{OpsAllowed: FlagRestricted}, &Run{OpsAllowed: FlagAllowed}, mergeNow)
	assert.Equal(t, FlagRestricted, merged.OpsAllowed)
}

func TestMerge_ListsAppendAndDedup(t *testing.T) {
	existing := &Run{
		Aliases:      []string{"a", "b"},
		FlowsStarted: []string{"signal"},
	}
	incoming := &Run{
		Aliases:      []string{"b", "c", ""},
		FlowsStarted: []string{"signal", "plan"},
	}
	merged := Merge(existing, incoming, mergeNow)
	assert.Equal(t, []string{"a", "b", "c"}, merged.Aliases)
	assert.Equal(t, []string{"signal", "plan"}, merged.FlowsStarted)
}

func TestMerge_AlwaysAdvances(t *testing.T) {
	existing := &Run{Iteration: 3, UpdatedAt: mergeNow.Add(-time.Hour)}
	merged := Merge(existing, &Run{}, mergeNow)
	assert.Equal(t, 4, merged.Iteration)
	assert.Equal(t, mergeNow, merged.UpdatedAt)
}

func TestMerge_ClockSkewStillAdvances(t *testing.T) {
	// A wall clock behind the stored stamp must not move updated_at
	// backwards.
	ahead := mergeNow.Add(time.Hour)
	existing := &Run{UpdatedAt: ahead}
	merged := Merge(existing, &Run{}, mergeNow)
	assert.True(t, merged.UpdatedAt.After(ahead))
}

func TestMerge_NilInputs(t *testing.T) {
	merged := Merge(nil, &Run{RunID: "run-1"}, mergeNow)
	assert.Equal(t, "run-1", merged.RunID)
	assert.Equal(t, 1, merged.Iteration)

	merged = Merge(&Run{RunID: "run-1"}, nil, mergeNow)
	assert.Equal(t, "run-1", merged.RunID)
}

func TestMerge_ExtraExistingWins(t *testing.T) {
	existing := &Run{Extra: map[string]json.RawMessage{
		"future": json.RawMessage(`"old"`),
	}}
	incoming := &Run{Extra: map[string]json.RawMessage{
		"future": json.RawMessage(`"new"`),
		"other":  json.RawMessage(`1`),
	}}
	merged := Merge(existing, incoming, mergeNow)
	assert.Equal(t, `"old"`, string(merged.Extra["future"]))
	assert.Equal(t, `1`, string(merged.Extra["other"]))
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	existing := &Run{Aliases: []string{"a"}, Iteration: 1}
	incoming := &Run{Aliases: []string{"b"}}
	_ = Merge(existing, incoming, mergeNow)
	assert.Equal(t, []string{"a"}, existing.Aliases)
	assert.Equal(t, 1, existing.Iteration)
	assert.Equal(t, []string{"b"}, incoming.Aliases)
}

func TestManager_LoadMissingIsNil(t *testing.T) {
	m := NewManager(t.TempDir())
	run, err := m.Load("nope")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestManager_ApplyCreatesAndMerges(t *testing.T) {
	m := NewManager(t.TempDir())

	first, err := m.Apply("run-1", &Run{
		RunID:      "run-1",
		RunIDKind:  KindLocal,
		OpsAllowed: FlagAllowed,
	}, mergeNow)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Iteration)

	second, err := m.Apply("run-1", &Run{
		OpsAllowed:   FlagRestricted,
		FlowsStarted: []string{"signal"},
	}, mergeNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Iteration)
	assert.Equal(t, KindLocal, second.RunIDKind)
	assert.Equal(t, FlagRestricted, second.OpsAllowed)
	assert.Equal(t, []string{"signal"}, second.FlowsStarted)

	loaded, err := m.Load("run-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 2, loaded.Iteration)
}

func TestManager_ApplyRejectsRunIDConflict(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.Apply("run-1", &Run{RunID: "run-2"}, mergeNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_id")
}

func TestManager_UnknownFieldsSurviveRewrite(t *testing.T) {
	m := NewManager(t.TempDir())

	_, err := m.Apply("run-1", &Run{
		RunID: "run-1",
		Extra: map[string]json.RawMessage{"future": json.RawMessage(`{"a":1}`)},
	}, mergeNow)
	require.NoError(t, err)

	_, err = m.Apply("run-1", &Run{FlowsStarted: []string{"plan"}}, mergeNow.Add(time.Second))
	require.NoError(t, err)

	loaded, err := m.Load("run-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.JSONEq(t, `{"a":1}`, string(loaded.Extra["future"]))
}
