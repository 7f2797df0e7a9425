package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/waystation/internal/artifact"
)

func TestSource_Key_ArtifactMissing(t *testing.T) {
	store := artifact.New(t.TempDir())
	src := NewSource(store, "r1", "build")

	l, err := src.Key("summary.txt", SummarySection, "status")
	require.NoError(t, err, "a missing artifact is null, not an error")
	assert.False(t, l.Ok())
	assert.Contains(t, l.Reason, "artifact missing")
}

func TestSource_Key_Present(t *testing.T) {
	store := artifact.New(t.TempDir())
	doc := "--- MACHINE SUMMARY ---\nstatus: ok\n--- END MACHINE SUMMARY ---\n"
	require.NoError(t, store.Put("r1", "build", "summary.txt", []byte(doc)))

	src := NewSource(store, "r1", "build")
	l, err := src.Key("summary.txt", SummarySection, "status")
	require.NoError(t, err)
	require.True(t, l.Ok())
	assert.Equal(t, "ok", l.Value)
}

func TestSource_CountMarkers_ArtifactMissing_Null(t *testing.T) {
	store := artifact.New(t.TempDir())
	src := NewSource(store, "r1", "build")

	c, err := src.CountMarkers("tests.txt", "INVENTORY", "CASE:")
	require.NoError(t, err)
	assert.True(t, c.Null())
	assert.Contains(t, c.Reason, "artifact missing")
}
