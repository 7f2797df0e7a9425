package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func sampleSeal(id string, at time.Time) SealRecord {
	return SealRecord{
		ID:                id,
		RunID:             "run-1",
		Flow:              "build",
		Status:            "VERIFIED",
		RecommendedAction: "PROCEED",
		Routing:           `{"kind":"CONTINUE","target":""}`,
		Receipt:           `{"run_id":"run-1","flow":"build"}`,
		EvidenceSHA:       "abc",
		SealedAt:          at,
	}
}

func TestJournal_OpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	// Reopening applies pragmas and schema again without complaint.
	j, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())
}

func TestJournal_AppendSealIdempotent(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, j.AppendSeal(ctx, sampleSeal("id-1", at)))
	// Same content-addressed ID appended again collapses to one row.
	require.NoError(t, j.AppendSeal(ctx, sampleSeal("id-1", at.Add(time.Hour))))

	last, err := j.LastSeal(ctx, "run-1", "build")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "id-1", last.ID)
	// The first write's timestamp survives; the duplicate was a no-op.
	assert.True(t, last.SealedAt.Equal(at))
}

func TestJournal_AppendSealEmptyIDRejected(t *testing.T) {
	j := openTestJournal(t)
	err := j.AppendSeal(context.Background(), SealRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty id")
}

func TestJournal_LastSealPicksLatest(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, j.AppendSeal(ctx, sampleSeal("id-old", at)))
	newer := sampleSeal("id-new", at.Add(time.Minute))
	newer.Status = "UNVERIFIED"
	require.NoError(t, j.AppendSeal(ctx, newer))

	last, err := j.LastSeal(ctx, "run-1", "build")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "id-new", last.ID)
	assert.Equal(t, "UNVERIFIED", last.Status)
}

func TestJournal_LastSealOrdersByInsertionNotTimestamp(t *testing.T) {
	// A whole-second RFC3339Nano timestamp ("...05Z") sorts after a
	// fractional one ("...05.9Z") as TEXT, because 'Z' > '.'. The latest
	// seal must still be the latest insertion.
	ctx := context.Background()
	j := openTestJournal(t)

	whole := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.AppendSeal(ctx, sampleSeal("id-whole", whole)))

	fractional := sampleSeal("id-fractional", whole.Add(900*time.Millisecond))
	fractional.Status = "UNVERIFIED"
	require.NoError(t, j.AppendSeal(ctx, fractional))

	last, err := j.LastSeal(ctx, "run-1", "build")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "id-fractional", last.ID)
	assert.Equal(t, "UNVERIFIED", last.Status)
}

func TestJournal_LastSealScopedToRunAndFlow(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.AppendSeal(ctx, sampleSeal("id-1", at)))

	last, err := j.LastSeal(ctx, "run-1", "deploy")
	require.NoError(t, err)
	assert.Nil(t, last, "never-sealed flow reads back as nil, not an error")

	last, err = j.LastSeal(ctx, "run-other", "build")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestJournal_StationEvents(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	events := []StationEvent{
		{RunID: "run-1", Flow: "build", Station: "implementer", Outcome: OutcomeOK, RecordedAt: at},
		{RunID: "run-1", Flow: "build", Station: "test-station", Outcome: OutcomeError, Detail: "boom", RecordedAt: at.Add(time.Second)},
		{RunID: "run-1", Flow: "gate", Station: "auditor", Outcome: OutcomeOK, RecordedAt: at.Add(2 * time.Second)},
		{RunID: "run-2", Flow: "build", Station: "implementer", Outcome: OutcomeOK, RecordedAt: at},
	}
	for _, ev := range events {
		require.NoError(t, j.RecordStation(ctx, ev))
	}

	all, err := j.StationEvents(ctx, "run-1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "implementer", all[0].Station)
	assert.Equal(t, "test-station", all[1].Station)
	assert.Equal(t, "boom", all[1].Detail)
	assert.Equal(t, "auditor", all[2].Station)

	buildOnly, err := j.StationEvents(ctx, "run-1", "build")
	require.NoError(t, err)
	assert.Len(t, buildOnly, 2)

	none, err := j.StationEvents(ctx, "run-ghost", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJournal_InMemory(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	require.NoError(t, j.AppendSeal(ctx, sampleSeal("id-1", time.Now().UTC())))
	last, err := j.LastSeal(ctx, "run-1", "build")
	require.NoError(t, err)
	assert.NotNil(t, last)
}
