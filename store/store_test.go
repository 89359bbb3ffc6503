package store

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaniruKun/steady-tracker/tracker"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	session, err := s.BeginSession("fish.mp4")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)

	snaps := []tracker.Snapshot{
		{
			Frame:        1,
			Observations: 1,
			Tracks:       []tracker.Track{{ID: 1, State: tracker.Tentative}},
			Events:       []tracker.Event{{Frame: 1, TrackID: 1, Kind: tracker.EventCreated, Center: tracker.Pt(10, 20)}},
		},
		{Frame: 2, Degraded: true, Tracks: []tracker.Track{{ID: 1, State: tracker.Tentative}}},
		{
			Frame:        3,
			Observations: 1,
			Events: []tracker.Event{
				{Frame: 3, TrackID: 1, Kind: tracker.EventConfirmed, Center: tracker.Pt(12, 20)},
				{Frame: 3, TrackID: 2, Kind: tracker.EventCreated, Center: tracker.Pt(200, 5.5)},
			},
		},
	}
	for _, snap := range snaps {
		require.NoError(t, s.RecordSnapshot(session.ID, snap))
	}

	events, err := s.Events(session.ID)
	require.NoError(t, err)

	var want []tracker.Event
	for _, snap := range snaps {
		want = append(want, snap.Events...)
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	totals := TotalsFrom(3, 1, tracker.Stats{Created: 2, Confirmed: 1})
	require.NoError(t, s.EndSession(session.ID, totals))

	got, err := s.Session(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "fish.mp4", got.Source)
	assert.Equal(t, totals, got.Totals)
	require.NotNil(t, got.EndedAt)
	assert.GreaterOrEqual(t, *got.EndedAt, got.StartedAt)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := openTestStore(t)

	a, err := s.BeginSession("a.mp4")
	require.NoError(t, err)
	b, err := s.BeginSession("b.mp4")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	ev := tracker.Event{Frame: 1, TrackID: 1, Kind: tracker.EventCreated}
	require.NoError(t, s.RecordSnapshot(a.ID, tracker.Snapshot{Frame: 1, Events: []tracker.Event{ev}}))

	events, err := s.Events(b.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestUnknownSession(t *testing.T) {
	s := openTestStore(t)

	assert.ErrorIs(t, s.EndSession("missing", Totals{}), ErrUnknownSession)

	_, err := s.Session("missing")
	assert.ErrorIs(t, err, ErrUnknownSession)

	err = s.RecordSnapshot("missing", tracker.Snapshot{Frame: 1})
	assert.Error(t, err)
}

func TestDuplicateFrameRollsBack(t *testing.T) {
	s := openTestStore(t)
	session, err := s.BeginSession("clip.avi")
	require.NoError(t, err)

	require.NoError(t, s.RecordSnapshot(session.ID, tracker.Snapshot{Frame: 1}))

	dup := tracker.Snapshot{Frame: 1, Events: []tracker.Event{{Frame: 1, TrackID: 9, Kind: tracker.EventCreated}}}
	assert.Error(t, s.RecordSnapshot(session.ID, dup))

	events, err := s.Events(session.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}
