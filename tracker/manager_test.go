package tracker

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flowFunc adapts a function to PointFlow.
type flowFunc func(Point) (Point, bool)

func (f flowFunc) Advance(p Point) (Point, bool) { return f(p) }

func shiftFlow(dx, dy float64) PointFlow {
	return flowFunc(func(p Point) (Point, bool) { return Pt(p.X+dx, p.Y+dy), true })
}

var failingFlow = flowFunc(func(p Point) (Point, bool) { return p, false })

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func obsAt(x, y float64) Observation {
	return Observation{Center: Pt(x, y), Area: 400}
}

func step(m *Manager, flow PointFlow, obs ...Observation) Snapshot {
	return m.Step(FrameInput{Observations: obs, Flow: flow})
}

// ---------------------------------------------------------------------------
// Lifecycle scenarios
// ---------------------------------------------------------------------------

func TestConfirmThenTrack(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())
	flow := shiftFlow(10, 0)

	var snap Snapshot
	for i := 0; i < 3; i++ {
		snap = step(m, flow, obsAt(100+10*float64(i), 100))
	}

	require.Len(t, snap.Tracks, 1)
	tr := snap.Tracks[0]
	assert.Equal(t, int64(1), tr.ID)
	assert.Equal(t, Confirmed, tr.State)
	assert.Equal(t, 3, tr.Visible)
	assert.Equal(t, Pt(120, 100), tr.Center)

	// The region is still detected while flow takes over.
	snap = step(m, flow, obsAt(130, 100))
	require.Len(t, snap.Tracks, 1)
	tr = snap.Tracks[0]
	assert.Equal(t, int64(1), tr.ID)
	assert.Equal(t, Tracking, tr.State)
	assert.Equal(t, Pt(130, 100), tr.Center)

	want := []Event{{Frame: 4, TrackID: 1, Kind: EventTracking, Center: Pt(120, 100)}}
	if diff := cmp.Diff(want, snap.Events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmatchedObservationSpawnsFreshTrack(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())

	step(m, nil, obsAt(100, 100))
	snap := step(m, nil, obsAt(105, 100), obsAt(300, 300))

	require.Len(t, snap.Tracks, 2)
	old, ok := snap.Track(1)
	require.True(t, ok)
	assert.Equal(t, 2, old.Visible)

	fresh, ok := snap.Track(2)
	require.True(t, ok)
	assert.Equal(t, Tentative, fresh.State)
	assert.Equal(t, 1, fresh.Visible)
	assert.Equal(t, Pt(300, 300), fresh.Center)
}

func TestFlowFailureRemovesTrack(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())

	for i := 0; i < 3; i++ {
		step(m, nil, obsAt(200, 200))
	}
	snap := step(m, shiftFlow(1, 1))
	require.Equal(t, 1, snap.Count(Tracking))

	snap = step(m, failingFlow)
	assert.Empty(t, snap.Tracks)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, EventLost, snap.Events[0].Kind)
	assert.Equal(t, int64(1), snap.Events[0].TrackID)
	assert.Equal(t, 1, m.Stats().Lost)

	// Re-acquisition is a new identity.
	snap = step(m, nil, obsAt(201, 201))
	require.Len(t, snap.Tracks, 1)
	assert.Equal(t, int64(2), snap.Tracks[0].ID)
}

func TestTwoObservationsNeverShareATrack(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())

	step(m, nil, obsAt(100, 100), obsAt(160, 100))
	snap := step(m, nil, obsAt(130, 100), obsAt(140, 100))

	require.Len(t, snap.Tracks, 2)
	first, _ := snap.Track(1)
	second, _ := snap.Track(2)
	assert.Equal(t, Pt(130, 100), first.Center)
	assert.Equal(t, Pt(140, 100), second.Center)
	assert.Equal(t, 2, first.Visible)
	assert.Equal(t, 2, second.Visible)
}

func TestMissDropsCandidate(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())

	step(m, nil, obsAt(100, 100))
	step(m, nil, obsAt(100, 100))
	snap := step(m, nil)
	assert.Empty(t, snap.Tracks)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, EventDropped, snap.Events[0].Kind)

	snap = step(m, nil, obsAt(100, 100))
	require.Len(t, snap.Tracks, 1)
	assert.Equal(t, int64(2), snap.Tracks[0].ID)
	assert.Equal(t, 1, snap.Tracks[0].Visible)
}

func TestDegradedFrameDropsCandidates(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())

	step(m, nil, obsAt(50, 50))
	step(m, nil, obsAt(52, 50))
	snap := m.Step(FrameInput{Observations: []Observation{obsAt(54, 50)}, Degraded: true})
	assert.True(t, snap.Degraded)
	assert.Zero(t, snap.Observations)
	assert.Empty(t, snap.Tracks)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, EventDropped, snap.Events[0].Kind)

	// Consecutive degraded frames never carry a candidate forward.
	snap = step(m, nil, obsAt(56, 50))
	require.Len(t, snap.Tracks, 1)
	assert.Equal(t, int64(2), snap.Tracks[0].ID)
	assert.Equal(t, 1, snap.Tracks[0].Visible)
	m.Step(FrameInput{Degraded: true})
	snap = m.Step(FrameInput{Degraded: true})
	assert.Empty(t, snap.Tracks)
	assert.Equal(t, int64(2), m.Stats().Dropped)
}

func TestDegradedFrameStillAdvancesTrackingTracks(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())
	flow := shiftFlow(5, 0)

	for i := 0; i < 3; i++ {
		step(m, flow, obsAt(100, 100))
	}
	snap := m.Step(FrameInput{Degraded: true, Flow: flow})
	tr, ok := snap.Track(1)
	require.True(t, ok)
	assert.Equal(t, Tracking, tr.State)
	assert.Equal(t, Pt(105, 100), tr.Center)
}

func TestTrackingTrackAbsorbsNearbyObservations(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())
	flow := shiftFlow(0, 0)

	var snap Snapshot
	for i := 0; i < 5; i++ {
		snap = step(m, flow, obsAt(200, 200))
	}
	require.Len(t, snap.Tracks, 1)
	assert.Equal(t, Tracking, snap.Tracks[0].State)
	assert.Equal(t, int64(1), m.Stats().Created)
}

func TestPromotionSkipsDuplicateOfHandedOffTrack(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())

	var snap Snapshot
	for i := 0; i < 3; i++ {
		snap = step(m, nil, obsAt(100, 100), obsAt(140, 100))
	}

	first, ok := snap.Track(1)
	require.True(t, ok)
	second, ok := snap.Track(2)
	require.True(t, ok)
	assert.Equal(t, Confirmed, first.State)
	assert.Equal(t, Tentative, second.State)
	assert.Equal(t, 3, second.Visible)
}

func TestPaintOnlyNeverTracks(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, PaintOnlyConfig())
	flow := flowFunc(func(p Point) (Point, bool) {
		t.Fatal("flow must not run in paint-only mode")
		return p, false
	})

	var snap Snapshot
	for i := 0; i < 5; i++ {
		snap = step(m, flow, obsAt(300, 300))
		if i < 2 {
			assert.Equal(t, Tentative, snap.Tracks[0].State)
		}
	}
	require.Len(t, snap.Tracks, 1)
	assert.Equal(t, Confirmed, snap.Tracks[0].State)
	assert.Equal(t, 5, snap.Tracks[0].Visible)
	assert.Equal(t, 1, m.Stats().Confirmed)
}

// ---------------------------------------------------------------------------
// Association strategies
// ---------------------------------------------------------------------------

func TestAssociationStrategies(t *testing.T) {
	t.Parallel()

	// The first observation is within range of both tracks but much closer to
	// track 2; the second is only in range of track 1.
	tests := []struct {
		name     string
		strategy Association
		want     map[int64]Point
		live     int
	}{
		{
			name:     "greedy takes first in id order",
			strategy: AssociateGreedy,
			want:     map[int64]Point{1: Pt(150, 100), 3: Pt(105, 100)},
			live:     2,
		},
		{
			name:     "optimal minimises total distance",
			strategy: AssociateOptimal,
			want:     map[int64]Point{1: Pt(105, 100), 2: Pt(150, 100)},
			live:     2,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.Association = tt.strategy
			m := newTestManager(t, cfg)

			step(m, nil, obsAt(100, 100), obsAt(160, 100))
			snap := step(m, nil, obsAt(150, 100), obsAt(105, 100))

			assert.Len(t, snap.Tracks, tt.live)
			for id, center := range tt.want {
				tr, ok := snap.Track(id)
				require.True(t, ok, "track %d", id)
				assert.Equal(t, center, tr.Center)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Invariants
// ---------------------------------------------------------------------------

func TestLifecycleInvariants(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())
	rng := rand.New(rand.NewSource(7))

	jitter := flowFunc(func(p Point) (Point, bool) {
		if rng.Float64() < 0.1 {
			return p, false
		}
		return Pt(p.X+rng.Float64()*4-2, p.Y+rng.Float64()*4-2), true
	})

	visible := map[int64]int{}
	tracked := map[int64]bool{}
	seen := map[int64]bool{}
	var lastID int64

	objects := []Point{Pt(100, 100), Pt(400, 120), Pt(250, 300)}
	for frame := 0; frame < 300; frame++ {
		var obs []Observation
		for i := range objects {
			objects[i] = Pt(objects[i].X+rng.Float64()*10-5, objects[i].Y+rng.Float64()*10-5)
			if rng.Float64() < 0.8 {
				obs = append(obs, Observation{Center: objects[i], Area: 300})
			}
		}
		if rng.Float64() < 0.3 {
			obs = append(obs, obsAt(rng.Float64()*640, rng.Float64()*480))
		}

		snap := m.Step(FrameInput{Observations: obs, Flow: jitter, Degraded: rng.Float64() < 0.05})

		ids := map[int64]bool{}
		for _, tr := range snap.Tracks {
			require.False(t, ids[tr.ID], "duplicate live id %d", tr.ID)
			ids[tr.ID] = true

			if !seen[tr.ID] {
				require.Greater(t, tr.ID, lastID, "ids must be fresh")
				lastID = tr.ID
				seen[tr.ID] = true
			}

			switch tr.State {
			case Tentative, Confirmed:
				require.False(t, tracked[tr.ID], "track %d left tracking", tr.ID)
				require.GreaterOrEqual(t, tr.Visible, visible[tr.ID], "visibility decreased for %d", tr.ID)
				visible[tr.ID] = tr.Visible
			case Tracking:
				tracked[tr.ID] = true
			default:
				t.Fatalf("unexpected live state %q", tr.State)
			}
		}
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero distance", func(c *Config) { c.MatchDistance = 0 }},
		{"zero confirm frames", func(c *Config) { c.ConfirmFrames = 0 }},
		{"unknown association", func(c *Config) { c.Association = "nearest" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewManager(cfg, zerolog.Nop())
			assert.Error(t, err)
		})
	}
}
