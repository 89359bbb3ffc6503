package tracker

import (
	"sort"

	"github.com/rs/zerolog"
)

// PointFlow advances a single point from the previous frame to the current
// one. ok is false when the flow estimate failed.
type PointFlow interface {
	Advance(p Point) (next Point, ok bool)
}

// FrameInput is everything the Manager consumes for one frame.
type FrameInput struct {
	Observations []Observation
	// Degraded marks a transition where motion could not be compensated.
	// Candidates are left untouched; only tracking tracks advance.
	Degraded bool
	// Flow may be nil, in which case tracking tracks hold position.
	Flow PointFlow
}

// EventKind names a lifecycle transition.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventConfirmed EventKind = "confirmed"
	EventTracking  EventKind = "tracking"
	EventLost      EventKind = "lost"
	EventDropped   EventKind = "dropped"
)

// Event records a lifecycle transition of one track.
type Event struct {
	Frame   int64     `json:"frame"`
	TrackID int64     `json:"track_id"`
	Kind    EventKind `json:"kind"`
	Center  Point     `json:"center"`
}

// Snapshot is the committed output of one frame.
type Snapshot struct {
	Frame        int64
	Tracks       []Track // Live tracks sorted by id
	Events       []Event
	Observations int
	Degraded     bool
}

// Track returns the live track with the given id.
func (s Snapshot) Track(id int64) (Track, bool) {
	for _, t := range s.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

// Count returns the number of live tracks in state.
func (s Snapshot) Count(state State) int {
	n := 0
	for _, t := range s.Tracks {
		if t.State == state {
			n++
		}
	}
	return n
}

// Stats are lifetime counters of a Manager.
type Stats struct {
	Created   int
	Confirmed int
	Lost      int
	Dropped   int
}

// Manager is the sole owner and mutator of the track set.
type Manager struct {
	cfg    Config
	log    zerolog.Logger
	nextID int64
	frame  int64
	stats  Stats

	// candidates are Tentative tracks (and Confirmed ones in paint-only mode),
	// rebuilt every frame. handedOff are Confirmed tracks awaiting
	// their first flow step and Tracking tracks.
	candidates []*Track
	handedOff  []*Track
}

// NewManager creates a Manager with an empty track set.
func NewManager(cfg Config, log zerolog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:    cfg,
		log:    log.With().Str("component", "tracker").Logger(),
		nextID: 1,
	}, nil
}

// Frame returns the number of frames stepped so far.
func (m *Manager) Frame() int64 {
	return m.frame
}

// Stats returns the lifetime counters.
func (m *Manager) Stats() Stats {
	return m.stats
}

// Step consumes one frame and returns the committed snapshot.
//
// Observations within MatchDistance of a Confirmed or Tracking track are
// absorbed by it and never start a new track. A degraded frame carries no
// observations, so every candidate counts as missed and is dropped; point
// tracked tracks still advance.
func (m *Manager) Step(in FrameInput) Snapshot {
	m.frame++
	var events []Event

	obs := in.Observations
	if in.Degraded {
		obs = nil
	}

	handedOff := m.advance(in.Flow, &events)
	candidates := m.associate(m.absorb(obs, handedOff), &events)
	candidates, handedOff = m.promote(candidates, handedOff, &events)

	m.candidates = candidates
	m.handedOff = handedOff

	return m.snapshot(events, len(obs), in.Degraded)
}

// advance moves handed-off tracks with optical flow and removes those whose
// flow failed.
func (m *Manager) advance(flow PointFlow, events *[]Event) []*Track {
	next := make([]*Track, 0, len(m.handedOff))
	for _, t := range m.handedOff {
		if t.State == Confirmed {
			t.State = Tracking
			m.emit(events, t, EventTracking)
		}
		if flow == nil {
			next = append(next, t)
			continue
		}

		p, ok := flow.Advance(t.Center)
		if !ok {
			t.State = Lost
			m.stats.Lost++
			m.emit(events, t, EventLost)
			continue
		}
		t.Center = p
		t.LastFrame = m.frame
		next = append(next, t)
	}
	return next
}

// absorb discards observations that belong to an object already under point
// tracking, so the same object does not spawn a second identity.
func (m *Manager) absorb(obs []Observation, owners []*Track) []Observation {
	if len(owners) == 0 {
		return obs
	}
	kept := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if !m.nearAny(o.Center, owners) {
			kept = append(kept, o)
		}
	}
	return kept
}

// associate matches observations to the previous candidates and returns the
// candidate set for this frame. Unmatched candidates are dropped.
func (m *Manager) associate(obs []Observation, events *[]Event) []*Track {
	assigned := associate(m.cfg.Association, m.cfg.MatchDistance, obs, m.candidates)
	matched := make([]bool, len(m.candidates))

	next := make([]*Track, 0, len(obs))
	for i, o := range obs {
		j := assigned[i]
		if j < 0 {
			t := &Track{
				ID:         m.nextID,
				State:      Tentative,
				Visible:    1,
				FirstFrame: m.frame,
			}
			m.nextID++
			m.stats.Created++
			t.observe(o, m.frame)
			m.emit(events, t, EventCreated)
			next = append(next, t)
			continue
		}

		t := m.candidates[j]
		matched[j] = true
		t.Visible++
		t.observe(o, m.frame)
		next = append(next, t)
	}

	for j, t := range m.candidates {
		if !matched[j] {
			m.stats.Dropped++
			m.emit(events, t, EventDropped)
		}
	}

	sort.Slice(next, func(a, b int) bool { return next[a].ID < next[b].ID })
	return next
}

// promote confirms candidates that reached ConfirmFrames. With tracking
// enabled a confirmed track leaves the candidate set, unless an existing
// handed-off track already sits within MatchDistance of it.
func (m *Manager) promote(candidates, handedOff []*Track, events *[]Event) ([]*Track, []*Track) {
	kept := candidates[:0]
	for _, t := range candidates {
		if t.Visible < m.cfg.ConfirmFrames {
			kept = append(kept, t)
			continue
		}

		if !m.cfg.TrackingEnabled {
			if t.State == Tentative {
				t.State = Confirmed
				m.stats.Confirmed++
				m.emit(events, t, EventConfirmed)
			}
			kept = append(kept, t)
			continue
		}

		if m.nearAny(t.Center, handedOff) {
			kept = append(kept, t)
			continue
		}
		t.State = Confirmed
		m.stats.Confirmed++
		m.emit(events, t, EventConfirmed)
		handedOff = append(handedOff, t)
	}
	return kept, handedOff
}

func (m *Manager) nearAny(p Point, tracks []*Track) bool {
	for _, t := range tracks {
		if p.Dist(t.Center) <= m.cfg.MatchDistance {
			return true
		}
	}
	return false
}

func (m *Manager) emit(events *[]Event, t *Track, kind EventKind) {
	*events = append(*events, Event{Frame: m.frame, TrackID: t.ID, Kind: kind, Center: t.Center})
	m.log.Debug().
		Int64("frame", m.frame).
		Int64("track", t.ID).
		Str("event", string(kind)).
		Float64("x", t.Center.X).
		Float64("y", t.Center.Y).
		Msg("track transition")
}

func (m *Manager) snapshot(events []Event, observations int, degraded bool) Snapshot {
	tracks := make([]Track, 0, len(m.candidates)+len(m.handedOff))
	for _, t := range m.candidates {
		tracks = append(tracks, *t)
	}
	for _, t := range m.handedOff {
		tracks = append(tracks, *t)
	}
	sort.Slice(tracks, func(a, b int) bool { return tracks[a].ID < tracks[b].ID })

	return Snapshot{
		Frame:        m.frame,
		Tracks:       tracks,
		Events:       events,
		Observations: observations,
		Degraded:     degraded,
	}
}

func (t *Track) observe(o Observation, frame int64) {
	t.Center = o.Center
	t.Area = o.Area
	t.Bounds = o.Bounds
	t.Contour = o.Contour
	t.LastFrame = frame
}
