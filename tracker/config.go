package tracker

import "fmt"

// Association selects how observations are matched to candidate tracks.
type Association string

const (
	// AssociateGreedy accepts, for each observation in extraction order, the
	// first unclaimed candidate (ascending id) within MatchDistance.
	AssociateGreedy Association = "greedy"
	// AssociateOptimal minimises the total matched distance (Hungarian).
	AssociateOptimal Association = "optimal"
)

// Config holds the tunable parameters of the Manager.
type Config struct {
	MatchDistance   float64     // Max centroid distance (px) for a match
	ConfirmFrames   int         // Consecutive matched frames before confirmation
	TrackingEnabled bool        // false: paint-only variant, no optical flow handoff
	Association     Association // Matching strategy
}

// DefaultConfig returns the parameters of the tracking-enabled pipeline.
func DefaultConfig() Config {
	return Config{
		MatchDistance:   50,
		ConfirmFrames:   3,
		TrackingEnabled: true,
		Association:     AssociateGreedy,
	}
}

// PaintOnlyConfig returns the parameters of the paint-only pipeline, where
// confirmed regions are drawn filled and never handed to point tracking.
func PaintOnlyConfig() Config {
	return Config{
		MatchDistance:   100,
		ConfirmFrames:   3,
		TrackingEnabled: false,
		Association:     AssociateGreedy,
	}
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	if c.MatchDistance <= 0 {
		return fmt.Errorf("match distance must be positive, got %g", c.MatchDistance)
	}
	if c.ConfirmFrames < 1 {
		return fmt.Errorf("confirm frames must be at least 1, got %d", c.ConfirmFrames)
	}
	switch c.Association {
	case AssociateGreedy, AssociateOptimal:
	default:
		return fmt.Errorf("unknown association strategy %q", c.Association)
	}
	return nil
}
