// Package tracker owns the identity layer of the pipeline: it turns per-frame
// region centroids into persistent tracks.
//
// Lifecycle: an unmatched observation creates a Tentative track. A candidate
// matched on ConfirmFrames consecutive frames is Confirmed and handed off to
// point tracking, where it becomes Tracking until optical flow fails (Lost).
// Candidates that miss a single frame are dropped; re-observation yields a new
// identity.
//
// The package has no cgo dependency. Image backends plug in via PointFlow.
package tracker

import (
	"image"
	"math"
)

// State is the lifecycle state of a track.
type State string

const (
	Tentative State = "tentative" // Seen, not yet trusted
	Confirmed State = "confirmed" // Reached ConfirmFrames; static overlay or awaiting handoff
	Tracking  State = "tracking"  // Advanced by optical flow each frame
	Lost      State = "lost"      // Flow failed; removed in the same frame
)

// Point is a 2D image coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Image rounds p to the nearest integer pixel.
func (p Point) Image() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// Observation is one qualifying region of a change mask.
type Observation struct {
	Center  Point
	Area    float64
	Bounds  image.Rectangle
	Contour []image.Point
}

// Track is a persistent identity for a region observed across frames.
type Track struct {
	ID      int64
	State   State
	Center  Point
	Visible int // Consecutive matched frames while a candidate

	// Last matched region, kept for overlays.
	Area    float64
	Bounds  image.Rectangle
	Contour []image.Point

	FirstFrame int64
	LastFrame  int64
}
