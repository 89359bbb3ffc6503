package imgproc

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/DaniruKun/steady-tracker/tracker"
)

var (
	red   = color.RGBA{255, 0, 0, 0}
	green = color.RGBA{0, 255, 0, 0}
	white = color.RGBA{255, 255, 255, 0}
)

const (
	markerRadius = 5
	labelOffset  = 10
	labelScale   = 0.5
)

// DrawOptions selects how DrawTracks renders confirmed and tentative tracks.
type DrawOptions struct {
	Tracking   bool // Confirmed tracks are about to be point tracked, not painted
	Candidates bool // Outline tentative tracks too
}

// DrawTracks renders the live tracks of a snapshot onto img.
//
// Tracking tracks get a red dot and an id label. In paint-only mode confirmed
// candidates are filled red with a green centroid; otherwise a confirmed track
// waiting for its first flow step only shows the green centroid.
func DrawTracks(img *gocv.Mat, snap tracker.Snapshot, opts DrawOptions) error {
	for _, t := range snap.Tracks {
		switch t.State {
		case tracker.Tracking:
			center := t.Center.Image()
			if err := gocv.Circle(img, center, markerRadius, red, -1); err != nil {
				return fmt.Errorf("mark track %d: %w", t.ID, err)
			}
			label := fmt.Sprintf("Tracking ID %d", t.ID)
			org := image.Point{X: center.X, Y: center.Y - labelOffset}
			if err := gocv.PutText(img, label, org, gocv.FontHersheySimplex, labelScale, white, 1); err != nil {
				return fmt.Errorf("label track %d: %w", t.ID, err)
			}
		case tracker.Confirmed:
			if !opts.Tracking && len(t.Contour) > 0 {
				if err := drawContours(img, [][]image.Point{t.Contour}, red, -1); err != nil {
					return fmt.Errorf("fill track %d: %w", t.ID, err)
				}
			}
			if err := gocv.Circle(img, t.Center.Image(), markerRadius, green, -1); err != nil {
				return fmt.Errorf("mark track %d: %w", t.ID, err)
			}
		case tracker.Tentative:
			if opts.Candidates && !t.Bounds.Empty() {
				if err := gocv.Rectangle(img, t.Bounds, TrackColor(t.ID), 1); err != nil {
					return fmt.Errorf("outline track %d: %w", t.ID, err)
				}
			}
		}
	}
	return nil
}

// DrawRegions outlines every observation, as the static color path does.
func DrawRegions(img *gocv.Mat, regions []tracker.Observation, c color.RGBA, thickness int) error {
	if len(regions) == 0 {
		return nil
	}
	pts := make([][]image.Point, 0, len(regions))
	for _, r := range regions {
		pts = append(pts, r.Contour)
	}
	return drawContours(img, pts, c, thickness)
}

func drawContours(img *gocv.Mat, pts [][]image.Point, c color.RGBA, thickness int) error {
	contours := gocv.NewPointsVectorFromPoints(pts)
	defer contours.Close()
	return gocv.DrawContours(img, contours, -1, c, thickness)
}
