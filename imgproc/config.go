package imgproc

import (
	"fmt"

	"github.com/DaniruKun/steady-tracker/tracker"
)

type Config struct {
	Width          int // Working resolution width
	Height         int // Working resolution height
	MedianBlurSize int // Median blur aperture for the gray variant, odd
	SkipGray       bool

	MaxCorners         int     // Feature points detected per transition
	CornerQuality      float64 // Minimum corner quality relative to the strongest corner
	CornerMinDistance  float64 // Minimum spacing between feature points
	MinCorrespondences int     // Tracked pairs needed to fit the motion model
	InlierThreshold    float64 // Reprojection error (px) under which a pair is an inlier
	ColorDifference    bool    // Difference color frames instead of gray ones

	DiffThreshold   float32 // Intensity cutoff of the change mask
	OpenKernel      int     // Ellipse size removing isolated noise
	CloseKernel     int     // Ellipse size merging fragments of one object
	BorderThickness int     // Band zeroed on every edge of the change mask
	MinRegionArea   float64 // Minimum contour area for motion detections

	StaticMinRegionArea float64 // Minimum contour area for color-threshold detections

	Tracking tracker.Config

	Debug   bool // Toggles debug mode
	ShowGUI bool // Show GUI with live visuals or not
}

// DefaultConfig returns the parameters of the tracking pipeline at 1280x720.
func DefaultConfig() Config {
	return Config{
		Width:          1280,
		Height:         720,
		MedianBlurSize: 11,

		MaxCorners:         1000,
		CornerQuality:      0.01,
		CornerMinDistance:  30,
		MinCorrespondences: 3,
		InlierThreshold:    3,

		DiffThreshold:   70,
		OpenKernel:      7,
		CloseKernel:     100,
		BorderThickness: 15,
		MinRegionArea:   250,

		StaticMinRegionArea: 500,

		Tracking: tracker.DefaultConfig(),
	}
}

// PaintOnlyConfig returns DefaultConfig with the paint-only tracker, which
// fills confirmed regions instead of following them with optical flow.
func PaintOnlyConfig() Config {
	cfg := DefaultConfig()
	cfg.Tracking = tracker.PaintOnlyConfig()
	return cfg
}

// Validate reports the first parameter the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("invalid working resolution %dx%d", c.Width, c.Height)
	case c.MedianBlurSize < 1 || c.MedianBlurSize%2 == 0:
		return fmt.Errorf("median blur size must be odd and positive, got %d", c.MedianBlurSize)
	case c.MaxCorners < 1:
		return fmt.Errorf("max corners must be positive, got %d", c.MaxCorners)
	case c.MinCorrespondences < 3:
		return fmt.Errorf("at least 3 correspondences are needed to fit a motion model, got %d", c.MinCorrespondences)
	case c.OpenKernel < 1 || c.CloseKernel < 1:
		return fmt.Errorf("morphology kernels must be positive, got open=%d close=%d", c.OpenKernel, c.CloseKernel)
	case c.BorderThickness < 0:
		return fmt.Errorf("border thickness must not be negative, got %d", c.BorderThickness)
	}
	return c.Tracking.Validate()
}
