package imgproc

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/DaniruKun/steady-tracker/tracker"
)

// Bound is an inclusive channel interval.
type Bound struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ColorRange selects pixels by HSV in OpenCV units: H in 0-179, S and V in 0-255.
type ColorRange struct {
	H Bound `json:"H"`
	S Bound `json:"S"`
	V Bound `json:"V"`
}

func (r ColorRange) Validate() error {
	check := func(name string, b Bound, max float64) error {
		if b.Min < 0 || b.Max > max || b.Min > b.Max {
			return fmt.Errorf("invalid %s range [%g, %g]", name, b.Min, b.Max)
		}
		return nil
	}
	if err := check("H", r.H, 179); err != nil {
		return err
	}
	if err := check("S", r.S, 255); err != nil {
		return err
	}
	return check("V", r.V, 255)
}

func (r ColorRange) lower() gocv.Scalar {
	return gocv.NewScalar(r.H.Min, r.S.Min, r.V.Min, 0)
}

func (r ColorRange) upper() gocv.Scalar {
	return gocv.NewScalar(r.H.Max, r.S.Max, r.V.Max, 0)
}

// DefaultColorRanges returns four adjacent green hue bands.
func DefaultColorRanges() []ColorRange {
	band := func(hMin, hMax float64) ColorRange {
		return ColorRange{
			H: Bound{hMin, hMax},
			S: Bound{50, 255},
			V: Bound{65, 255},
		}
	}
	return []ColorRange{
		band(30, 40),
		band(40, 50),
		band(50, 65),
		band(65, 75),
	}
}

// Morphology of the static path: join near areas, drop specks, then merge
// neighbours for a readable outline.
var staticMorphology = []struct {
	op   gocv.MorphType
	size int
}{
	{gocv.MorphClose, 7},
	{gocv.MorphOpen, 10},
	{gocv.MorphClose, 30},
}

// ColorMask returns the union of the ranges over a BGR frame.
func ColorMask(bgr gocv.Mat, ranges []ColorRange) (gocv.Mat, error) {
	if bgr.Empty() {
		return gocv.NewMat(), ErrEmptyFrame
	}
	if len(ranges) == 0 {
		return gocv.NewMat(), fmt.Errorf("no color ranges")
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	if err := gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV); err != nil {
		return gocv.NewMat(), fmt.Errorf("to hsv: %w", err)
	}

	combined := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), bgr.Rows(), bgr.Cols(), gocv.MatTypeCV8U)
	mask := gocv.NewMat()
	defer mask.Close()
	for _, r := range ranges {
		if err := gocv.InRangeWithScalar(hsv, r.lower(), r.upper(), &mask); err != nil {
			combined.Close()
			return gocv.NewMat(), fmt.Errorf("range %v: %w", r, err)
		}
		if err := gocv.BitwiseOr(combined, mask, &combined); err != nil {
			combined.Close()
			return gocv.NewMat(), fmt.Errorf("combine ranges: %w", err)
		}
	}

	for _, m := range staticMorphology {
		kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: m.size, Y: m.size})
		err := gocv.MorphologyEx(combined, &combined, m.op, kernel)
		kernel.Close()
		if err != nil {
			combined.Close()
			return gocv.NewMat(), fmt.Errorf("static morphology: %w", err)
		}
	}
	return combined, nil
}

// SegmentStatic finds regions of the given colors in an equalized BGR frame.
func SegmentStatic(bgr gocv.Mat, ranges []ColorRange, cfg Config) ([]tracker.Observation, error) {
	mask, err := ColorMask(bgr, ranges)
	if err != nil {
		return nil, err
	}
	defer mask.Close()
	return ExtractRegions(mask, cfg.StaticMinRegionArea), nil
}

// RunSegmentation outlines the color regions of every frame of src. Snapshots
// carry the frame number and region count only; no identities are kept.
func RunSegmentation(ctx context.Context, src FrameSource, ranges []ColorRange, cfg Config, log zerolog.Logger, sinks ...Sink) (Summary, error) {
	if len(ranges) == 0 {
		return Summary{}, fmt.Errorf("no color ranges")
	}
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return Summary{}, err
		}
	}
	cfg.SkipGray = true
	log = log.With().Str("component", "segment").Logger()

	var (
		summary Summary
		regions int
	)
	err := readLoop(ctx, src, log, &summary, func(frame gocv.Mat) (gocv.Mat, tracker.Snapshot, bool, error) {
		pair, err := Preprocess(frame, cfg)
		if err != nil {
			return gocv.NewMat(), tracker.Snapshot{}, false, err
		}
		defer pair.Close()

		found, err := SegmentStatic(pair.Color, ranges, cfg)
		if err != nil {
			return gocv.NewMat(), tracker.Snapshot{}, false, err
		}
		regions += len(found)

		overlay := pair.Color.Clone()
		if err := DrawRegions(&overlay, found, green, 2); err != nil {
			log.Warn().Err(err).Int64("frame", summary.Frames).Msg("Failed to draw regions")
		}
		return overlay, tracker.Snapshot{Frame: summary.Frames, Observations: len(found)}, true, nil
	}, sinks)

	log.Info().
		Int64("frames", summary.Frames).
		Int64("skipped", summary.Skipped).
		Int("regions", regions).
		Msg("Segmentation finished")
	return summary, err
}
