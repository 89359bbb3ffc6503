package imgproc

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var black = color.RGBA{0, 0, 0, 0}

// BuildChangeMask returns a binary mask of the pixels that differ between the
// motion-compensated previous frame and the current one. Isolated noise is
// opened away, fragments of one object are closed together and a band of
// Config.BorderThickness pixels is cleared on every edge to hide warp seams.
func BuildChangeMask(warped, current gocv.Mat, cfg Config) (gocv.Mat, error) {
	if warped.Empty() || current.Empty() {
		return gocv.NewMat(), ErrEmptyFrame
	}
	if warped.Rows() != current.Rows() || warped.Cols() != current.Cols() {
		return gocv.NewMat(), fmt.Errorf("%w: size mismatch %dx%d vs %dx%d",
			ErrInvalidFrame, warped.Cols(), warped.Rows(), current.Cols(), current.Rows())
	}

	diff := gocv.NewMat()
	defer diff.Close()
	if err := gocv.AbsDiff(warped, current, &diff); err != nil {
		return gocv.NewMat(), fmt.Errorf("absdiff: %w", err)
	}

	if diff.Channels() == 3 {
		if err := gocv.CvtColor(diff, &diff, gocv.ColorBGRToGray); err != nil {
			return gocv.NewMat(), fmt.Errorf("reduce diff: %w", err)
		}
	}

	mask := gocv.NewMat()
	gocv.Threshold(diff, &mask, cfg.DiffThreshold, 255, gocv.ThresholdBinary)

	openKernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: cfg.OpenKernel, Y: cfg.OpenKernel})
	defer openKernel.Close()
	closeKernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: cfg.CloseKernel, Y: cfg.CloseKernel})
	defer closeKernel.Close()

	if err := gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, openKernel); err != nil {
		mask.Close()
		return gocv.NewMat(), fmt.Errorf("open mask: %w", err)
	}
	if err := gocv.MorphologyEx(mask, &mask, gocv.MorphClose, closeKernel); err != nil {
		mask.Close()
		return gocv.NewMat(), fmt.Errorf("close mask: %w", err)
	}

	if err := clearBorder(&mask, cfg.BorderThickness); err != nil {
		mask.Close()
		return gocv.NewMat(), err
	}
	return mask, nil
}

// clearBorder zeroes a band of the given thickness on all four edges.
func clearBorder(mask *gocv.Mat, thickness int) error {
	if thickness <= 0 {
		return nil
	}
	w, h := mask.Cols(), mask.Rows()
	bands := []image.Rectangle{
		image.Rect(0, 0, w, thickness),
		image.Rect(0, h-thickness, w, h),
		image.Rect(0, 0, thickness, h),
		image.Rect(w-thickness, 0, w, h),
	}
	for _, band := range bands {
		if err := gocv.Rectangle(mask, band, black, -1); err != nil {
			return fmt.Errorf("clear border: %w", err)
		}
	}
	return nil
}
