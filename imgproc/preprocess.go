package imgproc

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrInvalidFrame = errors.New("invalid frame")
)

// FramePair holds the two variants of one preprocessed frame.
// Gray is empty when Config.SkipGray is set.
type FramePair struct {
	Gray  gocv.Mat
	Color gocv.Mat
}

func (p *FramePair) Close() {
	p.Gray.Close()
	p.Color.Close()
}

// Preprocess normalizes a raw frame to the working resolution and returns an
// equalized color variant plus an equalized, median blurred gray variant.
func Preprocess(raw gocv.Mat, cfg Config) (FramePair, error) {
	if raw.Empty() {
		return FramePair{}, ErrEmptyFrame
	}

	bgr := gocv.NewMat()
	defer bgr.Close()

	switch raw.Channels() {
	case 3:
		if err := raw.CopyTo(&bgr); err != nil {
			return FramePair{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
	case 1:
		if err := gocv.CvtColor(raw, &bgr, gocv.ColorGrayToBGR); err != nil {
			return FramePair{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
	case 4:
		if err := gocv.CvtColor(raw, &bgr, gocv.ColorBGRAToBGR); err != nil {
			return FramePair{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
	default:
		return FramePair{}, fmt.Errorf("%w: %d channels", ErrInvalidFrame, raw.Channels())
	}

	size := image.Point{X: cfg.Width, Y: cfg.Height}
	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(bgr, &resized, size, 0, 0, gocv.InterpolationLinear); err != nil {
		return FramePair{}, fmt.Errorf("%w: resize: %v", ErrInvalidFrame, err)
	}

	pair := FramePair{Color: gocv.NewMat(), Gray: gocv.NewMat()}
	if err := equalizeChannels(resized, &pair.Color); err != nil {
		pair.Close()
		return FramePair{}, err
	}

	if cfg.SkipGray {
		return pair, nil
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(pair.Color, &gray, gocv.ColorBGRToGray); err != nil {
		pair.Close()
		return FramePair{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := gocv.EqualizeHist(gray, &gray); err != nil {
		pair.Close()
		return FramePair{}, fmt.Errorf("%w: equalize gray: %v", ErrInvalidFrame, err)
	}
	if err := gocv.MedianBlur(gray, &pair.Gray, cfg.MedianBlurSize); err != nil {
		pair.Close()
		return FramePair{}, fmt.Errorf("%w: blur gray: %v", ErrInvalidFrame, err)
	}

	return pair, nil
}

// equalizeChannels equalizes the histogram of every channel of src on its own.
func equalizeChannels(src gocv.Mat, dst *gocv.Mat) error {
	channels := gocv.Split(src)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	for i := range channels {
		if err := gocv.EqualizeHist(channels[i], &channels[i]); err != nil {
			return fmt.Errorf("%w: equalize channel %d: %v", ErrInvalidFrame, i, err)
		}
	}
	if err := gocv.Merge(channels, dst); err != nil {
		return fmt.Errorf("%w: merge channels: %v", ErrInvalidFrame, err)
	}
	return nil
}
