package imgproc

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

var ErrInsufficientMatches = errors.New("insufficient feature matches")

// Affine is a 2x3 partial affine transform (rotation, uniform scale and
// translation) mapping previous-frame coordinates to the current frame.
type Affine [2][3]float64

func (a Affine) Apply(p gocv.Point2f) gocv.Point2f {
	x, y := float64(p.X), float64(p.Y)
	return gocv.Point2f{
		X: float32(a[0][0]*x + a[0][1]*y + a[0][2]),
		Y: float32(a[1][0]*x + a[1][1]*y + a[1][2]),
	}
}

// Translation returns the shift part of the transform.
func (a Affine) Translation() (dx, dy float64) {
	return a[0][2], a[1][2]
}

// Mat returns the transform as a CV_64F 2x3 Mat. The caller closes it.
func (a Affine) Mat() gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, a[r][c])
		}
	}
	return m
}

// Compensation is the result of aligning the previous frame to the current one.
type Compensation struct {
	Warped    gocv.Mat
	Transform Affine
	Inliers   []bool // Per tracked pair, reprojection error within Config.InlierThreshold
	Matches   int    // Tracked pairs the transform was fitted on
}

func (c *Compensation) Close() {
	c.Warped.Close()
}

// InlierCount returns the number of pairs consistent with the transform.
func (c Compensation) InlierCount() int {
	n := 0
	for _, in := range c.Inliers {
		if in {
			n++
		}
	}
	return n
}

// Compensate estimates the camera motion between prevGray and curGray and
// warps prevSrc onto the current frame's coordinates.
func Compensate(prevGray, curGray, prevSrc gocv.Mat, cfg Config) (Compensation, error) {
	if prevGray.Empty() || curGray.Empty() || prevSrc.Empty() {
		return Compensation{}, ErrEmptyFrame
	}

	from, to, err := trackFeatures(prevGray, curGray, cfg)
	if err != nil {
		return Compensation{}, err
	}
	if len(from) < cfg.MinCorrespondences {
		return Compensation{}, fmt.Errorf("%w: %d tracked pairs", ErrInsufficientMatches, len(from))
	}

	transform, err := estimatePartialAffine(from, to)
	if err != nil {
		return Compensation{}, err
	}

	inliers := make([]bool, len(from))
	for i := range from {
		p := transform.Apply(from[i])
		dist := math.Hypot(float64(p.X-to[i].X), float64(p.Y-to[i].Y))
		inliers[i] = dist <= cfg.InlierThreshold
	}

	m := transform.Mat()
	defer m.Close()

	warped := gocv.NewMat()
	if err := gocv.WarpAffine(prevSrc, &warped, m, image.Point{X: curGray.Cols(), Y: curGray.Rows()}); err != nil {
		warped.Close()
		return Compensation{}, fmt.Errorf("warp previous frame: %w", err)
	}

	return Compensation{
		Warped:    warped,
		Transform: transform,
		Inliers:   inliers,
		Matches:   len(from),
	}, nil
}

// trackFeatures detects corners in prev and follows them into cur with
// pyramidal Lucas-Kanade, keeping only successfully tracked pairs.
func trackFeatures(prev, cur gocv.Mat, cfg Config) (from, to []gocv.Point2f, err error) {
	corners := gocv.NewMat()
	defer corners.Close()
	if err := gocv.GoodFeaturesToTrack(prev, &corners, cfg.MaxCorners, cfg.CornerQuality, cfg.CornerMinDistance); err != nil {
		return nil, nil, fmt.Errorf("detect corners: %w", err)
	}
	if corners.Empty() {
		return nil, nil, nil
	}

	next := gocv.NewMat()
	defer next.Close()
	status := gocv.NewMat()
	defer status.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	if err := gocv.CalcOpticalFlowPyrLK(prev, cur, corners, next, &status, &errMat); err != nil {
		return nil, nil, fmt.Errorf("track corners: %w", err)
	}

	for i := 0; i < status.Rows() && i < next.Rows(); i++ {
		if status.GetUCharAt(i, 0) != 1 {
			continue
		}
		from = append(from, pointAt(corners, i))
		to = append(to, pointAt(next, i))
	}
	return from, to, nil
}

// pointAt reads row i of an Nx1 two-channel or Nx2 single-channel float Mat.
func pointAt(m gocv.Mat, i int) gocv.Point2f {
	if m.Channels() == 2 {
		v := m.GetVecfAt(i, 0)
		return gocv.Point2f{X: v[0], Y: v[1]}
	}
	return gocv.Point2f{X: m.GetFloatAt(i, 0), Y: m.GetFloatAt(i, 1)}
}

func estimatePartialAffine(from, to []gocv.Point2f) (Affine, error) {
	fromVec := gocv.NewPoint2fVectorFromPoints(from)
	defer fromVec.Close()
	toVec := gocv.NewPoint2fVectorFromPoints(to)
	defer toVec.Close()

	m := gocv.EstimateAffinePartial2D(fromVec, toVec)
	defer m.Close()
	if m.Empty() || m.Rows() != 2 || m.Cols() != 3 {
		return Affine{}, fmt.Errorf("%w: no consistent motion model", ErrInsufficientMatches)
	}

	var a Affine
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			a[r][c] = m.GetDoubleAt(r, c)
		}
	}
	return a, nil
}
