package imgproc

import (
	"math"

	"gocv.io/x/gocv"

	"github.com/DaniruKun/steady-tracker/tracker"
)

// LKFlow advances single points between two frames with pyramidal
// Lucas-Kanade. It borrows both Mats; the caller keeps ownership.
type LKFlow struct {
	prev gocv.Mat
	next gocv.Mat
}

var _ tracker.PointFlow = LKFlow{}

func NewLKFlow(prev, next gocv.Mat) LKFlow {
	return LKFlow{prev: prev, next: next}
}

func (f LKFlow) Advance(p tracker.Point) (tracker.Point, bool) {
	if f.prev.Empty() || f.next.Empty() {
		return p, false
	}

	from := pointMat(p)
	defer from.Close()

	to := gocv.NewMat()
	defer to.Close()
	status := gocv.NewMat()
	defer status.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	if err := gocv.CalcOpticalFlowPyrLK(f.prev, f.next, from, to, &status, &errMat); err != nil {
		return p, false
	}
	if status.Empty() || to.Empty() || status.GetUCharAt(0, 0) != 1 {
		return p, false
	}

	q := pointAt(to, 0)
	x, y := float64(q.X), float64(q.Y)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return p, false
	}
	return tracker.Pt(x, y), true
}

// pointMat builds the single point Mat optical flow expects. The caller closes it.
func pointMat(p tracker.Point) gocv.Mat {
	vec := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{{X: float32(p.X), Y: float32(p.Y)}})
	defer vec.Close()
	return gocv.NewMatFromPoint2fVector(vec, true)
}
