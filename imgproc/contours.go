package imgproc

import (
	"math"

	"gocv.io/x/gocv"

	"github.com/DaniruKun/steady-tracker/tracker"
)

// ExtractRegions finds the external contours of a binary mask and returns one
// observation per region of at least minArea pixels, in contour order.
func ExtractRegions(mask gocv.Mat, minArea float64) []tracker.Observation {
	if mask.Empty() {
		return nil
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var observations []tracker.Observation
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)

		area := gocv.ContourArea(contour)
		if area < minArea {
			continue
		}

		center, ok := centroid(contour)
		if !ok {
			continue
		}

		observations = append(observations, tracker.Observation{
			Center:  center,
			Area:    area,
			Bounds:  gocv.BoundingRect(contour),
			Contour: contour.ToPoints(),
		})
	}
	return observations
}

// centroid returns the integer-truncated center of mass of a contour from its
// spatial moments. Degenerate contours with zero area have none.
func centroid(contour gocv.PointVector) (tracker.Point, bool) {
	pts := gocv.NewMatFromPointVector(contour, false)
	defer pts.Close()

	m := gocv.Moments(pts, false)
	if m["m00"] == 0 {
		return tracker.Point{}, false
	}
	return tracker.Pt(math.Trunc(m["m10"]/m["m00"]), math.Trunc(m["m01"]/m["m00"])), true
}
