package imgproc

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

func blankMat(t *testing.T, w, h int, typ gocv.MatType) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, typ)
	t.Cleanup(func() { m.Close() })
	return m
}

func fillRect(t *testing.T, m *gocv.Mat, r image.Rectangle, c color.RGBA) {
	t.Helper()
	require.NoError(t, gocv.Rectangle(m, r, c, -1))
}

func gray(v uint8) color.RGBA {
	return color.RGBA{v, v, v, 0}
}

// texturedFrame draws a deterministic field of gray blocks over the top part
// of a BGR frame, leaving a black strip below y=strip for moving objects.
func texturedFrame(t *testing.T, w, h, strip int) gocv.Mat {
	t.Helper()
	m := blankMat(t, w, h, gocv.MatTypeCV8UC3)
	rng := rand.New(rand.NewSource(42))
	for y := 20; y+30 < strip; y += 45 {
		for x := 20; x+30 < w; x += 45 {
			size := 12 + rng.Intn(18)
			fillRect(t, &m, image.Rect(x, y, x+size, y+size), gray(uint8(90+rng.Intn(160))))
		}
	}
	return m
}

// checker draws a size x size checkerboard of cell px cells at origin.
func checker(t *testing.T, m *gocv.Mat, origin image.Point, size, cell int) {
	t.Helper()
	for y := 0; y < size; y += cell {
		for x := 0; x < size; x += cell {
			if (x/cell+y/cell)%2 == 0 {
				r := image.Rect(x, y, x+cell, y+cell).Add(origin)
				fillRect(t, m, r, gray(255))
			}
		}
	}
}

// shifted returns src translated by (dx, dy).
func shifted(t *testing.T, src gocv.Mat, dx, dy float64) gocv.Mat {
	t.Helper()
	transform := Affine{{1, 0, dx}, {0, 1, dy}}
	m := transform.Mat()
	defer m.Close()

	dst := gocv.NewMat()
	t.Cleanup(func() { dst.Close() })
	require.NoError(t, gocv.WarpAffine(src, &dst, m, image.Point{X: src.Cols(), Y: src.Rows()}))
	return dst
}

func toGray(t *testing.T, src gocv.Mat) gocv.Mat {
	t.Helper()
	dst := gocv.NewMat()
	t.Cleanup(func() { dst.Close() })
	require.NoError(t, gocv.CvtColor(src, &dst, gocv.ColorBGRToGray))
	return dst
}

// sliceSource replays cloned frames.
type sliceSource struct {
	frames []gocv.Mat
	next   int
	closed bool
}

func (s *sliceSource) Read(m *gocv.Mat) bool {
	if s.next >= len(s.frames) {
		return false
	}
	if err := s.frames[s.next].CopyTo(m); err != nil {
		return false
	}
	s.next++
	return true
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}
