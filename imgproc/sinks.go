package imgproc

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/DaniruKun/steady-tracker/tracker"
)

// WindowSink shows the overlay in a window. Any key press stops the run.
type WindowSink struct {
	window *gocv.Window
	delay  int
}

func NewWindowSink(title string, delayMillis int) *WindowSink {
	if delayMillis < 1 {
		delayMillis = 1
	}
	return &WindowSink{window: gocv.NewWindow(title), delay: delayMillis}
}

func (s *WindowSink) Consume(overlay gocv.Mat, _ tracker.Snapshot) error {
	s.window.IMShow(overlay)
	if s.window.WaitKey(s.delay) >= 0 {
		return ErrStopRequested
	}
	return nil
}

func (s *WindowSink) Close() error {
	return s.window.Close()
}

// VideoSink writes overlays to an MJPG video file. The writer is opened on the
// first frame so its size matches the working resolution.
type VideoSink struct {
	path   string
	fps    float64
	writer *gocv.VideoWriter
}

func NewVideoSink(path string, fps float64) *VideoSink {
	return &VideoSink{path: path, fps: fps}
}

func (s *VideoSink) Consume(overlay gocv.Mat, _ tracker.Snapshot) error {
	if s.writer == nil {
		w, err := gocv.VideoWriterFile(s.path, "MJPG", s.fps, overlay.Cols(), overlay.Rows(), true)
		if err != nil {
			return fmt.Errorf("open video writer %s: %w", s.path, err)
		}
		s.writer = w
	}
	return s.writer.Write(overlay)
}

func (s *VideoSink) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

// Publisher receives JPEG encoded overlays, e.g. a websocket hub.
type Publisher interface {
	Publish(jpeg []byte, snap tracker.Snapshot)
}

// StreamSink JPEG encodes each overlay for a Publisher.
type StreamSink struct {
	pub Publisher
}

func NewStreamSink(pub Publisher) StreamSink {
	return StreamSink{pub: pub}
}

func (s StreamSink) Consume(overlay gocv.Mat, snap tracker.Snapshot) error {
	buf, err := gocv.IMEncode(".jpg", overlay)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", snap.Frame, err)
	}
	defer buf.Close()

	// Copy out of the native buffer before it is released.
	jpeg := append([]byte(nil), buf.GetBytes()...)
	s.pub.Publish(jpeg, snap)
	return nil
}
