// Package imgproc holds the vision half of the tracker: frame preprocessing,
// camera motion compensation, change detection, region extraction and the
// frame loop that feeds the tracker package.
package imgproc

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/DaniruKun/steady-tracker/tracker"
)

// ErrStopRequested is returned by a Sink to end the run early without error.
var ErrStopRequested = errors.New("stop requested")

// FrameSource yields raw frames. *gocv.VideoCapture satisfies it.
type FrameSource interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Sink consumes the rendered overlay and the snapshot of every frame.
// The overlay is only valid for the duration of the call.
type Sink interface {
	Consume(overlay gocv.Mat, snap tracker.Snapshot) error
}

// SnapshotFunc adapts a snapshot-only consumer to Sink.
type SnapshotFunc func(snap tracker.Snapshot) error

func (f SnapshotFunc) Consume(_ gocv.Mat, snap tracker.Snapshot) error {
	return f(snap)
}

// Summary describes a finished run.
type Summary struct {
	Frames   int64 // Frames read from the source
	Skipped  int64 // Frames rejected by preprocessing
	Degraded int64 // Transitions without a motion model
	Stats    tracker.Stats
}

// Pipeline turns consecutive frames into track snapshots. It keeps exactly one
// previous preprocessed frame. Not safe for concurrent use.
type Pipeline struct {
	cfg     Config
	log     zerolog.Logger
	manager *tracker.Manager
	prev    *FramePair
}

func NewPipeline(cfg Config, log zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	manager, err := tracker.NewManager(cfg.Tracking, log)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		log:     log.With().Str("component", "pipeline").Logger(),
		manager: manager,
	}, nil
}

// Stats returns the tracker's lifetime counters.
func (p *Pipeline) Stats() tracker.Stats {
	return p.manager.Stats()
}

// Process runs one raw frame through the pipeline and returns the overlay
// frame, which the caller closes, plus the committed snapshot. The first frame
// only primes the pipeline: ready is false and no snapshot is produced.
func (p *Pipeline) Process(raw gocv.Mat) (overlay gocv.Mat, snap tracker.Snapshot, ready bool, err error) {
	cur, err := Preprocess(raw, p.cfg)
	if err != nil {
		return gocv.NewMat(), tracker.Snapshot{}, false, err
	}

	if p.prev == nil {
		p.prev = &cur
		return cur.Color.Clone(), tracker.Snapshot{}, false, nil
	}

	snap = p.transition(p.prev, &cur)

	overlay = cur.Color.Clone()
	opts := DrawOptions{Tracking: p.cfg.Tracking.TrackingEnabled, Candidates: p.cfg.Debug}
	if err := DrawTracks(&overlay, snap, opts); err != nil {
		p.log.Warn().Err(err).Int64("frame", snap.Frame).Msg("Failed to draw overlay")
	}

	p.prev.Close()
	p.prev = &cur
	return overlay, snap, true, nil
}

// transition runs detection and tracking between two preprocessed frames.
func (p *Pipeline) transition(prev, cur *FramePair) tracker.Snapshot {
	flow := NewLKFlow(prev.Color, cur.Color)

	prevSrc, curSrc := prev.Gray, cur.Gray
	if p.cfg.ColorDifference {
		prevSrc, curSrc = prev.Color, cur.Color
	}

	comp, err := Compensate(prev.Gray, cur.Gray, prevSrc, p.cfg)
	if err != nil {
		p.log.Debug().Err(err).Int64("frame", p.manager.Frame()+1).Msg("Degraded transition")
		return p.manager.Step(tracker.FrameInput{Degraded: true, Flow: flow})
	}
	defer comp.Close()

	dx, dy := comp.Transform.Translation()
	p.log.Trace().
		Int("matches", comp.Matches).
		Int("inliers", comp.InlierCount()).
		Float64("dx", dx).
		Float64("dy", dy).
		Msg("Motion compensated")

	mask, err := BuildChangeMask(comp.Warped, curSrc, p.cfg)
	if err != nil {
		p.log.Debug().Err(err).Msg("Change mask failed")
		return p.manager.Step(tracker.FrameInput{Degraded: true, Flow: flow})
	}
	defer mask.Close()

	obs := ExtractRegions(mask, p.cfg.MinRegionArea)
	return p.manager.Step(tracker.FrameInput{Observations: obs, Flow: flow})
}

func (p *Pipeline) Close() {
	if p.prev != nil {
		p.prev.Close()
		p.prev = nil
	}
}

// RunTracking reads src until it is exhausted, ctx is done or a sink requests
// a stop. Every produced snapshot is handed to all sinks in order.
func RunTracking(ctx context.Context, src FrameSource, cfg Config, log zerolog.Logger, sinks ...Sink) (Summary, error) {
	pipeline, err := NewPipeline(cfg, log)
	if err != nil {
		return Summary{}, err
	}
	defer pipeline.Close()

	log = log.With().Str("component", "pipeline").Logger()
	var summary Summary

	err = readLoop(ctx, src, log, &summary, func(frame gocv.Mat) (gocv.Mat, tracker.Snapshot, bool, error) {
		overlay, snap, ready, err := pipeline.Process(frame)
		if ready && snap.Degraded {
			summary.Degraded++
		}
		return overlay, snap, ready, err
	}, sinks)

	summary.Stats = pipeline.Stats()
	log.Info().
		Int64("frames", summary.Frames).
		Int64("skipped", summary.Skipped).
		Int64("degraded", summary.Degraded).
		Int("created", summary.Stats.Created).
		Int("confirmed", summary.Stats.Confirmed).
		Int("lost", summary.Stats.Lost).
		Msg("Tracking finished")
	return summary, err
}

// RunTrackingFromFile opens a video file and runs RunTracking over it.
func RunTrackingFromFile(ctx context.Context, filePath string, cfg Config, log zerolog.Logger, sinks ...Sink) (Summary, error) {
	video, err := gocv.VideoCaptureFile(filePath)
	if err != nil {
		return Summary{}, fmt.Errorf("error opening video file %s: %w", filePath, err)
	}
	defer video.Close()

	return RunTracking(ctx, video, cfg, log, sinks...)
}

type processFunc func(frame gocv.Mat) (overlay gocv.Mat, snap tracker.Snapshot, ready bool, err error)

// readLoop is the frame read loop shared by the tracking and static paths.
func readLoop(ctx context.Context, src FrameSource, log zerolog.Logger, summary *Summary, process processFunc, sinks []Sink) error {
	frame := gocv.NewMat()
	defer frame.Close()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping processing")
			return nil
		default:
		}

		if ok := src.Read(&frame); !ok || frame.Empty() {
			log.Debug().Int64("frames", summary.Frames).Msg("Source exhausted")
			return nil
		}
		summary.Frames++

		overlay, snap, ready, err := process(frame)
		if err != nil {
			overlay.Close()
			if errors.Is(err, ErrEmptyFrame) || errors.Is(err, ErrInvalidFrame) {
				summary.Skipped++
				log.Warn().Err(err).Int64("frame", summary.Frames).Msg("Skipping frame")
				continue
			}
			return err
		}

		if !ready {
			overlay.Close()
			continue
		}

		stop := consume(log, sinks, overlay, snap)
		overlay.Close()
		if stop {
			log.Info().Msg("Stopping processing")
			return nil
		}
	}
}

// consume hands one frame to every sink and reports whether one asked to stop.
func consume(log zerolog.Logger, sinks []Sink, overlay gocv.Mat, snap tracker.Snapshot) bool {
	stop := false
	for _, sink := range sinks {
		err := sink.Consume(overlay, snap)
		switch {
		case err == nil:
		case errors.Is(err, ErrStopRequested):
			stop = true
		default:
			log.Warn().Err(err).Int64("frame", snap.Frame).Msg("Sink failed")
		}
	}
	return stop
}
