package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/DaniruKun/steady-tracker/config"
	"github.com/DaniruKun/steady-tracker/imgproc"
	"github.com/DaniruKun/steady-tracker/report"
	"github.com/DaniruKun/steady-tracker/store"
	"github.com/DaniruKun/steady-tracker/stream"
	"github.com/DaniruKun/steady-tracker/tracker"
	"github.com/DaniruKun/steady-tracker/utils"
)

const windowTitle = "Steady Tracker"

// outputs owns every sink of one run.
type outputs struct {
	log        zerolog.Logger
	source     string
	sinks      []imgproc.Sink
	closers    []func() error
	store      *store.Store
	session    store.Session
	collector  *report.Collector
	reportPath string
	streamErr  chan error
}

type outputOptions struct {
	source  string
	showGUI bool
	save    string
	suffix  string
	session config.Session
}

func openOutputs(ctx context.Context, log zerolog.Logger, o outputOptions) (*outputs, error) {
	out := &outputs{log: log, source: o.source}

	if o.showGUI {
		window := imgproc.NewWindowSink(windowTitle, 1)
		out.sinks = append(out.sinks, window)
		out.closers = append(out.closers, window.Close)
	}

	if o.save != "" {
		path, err := utils.OutputPath(o.source, o.save, o.suffix, ".avi")
		if err != nil {
			out.close()
			return nil, err
		}
		video := imgproc.NewVideoSink(path, o.session.OutputFPS)
		out.sinks = append(out.sinks, video)
		out.closers = append(out.closers, video.Close)
		log.Info().Str("path", path).Msg("Saving overlay video")
	}

	if o.session.DBPath != "" {
		st, err := store.Open(o.session.DBPath)
		if err != nil {
			out.close()
			return nil, err
		}
		out.store = st
		out.closers = append(out.closers, st.Close)

		session, err := st.BeginSession(filepath.Base(o.source))
		if err != nil {
			out.close()
			return nil, err
		}
		out.session = session
		out.sinks = append(out.sinks, imgproc.SnapshotFunc(func(snap tracker.Snapshot) error {
			return st.RecordSnapshot(session.ID, snap)
		}))
		log.Info().Str("session", session.ID).Str("db", o.session.DBPath).Msg("Recording session")
	}

	if o.session.ReportPath != "" {
		out.collector = report.NewCollector()
		out.reportPath = o.session.ReportPath
		out.sinks = append(out.sinks, imgproc.SnapshotFunc(out.collector.RecordSnapshot))
	}

	if o.session.ServeAddr != "" {
		hub := stream.NewHub(log)
		go hub.Run(ctx)
		out.streamErr = make(chan error, 1)
		go func() { out.streamErr <- stream.Serve(ctx, o.session.ServeAddr, hub) }()
		out.sinks = append(out.sinks, imgproc.NewStreamSink(hub))
	}

	return out, nil
}

// finish records totals and writes the report. It always closes the sinks.
func (o *outputs) finish(summary imgproc.Summary) error {
	defer o.close()

	if o.streamErr != nil {
		select {
		case err := <-o.streamErr:
			if err != nil {
				o.log.Warn().Err(err).Msg("Overlay stream stopped")
			}
		default:
		}
	}

	if o.store != nil {
		totals := store.TotalsFrom(summary.Frames, summary.Degraded, summary.Stats)
		if err := o.store.EndSession(o.session.ID, totals); err != nil {
			return err
		}
	}

	if o.collector != nil {
		f, err := os.Create(o.reportPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		if err := o.collector.Render(f, filepath.Base(o.source)); err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		s := o.collector.Summary()
		o.log.Info().
			Str("path", o.reportPath).
			Int("tracks", s.Tracks).
			Float64("mean_lifetime", s.MeanLifetime).
			Msg("Report written")
	}
	return nil
}

func (o *outputs) close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil {
			o.log.Warn().Err(err).Msg("Failed to close output")
		}
	}
	o.closers = nil
}
