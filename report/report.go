// Package report aggregates snapshots of a run into summary statistics and
// an HTML chart page.
package report

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/DaniruKun/steady-tracker/tracker"
)

// FrameStats is the per-frame series point.
type FrameStats struct {
	Frame        int64
	Live         int
	Tracking     int
	Observations int
	Degraded     bool
}

// Summary describes a whole run.
type Summary struct {
	Frames       int
	Degraded     int
	PeakLive     int
	Tracks       int     // Identities ever created
	Lifetimes    int     // Tracks whose lifetime is included below
	MeanLifetime float64 // Frames between creation and end (or the last frame)
	StdLifetime  float64
	MaxLifetime  int64
}

// Collector accumulates snapshots. Safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	frames  []FrameStats
	born    map[int64]int64 // Open track id -> creation frame
	ended   []float64       // Lifetimes of ended tracks
	created int
	last    int64
}

func NewCollector() *Collector {
	return &Collector{born: map[int64]int64{}}
}

// RecordSnapshot adds one snapshot. It never fails; the error result lets it
// serve as a snapshot sink.
func (c *Collector) RecordSnapshot(snap tracker.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames = append(c.frames, FrameStats{
		Frame:        snap.Frame,
		Live:         len(snap.Tracks),
		Tracking:     snap.Count(tracker.Tracking),
		Observations: snap.Observations,
		Degraded:     snap.Degraded,
	})
	c.last = snap.Frame

	for _, e := range snap.Events {
		switch e.Kind {
		case tracker.EventCreated:
			c.born[e.TrackID] = e.Frame
			c.created++
		case tracker.EventLost, tracker.EventDropped:
			if first, ok := c.born[e.TrackID]; ok {
				c.ended = append(c.ended, float64(e.Frame-first))
				delete(c.born, e.TrackID)
			}
		}
	}
	return nil
}

// Frames returns a copy of the per-frame series.
func (c *Collector) Frames() []FrameStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FrameStats(nil), c.frames...)
}

// Summary computes run statistics. Tracks still open count up to the last
// recorded frame.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{Frames: len(c.frames), Tracks: c.created}
	for _, f := range c.frames {
		if f.Degraded {
			s.Degraded++
		}
		if f.Live > s.PeakLive {
			s.PeakLive = f.Live
		}
	}

	lifetimes := c.lifetimesLocked()
	s.Lifetimes = len(lifetimes)
	if len(lifetimes) == 0 {
		return s
	}

	if len(lifetimes) == 1 {
		s.MeanLifetime = lifetimes[0]
	} else {
		s.MeanLifetime, s.StdLifetime = stat.MeanStdDev(lifetimes, nil)
	}
	for _, l := range lifetimes {
		if int64(l) > s.MaxLifetime {
			s.MaxLifetime = int64(l)
		}
	}
	return s
}

// lifetimesLocked returns ended lifetimes plus open tracks up to the last frame.
func (c *Collector) lifetimesLocked() []float64 {
	lifetimes := append([]float64(nil), c.ended...)
	for _, first := range c.born {
		lifetimes = append(lifetimes, float64(c.last-first+1))
	}
	return lifetimes
}

// Render writes an HTML page with the per-frame series and a lifetime histogram.
func (c *Collector) Render(w io.Writer, title string) error {
	frames := c.Frames()
	summary := c.Summary()

	x := make([]int64, 0, len(frames))
	live := make([]opts.LineData, 0, len(frames))
	tracking := make([]opts.LineData, 0, len(frames))
	observed := make([]opts.LineData, 0, len(frames))
	for _, f := range frames {
		x = append(x, f.Frame)
		live = append(live, opts.LineData{Value: f.Live})
		tracking = append(tracking, opts.LineData{Value: f.Tracking})
		observed = append(observed, opts.LineData{Value: f.Observations})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("frames=%d degraded=%d tracks=%d", summary.Frames, summary.Degraded, summary.Tracks),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("live tracks", live).
		AddSeries("tracking", tracking).
		AddSeries("observations", observed)

	buckets, counts := c.lifetimeHistogram()
	bars := make([]opts.BarData, 0, len(counts))
	for _, n := range counts {
		bars = append(bars, opts.BarData{Value: n})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Track lifetimes",
			Subtitle: fmt.Sprintf("mean=%.1f std=%.1f max=%d frames", summary.MeanLifetime, summary.StdLifetime, summary.MaxLifetime),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(buckets).
		AddSeries("tracks", bars,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(line, bar)
	return page.Render(w)
}

// lifetimeHistogram groups lifetimes into power-of-two frame buckets.
func (c *Collector) lifetimeHistogram() ([]string, []int) {
	c.mu.Lock()
	lifetimes := c.lifetimesLocked()
	c.mu.Unlock()
	return powerOfTwoHistogram(lifetimes)
}

// powerOfTwoHistogram counts whole-frame lifetimes (at least 1) into (N/2, N]
// buckets for N = 1, 2, 4, ... and returns the non-empty ones labelled "<=N".
func powerOfTwoHistogram(lifetimes []float64) ([]string, []int) {
	if len(lifetimes) == 0 {
		return nil, nil
	}
	sorted := append([]float64(nil), lifetimes...)
	sort.Float64s(sorted)

	// Bucket k spans [2^(k-1)+1, 2^k+1); bucket 0 is [1, 2).
	dividers := []float64{1, 2}
	for upper := 1.0; dividers[len(dividers)-1] <= sorted[len(sorted)-1]; upper *= 2 {
		dividers = append(dividers, 2*upper+1)
	}
	hist := stat.Histogram(nil, dividers, sorted, nil)

	var labels []string
	var counts []int
	for k, n := range hist {
		if n == 0 {
			continue
		}
		labels = append(labels, fmt.Sprintf("<=%d", 1<<k))
		counts = append(counts, int(n))
	}
	return labels, counts
}
