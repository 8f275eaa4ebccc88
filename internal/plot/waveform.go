// Package plot renders offline PNG plots of simulation runs with gonum/plot.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
	"github.com/banshee-data/pulse.lab/internal/security"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("plot: no data")

var (
	colorGreen    = color.RGBA{R: 46, G: 160, B: 67, A: 255}
	colorRed      = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	colorIR       = color.RGBA{R: 148, G: 103, B: 189, A: 255}
	colorFiltered = color.RGBA{A: 255}
	colorTarget   = color.RGBA{R: 127, G: 127, B: 127, A: 255}
)

// EstimateSample is one algorithm tick as recorded by the plotter.
type EstimateSample struct {
	Tick         uint64
	HeartRateBPM float64
	HasHR        bool
	SpO2         float64
	HasSpO2      bool
	TargetHR     int
	TargetSpO2   int
	SNR          float64
}

// WaveformPlotter accumulates readouts during a run and writes PNG plots
// afterwards. Width and Height default to 14x6 inches.
type WaveformPlotter struct {
	mu        sync.Mutex
	outputDir string
	samples   []EstimateSample

	Width, Height vg.Length
}

var _ sim.Sink = (*WaveformPlotter)(nil)

// NewWaveformPlotter creates the output directory and returns a plotter
// writing into it.
func NewWaveformPlotter(outputDir string) (*WaveformPlotter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &WaveformPlotter{
		outputDir: outputDir,
		Width:     14 * vg.Inch,
		Height:    6 * vg.Inch,
	}, nil
}

// Sample records one readout.
func (wp *WaveformPlotter) Sample(r sim.Readout) {
	s := EstimateSample{
		Tick:       r.Tick,
		TargetHR:   r.Params.HeartRateBPM,
		TargetSpO2: r.Params.SpO2Target,
		SNR:        r.SNR,
	}
	if v, ok := r.Result.Estimate(); ok {
		s.HeartRateBPM, s.HasHR = float64(v), true
	}
	if v, ok := r.SpO2.Value(); ok {
		s.SpO2, s.HasSpO2 = float64(v), true
	}

	wp.mu.Lock()
	wp.samples = append(wp.samples, s)
	wp.mu.Unlock()
}

// RecordReadout implements sim.Sink.
func (wp *WaveformPlotter) RecordReadout(r sim.Readout) error {
	wp.Sample(r)
	return nil
}

// Samples returns a copy of the recorded estimates.
func (wp *WaveformPlotter) Samples() []EstimateSample {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return append([]EstimateSample(nil), wp.samples...)
}

// Reset drops all recorded estimates.
func (wp *WaveformPlotter) Reset() {
	wp.mu.Lock()
	wp.samples = nil
	wp.mu.Unlock()
}

func (wp *WaveformPlotter) save(p *plot.Plot, name string) (string, error) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	path := filepath.Join(wp.outputDir, security.SanitizeFilename(name))
	if err := security.ValidatePathWithinDirectory(path, wp.outputDir); err != nil {
		return "", err
	}
	if err := p.Save(wp.Width, wp.Height, path); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return path, nil
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color, width vg.Length) error {
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = width
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

// SavePoints plots the raw channels of the emitter together with the
// filtered primary channel and returns the file path. name should end in a
// format extension understood by gonum/plot, such as .png or .svg.
func (wp *WaveformPlotter) SavePoints(points []ppg.ProcessedPoint, emitter ppg.Emitter, name string) (string, error) {
	if len(points) == 0 {
		return "", ErrNoData
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("PPG waveform (%s)", emitter)
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "intensity (a.u.)"
	p.Add(plotter.NewGrid())

	channels := []struct {
		c     ppg.Channel
		color color.Color
		value func(ppg.ProcessedPoint) float64
	}{
		{ppg.ChannelGreen, colorGreen, func(pt ppg.ProcessedPoint) float64 { return pt.RawGreen }},
		{ppg.ChannelRed, colorRed, func(pt ppg.ProcessedPoint) float64 { return pt.RawRed }},
		{ppg.ChannelIR, colorIR, func(pt ppg.ProcessedPoint) float64 { return pt.RawIR }},
	}
	for _, ch := range channels {
		if !emitter.Active(ch.c) {
			continue
		}
		pts := make(plotter.XYs, len(points))
		for i, pt := range points {
			pts[i] = plotter.XY{X: pt.Time, Y: ch.value(pt)}
		}
		if err := addLine(p, "raw "+ch.c.String(), pts, ch.color, vg.Points(1)); err != nil {
			return "", err
		}
	}

	filtered := make(plotter.XYs, len(points))
	for i, pt := range points {
		filtered[i] = plotter.XY{X: pt.Time, Y: pt.Filtered}
	}
	if err := addLine(p, "filtered "+emitter.Primary().String(), filtered, colorFiltered, vg.Points(1.5)); err != nil {
		return "", err
	}
	return wp.save(p, name)
}

// SaveEstimates plots the estimated heart rate and SpO2 of every recorded
// tick against their targets. Ticks without an estimate leave gaps.
func (wp *WaveformPlotter) SaveEstimates(title, name string) (string, error) {
	samples := wp.Samples()
	if len(samples) == 0 {
		return "", ErrNoData
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "algorithm tick"
	p.Y.Label.Text = "bpm / %"
	p.Add(plotter.NewGrid())

	var hr, spo2, targetHR, targetSpO2 plotter.XYs
	for _, s := range samples {
		x := float64(s.Tick)
		targetHR = append(targetHR, plotter.XY{X: x, Y: float64(s.TargetHR)})
		targetSpO2 = append(targetSpO2, plotter.XY{X: x, Y: float64(s.TargetSpO2)})
		if s.HasHR {
			hr = append(hr, plotter.XY{X: x, Y: s.HeartRateBPM})
		}
		if s.HasSpO2 {
			spo2 = append(spo2, plotter.XY{X: x, Y: s.SpO2})
		}
	}

	if err := addLine(p, "target hr", targetHR, colorTarget, vg.Points(1)); err != nil {
		return "", err
	}
	if err := addLine(p, "target spo2", targetSpO2, colorTarget, vg.Points(0.5)); err != nil {
		return "", err
	}
	if len(hr) > 0 {
		sc, err := plotter.NewScatter(hr)
		if err != nil {
			return "", err
		}
		sc.GlyphStyle.Color = colorRed
		p.Add(sc)
		p.Legend.Add("estimated hr", sc)
	}
	if len(spo2) > 0 {
		sc, err := plotter.NewScatter(spo2)
		if err != nil {
			return "", err
		}
		sc.GlyphStyle.Color = colorIR
		p.Add(sc)
		p.Legend.Add("estimated spo2", sc)
	}
	return wp.save(p, name)
}
