package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pulse.lab/internal/httputil"
	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/readoutmux"
)

func (ws *WebServer) attachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("ppg/waveform", "live PPG waveform chart (?limit=)", ws.handleWaveform)
}

// handleWaveform renders the processed point history as go-echarts line
// charts: raw channels over the filtered trace, then the AC/DC split.
func (ws *WebServer) handleWaveform(w http.ResponseWriter, r *http.Request) {
	points := ws.engine.Points()
	if limit := queryLimit(r, len(points)); len(points) > limit {
		points = points[len(points)-limit:]
	}

	page := components.NewPage()
	page.AddCharts(
		waveformChart(points, readoutmux.FormatReadout(ws.engine.Latest())),
		componentsChart(points),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render waveform chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func timeAxis(points []ppg.ProcessedPoint) []string {
	x := make([]string, len(points))
	for i, p := range points {
		x[i] = fmt.Sprintf("%.2f", p.Time)
	}
	return x
}

func lineSeries(points []ppg.ProcessedPoint, value func(ppg.ProcessedPoint) float64) []opts.LineData {
	data := make([]opts.LineData, len(points))
	for i, p := range points {
		data[i] = opts.LineData{Value: value(p)}
	}
	return data
}

func waveformChart(points []ppg.ProcessedPoint, subtitle string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "PPG waveform", Theme: "dark", Width: "1100px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Raw and filtered", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "a.u.", NameLocation: "middle", NameGap: 35}),
	)
	line.SetXAxis(timeAxis(points)).
		AddSeries("green", lineSeries(points, func(p ppg.ProcessedPoint) float64 { return p.RawGreen }),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#66bb6a"})).
		AddSeries("red", lineSeries(points, func(p ppg.ProcessedPoint) float64 { return p.RawRed }),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ef5350"})).
		AddSeries("ir", lineSeries(points, func(p ppg.ProcessedPoint) float64 { return p.RawIR }),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ab47bc"})).
		AddSeries("filtered", lineSeries(points, func(p ppg.ProcessedPoint) float64 { return p.Filtered }),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ffffff"}))
	return line
}

func componentsChart(points []ppg.ProcessedPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1100px", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: "Pulsatile and baseline"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(timeAxis(points)).
		AddSeries("ac", lineSeries(points, func(p ppg.ProcessedPoint) float64 { return p.AC })).
		AddSeries("dc", lineSeries(points, func(p ppg.ProcessedPoint) float64 { return p.DC }))
	return line
}
