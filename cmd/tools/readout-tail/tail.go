package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pulse.lab/internal/monitoring"
	"github.com/banshee-data/pulse.lab/internal/readoutmux"
)

// Summary aggregates the readout lines seen on one stream.
type Summary struct {
	Lines     int              `json:"lines"`
	Malformed int              `json:"malformed"`
	Statuses  map[string]int   `json:"statuses"`
	HRCount   int              `json:"hr_count"`
	HRMean    float64          `json:"hr_mean"`
	HRMin     float64          `json:"hr_min"`
	HRMax     float64          `json:"hr_max"`
	SpO2Count int              `json:"spo2_count"`
	SpO2Mean  float64          `json:"spo2_mean"`
	SNRMean   float64          `json:"snr_mean_db"`
	Last      *readoutmux.Line `json:"last,omitempty"`
}

// tail parses readout lines from r until EOF or maxLines parsed lines
// (maxLines <= 0 reads to EOF). Blank lines are skipped and malformed lines
// are counted. onLine, when set, sees every parsed line.
func tail(r io.Reader, maxLines int, onLine func(readoutmux.Line)) (Summary, error) {
	s := Summary{Statuses: make(map[string]int)}
	var hr, spo2, snr []float64

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		line, err := readoutmux.ParseLine(text)
		if err != nil {
			s.Malformed++
			monitoring.Debugf("readout-tail: skipping %q: %v", text, err)
			continue
		}
		s.Lines++
		s.Statuses[line.Status]++
		if line.HeartRateBPM != nil {
			hr = append(hr, float64(*line.HeartRateBPM))
		}
		if line.SpO2Pct != nil {
			spo2 = append(spo2, float64(*line.SpO2Pct))
		}
		snr = append(snr, line.SNR)
		last := line
		s.Last = &last
		if onLine != nil {
			onLine(line)
		}
		if maxLines > 0 && s.Lines >= maxLines {
			break
		}
	}

	s.HRCount = len(hr)
	if len(hr) > 0 {
		s.HRMean = stat.Mean(hr, nil)
		s.HRMin = floats.Min(hr)
		s.HRMax = floats.Max(hr)
	}
	s.SpO2Count = len(spo2)
	if len(spo2) > 0 {
		s.SpO2Mean = stat.Mean(spo2, nil)
	}
	if len(snr) > 0 {
		s.SNRMean = stat.Mean(snr, nil)
	}
	return s, scanner.Err()
}

func printSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "Lines: %d (malformed %d)\n", s.Lines, s.Malformed)

	statuses := make([]string, 0, len(s.Statuses))
	for st := range s.Statuses {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Fprintf(w, "  %-12s %d\n", st, s.Statuses[st])
	}

	if s.HRCount > 0 {
		fmt.Fprintf(w, "HR:   mean %.1f bpm, range %.0f-%.0f (%d estimates)\n", s.HRMean, s.HRMin, s.HRMax, s.HRCount)
	} else {
		fmt.Fprintln(w, "HR:   no estimates")
	}
	if s.SpO2Count > 0 {
		fmt.Fprintf(w, "SpO2: mean %.1f%% (%d estimates)\n", s.SpO2Mean, s.SpO2Count)
	} else {
		fmt.Fprintln(w, "SpO2: no estimates")
	}
	fmt.Fprintf(w, "SNR:  mean %.1f dB\n", s.SNRMean)
}
