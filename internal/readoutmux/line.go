package readoutmux

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
)

// missing is printed in place of an estimate the device does not have.
const missing = "--"

// FormatReadout renders r as the device's text line, without a newline:
//
//	HR=72,SPO2=98,STATUS=Tracked,SNR=54.0
//	HR=--,SPO2=--,STATUS=Scanning,SNR=0.0
func FormatReadout(r sim.Readout) string {
	hr, spo2 := missing, missing
	if v, ok := r.Result.Estimate(); ok {
		hr = strconv.Itoa(v)
	}
	if v, ok := r.SpO2.Value(); ok {
		spo2 = strconv.Itoa(v)
	}
	return fmt.Sprintf("HR=%s,SPO2=%s,STATUS=%s,SNR=%.1f", hr, spo2, r.Result.Status, r.SNR)
}

// Line is a parsed readout line. Missing estimates are nil.
type Line struct {
	HeartRateBPM *int    `json:"heart_rate_bpm"`
	SpO2Pct      *int    `json:"spo2_pct"`
	Status       string  `json:"status"`
	SNR          float64 `json:"snr_db"`
}

// ParseLine parses a line produced by FormatReadout. Unknown keys are
// ignored so newer firmware fields do not break older readers.
func ParseLine(line string) (Line, error) {
	var out Line
	seen := 0
	for _, field := range strings.Split(strings.TrimSpace(line), ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Line{}, fmt.Errorf("malformed field %q", field)
		}
		switch key {
		case "HR":
			v, err := optionalAtoi(value)
			if err != nil {
				return Line{}, fmt.Errorf("HR: %w", err)
			}
			out.HeartRateBPM = v
		case "SPO2":
			v, err := optionalAtoi(value)
			if err != nil {
				return Line{}, fmt.Errorf("SPO2: %w", err)
			}
			out.SpO2Pct = v
		case "STATUS":
			out.Status = value
		case "SNR":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Line{}, fmt.Errorf("SNR: %w", err)
			}
			out.SNR = v
		default:
			continue
		}
		seen++
	}
	if seen < 4 || out.Status == "" {
		return Line{}, fmt.Errorf("incomplete readout line %q", line)
	}
	return out, nil
}

func optionalAtoi(s string) (*int, error) {
	if s == missing {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
