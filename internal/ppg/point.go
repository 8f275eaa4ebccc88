package ppg

// ProcessedPoint is one charted sample: the raw reading of every channel, the
// filtered primary channel and its split into baseline and pulsatile parts.
type ProcessedPoint struct {
	Time     float64 `json:"time"`
	Raw      float64 `json:"raw"`
	RawGreen float64 `json:"raw_green"`
	RawRed   float64 `json:"raw_red"`
	RawIR    float64 `json:"raw_ir"`
	Filtered float64 `json:"filtered"`
	DC       float64 `json:"dc"`
	AC       float64 `json:"ac"`
}
