package estimate

import (
	"github.com/banshee-data/pulse.lab/internal/ppg"
)

const testRate = 50.0

// synth runs the generator and front-end filter for n samples and returns the
// resulting snapshot, mirroring what the scheduler hands to the algorithms.
func synth(p ppg.Params, e ppg.Emitter, n int, seed int64) Snapshot {
	g := ppg.NewGenerator(testRate, 0.05, seed)
	var filters [ppg.NumChannels]*ppg.AnalogFilter
	for c := range filters {
		filters[c] = ppg.NewAnalogFilter(ppg.FilterEMA, testRate)
	}

	snap := Snapshot{SampleRate: testRate, Emitter: e}
	primary := e.Primary()
	for i := 0; i < n; i++ {
		s := g.Next(p, e)
		var filtered [ppg.NumChannels]float64
		for _, c := range e.Channels() {
			filtered[c] = filters[c].Apply(s.Value(c), p.FilterCutoffHz)
		}
		snap.Raw = append(snap.Raw, s.Value(primary))
		snap.Filtered = append(snap.Filtered, filtered[primary])
		if e.SupportsSpO2() {
			snap.Red = append(snap.Red, filtered[ppg.ChannelRed])
			snap.IR = append(snap.IR, filtered[ppg.ChannelIR])
		}
	}
	return snap
}

func silenceParams() ppg.Params {
	return ppg.Params{HeartRateBPM: 75, SpO2Target: 98, FilterCutoffHz: 5}
}

func saturatedParams() ppg.Params {
	return ppg.Params{HeartRateBPM: 75, SpO2Target: 98, NoiseLevel: 1, MotionArtifactLevel: 1, FilterCutoffHz: 5}
}
