package ppg

import (
	"math"
	"math/rand"
)

// Waveform and channel model constants. Baselines follow tissue absorption:
// IR sits highest, then red, then green.
const (
	systolicPhase   = 0.15
	systolicWidth   = 0.12
	diastolicPhase  = 0.45
	diastolicWidth  = 0.08
	diastolicWeight = 0.2

	noiseGain      = 0.4
	motionGain     = 0.5
	motionFreqHz   = 0.4
	respirationHz  = 0.25
	spo2CalOffset  = 110.0
	spo2CalSlope   = 25.0
	baseIRPerfused = 0.1
)

var (
	channelDC = [NumChannels]float64{
		ChannelGreen: 1.0,
		ChannelRed:   1.4,
		ChannelIR:    1.8,
	}
	channelAC = [NumChannels]float64{
		ChannelGreen: 0.12,
		ChannelIR:    baseIRPerfused,
	}
)

// Sample is one generator step: a reading for every channel at a single
// simulated timestamp. Channels the emitter does not drive read zero.
type Sample struct {
	Time   float64
	Values [NumChannels]float64
}

// Value returns the reading for channel c.
func (s Sample) Value(c Channel) float64 { return s.Values[c] }

// Generator synthesises PPG samples from a phase accumulator. Each Next call
// advances simulated time by one sample period regardless of wall time.
type Generator struct {
	sampleRate       float64
	dt               float64
	respirationDepth float64

	phase float64
	time  float64
	rng   *rand.Rand
}

// NewGenerator returns a generator running at sampleRate Hz. A non-positive
// rate falls back to 50 Hz. Noise is drawn from a source seeded with seed so
// runs are reproducible.
func NewGenerator(sampleRate, respirationDepth float64, seed int64) *Generator {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		sampleRate = DefaultSampleRate
	}
	if math.IsNaN(respirationDepth) || respirationDepth < 0 {
		respirationDepth = 0
	}
	if respirationDepth > 1 {
		respirationDepth = 1
	}
	return &Generator{
		sampleRate:       sampleRate,
		dt:               1 / sampleRate,
		respirationDepth: respirationDepth,
		rng:              rand.New(rand.NewSource(seed)),
	}
}

// DefaultSampleRate is the nominal front-end sample rate in Hz.
const DefaultSampleRate = 50.0

// SampleRate returns the simulated sample rate in Hz.
func (g *Generator) SampleRate() float64 { return g.sampleRate }

// Reseed restarts the noise source and rewinds time and phase.
func (g *Generator) Reseed(seed int64) {
	g.rng = rand.New(rand.NewSource(seed))
	g.phase = 0
	g.time = 0
}

// Next advances by one sample period and returns the readings for every
// channel e drives. p is clamped before use so boundary values stay finite.
func (g *Generator) Next(p Params, e Emitter) Sample {
	p = p.Clamped()

	g.phase += float64(p.HeartRateBPM) / 60 * g.dt
	g.phase -= math.Floor(g.phase)
	g.time += g.dt

	pulse := Pulse(g.phase)
	resp := 1 + g.respirationDepth*math.Sin(2*math.Pi*respirationHz*g.time)
	motion := math.Sin(2*math.Pi*motionFreqHz*g.time) * p.MotionArtifactLevel * motionGain

	s := Sample{Time: g.time}
	for _, c := range e.Channels() {
		noise := (g.rng.Float64() - 0.5) * p.NoiseLevel * noiseGain
		v := channelDC[c] - pulse*ACAmplitude(c, p.SpO2Target)*resp + noise + motion
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = channelDC[c]
		}
		s.Values[c] = v
	}
	return s
}

// Pulse is the cardiac waveform at phase in [0, 1): a systolic lobe followed
// by a smaller diastolic lobe. Lobes wrap around the cycle boundary.
func Pulse(phase float64) float64 {
	return lobe(phase, systolicPhase, systolicWidth) +
		diastolicWeight*lobe(phase, diastolicPhase, diastolicWidth)
}

func lobe(phase, centre, width float64) float64 {
	d := phase - centre
	d -= math.Round(d)
	return math.Exp(-d * d / (2 * width * width))
}

// SpO2Factor is the red/IR ratio-of-ratios the generator targets for a given
// saturation. It inverts the estimator's calibration line.
func SpO2Factor(spo2Target int) float64 {
	return (spo2CalOffset - float64(spo2Target)) / spo2CalSlope
}

// ACAmplitude returns the pulsatile amplitude of channel c. Red is scaled by
// the DC ratio so that (redAC/redDC)/(irAC/irDC) equals SpO2Factor.
func ACAmplitude(c Channel, spo2Target int) float64 {
	if c == ChannelRed {
		return SpO2Factor(spo2Target) * baseIRPerfused * channelDC[ChannelRed] / channelDC[ChannelIR]
	}
	return channelAC[c]
}
