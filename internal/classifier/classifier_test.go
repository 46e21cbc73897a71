package classifier

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/dsp"
	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/hslarson/Dog-Bark-Detector/internal/sampler"
	"github.com/hslarson/Dog-Bark-Detector/internal/thresholds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	rate    = 10000
	samples = 256
	period  = 25600 * time.Microsecond
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func barkThresholds() models.Thresholds {
	return models.Thresholds{
		BarkThreshold:   700,
		NoiseFloor:      150,
		FreqMin:         600,
		FreqMax:         1600,
		DurationMin:     60 * time.Millisecond,
		DurationMax:     250 * time.Millisecond,
		BuzzerFrequency: 19000,
		BuzzerLinger:    5 * time.Second,
	}
}

// windows splits a tone script into analyzed windows
func windows(t *testing.T, segments ...sampler.Segment) ([]models.SampleWindow, []models.Spectrum) {
	t.Helper()
	analyzer, err := dsp.NewAnalyzer(rate, samples)
	require.NoError(t, err)

	src := sampler.NewToneSource(rate, 3, segments...)
	var ws []models.SampleWindow
	var specs []models.Spectrum
	for i := 0; ; i++ {
		buf := make([]int16, samples)
		err := src.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		w := models.SampleWindow{Start: epoch.Add(time.Duration(i) * period), SampleRate: rate, Samples: buf}
		spec, err := analyzer.Analyze(w)
		require.NoError(t, err)
		ws = append(ws, w)
		specs = append(specs, spec)
	}
	return ws, specs
}

type recorder struct {
	transitions []Transition
}

func (r *recorder) record(t Transition) {
	r.transitions = append(r.transitions, t)
}

func (r *recorder) entered(state models.ClassifierState) int {
	n := 0
	for _, t := range r.transitions {
		if t.To == state {
			n++
		}
	}
	return n
}

func (r *recorder) reasons() []string {
	var out []string
	for _, t := range r.transitions {
		if t.Reason != "" {
			out = append(out, t.Reason)
		}
	}
	return out
}

func runScript(t *testing.T, config Config, th models.Thresholds, segments ...sampler.Segment) ([]models.BarkEvent, *recorder, *Classifier) {
	t.Helper()
	store, err := thresholds.NewStore(th)
	require.NoError(t, err)

	c := New(config, store, zaptest.NewLogger(t))
	rec := &recorder{}
	c.OnTransition(rec.record)

	ws, specs := windows(t, segments...)
	var events []models.BarkEvent
	for i := range ws {
		if e := c.Process(ws[i], specs[i]); e != nil {
			events = append(events, *e)
		}
	}
	return events, rec, c
}

func TestSingleBarkConfirmsOnce(t *testing.T) {
	for _, amplitude := range []float64{2000, 5000, 20000} {
		t.Run(fmt.Sprintf("amplitude %.0f", amplitude), func(t *testing.T) {
			events, rec, c := runScript(t, DefaultConfig(), barkThresholds(),
				sampler.Segment{Duration: 40 * time.Millisecond, Noise: 50},
				sampler.Segment{Duration: 150 * time.Millisecond, Frequency: 900, Amplitude: amplitude, Noise: 50},
				sampler.Segment{Duration: time.Second, Noise: 50},
			)

			require.Len(t, events, 1)
			e := events[0]
			assert.Equal(t, epoch.Add(period), e.Timestamp, "bark starts in the first loud window")
			// The tone touches windows 1 through 7
			assert.Equal(t, 7*period, e.Duration)
			assert.GreaterOrEqual(t, e.PeakVolume, 700.0)
			assert.InDelta(t, 900, e.DominantFrequency, 80)

			assert.Equal(t, 1, rec.entered(models.StateCandidate))
			assert.Equal(t, 1, rec.entered(models.StateConfirmed))
			assert.Equal(t, 1, rec.entered(models.StateCoolingDown))
			assert.Empty(t, rec.reasons())

			snap := c.Snapshot()
			assert.Equal(t, models.StateIdle, snap.State)
			assert.True(t, snap.Armed)
			assert.Equal(t, 1, snap.Confirmed)
		})
	}
}

func TestLoudTailIsNotPartOfTheBark(t *testing.T) {
	// A slow release keeps the envelope above the bark threshold for several
	// quiet windows after the tone
	config := DefaultConfig()
	config.EnvelopeRelease = 0.2

	events, rec, _ := runScript(t, config, barkThresholds(),
		sampler.Segment{Duration: 51200 * time.Microsecond, Noise: 50},
		sampler.Segment{Duration: 102400 * time.Microsecond, Frequency: 1200, Amplitude: 30000, Noise: 50},
		sampler.Segment{Duration: time.Second, Noise: 50},
	)

	require.Len(t, events, 1)
	assert.Equal(t, 4*period, events[0].Duration)
	assert.Empty(t, rec.reasons())
}

func TestOutOfBandNeverConfirms(t *testing.T) {
	events, rec, _ := runScript(t, DefaultConfig(), barkThresholds(),
		sampler.Segment{Duration: 51200 * time.Microsecond, Noise: 100},
		sampler.Segment{Duration: 150 * time.Millisecond, Frequency: 3000, Amplitude: 2000},
		sampler.Segment{Duration: 200 * time.Millisecond, Noise: 100},
	)

	assert.Empty(t, events)
	assert.Zero(t, rec.entered(models.StateConfirmed))
	assert.Equal(t, []string{RejectOutOfBand}, rec.reasons())
}

func TestLowRumbleNeverConfirms(t *testing.T) {
	events, _, _ := runScript(t, DefaultConfig(), barkThresholds(),
		sampler.Segment{Duration: 51200 * time.Microsecond},
		sampler.Segment{Duration: 150 * time.Millisecond, Frequency: 200, Amplitude: 3000},
		sampler.Segment{Duration: 200 * time.Millisecond},
	)

	assert.Empty(t, events)
}

func TestTooShortRevertsToIdle(t *testing.T) {
	config := DefaultConfig()
	config.EnvelopeRelease = 1

	events, rec, c := runScript(t, config, barkThresholds(),
		sampler.Segment{Duration: 51200 * time.Microsecond},
		sampler.Segment{Duration: 51200 * time.Microsecond, Frequency: 900, Amplitude: 2000},
		sampler.Segment{Duration: 102400 * time.Microsecond},
	)

	assert.Empty(t, events)
	assert.Equal(t, []string{RejectTooShort}, rec.reasons())
	assert.Equal(t, models.StateIdle, c.Snapshot().State)
}

func TestTooLongRejected(t *testing.T) {
	events, rec, _ := runScript(t, DefaultConfig(), barkThresholds(),
		sampler.Segment{Duration: 51200 * time.Microsecond},
		sampler.Segment{Duration: 400 * time.Millisecond, Frequency: 900, Amplitude: 2000},
		sampler.Segment{Duration: 200 * time.Millisecond},
	)

	assert.Empty(t, events)
	assert.Equal(t, []string{RejectTooLong}, rec.reasons())
	// A tone that keeps going must not start a second candidate
	assert.Equal(t, 1, rec.entered(models.StateCandidate))
}

func TestGapTolerance(t *testing.T) {
	script := []sampler.Segment{
		{Duration: 51200 * time.Microsecond},
		{Duration: 76800 * time.Microsecond, Frequency: 900, Amplitude: 2000},
		{Duration: 25600 * time.Microsecond, Frequency: 900, Amplitude: 400},
		{Duration: 76800 * time.Microsecond, Frequency: 900, Amplitude: 2000},
		{Duration: 102400 * time.Microsecond},
	}

	tests := []struct {
		name      string
		tolerance int
		duration  time.Duration
	}{
		{"one quiet window is bridged", 1, 7 * period},
		{"no tolerance splits the bark", 0, 3 * period},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.EnvelopeRelease = 1
			config.GapTolerance = tt.tolerance

			events, _, _ := runScript(t, config, barkThresholds(), script...)
			require.Len(t, events, 1)
			assert.Equal(t, tt.duration, events[0].Duration)
			assert.Equal(t, epoch.Add(2*period), events[0].Timestamp)
		})
	}
}

func TestCooldownIgnoresInput(t *testing.T) {
	config := DefaultConfig()
	config.EnvelopeRelease = 1
	config.Cooldown = 200 * time.Millisecond

	bark := sampler.Segment{Duration: 102400 * time.Microsecond, Frequency: 900, Amplitude: 2000}
	quiet := func(d time.Duration) sampler.Segment { return sampler.Segment{Duration: d} }

	// The second bark lands inside the cooldown, the third after it
	events, rec, _ := runScript(t, config, barkThresholds(),
		quiet(51200*time.Microsecond),
		bark,
		quiet(51200*time.Microsecond),
		bark,
		quiet(512*time.Millisecond),
		bark,
		quiet(102400*time.Microsecond),
	)

	assert.Len(t, events, 2)
	assert.Equal(t, 2, rec.entered(models.StateCoolingDown))
}

func TestThresholdUpdateAppliesToNextWindow(t *testing.T) {
	store, err := thresholds.NewStore(barkThresholds())
	require.NoError(t, err)

	c := New(DefaultConfig(), store, zaptest.NewLogger(t))
	ws, specs := windows(t,
		sampler.Segment{Duration: 25600 * time.Microsecond},
		sampler.Segment{Duration: 51200 * time.Microsecond, Frequency: 900, Amplitude: 500},
	)

	c.Process(ws[0], specs[0])
	c.Process(ws[1], specs[1])
	assert.Equal(t, models.StateIdle, c.Snapshot().State, "500 is below the bark threshold")

	threshold := 400.0
	_, err = store.Apply(models.ThresholdsUpdate{BarkThreshold: &threshold})
	require.NoError(t, err)

	c.Process(ws[2], specs[2])
	assert.Equal(t, models.StateCandidate, c.Snapshot().State)
}
