package aggregator

// Envelope smooths per-window peak levels into a volume envelope.
// Attack applies when the level rises, Release when it falls;
// 1.0 follows the input instantly, smaller values smooth more.
type Envelope struct {
	attack  float64
	release float64
	value   float64
}

// NewEnvelope creates an envelope follower. Coefficients are clamped to (0, 1].
func NewEnvelope(attack, release float64) *Envelope {
	return &Envelope{
		attack:  clampCoefficient(attack),
		release: clampCoefficient(release),
	}
}

// Update feeds one level and returns the new envelope value
func (e *Envelope) Update(level float64) float64 {
	coeff := e.release
	if level > e.value {
		coeff = e.attack
	}
	e.value += coeff * (level - e.value)
	return e.value
}

// Value returns the current envelope without updating it
func (e *Envelope) Value() float64 {
	return e.value
}

// Reset returns the envelope to silence
func (e *Envelope) Reset() {
	e.value = 0
}

func clampCoefficient(c float64) float64 {
	if c <= 0 || c > 1 {
		return 1
	}
	return c
}
