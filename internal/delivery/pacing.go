package delivery

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// PacingMethod selects how the pre-send delay is computed.
type PacingMethod string

const (
	// PacingNone sends immediately.
	PacingNone PacingMethod = "none"
	// PacingFixed sleeps a uniform random duration within [MinDelay, MaxDelay].
	PacingFixed PacingMethod = "fixed"
	// PacingWords scales the delay with the logarithm of the word count,
	// approximating how long a human takes to type the segment.
	PacingWords PacingMethod = "words"
)

// Pacing configures the delay applied before each delivery.
type Pacing struct {
	Method PacingMethod `yaml:"method"`

	// MinDelay and MaxDelay bound the fixed random range.
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`

	// WordDelay scales the logarithmic method.
	// Default: 400ms
	WordDelay time.Duration `yaml:"word_delay"`
}

// DefaultPacing resembles a quick human typist.
func DefaultPacing() Pacing {
	return Pacing{
		Method:    PacingFixed,
		MinDelay:  500 * time.Millisecond,
		MaxDelay:  1500 * time.Millisecond,
		WordDelay: 400 * time.Millisecond,
	}
}

// Delay computes the pre-send delay for one segment.
func (p Pacing) Delay(content string) time.Duration {
	switch p.Method {
	case PacingFixed:
		if p.MaxDelay <= p.MinDelay {
			return p.MinDelay
		}
		spread := p.MaxDelay - p.MinDelay
		return p.MinDelay + time.Duration(rand.Int63n(int64(spread))) // #nosec G404 -- pacing jitter does not need crypto randomness
	case PacingWords:
		scale := p.WordDelay
		if scale <= 0 {
			scale = 400 * time.Millisecond
		}
		words := len(strings.Fields(content))
		return time.Duration(float64(scale) * math.Log1p(float64(words)))
	default:
		return 0
	}
}
