package scan

import (
	"checkout-scan-backend/internal/barcode"
)

// Decision is the gate's answer for one candidate.
type Decision int

const (
	// DecisionRejected means the code failed local syntax validation.
	DecisionRejected Decision = iota
	// DecisionPending means the candidate was seen but is not trusted yet,
	// either because its confidence is too low or because it has not been
	// sighted often enough.
	DecisionPending
	// DecisionAccepted means the code reached the occurrence threshold and
	// may be handed to the resolver.
	DecisionAccepted
)

// Verdict carries the gate's decision plus the reason for a rejection or a
// low-confidence hold.
type Verdict struct {
	Decision Decision
	Code     string
	Reason   error
	// LowConfidence marks a Pending verdict caused by the confidence score
	// rather than the occurrence count. It only updates the UI message.
	LowConfidence bool
}

// Gate accumulates repeated sightings of the same code across ticks and
// accepts a candidate only after it has agreed with itself often enough.
// Distinct codes are tracked independently; whichever reaches the threshold
// first wins and the counts are discarded, not queued.
type Gate struct {
	minConfidence float64
	threshold     int
	counts        map[string]int
}

// NewGate creates a gate with the given minimum confidence score and
// consecutive-agreement threshold.
func NewGate(minConfidence float64, threshold int) *Gate {
	if threshold < 1 {
		threshold = 1
	}
	return &Gate{
		minConfidence: minConfidence,
		threshold:     threshold,
		counts:        make(map[string]int),
	}
}

// Accept runs one candidate through validation, confidence thresholding and
// occurrence counting. Manual entries skip everything but validation.
// inflight suppresses acceptance while a lookup is outstanding.
func (g *Gate) Accept(c barcode.Candidate, inflight bool) Verdict {
	if err := barcode.Validate(c.Code, c.Format); err != nil {
		return Verdict{Decision: DecisionRejected, Code: c.Code, Reason: err}
	}

	if c.Format == barcode.FormatManual {
		return Verdict{Decision: DecisionAccepted, Code: c.Code}
	}

	if c.Confidence < g.minConfidence {
		return Verdict{Decision: DecisionPending, Code: c.Code, LowConfidence: true}
	}

	g.counts[c.Code]++
	if g.counts[c.Code] >= g.threshold && !inflight {
		return Verdict{Decision: DecisionAccepted, Code: c.Code}
	}
	return Verdict{Decision: DecisionPending, Code: c.Code}
}

// Occurrences reports the current count for a code.
func (g *Gate) Occurrences(code string) int {
	return g.counts[code]
}

// Reset clears the occurrence map. Called on every transition out of the
// scanning state.
func (g *Gate) Reset() {
	g.counts = make(map[string]int)
}

// Empty reports whether the occurrence map holds no counts.
func (g *Gate) Empty() bool {
	return len(g.counts) == 0
}
