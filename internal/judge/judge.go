// Package judge compares a paid price against a statistical reference
// price and renders a verdict.
package judge

import "fmt"

// Verdict classifies a paid price relative to the reference.
type Verdict string

const (
	VerdictDeal    Verdict = "DEAL"
	VerdictOverpay Verdict = "OVERPAY"
	VerdictFair    Verdict = "FAIR"
	VerdictUnknown Verdict = "UNKNOWN"
)

// Thresholds are fractional deviations from the reference price. A paid
// price at or below DealBelow of the reference is a deal; at or above
// OverpayAbove it is an overpay.
type Thresholds struct {
	DealBelow    float64 `mapstructure:"deal_below"`
	OverpayAbove float64 `mapstructure:"overpay_above"`
}

// DefaultThresholds marks ±10% around the reference as fair.
func DefaultThresholds() Thresholds {
	return Thresholds{DealBelow: -0.10, OverpayAbove: 0.10}
}

// Result carries the verdict with its supporting numbers.
type Result struct {
	Found   bool    `json:"found"`
	Diff    float64 `json:"diff_yen"`
	Rate    float64 `json:"rate"`
	Verdict Verdict `json:"verdict"`
	Note    string  `json:"note,omitempty"`
}

// Engine renders verdicts under a fixed threshold pair.
type Engine struct {
	thresholds Thresholds
}

// New creates an engine. Zero-value thresholds fall back to the defaults.
func New(thresholds Thresholds) *Engine {
	if thresholds.DealBelow == 0 && thresholds.OverpayAbove == 0 {
		thresholds = DefaultThresholds()
	}
	return &Engine{thresholds: thresholds}
}

// Judge compares paid against the reference price. A nil or non-positive
// reference yields UNKNOWN; the rate is never computed against zero.
func (e *Engine) Judge(paid float64, reference *float64) Result {
	if reference == nil || *reference <= 0 {
		return Result{Verdict: VerdictUnknown, Note: "no reference price"}
	}

	diff := paid - *reference
	rate := diff / *reference

	verdict := VerdictFair
	switch {
	case rate <= e.thresholds.DealBelow:
		verdict = VerdictDeal
	case rate >= e.thresholds.OverpayAbove:
		verdict = VerdictOverpay
	}

	return Result{
		Found:   true,
		Diff:    diff,
		Rate:    rate,
		Verdict: verdict,
		Note:    fmt.Sprintf("reference %.1f yen", *reference),
	}
}
