package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ref(v float64) *float64 { return &v }

func TestJudge(t *testing.T) {
	engine := New(DefaultThresholds())

	tests := []struct {
		name      string
		paid      float64
		reference *float64
		want      Verdict
	}{
		{"well below reference", 80, ref(100), VerdictDeal},
		{"exactly at deal threshold", 90, ref(100), VerdictDeal},
		{"just inside fair band", 91, ref(100), VerdictFair},
		{"equal to reference", 100, ref(100), VerdictFair},
		{"just inside fair band high", 109, ref(100), VerdictFair},
		{"exactly at overpay threshold", 110, ref(100), VerdictOverpay},
		{"well above reference", 150, ref(100), VerdictOverpay},
		{"nil reference", 100, nil, VerdictUnknown},
		{"zero reference", 100, ref(0), VerdictUnknown},
		{"negative reference", 100, ref(-5), VerdictUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Judge(tt.paid, tt.reference)
			assert.Equal(t, tt.want, got.Verdict)
			assert.Equal(t, tt.want != VerdictUnknown, got.Found)
		})
	}
}

func TestJudgeNumbers(t *testing.T) {
	engine := New(DefaultThresholds())

	got := engine.Judge(250, ref(200))
	assert.InDelta(t, 50, got.Diff, 0.001)
	assert.InDelta(t, 0.25, got.Rate, 0.001)
	assert.Equal(t, VerdictOverpay, got.Verdict)
}

func TestJudgeCustomThresholds(t *testing.T) {
	engine := New(Thresholds{DealBelow: -0.30, OverpayAbove: 0.05})

	assert.Equal(t, VerdictFair, engine.Judge(80, ref(100)).Verdict)
	assert.Equal(t, VerdictDeal, engine.Judge(70, ref(100)).Verdict)
	assert.Equal(t, VerdictOverpay, engine.Judge(106, ref(100)).Verdict)
}

func TestJudgeZeroThresholdsUseDefaults(t *testing.T) {
	engine := New(Thresholds{})
	assert.Equal(t, VerdictDeal, engine.Judge(85, ref(100)).Verdict)
}
