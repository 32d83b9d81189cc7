package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intp(v int) *int { return &v }

func TestLatencyPenalty(t *testing.T) {
	tests := []struct {
		name string
		ms   *int
		want int
	}{
		{"fast", intp(100), 0},
		{"at free threshold", intp(500), 0},
		{"at max threshold", intp(2000), -40},
		{"beyond max", intp(5000), -40},
		{"midpoint interpolated", intp(1250), -20},
		{"failure (nil)", nil, -40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyPenalty(tt.ms))
		})
	}
}

func TestErrorPenaltyCapsAtFifty(t *testing.T) {
	assert.Equal(t, 0, ErrorPenalty(0))
	assert.Equal(t, -15, ErrorPenalty(1))
	assert.Equal(t, -45, ErrorPenalty(3))
	assert.Equal(t, -50, ErrorPenalty(4))
	assert.Equal(t, -50, ErrorPenalty(100))
}

func TestLoadPenaltyFirstWorkerFree(t *testing.T) {
	assert.Equal(t, 0, LoadPenalty(0))
	assert.Equal(t, 0, LoadPenalty(1))
	assert.Equal(t, -2, LoadPenalty(2))
	assert.Equal(t, -8, LoadPenalty(5))
}

// TestScenarioHeartbeatHealth reproduces the scoring half of spec.md §8
// scenario 3: from a score of 100, a successful ping at 150ms, and
// separately a single failed ping. The status flip after three consecutive
// failures is a registry concern, checked in
// registry.TestHeartbeatFailureFlipsToErrorAtThreshold.
func TestScenarioHeartbeatHealth(t *testing.T) {
	success := Score(Measurement{
		LatencyMs:     intp(150),
		ErrorCount:    0,
		WorkerCount:   0,
		Succeeded:     true,
		PreviousScore: 100,
	})
	assert.Equal(t, 100, success)

	failure := Score(Measurement{
		LatencyMs:       nil,
		ErrorCount:      1,
		PriorErrorCount: 0,
		WorkerCount:     0,
		Succeeded:       false,
		PreviousScore:   100,
	})
	assert.Equal(t, 83, failure)
}

func TestRecoveryBonusAppliesOnlyAfterPriorErrors(t *testing.T) {
	withBonus := Score(Measurement{
		LatencyMs:       intp(100),
		ErrorCount:      0,
		PriorErrorCount: 2,
		WorkerCount:     0,
		Succeeded:       true,
		PreviousScore:   70,
	})
	withoutBonus := Score(Measurement{
		LatencyMs:       intp(100),
		ErrorCount:      0,
		PriorErrorCount: 0,
		WorkerCount:     0,
		Succeeded:       true,
		PreviousScore:   70,
	})
	assert.Equal(t, withoutBonus+5, withBonus)
}

func TestScoreNeverLeavesZeroToOneHundredRange(t *testing.T) {
	low := Score(Measurement{LatencyMs: nil, ErrorCount: 10, WorkerCount: 20, PreviousScore: 0})
	high := Score(Measurement{LatencyMs: intp(100), ErrorCount: 0, PriorErrorCount: 5, WorkerCount: 0, Succeeded: true, PreviousScore: 100})
	assert.GreaterOrEqual(t, low, 0)
	assert.LessOrEqual(t, high, 100)
}
