package playback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecoveryFor(t *testing.T) {
	tests := []struct {
		name     string
		category FaultCategory
		want     string
	}{
		{name: "network resumes loading", category: FaultNetwork, want: "startLoad"},
		{name: "media resets decoding", category: FaultMedia, want: "recoverMediaError"},
		{name: "other has no recovery", category: FaultOther},
		{name: "unknown has no recovery", category: FaultCategory("keySystem")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := recoveryFor(tt.category)
			if tt.want == "" {
				assert.Nil(t, action)
				return
			}

			engine := newFakeEngine()
			assert.NoError(t, action(engine))
			assert.Equal(t, []string{tt.want}, engine.calls)
		})
	}
}

func TestRecoveryFor_PropagatesEngineError(t *testing.T) {
	engine := newFakeEngine()
	engine.recoverErr = errors.New("destroyed")

	assert.Error(t, recoveryFor(FaultNetwork)(engine))
	assert.Error(t, recoveryFor(FaultMedia)(engine))
}

func TestRecoveryBudget_Unbounded(t *testing.T) {
	budget := newRecoveryBudget(0, time.Minute, &fakeClock{now: time.Now()})

	for i := 0; i < 1000; i++ {
		assert.True(t, budget.allow())
	}
}

func TestRecoveryBudget_SlidingWindow(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	budget := newRecoveryBudget(3, 10*time.Second, clock)

	// three attempts fit, the fourth within the window does not
	for i := 0; i < 3; i++ {
		assert.True(t, budget.allow())
		clock.Advance(time.Second)
	}
	assert.False(t, budget.allow())

	// oldest attempt leaves the window
	clock.Advance(7*time.Second + 500*time.Millisecond)
	assert.True(t, budget.allow())
	assert.False(t, budget.allow())

	// everything expired
	clock.Advance(time.Minute)
	assert.True(t, budget.allow())
	assert.Len(t, budget.events, 1)
}
