package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdaptiveDelayGrowsOnErrors(t *testing.T) {
	ad := NewAdaptiveDelay(100*time.Millisecond, 2*time.Second, 1.5, 0.9)

	ad.OnError()
	assert.Equal(t, 150*time.Millisecond, ad.Current())

	ad.OnError()
	assert.Equal(t, 225*time.Millisecond, ad.Current())
}

func TestAdaptiveDelayCappedAtMax(t *testing.T) {
	ad := NewAdaptiveDelay(100*time.Millisecond, 300*time.Millisecond, 1.5, 0.9)

	for i := 0; i < 10; i++ {
		ad.OnError()
	}
	assert.Equal(t, 300*time.Millisecond, ad.Current())
}

func TestAdaptiveDelayShrinksOnSuccessFlooredAtMin(t *testing.T) {
	ad := NewAdaptiveDelay(100*time.Millisecond, 2*time.Second, 1.5, 0.9)

	ad.OnError()
	ad.OnError()
	grown := ad.Current()

	ad.OnSuccess()
	assert.Less(t, ad.Current(), grown)

	for i := 0; i < 50; i++ {
		ad.OnSuccess()
	}
	assert.Equal(t, 100*time.Millisecond, ad.Current())
}

func TestAdaptiveDelayWaitSleepsCurrentDelay(t *testing.T) {
	ad := NewAdaptiveDelay(80*time.Millisecond, time.Second, 1.5, 0.9)

	start := time.Now()
	assert.NoError(t, ad.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestAdaptiveDelayWaitHonorsCancellation(t *testing.T) {
	ad := NewAdaptiveDelay(5*time.Second, 10*time.Second, 1.5, 0.9)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := ad.Wait(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
