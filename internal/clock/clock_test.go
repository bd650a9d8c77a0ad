package clock_test

import (
	"testing"
	"time"

	"github.com/jensholdgaard/player-auction/internal/clock"
)

func TestReal_Now(t *testing.T) {
	clk := clock.Real{}
	before := time.Now()
	got := clk.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Real.Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestMock_Now(t *testing.T) {
	fixed := time.Date(2025, 3, 22, 18, 30, 0, 0, time.UTC)
	clk := clock.Mock{T: fixed}

	if got := clk.Now(); !got.Equal(fixed) {
		t.Errorf("Mock.Now() = %v, want %v", got, fixed)
	}
	if got := clk.Now(); !got.Equal(fixed) {
		t.Errorf("Mock.Now() second call = %v, want %v", got, fixed)
	}
}

func TestStep_Now(t *testing.T) {
	start := time.Date(2025, 3, 22, 18, 30, 0, 0, time.UTC)
	clk := clock.NewStep(start, time.Second)

	for i := 0; i < 3; i++ {
		want := start.Add(time.Duration(i) * time.Second)
		if got := clk.Now(); !got.Equal(want) {
			t.Errorf("call %d: Step.Now() = %v, want %v", i, got, want)
		}
	}
}
