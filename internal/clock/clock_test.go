package clock

import (
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	c := NewManual(start)

	c.Advance(1500 * time.Millisecond)
	if got := c.Now().Sub(start); got != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s elapsed, got %v", got)
	}

	c.Advance(-time.Second)
	if got := c.Now().Sub(start); got != 1500*time.Millisecond {
		t.Errorf("Negative advance should be ignored, got %v", got)
	}
}

func TestManualSetNeverGoesBackwards(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	c := NewManual(start)

	c.Set(start.Add(-time.Minute))
	if !c.Now().Equal(start) {
		t.Errorf("Expected clock to stay at %v, got %v", start, c.Now())
	}

	later := start.Add(time.Minute)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Expected clock at %v, got %v", later, c.Now())
	}
}

func TestMillis(t *testing.T) {
	if got := Millis(time.UnixMilli(42)); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
}
