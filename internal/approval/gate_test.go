package approval

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestRandomGate_ApproveAlways(t *testing.T) {
	g := NewRandomGate(0, 0, true, rand.New(rand.NewSource(1)))

	for i := 0; i < 20; i++ {
		got, err := g.Approve(context.Background(), "XYZ", 6)
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if !got {
			t.Fatal("approve-always gate said no")
		}
	}
}

func TestRandomGate_DelayWithinBounds(t *testing.T) {
	g := NewRandomGate(20*time.Millisecond, 60*time.Millisecond, true, rand.New(rand.NewSource(1)))

	start := time.Now()
	if _, err := g.Approve(context.Background(), "XYZ", 6); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("gate answered after %v, want at least 20ms", elapsed)
	}
}

func TestRandomGate_ZeroMaxDelayDisablesSleep(t *testing.T) {
	g := NewRandomGate(time.Hour, 0, true, rand.New(rand.NewSource(1)))

	start := time.Now()
	if _, err := g.Approve(context.Background(), "XYZ", 6); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("gate slept %v with latency disabled", elapsed)
	}
}

func TestRandomGate_HonorsContextDuringDelay(t *testing.T) {
	g := NewRandomGate(time.Second, 2*time.Second, true, rand.New(rand.NewSource(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.Approve(ctx, "XYZ", 6)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("gate ignored cancellation for %v", elapsed)
	}
}

func TestRandomGate_CoinFlipProducesBothVerdicts(t *testing.T) {
	g := NewRandomGate(0, 0, false, rand.New(rand.NewSource(7)))

	var yes, no int
	for i := 0; i < 200; i++ {
		got, err := g.Approve(context.Background(), "XYZ", 6)
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if got {
			yes++
		} else {
			no++
		}
	}
	if yes == 0 || no == 0 {
		t.Fatalf("coin flip is one-sided: yes=%d no=%d", yes, no)
	}
}
