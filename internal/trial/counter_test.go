package trial

import (
	"errors"
	"testing"
	"time"
)

var start = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func TestReadFresh(t *testing.T) {
	got := Read(nil, start)
	if got.Remaining != Max || !got.LastReset.Equal(start) {
		t.Errorf("Read(nil) = %+v, want {3 %v}", got, start)
	}
}

func TestConsumeSequence(t *testing.T) {
	var c *Counter
	wantRemaining := []int{2, 1, 0}
	for i, want := range wantRemaining {
		next, err := Consume(c, start.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
		if next.Remaining != want {
			t.Errorf("consume %d remaining = %d, want %d", i+1, next.Remaining, want)
		}
		if !next.LastReset.Equal(start) {
			t.Errorf("consume %d lastReset = %v, want %v", i+1, next.LastReset, start)
		}
		c = &next
	}

	next, err := Consume(c, start.Add(time.Hour))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("fourth consume err = %v, want ErrExhausted", err)
	}
	if next.Remaining != 0 {
		t.Errorf("remaining after rejection = %d, want 0", next.Remaining)
	}
}

func TestReadAfterWindow(t *testing.T) {
	c := &Counter{Remaining: 0, LastReset: start}

	if got := Read(c, start.Add(Window-time.Second)); got.Remaining != 0 {
		t.Errorf("remaining inside window = %d, want 0", got.Remaining)
	}

	later := start.Add(Window)
	got := Read(c, later)
	if got.Remaining != Max || !got.LastReset.Equal(later) {
		t.Errorf("Read after 24h = %+v, want {3 %v}", got, later)
	}
	// Read never mutates the stored counter.
	if c.Remaining != 0 {
		t.Errorf("stored counter mutated: %+v", c)
	}
}

func TestConsumeAfterWindowStartsNewWindow(t *testing.T) {
	c := &Counter{Remaining: 0, LastReset: start}
	later := start.Add(25 * time.Hour)

	got, err := Consume(c, later)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.Remaining != 2 || !got.LastReset.Equal(later) {
		t.Errorf("got %+v, want {2 %v}", got, later)
	}
}

func TestReadClampsRemaining(t *testing.T) {
	tests := []struct {
		stored int
		want   int
	}{
		{-4, 0},
		{2, 2},
		{99, Max},
	}
	for _, tt := range tests {
		got := Read(&Counter{Remaining: tt.stored, LastReset: start}, start.Add(time.Minute))
		if got.Remaining != tt.want {
			t.Errorf("stored %d: remaining = %d, want %d", tt.stored, got.Remaining, tt.want)
		}
	}
}
