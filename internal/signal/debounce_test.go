package signal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLocalDebouncer(t *testing.T) {
	ctx := context.Background()

	t.Run("zero interval admits everything", func(t *testing.T) {
		d := NewLocalDebouncer(0)
		for i := 0; i < 5; i++ {
			if !d.Allow(ctx) {
				t.Fatalf("Expected signal %d to be admitted", i)
			}
		}
	})

	t.Run("second signal inside window rejected", func(t *testing.T) {
		d := NewLocalDebouncer(time.Hour)
		if !d.Allow(ctx) {
			t.Fatal("Expected first signal to be admitted")
		}
		if d.Allow(ctx) {
			t.Error("Expected second signal to be debounced")
		}
	})

	t.Run("window expires", func(t *testing.T) {
		d := NewLocalDebouncer(10 * time.Millisecond)
		d.Allow(ctx)
		time.Sleep(20 * time.Millisecond)
		if !d.Allow(ctx) {
			t.Error("Expected signal after the window to be admitted")
		}
	})
}

func TestRedisDebouncerWithoutClient(t *testing.T) {
	d := NewRedisDebouncer(nil, "LTCUSDT_UMCBL", time.Hour, zerolog.Nop())
	ctx := context.Background()

	if !d.Allow(ctx) {
		t.Fatal("Expected first signal to be admitted")
	}
	if d.Allow(ctx) {
		t.Error("Expected local fallback to debounce the second signal")
	}
	if d.key != "signal:debounce:LTCUSDT_UMCBL" {
		t.Errorf("Expected key signal:debounce:LTCUSDT_UMCBL, got %s", d.key)
	}
}
