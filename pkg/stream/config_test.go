package stream

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if errs := DefaultConfig().Validate(); len(errs) != 0 {
		t.Errorf("default config invalid: %v", errs)
	}
}

func TestZeroConfigIsValidAndFilled(t *testing.T) {
	var c Config
	if errs := c.Validate(); len(errs) != 0 {
		t.Fatalf("zero config invalid: %v", errs)
	}

	def := DefaultConfig()
	got := c.withDefaults()
	if got.QueueSize != def.QueueSize {
		t.Errorf("queue size = %d, want %d", got.QueueSize, def.QueueSize)
	}
	if got.ReadRetries != def.ReadRetries {
		t.Errorf("read retries = %d, want %d", got.ReadRetries, def.ReadRetries)
	}
	if got.ReadBackoff != def.ReadBackoff {
		t.Errorf("read backoff = %v, want %v", got.ReadBackoff, def.ReadBackoff)
	}
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	c := Config{QueueSize: 8, ReadRetries: 1, ReadBackoff: time.Second}
	got := c.withDefaults()
	if got.QueueSize != 8 || got.ReadRetries != 1 || got.ReadBackoff != time.Second {
		t.Errorf("explicit values changed: %+v", got)
	}
}

func TestValidateRejectsNegatives(t *testing.T) {
	c := Config{
		Width:       -1,
		Framerate:   -1,
		QueueSize:   -1,
		ReadRetries: -1,
		ReadBackoff: -time.Second,
	}
	if errs := c.Validate(); len(errs) != 5 {
		t.Errorf("got %d problems, want 5: %v", len(errs), errs)
	}
}
