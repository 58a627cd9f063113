package decay

import "testing"

func TestRecencyScoreAtHalfLifeIsOneHalf(t *testing.T) {
	c := &Config{HalfLifeHours: 24}
	got := c.RecencyScore(24)
	if diff := got - 0.5; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected ~0.5 at half-life, got %f", got)
	}
}

func TestRecencyScoreAtZeroIsOne(t *testing.T) {
	c := DefaultConfig()
	if got := c.RecencyScore(0); got != 1.0 {
		t.Errorf("expected 1.0 at zero elapsed hours, got %f", got)
	}
}

func TestRecencyScoreClampsNegativeElapsed(t *testing.T) {
	c := DefaultConfig()
	if got := c.RecencyScore(-5); got != 1.0 {
		t.Errorf("expected negative elapsed to clamp to 0 hours (score 1.0), got %f", got)
	}
}

func TestRecencyScoreDecaysMonotonically(t *testing.T) {
	c := DefaultConfig()
	s1 := c.RecencyScore(1)
	s2 := c.RecencyScore(48)
	s3 := c.RecencyScore(500)
	if !(s1 > s2 && s2 > s3) {
		t.Errorf("expected monotonic decay, got %f, %f, %f", s1, s2, s3)
	}
}

func TestHalfLifeReflectsConfig(t *testing.T) {
	c := &Config{HalfLifeHours: 48}
	if got := c.HalfLife(); got != 48 {
		t.Errorf("expected 48, got %f", got)
	}
}
