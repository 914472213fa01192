package engine

import (
	"errors"
	"fmt"

	"trading-profilev1/internal/strategy"
)

// Config holds the engine tuning parameters.
type Config struct {
	Symbol            string
	Capacity          int     // bars kept in the time series buffer
	PivotLeft         int     // older bars a pivot must beat
	PivotRight        int     // newer bars a pivot must beat
	BucketCount       int     // grouped profile buckets
	ValueAreaFraction float64 // share of volume inside the value area, (0, 1]
	Policy            strategy.Policy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Symbol:            "BTCUSDT",
		Capacity:          1000,
		PivotLeft:         47,
		PivotRight:        47,
		BucketCount:       27,
		ValueAreaFraction: 0.68,
		Policy:            strategy.ValueAreaReversion{},
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	var errs []error
	if c.PivotLeft < 0 || c.PivotRight < 0 {
		errs = append(errs, fmt.Errorf("pivot window must be non-negative, got left=%d right=%d", c.PivotLeft, c.PivotRight))
	}
	if need := c.PivotLeft + c.PivotRight + 1; c.Capacity < need {
		errs = append(errs, fmt.Errorf("capacity %d cannot hold a pivot window of %d bars", c.Capacity, need))
	}
	if c.BucketCount < 1 {
		errs = append(errs, fmt.Errorf("bucket count must be >= 1, got %d", c.BucketCount))
	}
	if c.ValueAreaFraction <= 0 || c.ValueAreaFraction > 1 {
		errs = append(errs, fmt.Errorf("value area fraction must be in (0, 1], got %g", c.ValueAreaFraction))
	}
	if c.Policy == nil {
		errs = append(errs, errors.New("signal policy is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("engine config: %w", errors.Join(errs...))
	}
	return nil
}
