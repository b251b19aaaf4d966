package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *FeedConfig) Validate() error {
	if c.API.KeyID == "" {
		return errors.New("api.key_id is required")
	}
	if c.API.Secret == "" {
		return errors.New("api.secret is required")
	}
	if c.API.Feed != "iex" && c.API.Feed != "sip" {
		return fmt.Errorf("api.feed must be iex or sip, got %q", c.API.Feed)
	}
	if c.API.RateLimit < 1 {
		return errors.New("api.rate_limit must be >= 1")
	}

	if len(c.Watchlist.Symbols) == 0 {
		return errors.New("watchlist.symbols must not be empty")
	}

	if c.Stream.MaxReconnectAttempts < 1 {
		return errors.New("stream.max_reconnect_attempts must be >= 1")
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	if c.Poller.OffHoursFactor < 1 {
		return errors.New("poller.off_hours_factor must be >= 1")
	}
	if c.Poller.FallbackInterval > c.Poller.HealthyInterval {
		return errors.New("poller.fallback_interval cannot exceed healthy_interval")
	}

	if c.Indicators.MinSampleDays > c.Indicators.LookbackDays {
		return errors.New("indicators.min_sample_days cannot exceed lookback_days")
	}
	if c.Indicators.ORBTier1Volume > c.Indicators.ORBTier2Volume {
		return errors.New("indicators.orb_tier1_volume cannot exceed orb_tier2_volume")
	}

	if c.Backfill.Days < c.Indicators.LookbackDays {
		return fmt.Errorf("backfill.days (%d) must cover indicators.lookback_days (%d)",
			c.Backfill.Days, c.Indicators.LookbackDays)
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
