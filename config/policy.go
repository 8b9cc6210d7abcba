package config

import (
	"log"
	"time"

	"github.com/cppla/challengehub/services/cadence"
	"github.com/cppla/challengehub/services/payout"
	"github.com/cppla/challengehub/services/revenue"
)

// Location resolves the configured default timezone, falling back to server local time.
func (c AppConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("unknown timezone %q, using local time: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}

// EnginePolicy builds the cadence policy handed to the submission service.
func (c AppConfig) EnginePolicy() *cadence.Policy {
	return cadence.NewPolicy(c.Location())
}

// RevenuePolicy builds the immutable settlement policy handed to the revenue service.
func (c AppConfig) RevenuePolicy() revenue.Policy {
	return revenue.Policy{
		CreatorShareBps:   c.CreatorShareBps,
		MaxRetries:        c.RevenueMaxRetries,
		BackoffBase:       time.Duration(c.RevenueBackoffBaseSec) * time.Second,
		BackoffMax:        time.Duration(c.RevenueBackoffMaxSec) * time.Second,
		BatchDelay:        time.Duration(c.RevenueBatchDelayMs) * time.Millisecond,
		TransferTimeout:   time.Duration(c.PayoutTimeoutSec) * time.Second,
		LeaseDuration:     time.Duration(c.RevenueLeaseSec) * time.Second,
		PendingStaleAfter: time.Duration(c.RevenuePendingStaleSec) * time.Second,
		Currency:          c.Currency,
	}
}

// PayoutConfig configures the payout provider client.
func (c AppConfig) PayoutConfig() payout.Config {
	return payout.Config{
		BaseURL:      c.PayoutBaseURL,
		ClientID:     c.PayoutClientID,
		ClientSecret: c.PayoutClientSecret,
		TokenURL:     c.PayoutTokenURL,
		Timeout:      time.Duration(c.PayoutTimeoutSec) * time.Second,
	}
}

// LeaderboardTTL is how long a computed leaderboard stays cached.
func (c AppConfig) LeaderboardTTL() time.Duration {
	return time.Duration(c.LeaderboardCacheTTLSec) * time.Second
}
