package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spotgrid/internal/config"
	"github.com/sells-group/spotgrid/internal/engine"
	"github.com/sells-group/spotgrid/internal/partition"
	"github.com/sells-group/spotgrid/internal/resilience"
	"github.com/sells-group/spotgrid/internal/rules"
	"github.com/sells-group/spotgrid/internal/store"
)

// initStore opens the configured backend and applies the schema.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var st store.Store
	switch strings.ToLower(c.Store.Driver) {
	case "sqlite":
		s, err := store.NewSQLite(c.Store.SQLitePath, store.SQLiteOptions{
			BusyTimeout: time.Duration(c.Store.BusyTimeoutMs) * time.Millisecond,
			LeaseTTL:    time.Duration(c.Store.LeaseTTLSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		s, err := store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns:    c.Store.MaxConns,
			MinConns:    c.Store.MinConns,
			LockTimeout: time.Duration(c.Store.LockTimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// rulesOptions maps the rules section onto the canonical rule thresholds.
func rulesOptions(c *config.Config) rules.Options {
	opts := rules.DefaultOptions()
	r := c.Rules
	if len(r.DirectResponsePatterns) > 0 {
		opts.DirectResponsePatterns = r.DirectResponsePatterns
	}
	if r.PaidProgrammingRevenueType != "" {
		opts.PaidProgrammingRevenueType = r.PaidProgrammingRevenueType
	}
	if r.NonprofitMinHours > 0 {
		opts.NonprofitMinDuration = time.Duration(r.NonprofitMinHours * float64(time.Hour))
	}
	if r.ExtendedMinHours > 0 {
		opts.ExtendedMinDuration = time.Duration(r.ExtendedMinHours * float64(time.Hour))
	}
	if len(r.MediaSectors) > 0 {
		opts.MediaSectors = r.MediaSectors
	}
	if len(r.NonprofitSectors) > 0 {
		opts.NonprofitSectors = r.NonprofitSectors
	}
	if len(r.GovernmentSectors) > 0 {
		opts.GovernmentSectors = r.GovernmentSectors
	}
	if c.Engine.BroadReachShare > 0 {
		opts.BroadReachShare = c.Engine.BroadReachShare
	}
	return opts
}

// loadRules returns the rule file's rules when one is configured, else the
// canonical set built from the configured thresholds.
func loadRules(c *config.Config, path string) ([]rules.Rule, error) {
	if path == "" {
		path = c.Rules.Path
	}
	if path != "" {
		return rules.LoadFile(path)
	}
	return rules.DefaultRules(rulesOptions(c)), nil
}

func buildRuleEngine(c *config.Config) (*rules.Engine, error) {
	rs, err := loadRules(c, "")
	if err != nil {
		return nil, err
	}
	return rules.NewEngine(rs)
}

func engineOptions(c *config.Config) (engine.Options, error) {
	tol, err := c.Engine.ToleranceAmount()
	if err != nil {
		return engine.Options{}, err
	}
	opts := engine.DefaultOptions()
	opts.BatchSize = c.Engine.BatchSize
	opts.Workers = c.Engine.Workers
	opts.CommitsPerSecond = c.Engine.CommitsPerSecond
	opts.ExcludeRevenueTypes = c.Engine.ExcludeRevenueTypes
	opts.BroadReachShare = c.Engine.BroadReachShare
	opts.Tolerance = tol
	if len(c.Engine.SponsorshipRevenueTypes) > 0 {
		opts.Partition = partition.Options{SponsorshipRevenueTypes: c.Engine.SponsorshipRevenueTypes}
	}
	// Zero fields fall back to resilience.DefaultRetryConfig when the retry runs.
	opts.Retry = resilience.RetryConfig{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:     c.Retry.Multiplier,
		JitterFraction: c.Retry.JitterFraction,
	}
	return opts, nil
}

// newEngine wires a store, the configured rules, and the engine options.
func newEngine(c *config.Config, st store.Store) (*engine.Engine, error) {
	re, err := buildRuleEngine(c)
	if err != nil {
		return nil, err
	}
	opts, err := engineOptions(c)
	if err != nil {
		return nil, err
	}
	return engine.New(st, re, opts), nil
}
