package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// tuningFile is the YAML overlay. Only keys present in the file override the
// environment.
type tuningFile struct {
	Optimizer struct {
		RiskAversion       *float64 `yaml:"risk_aversion"`
		StepSize           *float64 `yaml:"step_size"`
		MaxIterations      *int     `yaml:"max_iterations"`
		Tolerance          *float64 `yaml:"tolerance"`
		Shrinkage          *float64 `yaml:"shrinkage"`
		WindowDays         *int     `yaml:"window_days"`
		SeedFromClosedForm *bool    `yaml:"closed_form_seed"`
	} `yaml:"optimizer"`
	Backtest struct {
		StartNAV        *float64 `yaml:"start_nav"`
		RebalanceDays   *int     `yaml:"rebalance_days"`
		CostBps         *float64 `yaml:"cost_bps"`
		FallbackPrice   *float64 `yaml:"fallback_price"`
		FallbackPolicy  *string  `yaml:"fallback_policy"`
		MaxMissingRatio *float64 `yaml:"max_missing_ratio"`
		TopN            *int     `yaml:"top_n"`
		SyntheticBars   *bool    `yaml:"synthetic_bars"`
		SyntheticSeed   *int64   `yaml:"synthetic_seed"`
	} `yaml:"backtest"`
	Retention struct {
		Schedule      *string `yaml:"schedule"`
		RunDays       *int    `yaml:"run_days"`
		BarDays       *int    `yaml:"bar_days"`
		CovarianceTTL *string `yaml:"covariance_ttl"`
	} `yaml:"retention"`
}

// ApplyTuningFile overlays the YAML file at path onto c.
func (c *Config) ApplyTuningFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}

	var t tuningFile
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("unmarshal tuning file: %w", err)
	}

	setFloat(&c.Optimizer.RiskAversion, t.Optimizer.RiskAversion)
	setFloat(&c.Optimizer.StepSize, t.Optimizer.StepSize)
	setInt(&c.Optimizer.MaxIterations, t.Optimizer.MaxIterations)
	setFloat(&c.Optimizer.Tolerance, t.Optimizer.Tolerance)
	setFloat(&c.Optimizer.Shrinkage, t.Optimizer.Shrinkage)
	setInt(&c.Optimizer.WindowDays, t.Optimizer.WindowDays)
	if t.Optimizer.SeedFromClosedForm != nil {
		c.Optimizer.SeedFromClosedForm = *t.Optimizer.SeedFromClosedForm
	}

	setFloat(&c.Backtest.StartNAV, t.Backtest.StartNAV)
	setInt(&c.Backtest.RebalanceDays, t.Backtest.RebalanceDays)
	setFloat(&c.Backtest.CostBps, t.Backtest.CostBps)
	setFloat(&c.Backtest.FallbackPrice, t.Backtest.FallbackPrice)
	if t.Backtest.FallbackPolicy != nil {
		c.Backtest.FallbackPolicy = *t.Backtest.FallbackPolicy
	}
	setFloat(&c.Backtest.MaxMissingRatio, t.Backtest.MaxMissingRatio)
	setInt(&c.Backtest.TopN, t.Backtest.TopN)
	if t.Backtest.SyntheticBars != nil {
		c.Backtest.SyntheticBars = *t.Backtest.SyntheticBars
	}
	if t.Backtest.SyntheticSeed != nil {
		c.Backtest.SyntheticSeed = *t.Backtest.SyntheticSeed
	}

	if t.Retention.Schedule != nil {
		c.Retention.Schedule = *t.Retention.Schedule
	}
	setInt(&c.Retention.RunDays, t.Retention.RunDays)
	setInt(&c.Retention.BarDays, t.Retention.BarDays)
	if t.Retention.CovarianceTTL != nil {
		ttl, err := time.ParseDuration(*t.Retention.CovarianceTTL)
		if err != nil {
			return fmt.Errorf("parse covariance_ttl: %w", err)
		}
		c.Retention.CovarianceTTL = ttl
	}

	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
