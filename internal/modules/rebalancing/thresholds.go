package rebalancing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default materiality thresholds
const (
	// DefaultMinActionQuantity is the smallest share count worth trading
	DefaultMinActionQuantity = 5
	// DefaultMinActionValue is the smallest trade value worth executing
	DefaultMinActionValue = 500.0
	// DefaultRebalancingThresholdPercent is the turnover, as a percentage of
	// available funds, below which a rebalance is suppressed
	DefaultRebalancingThresholdPercent = 1.0
	// DefaultCashUtilizationRatio is the share of holdings value that idle
	// cash must exceed to relax buy thresholds
	DefaultCashUtilizationRatio = 0.001
)

// Thresholds controls which actions the generator emits
type Thresholds struct {
	MinActionQuantity           int64   `yaml:"min_action_quantity" json:"min_action_quantity"`
	MinActionValue              float64 `yaml:"min_action_value" json:"min_action_value"`
	RebalancingThresholdPercent float64 `yaml:"rebalancing_threshold_percent" json:"rebalancing_threshold_percent"`
	CashUtilizationRatio        float64 `yaml:"cash_utilization_ratio" json:"cash_utilization_ratio"`
}

// DefaultThresholds returns the built-in thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinActionQuantity:           DefaultMinActionQuantity,
		MinActionValue:              DefaultMinActionValue,
		RebalancingThresholdPercent: DefaultRebalancingThresholdPercent,
		CashUtilizationRatio:        DefaultCashUtilizationRatio,
	}
}

// Validate rejects non-positive thresholds
func (t Thresholds) Validate() error {
	if t.MinActionQuantity <= 0 {
		return fmt.Errorf("min_action_quantity must be positive, got %d", t.MinActionQuantity)
	}
	if t.MinActionValue <= 0 {
		return fmt.Errorf("min_action_value must be positive, got %v", t.MinActionValue)
	}
	if t.RebalancingThresholdPercent <= 0 {
		return fmt.Errorf("rebalancing_threshold_percent must be positive, got %v", t.RebalancingThresholdPercent)
	}
	if t.CashUtilizationRatio <= 0 {
		return fmt.Errorf("cash_utilization_ratio must be positive, got %v", t.CashUtilizationRatio)
	}
	return nil
}

// LoadThresholds reads a YAML override file on top of the defaults.
// Keys missing from the file keep their default value.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("failed to read thresholds file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("failed to parse thresholds file %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid thresholds in %s: %w", path, err)
	}
	return t, nil
}
