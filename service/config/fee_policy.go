package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// feePolicyFile mirrors FeePolicy with optional fields so a file can override
// only the keys it sets.
type feePolicyFile struct {
	ComputeUnitPrice       *uint64  `yaml:"compute_unit_price"`
	ComputeUnitLimit       *uint32  `yaml:"compute_unit_limit"`
	PriorityFeeLamports    *uint64  `yaml:"priority_fee_lamports"`
	MinFeeBufferLamports   *uint64  `yaml:"min_fee_buffer_lamports"`
	DefaultSlippagePercent *float64 `yaml:"default_slippage_percent"`
}

// overlayFeePolicyFile reads a YAML fee policy and applies the keys it sets on top of p.
func overlayFeePolicyFile(path string, p *FeePolicy) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("FEE_POLICY_FILE: read %s: %w", path, err)
	}

	var file feePolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("FEE_POLICY_FILE: parse %s: %w", path, err)
	}

	if file.ComputeUnitPrice != nil {
		p.ComputeUnitPrice = *file.ComputeUnitPrice
	}
	if file.ComputeUnitLimit != nil {
		p.ComputeUnitLimit = *file.ComputeUnitLimit
	}
	if file.PriorityFeeLamports != nil {
		p.PriorityFeeLamports = *file.PriorityFeeLamports
	}
	if file.MinFeeBufferLamports != nil {
		p.MinFeeBufferLamports = *file.MinFeeBufferLamports
	}
	if file.DefaultSlippagePercent != nil {
		p.DefaultSlippagePercent = *file.DefaultSlippagePercent
	}
	return nil
}
