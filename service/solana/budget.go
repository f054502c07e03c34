package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

// LamportsPerSignature is the base fee charged per transaction signature.
const LamportsPerSignature uint64 = 5000

// FeeBudget is the compute budget attached to every transaction we build.
type FeeBudget struct {
	ComputeUnitPrice    uint64 // micro-lamports per compute unit
	ComputeUnitLimit    uint32
	PriorityFeeLamports uint64 // prioritization fee requested from the swap builder
}

// Instructions returns the compute-budget instructions: limit first, then price.
func (b FeeBudget) Instructions() ([]solana.Instruction, error) {
	limit, err := computebudget.NewSetComputeUnitLimitInstruction(b.ComputeUnitLimit).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build compute unit limit instruction: %w", err)
	}
	price, err := computebudget.NewSetComputeUnitPriceInstruction(b.ComputeUnitPrice).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build compute unit price instruction: %w", err)
	}
	return []solana.Instruction{limit, price}, nil
}

// EstimatedFeeLamports is the worst-case fee for a transaction with the given
// number of signatures that consumes its full compute unit limit.
func (b FeeBudget) EstimatedFeeLamports(signatures int) uint64 {
	if signatures < 1 {
		signatures = 1
	}
	priority := (b.ComputeUnitPrice*uint64(b.ComputeUnitLimit) + 999_999) / 1_000_000
	return LamportsPerSignature*uint64(signatures) + priority
}

// FeeBudgetPolicy hands out the configured budget. It never fails at request
// time; invalid values are rejected when configuration is loaded.
type FeeBudgetPolicy struct {
	budget FeeBudget
}

// NewFeeBudgetPolicy creates a policy returning budget on every call.
func NewFeeBudgetPolicy(budget FeeBudget) *FeeBudgetPolicy {
	return &FeeBudgetPolicy{budget: budget}
}

// Budget returns the fee budget.
func (p *FeeBudgetPolicy) Budget() FeeBudget {
	return p.budget
}
