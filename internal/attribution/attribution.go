// Package attribution estimates advisory and underwriting fees from a
// fail-fast JSON configuration, mirroring the original implementation's
// requirement that fee calculations never silently run on defaults that
// were never actually reviewed for the current market.
package attribution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/store"
)

// Config is the parsed attribution_config.json.
type Config struct {
	AdvisoryFeeBps     map[string]float64            `json:"advisory_fee_bps"`
	UnderwritingFeeBps map[string]float64            `json:"underwriting_fee_bps"`
	RoleSplits         map[string]map[string]float64 `json:"role_splits"`
	Thresholds         map[string]float64             `json:"thresholds"`
}

// LoadAttributionConfig reads and validates path, failing fast if the file
// is missing, malformed, or missing a required top-level section. Fee
// estimation must never silently fall back to hardcoded defaults.
func LoadAttributionConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("attribution: config not found at %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("attribution: invalid JSON in %s: %w", path, err)
	}

	if cfg.AdvisoryFeeBps == nil {
		return nil, fmt.Errorf("attribution: %s missing required field advisory_fee_bps", path)
	}
	if cfg.UnderwritingFeeBps == nil {
		return nil, fmt.Errorf("attribution: %s missing required field underwriting_fee_bps", path)
	}
	if cfg.RoleSplits == nil {
		return nil, fmt.Errorf("attribution: %s missing required field role_splits", path)
	}
	if cfg.Thresholds == nil {
		return nil, fmt.Errorf("attribution: %s missing required field thresholds", path)
	}
	if _, ok := cfg.AdvisoryFeeBps["default"]; !ok {
		return nil, fmt.Errorf("attribution: %s advisory_fee_bps missing required key \"default\"", path)
	}

	return &cfg, nil
}

// Engine calculates fee estimates and participant allocations against a
// loaded Config.
type Engine struct {
	Store  store.Store
	Config *Config
}

func New(s store.Store, cfg *Config) *Engine {
	return &Engine{Store: s, Config: cfg}
}

// DealFees is the result of CalculateDealFees.
type DealFees struct {
	AdvisoryFeeUSD      *float64
	UnderwritingFeeUSD  float64
}

// CalculateDealFees estimates the advisory fee on deal value and sums the
// underwriting fee across every financing event attached to the deal,
// persisting both estimates onto the Deal.
func (e *Engine) CalculateDealFees(ctx context.Context, deal *models.Deal) (DealFees, error) {
	var result DealFees

	if deal.DealValueUSD != nil {
		bps := e.advisoryBps(*deal.DealValueUSD)
		fee := *deal.DealValueUSD * (bps / 10000)
		result.AdvisoryFeeUSD = &fee
		deal.AdvisoryFeeEstimatedUSD = &fee
	}

	events, err := e.Store.ListFinancingEventsByDeal(ctx, deal.ID)
	if err != nil {
		return result, fmt.Errorf("attribution: list financing events: %w", err)
	}

	var totalUnderwriting float64
	for _, ev := range events {
		fee := e.eventFee(ev)
		ev.EstimatedFeeUSD = &fee
		if err := e.Store.UpdateFinancingEvent(ctx, ev); err != nil {
			return result, fmt.Errorf("attribution: update financing event fee: %w", err)
		}
		totalUnderwriting += fee
	}
	result.UnderwritingFeeUSD = totalUnderwriting
	deal.UnderwritingFeeEstimatedUSD = &totalUnderwriting

	if err := e.Store.UpdateDeal(ctx, deal); err != nil {
		return result, fmt.Errorf("attribution: update deal fees: %w", err)
	}
	return result, nil
}

// ParticipantAllocation is one bank's estimated share of an event's fee.
type ParticipantAllocation struct {
	ParticipantID  int64
	BankName       string
	Role           string
	RoleNormalized models.CanonicalRole
	FeeUSD         float64
}

// CalculateEventFee computes the event's total fee and its per-participant
// role-weighted allocation.
func (e *Engine) CalculateEventFee(ctx context.Context, ev *models.FinancingEvent) (float64, []ParticipantAllocation, error) {
	fee := e.eventFee(ev)
	ev.EstimatedFeeUSD = &fee
	if err := e.Store.UpdateFinancingEvent(ctx, ev); err != nil {
		return 0, nil, fmt.Errorf("attribution: update financing event fee: %w", err)
	}

	allocations, err := e.allocateToParticipants(ctx, ev, fee)
	if err != nil {
		return fee, nil, err
	}
	return fee, allocations, nil
}

func (e *Engine) advisoryBps(dealValue float64) float64 {
	cfg := e.Config.AdvisoryFeeBps
	switch {
	case dealValue >= 5_000_000_000:
		if bps, ok := cfg["deal_size_over_5B"]; ok {
			return bps
		}
	case dealValue >= 1_000_000_000:
		if bps, ok := cfg["deal_size_over_1B"]; ok {
			return bps
		}
	}
	return cfg["default"]
}

func (e *Engine) underwritingBps(marketTag string) float64 {
	cfg := e.Config.UnderwritingFeeBps
	if bps, ok := cfg[marketTag]; ok {
		return bps
	}
	if bps, ok := cfg["Unknown"]; ok {
		return bps
	}
	return 100
}

func (e *Engine) eventFee(ev *models.FinancingEvent) float64 {
	if ev.AmountUSD == nil || *ev.AmountUSD == 0 {
		return 0
	}
	marketTag := string(ev.MarketTag)
	if marketTag == "" {
		marketTag = string(models.MarketTagUnknown)
	}
	bps := e.underwritingBps(marketTag)
	return *ev.AmountUSD * (bps / 10000)
}

// allocateToParticipants splits totalFee across an event's participants by
// role weight, following the fallback chain role -> "other" -> even split
// across all participants when no weight configuration applies at all.
func (e *Engine) allocateToParticipants(ctx context.Context, ev *models.FinancingEvent, totalFee float64) ([]ParticipantAllocation, error) {
	if totalFee == 0 || len(ev.Participants) == 0 {
		return nil, nil
	}

	instrumentFamily := ev.InstrumentFamily
	if instrumentFamily == "" {
		instrumentFamily = "loan"
	}
	roleSplits := e.Config.RoleSplits[instrumentFamily]

	weights := make([]float64, len(ev.Participants))
	var totalWeight float64
	for i, p := range ev.Participants {
		role := string(p.RoleNormalized)
		if role == "" {
			role = "other"
		}
		weight, ok := roleSplits[role]
		if !ok {
			weight = roleSplits["other"]
		}
		weights[i] = weight
		totalWeight += weight
	}

	allocations := make([]ParticipantAllocation, len(ev.Participants))
	for i, p := range ev.Participants {
		var share float64
		if totalWeight > 0 {
			p.RoleWeight = weights[i]
			share = totalFee * (weights[i] / totalWeight)
		} else {
			share = totalFee / float64(len(ev.Participants))
		}
		p.EstimatedFeeUSD = &share
		if err := e.Store.UpdateParticipant(ctx, p); err != nil {
			return nil, fmt.Errorf("attribution: update participant fee: %w", err)
		}

		allocations[i] = ParticipantAllocation{
			ParticipantID:  p.ID,
			BankName:       p.BankNameRaw,
			Role:           p.Role,
			RoleNormalized: p.RoleNormalized,
			FeeUSD:         share,
		}
	}
	return allocations, nil
}
