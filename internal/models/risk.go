package models

import (
	"strings"

	"github.com/pkg/errors"
)

type RiskMode string

const (
	RiskDollars RiskMode = "dollars"
	RiskTicks   RiskMode = "ticks"
)

func ParseRiskMode(raw string) (RiskMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "dollars", "usd", "currency":
		return RiskDollars, nil
	case "ticks":
		return RiskTicks, nil
	}
	return "", errors.Errorf("unknown risk mode %q", raw)
}

// RiskPlan is the protective bracket computed for one mirror action.
type RiskPlan struct {
	TakeProfitPrice float64
	StopLossPrice   float64
	TakeProfitTicks int
	StopLossTicks   int

	TakeProfitDollars float64
	StopLossDollars   float64
}
