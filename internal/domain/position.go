package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultDivisionCount = 20
	settlementDateLayout = "2006-01-02"
)

var (
	// DefaultTargetProfitPct is applied when a position is created without a goal.
	DefaultTargetProfitPct = decimal.NewFromInt(15)
	// DefaultCompoundingRate is the share of sell profit reinvested by version 3.0 positions.
	DefaultCompoundingRate = decimal.RequireFromString("0.5")
)

// Position is one tracked ticker run with the infinite-buy strategy.
// Quantity, AveragePrice, Profit and CashBalance are caches of the transaction log fold.
type Position struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Version         StrategyVersion `json:"version"`
	Capital         decimal.Decimal `json:"capital"`
	InitialCapital  decimal.Decimal `json:"initial_capital"`
	DivisionCount   int             `json:"division_count"`
	PerTradeAmount  decimal.Decimal `json:"per_trade_amount"`
	TargetProfitPct decimal.Decimal `json:"target_profit_pct"`
	CompoundingRate decimal.Decimal `json:"compounding_rate"`

	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	Profit       decimal.Decimal `json:"profit"`
	CashBalance  decimal.Decimal `json:"cash_balance"`

	Phase           Phase `json:"phase"`
	PhaseStartIndex int   `json:"phase_start_index"`

	Settled   bool       `json:"settled"`
	SettledAt *time.Time `json:"settled_at,omitempty"`

	SplitRatio decimal.Decimal `json:"split_ratio"`
	Splits     []StockSplit    `json:"splits,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPosition validates the parameters and returns an empty position in the normal phase.
func NewPosition(name string, version StrategyVersion, capital decimal.Decimal, divisionCount int,
	targetProfitPct, compoundingRate decimal.Decimal) (*Position, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("position name is required")
	}
	if !version.Supported() {
		return nil, invalidf("unsupported strategy version %q", version)
	}
	if capital.IsNegative() {
		return nil, invalidf("capital must be non-negative, got %s", capital)
	}
	if divisionCount < 1 {
		return nil, invalidf("division count must be at least 1, got %d", divisionCount)
	}
	if !targetProfitPct.IsPositive() {
		return nil, invalidf("target profit must be positive, got %s", targetProfitPct)
	}
	if compoundingRate.IsNegative() || compoundingRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, invalidf("compounding rate must be within [0, 1], got %s", compoundingRate)
	}

	now := time.Now().UTC()
	p := &Position{
		Name:            name,
		Version:         version,
		InitialCapital:  capital,
		DivisionCount:   divisionCount,
		TargetProfitPct: targetProfitPct,
		CompoundingRate: compoundingRate,
		Phase:           PhaseNormal,
		PhaseStartIndex: noPhaseStart,
		SplitRatio:      decimal.NewFromInt(1),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	p.SetCapital(capital)

	return p, nil
}

// SetCapital changes the allocated capital and keeps the per-trade amount in step with it.
func (p *Position) SetCapital(capital decimal.Decimal) {
	p.Capital = capital
	p.PerTradeAmount = perTrade(capital, p.DivisionCount)
}

func perTrade(capital decimal.Decimal, divisionCount int) decimal.Decimal {
	if divisionCount < 1 {
		return decimal.Zero
	}
	return capital.Div(decimal.NewFromInt(int64(divisionCount)))
}

// ApplyValuation stores the fold result on the position.
func (p *Position) ApplyValuation(v Valuation) {
	p.Quantity = v.Quantity
	p.AveragePrice = v.AveragePrice
	p.Profit = v.Profit
	p.CashBalance = v.CashBalance
}

// ApplyPhase is the only writer of the phase fields.
func (p *Position) ApplyPhase(s PhaseState) {
	p.Phase = s.Phase
	p.PhaseStartIndex = s.StartIndex
}

// PhaseState returns the phase fields as a state machine value.
func (p *Position) PhaseState() PhaseState {
	return PhaseState{Phase: p.Phase, StartIndex: p.PhaseStartIndex}
}

// BaseTicker strips the settlement annotation from the name.
func (p *Position) BaseTicker() string {
	return BaseTicker(p.Name)
}

// BaseTicker returns the part of a position name before the first "(".
func BaseTicker(name string) string {
	if i := strings.Index(name, "("); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// SettlementName annotates the ticker with the close date.
func (p *Position) SettlementName(date time.Time) string {
	return fmt.Sprintf("%s(%s settled)", p.BaseTicker(), date.Format(settlementDateLayout))
}

// Settle marks the position closed. It does not check eligibility.
func (p *Position) Settle(date time.Time) {
	d := DateOf(date)
	p.Name = p.SettlementName(d)
	p.Settled = true
	p.SettledAt = &d
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	if p.Splits != nil {
		c.Splits = append([]StockSplit(nil), p.Splits...)
	}
	if p.SettledAt != nil {
		t := *p.SettledAt
		c.SettledAt = &t
	}
	return &c
}

// PositionPatch is a partial update. Nil fields are left untouched.
type PositionPatch struct {
	Name            *string
	Capital         *decimal.Decimal
	PerTradeAmount  *decimal.Decimal
	Quantity        *decimal.Decimal
	AveragePrice    *decimal.Decimal
	Profit          *decimal.Decimal
	CashBalance     *decimal.Decimal
	Phase           *Phase
	PhaseStartIndex *int
	Settled         *bool
	SettledAt       *time.Time
	SplitRatio      *decimal.Decimal
	Splits          []StockSplit
}

// Apply writes the non-nil fields into p.
func (pp PositionPatch) Apply(p *Position) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Capital != nil {
		p.Capital = *pp.Capital
	}
	if pp.PerTradeAmount != nil {
		p.PerTradeAmount = *pp.PerTradeAmount
	}
	if pp.Quantity != nil {
		p.Quantity = *pp.Quantity
	}
	if pp.AveragePrice != nil {
		p.AveragePrice = *pp.AveragePrice
	}
	if pp.Profit != nil {
		p.Profit = *pp.Profit
	}
	if pp.CashBalance != nil {
		p.CashBalance = *pp.CashBalance
	}
	if pp.Phase != nil {
		p.Phase = *pp.Phase
	}
	if pp.PhaseStartIndex != nil {
		p.PhaseStartIndex = *pp.PhaseStartIndex
	}
	if pp.Settled != nil {
		p.Settled = *pp.Settled
	}
	if pp.SettledAt != nil {
		t := *pp.SettledAt
		p.SettledAt = &t
	}
	if pp.SplitRatio != nil {
		p.SplitRatio = *pp.SplitRatio
	}
	if pp.Splits != nil {
		p.Splits = append([]StockSplit(nil), pp.Splits...)
	}
	p.UpdatedAt = time.Now().UTC()
}

// FullPatch captures every mutable field of p.
func FullPatch(p *Position) PositionPatch {
	name, capital, perTrade := p.Name, p.Capital, p.PerTradeAmount
	qty, avg, profit, cash := p.Quantity, p.AveragePrice, p.Profit, p.CashBalance
	phase, start := p.Phase, p.PhaseStartIndex
	settled, ratio := p.Settled, p.SplitRatio
	splits := p.Splits
	if splits == nil {
		splits = []StockSplit{}
	}

	return PositionPatch{
		Name:            &name,
		Capital:         &capital,
		PerTradeAmount:  &perTrade,
		Quantity:        &qty,
		AveragePrice:    &avg,
		Profit:          &profit,
		CashBalance:     &cash,
		Phase:           &phase,
		PhaseStartIndex: &start,
		Settled:         &settled,
		SettledAt:       p.SettledAt,
		SplitRatio:      &ratio,
		Splits:          splits,
	}
}
