package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Phase is the position's trading mode.
type Phase int

const (
	PhaseNormal Phase = iota
	// PhaseQuarterCut suspends buying once nearly every tranche is deployed.
	PhaseQuarterCut
)

const noPhaseStart = -1

func (p Phase) String() string {
	switch p {
	case PhaseQuarterCut:
		return "quarter_cut"
	default:
		return "normal"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	parsed, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "normal", "":
		return PhaseNormal, nil
	case "quarter_cut":
		return PhaseQuarterCut, nil
	default:
		return PhaseNormal, errors.Errorf("unknown phase %q", s)
	}
}

// TransitionKind tells whether Evaluate moved the machine.
type TransitionKind int

const (
	TransitionNone TransitionKind = iota
	TransitionEnter
	TransitionExit
)

// ExitReason names the rule that ended a quarter-cut period.
type ExitReason string

const (
	ExitTwoSells           ExitReason = "two_sells"
	ExitMOCSell            ExitReason = "moc_sell"
	ExitSingleSellAboveCut ExitReason = "single_sell_above_stop"
)

// Transition describes the outcome of one Evaluate call.
type Transition struct {
	Kind   TransitionKind
	Reason ExitReason
}

// Changed reports whether the phase moved.
func (t Transition) Changed() bool {
	return t.Kind != TransitionNone
}

// PhaseState is the persisted part of the machine. StartIndex is the transaction
// count at quarter-cut entry and -1 while normal.
type PhaseState struct {
	Phase      Phase
	StartIndex int
}

// NormalState is the initial state.
func NormalState() PhaseState {
	return PhaseState{Phase: PhaseNormal, StartIndex: noPhaseStart}
}

// Shift moves the quarter-cut start when a transaction is inserted or removed at
// sorted index at. A fill landing on the start index belongs to the window.
func (s PhaseState) Shift(at, delta int) PhaseState {
	if s.Phase != PhaseQuarterCut || at >= s.StartIndex {
		return s
	}
	s.StartIndex += delta
	if s.StartIndex < 0 {
		s.StartIndex = 0
	}
	return s
}

// PhaseInput is everything the machine looks at. Transactions must be sorted.
type PhaseInput struct {
	Version         StrategyVersion
	DivisionCount   int
	TValue          decimal.Decimal
	TargetProfitPct decimal.Decimal
	AveragePrice    decimal.Decimal
	Transactions    []Transaction
}

// Evaluate applies at most one transition and returns the resulting state.
func (s PhaseState) Evaluate(in PhaseInput) (PhaseState, Transition) {
	count := len(in.Transactions)

	if s.Phase != PhaseQuarterCut {
		if in.Version.Supported() && decimal.NewFromInt(int64(in.DivisionCount)).Sub(in.TValue).LessThan(one) {
			return PhaseState{Phase: PhaseQuarterCut, StartIndex: count}, Transition{Kind: TransitionEnter}
		}
		return NormalState(), Transition{}
	}

	start := s.StartIndex
	if start < 0 || start > count {
		// the log shrank or the index was never recorded
		start = count
	}

	if reason, ok := exitReason(in.Transactions[start:], in.AveragePrice, in.TargetProfitPct); ok {
		return NormalState(), Transition{Kind: TransitionExit, Reason: reason}
	}

	return PhaseState{Phase: PhaseQuarterCut, StartIndex: start}, Transition{}
}

func exitReason(since []Transaction, avg, goal decimal.Decimal) (ExitReason, bool) {
	sells := 0
	moc := false
	for _, t := range since {
		if !t.IsSell() {
			continue
		}
		sells++
		if t.IsMOC() {
			moc = true
		}
	}

	switch {
	case sells >= 2:
		return ExitTwoSells, true
	case moc:
		return ExitMOCSell, true
	case len(since) == 1 && since[0].IsSell() && since[0].Price.GreaterThan(stopPrice(avg, goal)):
		return ExitSingleSellAboveCut, true
	}

	return "", false
}

// SellsSince counts sells at or after index start.
func SellsSince(txs []Transaction, start int) int {
	if start < 0 || start > len(txs) {
		return 0
	}
	n := 0
	for _, t := range txs[start:] {
		if t.IsSell() {
			n++
		}
	}
	return n
}

func stopPrice(avg, goal decimal.Decimal) decimal.Decimal {
	return avg.Mul(one.Sub(goal.Div(hundred)))
}
