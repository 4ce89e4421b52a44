package domain

import "github.com/pkg/errors"

var (
	// ErrInvalidInput is returned when user-supplied values fail validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPositionSettled is returned for mutations of a settled position.
	ErrPositionSettled = errors.New("position is settled")
	// ErrNotSettleable is returned when a position still holds shares or has no history.
	ErrNotSettleable = errors.New("position is not eligible for settlement")
	// ErrLedgerInconsistent reports a compounding sell without its ledger entry.
	ErrLedgerInconsistent = errors.New("compounding ledger entry is missing")
	// ErrPhaseReentry reports a second phase transition within one recompute.
	ErrPhaseReentry = errors.New("phase transition repeated within a single recompute")
)

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}
