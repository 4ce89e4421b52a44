package tracker

import "github.com/pkg/errors"

var (
	errNoPriceSource = errors.New("no price source configured")
	errNoCloses      = errors.New("price source returned no closes")
)
