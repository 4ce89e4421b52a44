// Package setup holds the terminal forms for creating positions and entering trades.
package setup

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/services/tracker"
)

const dateLayout = "2006-01-02"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F87"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// ErrCancelled is returned when the user declines the confirmation step.
var ErrCancelled = errors.New("cancelled by user")

func clearScreen(title string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(title))
}

// positionForm holds the raw strings typed into the create form.
type positionForm struct {
	Name            string
	Version         string
	Capital         string
	DivisionCount   string
	TargetProfitPct string
	CompoundingRate string
}

func (f positionForm) request() (tracker.NewPositionRequest, error) {
	req := tracker.NewPositionRequest{
		Name:    strings.TrimSpace(f.Name),
		Version: f.Version,
	}

	capital, err := decimal.NewFromString(strings.TrimSpace(f.Capital))
	if err != nil {
		return req, fmt.Errorf("incorrect capital %q: %w", f.Capital, err)
	}
	req.Capital = capital

	if s := strings.TrimSpace(f.DivisionCount); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return req, fmt.Errorf("incorrect division count %q (must be an integer): %w", s, err)
		}
		req.DivisionCount = n
	}
	if s := strings.TrimSpace(f.TargetProfitPct); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return req, fmt.Errorf("incorrect target profit %q: %w", s, err)
		}
		req.TargetProfitPct = &d
	}
	if s := strings.TrimSpace(f.CompoundingRate); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return req, fmt.Errorf("incorrect compounding rate %q: %w", s, err)
		}
		req.CompoundingRate = &d
	}
	return req, nil
}

// RunCreatePosition asks for the position parameters. Fields left at the shown
// defaults are sent as typed.
func RunCreatePosition(defaults tracker.Defaults) (tracker.NewPositionRequest, error) {
	form := positionForm{
		Version:         defaults.Version.String(),
		Capital:         "10000",
		DivisionCount:   strconv.Itoa(defaults.DivisionCount),
		TargetProfitPct: defaults.TargetProfitPct.String(),
		CompoundingRate: defaults.CompoundingRate.String(),
	}
	var confirm bool

	clearScreen("INFBUY NEW POSITION")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("One ticker, one capital, one ladder.\n"))

	fmt.Println(stepStyle.Render("STEP 1: TICKER AND STRATEGY"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Ticker").
				Description("e.g. TQQQ, SOXL or BTCUSDT").
				Value(&form.Name).
				Validate(validateName),
			huh.NewSelect[string]().
				Title("Strategy version").
				Options(
					huh.NewOption("2.2", domain.Version22.String()),
					huh.NewOption("3.0 (compounding)", domain.Version30.String()),
				).
				Value(&form.Version),
		),
	).Run()
	if err != nil {
		return tracker.NewPositionRequest{}, err
	}

	clearScreen("INFBUY NEW POSITION")
	fmt.Println(stepStyle.Render("STEP 2: CAPITAL"))
	fields := []huh.Field{
		huh.NewInput().
			Title("Capital").
			Description("Total allocation for this ticker").
			Value(&form.Capital).
			Validate(validateNonNegative),
		huh.NewInput().
			Title("Division count").
			Description("Number of tranches (e.g. 20 or 40)").
			Value(&form.DivisionCount).
			Validate(validateDivisions),
		huh.NewInput().
			Title("Target profit %").
			Value(&form.TargetProfitPct).
			Validate(validatePositive),
	}
	if form.Version == domain.Version30.String() {
		fields = append(fields, huh.NewInput().
			Title("Compounding rate").
			Description("Share of realized profit added to capital (0-1)").
			Value(&form.CompoundingRate).
			Validate(validateRate))
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return tracker.NewPositionRequest{}, err
	}

	clearScreen("INFBUY NEW POSITION")
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))
	summary := fmt.Sprintf("Ticker: %s\nVersion: %s\nCapital: %s\nDivisions: %s\nTarget: %s%%\n",
		form.Name, form.Version, form.Capital, form.DivisionCount, form.TargetProfitPct)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Create position?").
				Affirmative("Yes, create").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return tracker.NewPositionRequest{}, err
	}
	if !confirm {
		return tracker.NewPositionRequest{}, ErrCancelled
	}

	return form.request()
}

// tradeForm holds the raw strings typed into the trade form.
type tradeForm struct {
	Type     string
	Quantity string
	Price    string
	Fee      string
	Date     string
	Memo     string
}

func (f tradeForm) request() (tracker.NewTransactionRequest, error) {
	var req tracker.NewTransactionRequest
	req.Type = domain.TxType(f.Type)
	req.Memo = strings.TrimSpace(f.Memo)

	var err error
	if req.Quantity, err = decimal.NewFromString(strings.TrimSpace(f.Quantity)); err != nil {
		return req, fmt.Errorf("incorrect quantity %q: %w", f.Quantity, err)
	}
	if req.Price, err = decimal.NewFromString(strings.TrimSpace(f.Price)); err != nil {
		return req, fmt.Errorf("incorrect price %q: %w", f.Price, err)
	}
	if s := strings.TrimSpace(f.Fee); s != "" {
		if req.Fee, err = decimal.NewFromString(s); err != nil {
			return req, fmt.Errorf("incorrect fee %q: %w", s, err)
		}
	}
	if req.Date, err = time.Parse(dateLayout, strings.TrimSpace(f.Date)); err != nil {
		return req, fmt.Errorf("incorrect date %q (must be YYYY-MM-DD): %w", f.Date, err)
	}
	return req, nil
}

// RunTradeForm asks for one fill of the named position.
func RunTradeForm(name string, today time.Time) (tracker.NewTransactionRequest, error) {
	form := tradeForm{
		Type: string(domain.TxBuy),
		Fee:  "0",
		Date: today.Format(dateLayout),
	}

	clearScreen("INFBUY TRADE: " + name)
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Side").
				Options(
					huh.NewOption("Buy", string(domain.TxBuy)),
					huh.NewOption("Sell", string(domain.TxSell)),
				).
				Value(&form.Type),
			huh.NewInput().
				Title("Quantity").
				Value(&form.Quantity).
				Validate(validatePositive),
			huh.NewInput().
				Title("Price").
				Value(&form.Price).
				Validate(validatePositive),
			huh.NewInput().
				Title("Fee").
				Value(&form.Fee).
				Validate(validateNonNegative),
			huh.NewInput().
				Title("Trade date").
				Description("YYYY-MM-DD").
				Value(&form.Date).
				Validate(validateDate),
			huh.NewInput().
				Title("Memo").
				Description("Type MOC for a market-on-close quarter sell").
				Value(&form.Memo),
		),
	).Run()
	if err != nil {
		return tracker.NewTransactionRequest{}, err
	}

	return form.request()
}

func validateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("ticker cannot be empty")
	}
	return nil
}

func validatePositive(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be greater than 0")
	}
	return nil
}

func validateNonNegative(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateRate(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateDivisions(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func validateDate(s string) error {
	if _, err := time.Parse(dateLayout, strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("must be YYYY-MM-DD")
	}
	return nil
}
