package setup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/services/tracker"
)

var (
	labelStyle   = lipgloss.NewStyle().Foreground(subtle).Width(16)
	valueStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(highlight).Bold(true).MarginTop(1)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(highlight).Padding(0, 1)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// RenderReport draws a position summary followed by its order ladders.
func RenderReport(r *tracker.GuidanceReport) string {
	snap := r.Snapshot
	p := snap.Position

	summary := []string{
		row("Ticker", p.Name),
		row("Version", p.Version.String()),
		row("Phase", snap.Phase.String()),
		row("Capital", money(p.Capital)),
		row("Per trade", money(p.PerTradeAmount)),
		row("Quantity", snap.Valuation.Quantity.String()),
		row("Average", snap.Valuation.AveragePrice.StringFixed(4)),
		row("T", fmt.Sprintf("%s / %d", snap.TValue.String(), p.DivisionCount)),
		row("Profit", money(snap.Valuation.Profit)),
		row("Cash", money(snap.Valuation.CashBalance)),
	}
	if !r.PreviousClose.IsZero() {
		summary = append(summary, row("Prev close", money(r.PreviousClose)))
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(strings.ToUpper(p.Name)))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(strings.Join(summary, "\n")))
	b.WriteString("\n")

	g := r.Guidance
	if g.Stage != "" && g.Stage != domain.StageEmpty {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Stage %s, star %s%% at %s",
			g.Stage, g.PerStarDisplay.String(), money(g.StarPrice))))
		b.WriteString("\n")
	}
	b.WriteString(renderLadder("BUY", g.Buy))
	b.WriteString(renderLadder("SELL", g.Sell))

	for _, w := range r.Warnings {
		b.WriteString(warnStyle.Render("! " + w))
		b.WriteString("\n")
	}
	return b.String()
}

func renderLadder(title string, rungs []domain.Rung) string {
	if len(rungs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(rungs))
	for _, r := range rungs {
		if r.Insufficient {
			lines = append(lines, warnStyle.Render(fmt.Sprintf("%-13s %-5s insufficient capital", r.Kind, r.OrderType)))
			continue
		}
		price := money(r.Price)
		if r.OrderType == domain.OrderMOC {
			price = "market"
		}
		lines = append(lines, fmt.Sprintf("%-13s %-5s %10s x %s", r.Kind, r.OrderType, price, r.Quantity.String()))
	}
	return sectionStyle.Render(title) + "\n" + strings.Join(lines, "\n") + "\n"
}
