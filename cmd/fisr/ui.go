package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sawpanic/fisr/internal/application"
	"github.com/sawpanic/fisr/internal/domain"
	httpContracts "github.com/sawpanic/fisr/internal/http"
	"github.com/sawpanic/fisr/internal/persistence"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		MarginBottom(1)

	panelStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280")).
		Width(18)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	haltStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B"))

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func field(label, value string) string {
	return labelStyle.Render(label) + value
}

// renderTable draws rows under headers with numeric columns right-aligned
func renderTable(headers []string, rows [][]string, numeric map[int]bool) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if numeric[col] {
				return cellStyle.Align(lipgloss.Right)
			}
			return cellStyle
		})
	return t.String()
}

func renderStatus(p httpContracts.PortfolioResponse, logs []persistence.LogEntry) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("fisr status as of %s", p.AsOf.Format("2006-01-02 15:04:05 MST"))))
	b.WriteString("\n")

	trading := okStyle.Render("TRADING")
	if p.Halted {
		trading = haltStyle.Render("HALTED")
	}
	lines := []string{
		field("Kill switch", fmt.Sprintf("%.0f  %s", p.KillSwitch, trading)),
		field("Target duration", fmt.Sprintf("%.2f", p.TargetDuration)),
		field("Book duration", fmt.Sprintf("%.2f", p.CurrentDuration)),
	}
	if p.SignalTarget != nil {
		lines = append(lines, field("Last signal", fmt.Sprintf("target %.2f", *p.SignalTarget)))
	} else {
		lines = append(lines, field("Last signal", "none"))
	}
	lines = append(lines,
		field("Market value", "$"+application.FormatMoney(p.MarketValue)),
		field("Cash", "$"+application.FormatMoney(p.Cash)),
		field("Equity", "$"+application.FormatMoney(p.Equity)),
	)
	if p.PriceError != "" {
		lines = append(lines, field("Prices", warnStyle.Render(p.PriceError)))
	}
	b.WriteString(panelStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	if len(p.Positions) == 0 {
		b.WriteString("No open positions\n")
	} else {
		rows := make([][]string, 0, len(p.Positions))
		for _, pos := range p.Positions {
			price, mv, weight := "-", "-", "-"
			if pos.Priced {
				price = fmt.Sprintf("%.2f", pos.Price)
				mv = application.FormatMoney(pos.MarketValue)
				weight = fmt.Sprintf("%.1f%%", pos.Weight*100)
			}
			rows = append(rows, []string{
				pos.Ticker, fmt.Sprintf("%.2f", pos.Quantity), price, mv, weight, fmt.Sprintf("%.2f", pos.Duration),
			})
		}
		b.WriteString(renderTable(
			[]string{"Ticker", "Qty", "Price", "Value", "Weight", "Duration"},
			rows, map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true}))
		b.WriteString("\n")
	}

	if len(logs) > 0 {
		b.WriteString("\n")
		b.WriteString(renderLogs(logs))
	}
	return b.String()
}

func renderTrades(trades []persistence.Trade) string {
	if len(trades) == 0 {
		return "No trades\n"
	}
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			fmt.Sprint(t.ID), t.Timestamp, t.Side, t.Ticker,
			fmt.Sprintf("%.2f", t.Qty), fmt.Sprintf("%.2f", t.Price),
			application.FormatMoney(t.TradeValue), t.Status,
		})
	}
	return renderTable(
		[]string{"ID", "Time", "Side", "Ticker", "Qty", "Price", "Value", "Status"},
		rows, map[int]bool{0: true, 4: true, 5: true, 6: true}) + "\n"
}

func renderLogs(logs []persistence.LogEntry) string {
	if len(logs) == 0 {
		return "No log entries\n"
	}
	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		level := l.Level
		switch domain.LogLevel(l.Level) {
		case domain.LevelError, domain.LevelCritical:
			level = haltStyle.Render(level)
		case domain.LevelRiskReject:
			level = warnStyle.Render(level)
		}
		rows = append(rows, []string{l.Timestamp, level, l.Message})
	}
	return renderTable([]string{"Time", "Level", "Message"}, rows, nil) + "\n"
}
