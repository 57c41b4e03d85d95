package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/model"
)

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
	colorPrimary = lipgloss.Color("#7C3AED")

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, successStyle.Render("✓ "))
	fmt.Fprintf(w, format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, warningStyle.Render("⚠ "))
	fmt.Fprintf(w, format+"\n", args...)
}

// PrintError はエラーを利用者向けの文面で出力する。
// 入力エラーなどのAPIErrorは対処方法も併せて表示する。
func PrintError(w io.Writer, err error) {
	fmt.Fprint(w, errorStyle.Render("✗ "))
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if apiErr.Action != "" {
			msg += " " + apiErr.Action
		}
		fmt.Fprintln(w, msg)
		return
	}
	fmt.Fprintln(w, err.Error())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// formatPages は「ページ 2/5: 1 [2] 3 … 5」の形式でページ位置を返す。
func formatPages(current, total, count int) string {
	if total == 0 {
		return mutedStyle.Render("該当するデータはありません")
	}
	labels := dashboard.Pages(current, total)
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		switch {
		case l.Ellipsis:
			parts = append(parts, "…")
		case l.Number == current:
			parts = append(parts, fmt.Sprintf("[%d]", l.Number))
		default:
			parts = append(parts, fmt.Sprintf("%d", l.Number))
		}
	}
	return mutedStyle.Render(fmt.Sprintf("ページ %d/%d (全%d件): %s", current, total, count, strings.Join(parts, " ")))
}
