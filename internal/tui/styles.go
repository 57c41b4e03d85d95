package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
)

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorSuccess = lipgloss.Color("#10B981")
	colorDanger  = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
	colorText    = lipgloss.Color("#F3F4F6")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Padding(0, 2).
			Bold(true)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Padding(0, 2)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	currentPageStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	paidStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorDanger).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			MarginTop(1)
)

// renderPagination はページ番号の並びを1行で描画する。現在ページは[n]で囲む。
func renderPagination(current, total int) string {
	p := dashboard.Pagination{Current: current, Total: total}
	if !p.Visible() {
		return mutedStyle.Render("ページなし")
	}

	parts := make([]string, 0, total+2)
	if p.PrevDisabled() {
		parts = append(parts, mutedStyle.Render("‹"))
	} else {
		parts = append(parts, "‹")
	}
	for _, l := range p.Labels() {
		switch {
		case l.Ellipsis:
			parts = append(parts, mutedStyle.Render("…"))
		case l.Number == current:
			parts = append(parts, currentPageStyle.Render(fmt.Sprintf("[%d]", l.Number)))
		default:
			parts = append(parts, fmt.Sprintf("%d", l.Number))
		}
	}
	if p.NextDisabled() {
		parts = append(parts, mutedStyle.Render("›"))
	} else {
		parts = append(parts, "›")
	}
	return strings.Join(parts, " ")
}
