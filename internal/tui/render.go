package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcobitx/procwatch/internal/model"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	v := m.current()

	header := m.renderHeader(v)
	phases := m.renderPhases(v)

	used := lipgloss.Height(header) + lipgloss.Height(phases) + 1 // +1 status bar
	paneHeight := m.height - used
	if paneHeight < 3 {
		paneHeight = 3
	}
	body := m.renderPane(v, m.width, paneHeight)

	statusBar := m.renderStatusBar(v)

	return lipgloss.JoinVertical(lipgloss.Left, header, phases, body, statusBar)
}

func (m Model) renderHeader(v viewData) string {
	title := titleStyle.Render("procwatch")
	id := v.analysisID
	if id == "" {
		id = "—"
	}

	var badge string
	switch {
	case v.status == model.StatusCompleted:
		badge = statusDoneStyle.Render("COMPLETED")
	case v.status == model.StatusFailed:
		badge = statusFailedStyle.Render("FAILED")
	case v.status == model.StatusCanceled:
		badge = statusFailedStyle.Render("CANCELED")
	case v.streamEnded:
		badge = statusFailedStyle.Render("STREAM ENDED")
	default:
		badge = statusRunningStyle.Render(m.spin.View() + " " + string(v.status))
	}

	elapsed := elapsedStyle.Render(fmtClock(v.elapsedSec))
	mode := ""
	if v.frozen {
		mode = paneTitleDimStyle.Render("  [review]")
	}

	return fmt.Sprintf(" %s · analysis %s  %s  %s%s", title, id, badge, elapsed, mode)
}

func (m Model) renderPhases(v viewData) string {
	now := time.Now()
	var b strings.Builder
	b.WriteByte('\n')

	for i := 0; i < model.NumPhases; i++ {
		rec := v.timings[i]
		label := model.PhaseLabel(i)

		var mark, dur string
		var style lipgloss.Style
		switch {
		case rec == nil:
			mark, style = "·", phasePendingStyle
		case rec.Open() && !v.frozen && !v.status.Terminal() && !v.streamEnded:
			mark, style = m.spin.View(), phaseActiveStyle
			dur = fmtDuration(rec.Duration(now))
		case rec.Open():
			// Run died or the stream dropped while this phase was current.
			mark, style = "!", phaseActiveStyle
			dur = "interrupted"
		default:
			mark, style = "✓", phaseDoneStyle
			dur = fmtDuration(rec.Duration(now))
		}

		line := fmt.Sprintf("  %s %-12s", mark, label)
		b.WriteString(style.Render(line))
		if dur != "" {
			b.WriteString(phaseDurationStyle.Render(dur))
		}
		b.WriteByte('\n')
	}

	if v.errMsg != "" {
		b.WriteString(errorStyle.Render("  ✗ " + v.errMsg))
		b.WriteByte('\n')
	} else if v.streamEnded {
		b.WriteString(errorStyle.Render("  ✗ stream ended without a result"))
		b.WriteByte('\n')
	}

	return b.String()
}

func (m Model) renderPane(v viewData, width, height int) string {
	innerHeight := height - 2 // borders
	if innerHeight < 1 {
		innerHeight = 1
	}

	var title string
	var lines []string
	switch m.pane {
	case paneThinking:
		title = "Reasoning"
		lines = m.thinkingLines(v)
	case paneEvents:
		title = "Events"
		lines = m.eventLines(v)
	case paneDocs:
		title = "Documents"
		lines = m.docLines(v)
	}

	// Clamp scroll to content.
	maxOffset := len(lines) - (innerHeight - 1)
	if maxOffset < 0 {
		maxOffset = 0
	}
	offset := m.scrollOffset
	if offset > maxOffset {
		offset = maxOffset
	}

	end := offset + innerHeight - 1
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	b.WriteString(paneTitleStyle.Render(title))
	b.WriteString(paneTitleDimStyle.Render(fmt.Sprintf("  (%d/%d)", len(lines)-end, len(lines))))
	for _, line := range lines[offset:end] {
		b.WriteByte('\n')
		b.WriteString(truncate(line, width-4))
	}

	return paneStyle.Width(width - 2).Height(innerHeight).Render(b.String())
}

// thinkingLines shows the accumulated reasoning text per phase, most recent
// phase first since that is what the user is watching.
func (m Model) thinkingLines(v viewData) []string {
	var lines []string
	for i := model.NumPhases - 1; i >= 0; i-- {
		text := v.thinking[i]
		if text == "" {
			continue
		}
		lines = append(lines, paneTitleDimStyle.Render("── "+model.PhaseLabel(i)+" ──"))
		for _, l := range strings.Split(text, "\n") {
			lines = append(lines, thinkingStyle.Render(l))
		}
	}
	if len(lines) == 0 {
		return []string{thinkingStyle.Render("no reasoning streamed yet")}
	}
	return lines
}

func (m Model) eventLines(v viewData) []string {
	if len(v.events) == 0 {
		return []string{paneTitleDimStyle.Render("no events yet")}
	}
	var lines []string
	for _, ev := range v.events {
		ts := eventTimeStyle.Render(ev.ReceivedAt.Format("15:04:05"))
		kind := eventKindStyle.Render(fmt.Sprintf("%-12s", ev.Kind))
		detail := eventDetail(ev)
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, kind, detail))
		if m.showRaw && len(ev.Raw) > 0 {
			for _, raw := range highlightJSON(ev.Raw) {
				lines = append(lines, "         "+raw)
			}
		}
	}
	return lines
}

func eventDetail(ev model.StreamEvent) string {
	switch ev.Kind {
	case model.EventStatus:
		return string(ev.Status)
	case model.EventProgress:
		if ev.Progress == nil {
			return ""
		}
		return fmt.Sprintf("%s %.0f%% %s", ev.Progress.Stage, ev.Progress.Percent, ev.Progress.Detail)
	case model.EventFileParsed:
		if ev.Doc == nil {
			return ""
		}
		return fmt.Sprintf("%s (%d pages)", ev.Doc.Filename, ev.Doc.Pages)
	case model.EventError:
		return errorStyle.Render(ev.Message)
	default:
		return ev.Message
	}
}

func (m Model) docLines(v viewData) []string {
	if len(v.docs) == 0 {
		return []string{paneTitleDimStyle.Render("no documents parsed yet")}
	}
	lines := []string{paneTitleDimStyle.Render(
		fmt.Sprintf("%-36s %6s %-6s %10s %8s", "filename", "pages", "format", "size", "tokens"))}
	for i, d := range v.docs {
		style := docRowStyle
		if i%2 == 1 {
			style = docRowAltStyle
		}
		lines = append(lines, style.Render(fmt.Sprintf("%-36s %6d %-6s %10s %8d",
			truncate(d.Filename, 36), d.Pages, d.Format, fmtBytes(d.SizeBytes), d.TokenEstimate)))
	}
	return lines
}

func (m Model) renderStatusBar(v viewData) string {
	left := fmt.Sprintf(" %d events  %d docs", len(v.events), len(v.docs))
	right := "tab panes  v raw  r review  s stop  ? help  q quit "

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(paneTitleStyle.Render("procwatch — Keyboard Shortcuts"))
	b.WriteString("\n\n")

	helpItems := []struct{ key, desc string }{
		{"↑/k", "Scroll up"},
		{"↓/j", "Scroll down"},
		{"tab", "Cycle panes (reasoning / events / documents)"},
		{"v", "Toggle raw JSON payloads in the event pane"},
		{"r", "Toggle review mode (frozen snapshot of a completed run)"},
		{"s", "Stop the live stream (analysis keeps running server-side)"},
		{"?", "Toggle this help"},
		{"q", "Quit"},
	}

	for _, item := range helpItems {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			helpKeyStyle.Width(12).Render(item.key),
			item.desc,
		))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))

	return b.String()
}

func fmtClock(sec int) string {
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}

func fmtDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func fmtBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	case n > 0:
		return fmt.Sprintf("%d B", n)
	default:
		return "—"
	}
}

func truncate(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	if strings.ContainsRune(s, '\x1b') {
		// Styled lines keep their escape sequences intact; the terminal
		// clips them instead.
		return s
	}
	return s[:width-1] + "…"
}
