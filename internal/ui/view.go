package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/bdougie/framegrab/internal/persist"
)

// FormatTimestamp renders a frame timestamp as shown on gallery badges.
func FormatTimestamp(seconds float64) string {
	return fmt.Sprintf("%.1fs", seconds)
}

// FormatClock renders a playback position as m:ss.
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func (m Model) lineWidth() int {
	if m.width == 0 {
		return 80
	}
	return m.width
}

func (m Model) galleryVisibleLines() int {
	if m.height == 0 {
		return 10
	}
	// header, status, two dividers, similar panel, prompt, footer
	reserved := 10 + len(m.similar)
	return max(3, m.height-reserved)
}

// View renders the full TUI.
func (m Model) View() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", m.lineWidth())))
	sections = append(sections, m.renderGallery())

	if m.similarFor != "" {
		sections = append(sections, m.renderSimilar())
	}

	sections = append(sections, DividerStyle.Render(strings.Repeat("─", m.lineWidth())))

	switch {
	case m.modal != "":
		sections = append(sections, ModalStyle.Render(m.modal+"\n\n"+DimStyle.Render("enter to dismiss")))
	case m.promptMode != PromptNone:
		sections = append(sections, m.prompt.View())
	case m.busy != "":
		sections = append(sections, m.spinner.View()+" "+StatusStyle.Render(m.busy+"..."))
	case m.notice != "":
		sections = append(sections, NoticeStyle.Render(m.notice))
	}

	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("FRAMEGRAB")
	if !m.snap.HasVideo() {
		return title + DimStyle.Render(" · no video loaded")
	}

	header := title + DimStyle.Render(" · "+m.snap.Video.Name())
	if m.playback.Width > 0 {
		header += DimStyle.Render(fmt.Sprintf(" %dx%d", m.playback.Width, m.playback.Height))
	}
	return header
}

func (m Model) renderStatusBar() string {
	var dot string
	if m.snap.Capturing {
		dot = RecordingDotStyle.Render("● REC")
		if m.snap.TargetName != "" {
			dot += RecordingDotStyle.Render(" Saving...")
		}
	} else {
		dot = IdleDotStyle.Render("○ IDLE")
	}

	state := "⏸"
	switch {
	case !m.playback.Loaded:
		state = "-"
	case m.playback.Ended:
		state = "■"
	case !m.playback.Paused:
		state = "▶"
	}
	position := fmt.Sprintf("%s %s / %s", state,
		FormatClock(m.playback.Position), FormatClock(m.playback.Duration))

	target := DimStyle.Render("gallery only")
	if m.snap.TargetName != "" {
		target = TargetStyle.Render("saving to " + m.snap.TargetName)
		if m.pending > 0 {
			target += DimStyle.Render(fmt.Sprintf(" (%d pending)", m.pending))
		}
	}

	stats := StatusStyle.Render(fmt.Sprintf("captured %d · analyzed %d · every %d frames",
		m.snap.CapturedCount, m.snap.AnalyzedCount(), m.snap.Interval))

	return strings.Join([]string{dot, position, stats, target}, "  ")
}

func (m Model) renderGallery() string {
	title := PanelTitleStyle.Render(fmt.Sprintf("Gallery (%d)", len(m.snap.Frames)))
	if len(m.snap.Frames) == 0 {
		return title + "\n" +
			DimStyle.Render("The gallery is empty.") + "\n" +
			DimStyle.Render("Start capturing while the video plays.")
	}

	visible := m.galleryVisibleLines()
	start := 0
	if m.selected >= visible {
		start = m.selected - visible + 1
	}
	end := min(len(m.snap.Frames), start+visible)

	lines := []string{title}
	for i := start; i < end; i++ {
		f := m.snap.Frames[i]

		cursor := "  "
		if i == m.selected {
			cursor = SelectedStyle.Render("▸ ")
		}

		marker := " "
		if f.Described() {
			marker = AnalyzedDotStyle.Render("•")
		}

		var desc string
		switch {
		case f.Analyzing:
			desc = m.spinner.View() + DimStyle.Render(" analyzing")
		case f.Described():
			desc = DescriptionStyle.Render(f.Description)
		default:
			desc = DimStyle.Render("press a to describe")
		}

		name := persist.FrameFileName(f.Timestamp)
		if i == m.selected {
			name = SelectedStyle.Render(name)
		} else {
			name = DimStyle.Render(name)
		}

		lines = append(lines, fmt.Sprintf("%s%s %s  %s  %s",
			cursor, marker, TimestampStyle.Render(fmt.Sprintf("%7s", FormatTimestamp(f.Timestamp))), name, desc))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderSimilar() string {
	lines := []string{PanelTitleStyle.Render("Similar frames")}
	if len(m.similar) == 0 {
		lines = append(lines, DimStyle.Render("  no catalogued frames to compare"))
	}
	for _, s := range m.similar {
		line := fmt.Sprintf("  %s  %s  %s",
			TimestampStyle.Render(fmt.Sprintf("%7s", FormatTimestamp(s.Timestamp))),
			StatusStyle.Render(fmt.Sprintf("%.3f", s.Similarity)),
			DimStyle.Render(s.FileName))
		if s.Description != "" {
			line += "  " + DescriptionStyle.Render(s.Description)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	keys := []struct{ key, desc string }{
		{"o", "open"},
		{"s", "sample"},
		{"space", "capture"},
		{"p", "play"},
		{"←/→", "seek"},
		{"+/-", "interval"},
		{"f/F", "folder"},
		{"a", "describe"},
		{"c", "copy"},
		{"d", "delete"},
		{"/", "similar"},
		{"q", "quit"},
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, FooterKeyStyle.Render(k.key)+" "+FooterDescStyle.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}
