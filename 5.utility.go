package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
)

// ============================================================================
// Interaction Helpers
// ============================================================================

// RespondText sends an ephemeral text reply to a command interaction.
func RespondText(event *events.ApplicationCommandInteractionCreate, format string, v ...any) {
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithContent(fmt.Sprintf(format, v...)).
		WithEphemeral(true))
}

// EditText replaces the deferred response with plain text.
func EditText(event *events.ApplicationCommandInteractionCreate, format string, v ...any) {
	content := fmt.Sprintf(format, v...)
	_, _ = event.Client().Rest.UpdateInteractionResponse(
		event.ApplicationID(), event.Token(),
		discord.MessageUpdate{Content: &content},
	)
}

// ============================================================================
// Math & Logic
// ============================================================================

// Min returns the minimum of two integers.
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Max returns the maximum of two integers.
func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ============================================================================
// String Utilities
// ============================================================================

// Truncate truncates a string to the specified length with ellipsis at the end.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// ContainsLower checks if a string contains a substring (case-insensitive).
// Both strings are converted to lowercase before comparison.
func ContainsLower(s, substr string) bool {
	s = strings.ToLower(s)
	substr = strings.ToLower(substr)
	return strings.Contains(s, substr)
}

// ============================================================================
// Formatting
// ============================================================================

func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "∞"
	}
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	h, m, s := int(d.Hours())%24, int(d.Minutes())%60, int(d.Seconds())%60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, h, m)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatMegabytes renders a mebibyte count, matching panel resource limits.
func FormatMegabytes(mb int64) string {
	if mb == 0 {
		return "∞"
	}
	return FormatBytes(mb * 1024 * 1024)
}
