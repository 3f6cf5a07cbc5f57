package stats

import (
	"fmt"
	"strings"
	"time"
)

// FormatExitSummary formats the aggregate for display at daemon exit.
func FormatExitSummary(s Summary, channels int, recordingsDir string) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════\n")
	b.WriteString("                    streamvault Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(&b, "Run Duration:          %s\n", FormatDuration(s.RunDuration))
	fmt.Fprintf(&b, "Tracked Channels:      %d\n", channels)
	fmt.Fprintf(&b, "Recordings Directory:  %s\n\n", recordingsDir)

	b.WriteString("───────────────────────────────────────────────────────────────\n")
	b.WriteString("                      Capture Sessions\n")
	b.WriteString("───────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  Sessions:            %d\n", s.Sessions)
	fmt.Fprintf(&b, "  Total Capture Time:  %s\n", FormatDuration(s.TotalCaptureTime))
	fmt.Fprintf(&b, "  Size Splits:         %d\n", s.Splits)
	fmt.Fprintf(&b, "  Early Exits:         %d\n", s.EarlyExits)
	fmt.Fprintf(&b, "  Failed Channels:     %d\n", s.Failures)

	if s.Sessions > 0 {
		b.WriteString("\n  Session Lifetime:\n")
		fmt.Fprintf(&b, "    p50:  %s\n", FormatDuration(s.LifetimeP50))
		fmt.Fprintf(&b, "    p95:  %s\n", FormatDuration(s.LifetimeP95))
		fmt.Fprintf(&b, "    p99:  %s\n", FormatDuration(s.LifetimeP99))
	}

	b.WriteString("\n═══════════════════════════════════════════════════════════════\n")
	return b.String()
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
