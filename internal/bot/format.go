package bot

import (
	"fmt"
	"strings"

	"relay_bot/internal/model"
)

const (
	statusActive = "active"
	statusPaused = "paused"
)

// FormatSourceList formats the monitored source channels for display.
func FormatSourceList(sources []model.SourceChannel) string {
	if len(sources) == 0 {
		return "No source channels yet. Use /add_source <channel_id> [@username] <title> to add one."
	}
	var b strings.Builder
	b.WriteString("Source channels:\n")
	for _, s := range sources {
		status := statusActive
		if !s.IsActive {
			status = statusPaused
		}
		fmt.Fprintf(&b, "\n%d %s [%s]\n", s.ChannelID, s.Title, status)
		if s.Username != "" {
			fmt.Fprintf(&b, "   @%s\n", s.Username)
		}
		fmt.Fprintf(&b, "   last scanned: %d\n", s.LastScannedID)
	}
	return b.String()
}

// FormatTargetList formats the delivery targets for display.
func FormatTargetList(targets []model.TargetChannel) string {
	if len(targets) == 0 {
		return "No target channels yet. Use /add_target <channel_id> <title> to add one."
	}
	var b strings.Builder
	b.WriteString("Target channels:\n")
	for _, t := range targets {
		status := statusActive
		if !t.IsActive {
			status = statusPaused
		}
		fmt.Fprintf(&b, "\n%d %s [%s]\n", t.ChannelID, t.Title, status)
	}
	return b.String()
}

// FormatFilterList formats the filter rules grouped by kind.
func FormatFilterList(filters []model.FilterRule) string {
	if len(filters) == 0 {
		return "No filters configured. All posts are relayed.\nUse /include, /exclude, /pattern to add filters."
	}

	groups := map[model.FilterKind][]model.FilterRule{}
	for _, f := range filters {
		groups[f.Kind] = append(groups[f.Kind], f)
	}

	labels := []struct {
		kind  model.FilterKind
		label string
	}{
		{model.FilterInclude, "Include (substring)"},
		{model.FilterExclude, "Exclude (substring)"},
		{model.FilterPattern, "Pattern (regex)"},
	}

	var b strings.Builder
	b.WriteString("Filter rules (a post must pass all active rules):\n")
	for _, l := range labels {
		fs := groups[l.kind]
		if len(fs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", l.label)
		for _, f := range fs {
			flags := ""
			if f.CaseSensitive {
				flags = ", case-sensitive"
			}
			status := statusActive
			if !f.IsActive {
				status = "off"
			}
			fmt.Fprintf(&b, "  F%d: %s (%s%s)\n", f.ID, f.Value, status, flags)
		}
	}
	return b.String()
}

// FormatStats formats delivery statistics.
func FormatStats(total int, daily []model.DailyCount, byTarget []model.TargetCount) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total deliveries: %d\n", total)

	if len(daily) > 0 {
		b.WriteString("\nBy day:\n")
		for _, d := range daily {
			fmt.Fprintf(&b, "  %s: %d\n", d.Day, d.Count)
		}
	}
	if len(byTarget) > 0 {
		b.WriteString("\nBy target:\n")
		for _, t := range byTarget {
			fmt.Fprintf(&b, "  %d: %d\n", t.TargetChannelID, t.Count)
		}
	}
	return b.String()
}

// FormatErrors formats recent error-sink entries, newest first.
func FormatErrors(errs []model.RelayError) string {
	if len(errs) == 0 {
		return "No recent errors."
	}
	var b strings.Builder
	b.WriteString("Recent errors:\n")
	for _, e := range errs {
		fmt.Fprintf(&b, "\n[%s] %s\n", e.CreatedAt.Format("2006-01-02 15:04 UTC"), e.Kind)
		fmt.Fprintf(&b, "  %s\n", e.Message)
		if e.ChannelID != 0 {
			fmt.Fprintf(&b, "  channel: %d, message: %d\n", e.ChannelID, e.MessageID)
		}
	}
	return b.String()
}
