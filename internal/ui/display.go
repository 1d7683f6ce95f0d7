package ui

import (
	"fmt"
	"sort"
	"strings"

	"logamizer/internal/model"
	"logamizer/pkg/utils"
)

// Color constants - Simple Orange Theme
const (
	// Main orange color
	ORANGE = "\033[38;5;214m" // Orange

	// Status colors
	SUCCESS = "\033[38;5;46m"  // Green
	WARNING = "\033[38;5;226m" // Yellow
	ERROR   = "\033[38;5;196m" // Red
	INFO    = "\033[38;5;75m"  // Blue

	// Text colors
	WHITE = "\033[38;5;15m"  // White
	GRAY  = "\033[38;5;250m" // Light gray
	DARK  = "\033[38;5;240m" // Dark gray

	// Special effects
	BOLD = "\033[1m"

	// Reset
	NC = "\033[0m" // No Color
)

// PrintHeader prints the application header
func PrintHeader() {
	fmt.Println(RenderBanner())
	fmt.Println(RenderSubtitle())
}

// PrintSection prints a section header
func PrintSection(title string) {
	titleWidth := len(title) + 4 // 4 for "┌─ " and " ─"
	totalWidth := 60             // Fixed total width
	dashCount := totalWidth - titleWidth
	if dashCount < 0 {
		dashCount = 0
	}
	fmt.Printf("%s%s┌─ %s%s%s ─%s%s┐%s\n",
		ORANGE,
		BOLD,
		WHITE, title, ORANGE,
		strings.Repeat("─", dashCount),
		BOLD,
		NC)
}

// PrintSectionEnd prints a section footer
func PrintSectionEnd() {
	totalWidth := 60 // Same fixed total width as PrintSection
	fmt.Printf("%s%s└%s%s┘%s\n", ORANGE, BOLD, strings.Repeat("─", totalWidth), BOLD, NC)
}

// PrintStatus prints a status message
func PrintStatus(status, message string) {
	switch status {
	case "success":
		fmt.Printf("  %s%s✓%s %s%s\n", SUCCESS, BOLD, NC, WHITE, message)
	case "warning":
		fmt.Printf("  %s%s⚠%s %s%s\n", WARNING, BOLD, NC, WHITE, message)
	case "error":
		fmt.Printf("  %s%s✗%s %s%s\n", ERROR, BOLD, NC, WHITE, message)
	case "info":
		fmt.Printf("  %s%sℹ%s %s%s\n", INFO, BOLD, NC, WHITE, message)
	}
}

// PrintKeyValue prints one aligned key-value row
func PrintKeyValue(key, value string) {
	fmt.Printf("  %s•%s %s%-24s%s %s%s%s\n", ORANGE, NC, WHITE, key, NC, GRAY, value, NC)
}

// PrintAggregates prints hourly aggregate rows as a compact table
func PrintAggregates(rows []model.HourlyAggregate) {
	if len(rows) == 0 {
		PrintStatus("info", "No aggregates in the selected range")
		return
	}
	fmt.Printf("  %s%-18s %9s %7s %7s %7s %7s %9s %7s%s\n",
		GRAY, "hour (UTC)", "requests", "2xx", "3xx", "4xx", "5xx", "bytes", "ips", NC)
	for _, row := range rows {
		fmt.Printf("  %s%-18s%s %9d %7d %7d %7d %7d %9d %7d\n",
			WHITE, row.HourBucket.Format("2006-01-02 15:04"), NC,
			row.RequestsCount, row.Status2xx, row.Status3xx,
			row.Status4xx, row.Status5xx, row.TotalBytes, row.UniqueIPs)
	}
}

// PrintTopEntries prints one Top-K summary
func PrintTopEntries(title string, entries []model.TopEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Printf("  %s%s%s%s\n", BOLD, WHITE, title, NC)
	for _, e := range entries {
		fmt.Printf("    %s%6d%s  %s%s%s\n", ORANGE, e.Count, NC, GRAY, utils.TruncateString(e.Key, 60), NC)
	}
}

// PrintFindings prints findings grouped by severity, worst first
func PrintFindings(findings []model.Finding) {
	if len(findings) == 0 {
		PrintStatus("success", "No findings")
		return
	}
	ordered := append([]model.Finding(nil), findings...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return severityWeight(ordered[i].Severity) > severityWeight(ordered[j].Severity)
	})
	for _, f := range ordered {
		fmt.Printf("  %s%s[%s]%s %s%s%s %s(%s)%s\n",
			severityColor(f.Severity), BOLD, strings.ToUpper(string(f.Severity)), NC,
			WHITE, f.Title, NC, GRAY, f.Subject, NC)
		if f.Description != "" {
			fmt.Printf("      %s%s%s\n", DARK, f.Description, NC)
		}
	}
}

// PrintErrorGroups prints error groups ordered by occurrence count
func PrintErrorGroups(groups []model.ErrorGroup) {
	if len(groups) == 0 {
		PrintStatus("success", "No error groups")
		return
	}
	ordered := append([]model.ErrorGroup(nil), groups...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OccurrenceCount > ordered[j].OccurrenceCount
	})
	for _, g := range ordered {
		fmt.Printf("  %s%6d×%s %s%-24s%s %s%s%s\n",
			ORANGE, g.OccurrenceCount, NC,
			WHITE, g.ErrorType, NC, GRAY, utils.TruncateString(g.ErrorMessage, 70), NC)
		fmt.Printf("          %sfirst %s  last %s  [%s]%s\n",
			DARK, g.FirstSeen.Format("2006-01-02 15:04"),
			g.LastSeen.Format("2006-01-02 15:04"), g.Status, NC)
	}
}

// PrintParseQuality prints the per-file quality report
func PrintParseQuality(q *model.ParseQuality) {
	PrintKeyValue("Total lines", fmt.Sprintf("%d", q.TotalLines))
	PrintKeyValue("Parsed", fmt.Sprintf("%d", q.ParsedLines))
	PrintKeyValue("Failed", fmt.Sprintf("%d", q.FailedLines))
	PrintKeyValue("Empty", fmt.Sprintf("%d", q.EmptyLines))
	PrintKeyValue("Success rate", fmt.Sprintf("%.1f%%", q.SuccessRate()*100))
	for _, s := range q.SampleErrors {
		fmt.Printf("      %sline %d: %s%s\n", DARK, s.Line, s.Error, NC)
	}
}

func severityWeight(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 4
	case model.SeverityHigh:
		return 3
	case model.SeverityMedium:
		return 2
	case model.SeverityLow:
		return 1
	}
	return 0
}

func severityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical, model.SeverityHigh:
		return ERROR
	case model.SeverityMedium:
		return WARNING
	}
	return INFO
}
