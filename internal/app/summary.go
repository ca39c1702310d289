package app

import (
	"fmt"
	"io"
	"strings"

	"ipwarden/internal/report"
	"ipwarden/internal/store"
)

func printIngest(w io.Writer, stats store.IngestStats) {
	fmt.Fprintf(w, "Total logs processed: %d\n", stats.Processed)
	fmt.Fprintf(w, "New IPs added to list: %d\n", stats.AddedAddresses)
	fmt.Fprintf(w, "New entries added to table: %d\n", stats.AddedRecords)
	fmt.Fprintf(w, "Skipped entries: %d\n", stats.SkippedDuplicateEvent)
	if stats.Rejected > 0 {
		fmt.Fprintf(w, "Rejected entries: %d\n", stats.Rejected)
	}
}

func printCleanup(w io.Writer, listName, tableName string, stats store.CleanupStats) {
	printClassCounts(w, listName, stats.List)
	fmt.Fprintln(w)
	printClassCounts(w, tableName, stats.Table)
	if stats.Unlisted > 0 {
		fmt.Fprintf(w, "\nWarning: %d public table addresses are missing from %s\n", stats.Unlisted, listName)
	}
}

func printClassCounts(w io.Writer, name string, c store.ClassCounts) {
	total := c.Total()
	fmt.Fprintln(w, name)
	fmt.Fprintf(w, "  - Total entries        : %d\n", total)
	fmt.Fprintf(w, "  - Valid public         : %d\n", c.Public)
	fmt.Fprintf(w, "  - Duplicate public IPs : %d\n", c.Duplicates)
	fmt.Fprintf(w, "  - Removed non-public   : %d (%s)\n", c.NonPublic, percent(c.NonPublic, total))
	fmt.Fprintf(w, "  - Removed invalid      : %d (%s)\n", c.Invalid, percent(c.Invalid, total))
	fmt.Fprintf(w, "  - Total removed        : %d (%s)\n", c.Removed(), percent(c.Removed(), total))
}

// percent renders n/total with three decimals; tiny non-zero shares
// print as <0.001%.
func percent(n, total int) string {
	if n == 0 || total == 0 {
		return "0.000%"
	}
	p := float64(n) / float64(total) * 100
	if p < 0.001 {
		return "<0.001%"
	}
	return fmt.Sprintf("%.3f%%", p)
}

func printRemoval(w io.Writer, listName, tableName string, stats store.RemovalStats) {
	if stats.Matched == 0 {
		fmt.Fprintf(w, "Nothing matched (%d checked)\n", stats.Checked)
		return
	}
	fmt.Fprintf(w, "Matched %d of %d checked, %d distinct addresses\n", stats.Matched, stats.Checked, len(stats.Addresses))
	fmt.Fprintf(w, "-%d lines from %s | -%d lines from %s\n", stats.ListRemoved, listName, stats.TableRemoved, tableName)
	if len(stats.Addresses) > 0 && len(stats.Addresses) <= 20 {
		fmt.Fprintf(w, "Removed: %s\n", strings.Join(stats.Addresses, ", "))
	}
}

func printReport(w io.Writer, res *report.Result, files report.Files) {
	fmt.Fprintf(w, "Generated %s with %d entries\n", files.CSV, res.Len())
	fmt.Fprintf(w, "Generated %s with %d unique IPs\n", files.List, res.Len())
	fmt.Fprintf(w, "Parsed & total lines: %d/%d\n", res.Stats.ParsedLines, res.Stats.TotalLines)
	fmt.Fprintf(w, "Invalid lines: %d\n", res.Stats.InvalidLines)
	fmt.Fprintf(w, "IPv4 addresses: %d\n", res.Stats.IPv4)
	fmt.Fprintf(w, "IPv6 addresses: %d\n", res.Stats.IPv6)
}
