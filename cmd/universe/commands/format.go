package commands

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/wonny/tradable-universe/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// 출력 포맷: 구분선, 키-값, 표, 유니버스 퍼널
// ═══════════════════════════════════════════════════════════

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	// Separator line
	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	for i := 0; i < totalWidth; i++ {
		fmt.Print("─")
	}
	fmt.Println()
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Printf("   • %s\n", item)
	}
}

// PrintNumberedList prints a numbered list
func PrintNumberedList(items []string) {
	for i, item := range items {
		fmt.Printf("   %d. %s\n", i+1, item)
	}
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// ─── Universe ──────────────────────────────────────────────

// FunnelRows returns one row per stage: stage, alive after it, excluded by it
func FunnelRows(u *contracts.Universe, stages []string) [][]string {
	summary := u.ExclusionSummary()
	rows := make([][]string, 0, len(stages))
	for _, stage := range stages {
		rows = append(rows, []string{stage, strconv.Itoa(u.StageCounts[stage]), strconv.Itoa(summary[stage])})
	}
	return rows
}

// ExcludedByStage groups excluded symbols by the stage that removed them.
// Symbols are sorted; stages with no exclusion are omitted.
func ExcludedByStage(u *contracts.Universe) map[string][]string {
	out := make(map[string][]string)
	for symbol, stage := range u.Excluded {
		out[stage] = append(out[stage], symbol)
	}
	for _, symbols := range out {
		sort.Strings(symbols)
	}
	return out
}

// PrintExcludedByStage writes up to limit symbols per stage in stage order.
// Stages outside the given order (renamed criteria) follow alphabetically.
func PrintExcludedByStage(w io.Writer, u *contracts.Universe, stages []string, limit int) {
	groups := ExcludedByStage(u)

	order := append([]string(nil), stages...)
	known := make(map[string]bool, len(stages))
	for _, s := range stages {
		known[s] = true
	}
	var extra []string
	for s := range groups {
		if !known[s] {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	for _, stage := range order {
		symbols := groups[stage]
		if len(symbols) == 0 {
			continue
		}
		shown := symbols
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		line := strings.Join(shown, ", ")
		if more := len(symbols) - len(shown); more > 0 {
			line += fmt.Sprintf(" (+%d more)", more)
		}
		fmt.Fprintf(w, "   %-*s : %s\n", 16, stage, line)
	}
}
