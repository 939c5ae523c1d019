// Package main provides a corpus analyzer for stored ISO 8583 messages.
// It reads the SQLite store written by "iso8583_parser decode --store" and
// reports MTI distribution, field coverage and where decoding degrades.
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/pflag"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := pflag.String("db", "iso8583.db", "SQLite database file")
	outputFormat := pflag.String("format", "text", "Output format: text, json")
	topN := pflag.Int("top", 20, "Show top N items in each category")
	mti := pflag.String("mti", "", "Analyze a specific MTI only")
	suggest := pflag.Int("suggest", 0, "Suggest a dictionary definition for a field number")
	pflag.Parse()

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Suggestion mode.
	if *suggest != 0 {
		s, err := SuggestDefinition(db, *suggest, *mti)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *outputFormat == "json" {
			data, _ := json.MarshalIndent(s, "", "  ")
			fmt.Println(string(data))
		} else {
			PrintSuggestion(s)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "Analyzing corpus...\n")
	report, err := Analyze(db, *mti, *topN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		printTextReport(report)
	}
}

// AnalysisReport contains all analysis results.
type AnalysisReport struct {
	Summary         SummaryStats  `json:"summary"`
	MTIDistribution []MTICount    `json:"mti_distribution"`
	FieldCoverage   []FieldCount  `json:"field_coverage"`
	FieldFailures   []FailureStat `json:"field_failures"`
}

type SummaryStats struct {
	TotalMessages    int     `json:"total_messages"`
	CleanMessages    int     `json:"clean_messages"`
	DegradedMessages int     `json:"degraded_messages"`
	CleanRate        float64 `json:"clean_rate"`
	UniqueMTIs       int     `json:"unique_mtis"`
	Dictionaries     int     `json:"dictionaries"`
	Sources          int     `json:"sources"`
	SecondaryBitmaps int     `json:"secondary_bitmaps"`
}

type MTICount struct {
	MTI      string  `json:"mti"`
	Count    int     `json:"count"`
	Pct      float64 `json:"percentage"`
	Degraded int     `json:"degraded"`
}

type FieldCount struct {
	Field   int     `json:"field"`
	Label   string  `json:"label"`
	Present int     `json:"present"`
	Pct     float64 `json:"percentage"`
	AvgLen  float64 `json:"avg_length"`
}

type FailureStat struct {
	Field   int    `json:"field"`
	Unknown int    `json:"unknown"`
	Errors  int    `json:"errors"`
	Example string `json:"example,omitempty"`
}

// where builds the optional MTI filter for queries on messages aliased m.
func where(mti string) (string, []any) {
	if mti == "" {
		return "", nil
	}
	return " WHERE m.mti = ?", []any{mti}
}

// Analyze runs every analysis against db.
func Analyze(db *sql.DB, mti string, topN int) (*AnalysisReport, error) {
	report := &AnalysisReport{}
	var err error

	if report.Summary, err = analyzeSummary(db, mti); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	fmt.Fprintf(os.Stderr, "  - Summary complete\n")

	if report.MTIDistribution, err = analyzeMTIDistribution(db, topN); err != nil {
		return nil, fmt.Errorf("mti distribution: %w", err)
	}
	fmt.Fprintf(os.Stderr, "  - MTI distribution complete\n")

	if report.FieldCoverage, err = analyzeFieldCoverage(db, mti, report.Summary.TotalMessages); err != nil {
		return nil, fmt.Errorf("field coverage: %w", err)
	}
	fmt.Fprintf(os.Stderr, "  - Field coverage complete\n")

	if report.FieldFailures, err = analyzeFieldFailures(db, mti, topN); err != nil {
		return nil, fmt.Errorf("field failures: %w", err)
	}
	fmt.Fprintf(os.Stderr, "  - Field failures complete\n")

	return report, nil
}

func analyzeSummary(db *sql.DB, mti string) (SummaryStats, error) {
	var stats SummaryStats
	filter, args := where(mti)

	err := db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN m.degraded_count > 0 THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT m.mti),
			COUNT(DISTINCT m.dictionary),
			COUNT(DISTINCT NULLIF(m.source, '')),
			COALESCE(SUM(CASE WHEN COALESCE(m.secondary_bitmap, '') != '' THEN 1 ELSE 0 END), 0)
		FROM messages m`+filter, args...).Scan(
		&stats.TotalMessages, &stats.DegradedMessages, &stats.UniqueMTIs,
		&stats.Dictionaries, &stats.Sources, &stats.SecondaryBitmaps,
	)
	if err != nil {
		return stats, err
	}

	stats.CleanMessages = stats.TotalMessages - stats.DegradedMessages
	if stats.TotalMessages > 0 {
		stats.CleanRate = float64(stats.CleanMessages) / float64(stats.TotalMessages) * 100
	}
	return stats, nil
}

func analyzeMTIDistribution(db *sql.DB, topN int) ([]MTICount, error) {
	rows, err := db.Query(`
		SELECT mti, COUNT(*) AS cnt, SUM(CASE WHEN degraded_count > 0 THEN 1 ELSE 0 END)
		FROM messages
		GROUP BY mti
		ORDER BY cnt DESC
		LIMIT ?`, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var total int
	var results []MTICount
	for rows.Next() {
		var mc MTICount
		if err := rows.Scan(&mc.MTI, &mc.Count, &mc.Degraded); err != nil {
			return nil, err
		}
		results = append(results, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&total); err != nil {
		return nil, err
	}
	for i := range results {
		if total > 0 {
			results[i].Pct = float64(results[i].Count) / float64(total) * 100
		}
	}
	return results, nil
}

func analyzeFieldCoverage(db *sql.DB, mti string, total int) ([]FieldCount, error) {
	filter, args := where(mti)
	rows, err := db.Query(`
		SELECT f.field_number, COALESCE(MAX(f.label), ''), COUNT(*), AVG(f.length)
		FROM message_fields f
		JOIN messages m ON m.id = f.message_id`+filter+`
		GROUP BY f.field_number
		ORDER BY f.field_number`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FieldCount
	for rows.Next() {
		var fc FieldCount
		if err := rows.Scan(&fc.Field, &fc.Label, &fc.Present, &fc.AvgLen); err != nil {
			return nil, err
		}
		if total > 0 {
			fc.Pct = float64(fc.Present) / float64(total) * 100
		}
		results = append(results, fc)
	}
	return results, rows.Err()
}

func analyzeFieldFailures(db *sql.DB, mti string, topN int) ([]FailureStat, error) {
	filter, args := where(mti)
	if filter == "" {
		filter = " WHERE f.type IN ('UNKNOWN', 'ERROR')"
	} else {
		filter += " AND f.type IN ('UNKNOWN', 'ERROR')"
	}
	rows, err := db.Query(`
		SELECT
			f.field_number,
			SUM(CASE WHEN f.type = 'UNKNOWN' THEN 1 ELSE 0 END),
			SUM(CASE WHEN f.type = 'ERROR' THEN 1 ELSE 0 END),
			COALESCE(MAX(CASE WHEN f.type = 'ERROR' THEN f.value END), '')
		FROM message_fields f
		JOIN messages m ON m.id = f.message_id`+filter+`
		GROUP BY f.field_number
		ORDER BY COUNT(*) DESC
		LIMIT ?`, append(args, topN)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FailureStat
	for rows.Next() {
		var fs FailureStat
		if err := rows.Scan(&fs.Field, &fs.Unknown, &fs.Errors, &fs.Example); err != nil {
			return nil, err
		}
		results = append(results, fs)
	}
	return results, rows.Err()
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func pct(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64) + "%"
}

func printTextReport(r *AnalysisReport) {
	s := r.Summary
	fmt.Println(titleStyle.Render("Summary"))
	fmt.Printf("  Messages:          %d\n", s.TotalMessages)
	fmt.Printf("  Clean:             %d (%s)\n", s.CleanMessages, pct(s.CleanRate))
	fmt.Printf("  Degraded:          %d\n", s.DegradedMessages)
	fmt.Printf("  Unique MTIs:       %d\n", s.UniqueMTIs)
	fmt.Printf("  Dictionaries:      %d\n", s.Dictionaries)
	fmt.Printf("  Sources:           %d\n", s.Sources)
	fmt.Printf("  Secondary bitmaps: %d\n\n", s.SecondaryBitmaps)

	if len(r.MTIDistribution) > 0 {
		rows := make([][]string, 0, len(r.MTIDistribution))
		for _, m := range r.MTIDistribution {
			rows = append(rows, []string{m.MTI, strconv.Itoa(m.Count), pct(m.Pct), strconv.Itoa(m.Degraded)})
		}
		fmt.Println(titleStyle.Render("MTI distribution"))
		fmt.Println(renderTable([]string{"MTI", "Count", "Share", "Degraded"}, rows))
		fmt.Println()
	}

	if len(r.FieldCoverage) > 0 {
		rows := make([][]string, 0, len(r.FieldCoverage))
		for _, f := range r.FieldCoverage {
			rows = append(rows, []string{
				strconv.Itoa(f.Field), f.Label, strconv.Itoa(f.Present), pct(f.Pct),
				strconv.FormatFloat(f.AvgLen, 'f', 1, 64),
			})
		}
		fmt.Println(titleStyle.Render("Field coverage"))
		fmt.Println(renderTable([]string{"Field", "Label", "Present", "Coverage", "Avg Length"}, rows))
		fmt.Println()
	}

	if len(r.FieldFailures) > 0 {
		rows := make([][]string, 0, len(r.FieldFailures))
		for _, f := range r.FieldFailures {
			rows = append(rows, []string{
				strconv.Itoa(f.Field), strconv.Itoa(f.Unknown), strconv.Itoa(f.Errors), truncate(f.Example, 70),
			})
		}
		fmt.Println(titleStyle.Render("Field failures"))
		fmt.Println(renderTable([]string{"Field", "Unknown", "Errors", "Example"}, rows))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
