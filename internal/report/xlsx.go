// Package report renders validated leads into an xlsx workbook.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgen/internal/model"
)

// Sheet layout.
const (
	maxSheetName    = 31
	defaultCategory = "General"
	emptySheet      = "Leads"
)

// Columns is the header row of every sheet.
var Columns = []string{"Category", "Name", "Address", "Phone", "Email", "Has Website", "Website", "Ice Breaker"}

var (
	invalidSheetChars = regexp.MustCompile(`[:\\/?*\[\]]`)
	unsafeFileChars   = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// Generator writes lead workbooks.
type Generator struct{}

// NewGenerator returns an xlsx Generator.
func NewGenerator() *Generator { return &Generator{} }

// Generate writes records to path, one sheet per category in first-seen
// order, and returns the path written. The parent directory is created when
// missing. With no records the workbook holds a single header-only sheet.
func (g *Generator) Generate(records []model.ValidatedRecord, path string) (string, error) {
	f := xlsx.NewFile()
	header := headerStyle()

	groups, order := groupByCategory(records)
	if len(order) == 0 {
		sheet, err := f.AddSheet(emptySheet)
		if err != nil {
			return "", eris.Wrap(err, "report: add sheet")
		}
		writeHeader(sheet, header)
	}

	used := make(map[string]bool, len(order))
	for _, cat := range order {
		name := uniqueSheetName(SheetName(cat), used)
		sheet, err := f.AddSheet(name)
		if err != nil {
			return "", eris.Wrapf(err, "report: add sheet %q", name)
		}
		writeHeader(sheet, header)
		for _, r := range groups[cat] {
			writeRecord(sheet, r, cat)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", eris.Wrapf(err, "report: create dir %s", dir)
		}
	}
	if err := f.Save(path); err != nil {
		return "", eris.Wrapf(err, "report: save %s", path)
	}
	return path, nil
}

func groupByCategory(records []model.ValidatedRecord) (map[string][]model.ValidatedRecord, []string) {
	groups := make(map[string][]model.ValidatedRecord)
	var order []string
	for _, r := range records {
		cat := strings.TrimSpace(r.Category)
		if cat == "" {
			cat = defaultCategory
		}
		if _, ok := groups[cat]; !ok {
			order = append(order, cat)
		}
		groups[cat] = append(groups[cat], r)
	}
	return groups, order
}

func headerStyle() *xlsx.Style {
	s := xlsx.NewStyle()
	s.Font.Bold = true
	s.ApplyFont = true
	return s
}

func writeHeader(sheet *xlsx.Sheet, style *xlsx.Style) {
	row := sheet.AddRow()
	for _, col := range Columns {
		cell := row.AddCell()
		cell.SetString(col)
		cell.SetStyle(style)
	}
}

func writeRecord(sheet *xlsx.Sheet, r model.ValidatedRecord, category string) {
	hasWebsite := "No"
	if r.HasWebsite() {
		hasWebsite = "Yes"
	}
	row := sheet.AddRow()
	for _, v := range []string{category, r.Name, r.Address, r.Phone, r.Email, hasWebsite, r.Website, r.IceBreaker} {
		row.AddCell().SetString(v)
	}
}

// SheetName makes a category usable as a sheet name: characters Excel
// rejects become spaces and the result is cut to 31 characters.
func SheetName(category string) string {
	name := invalidSheetChars.ReplaceAllString(category, " ")
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, "'")
	if name == "" {
		name = defaultCategory
	}
	return truncateRunes(name, maxSheetName)
}

// uniqueSheetName suffixes name when a sanitized name collides with an
// earlier sheet. Excel compares sheet names case-insensitively.
func uniqueSheetName(name string, used map[string]bool) string {
	candidate := name
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		candidate = truncateRunes(name, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

// FileName is the download name for a query's workbook:
// leads_{category}_{region}.xlsx with unsafe characters replaced.
func FileName(q model.ExtractionQuery) string {
	return fmt.Sprintf("leads_%s_%s.xlsx", fileToken(q.Category), fileToken(q.Region))
}

func fileToken(s string) string {
	s = strings.Trim(unsafeFileChars.ReplaceAllString(strings.TrimSpace(s), "_"), "_")
	if s == "" {
		return "all"
	}
	return s
}
