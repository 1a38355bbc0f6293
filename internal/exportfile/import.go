// Package exportfile moves leads in and out of the store as CSV or Excel
// files. Imports go through the store's dedup-checked insert path, so
// re-importing the same file is safe.
package exportfile

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store"
)

// headerAliases maps the column names seen in the wild onto lead fields.
// Unknown columns are ignored.
var headerAliases = map[string]string{
	"name":          "name",
	"company":       "name",
	"company name":  "name",
	"business":      "name",
	"business name": "name",
	"full name":     "name",
	"title":         "title",
	"job title":     "title",
	"role":          "title",
	"linkedin":      "linkedin",
	"linkedin url":  "linkedin",
	"website":       "website",
	"website url":   "website",
	"url":           "website",
	"web":           "website",
	"site":          "website",
	"phone":         "phone",
	"phone number":  "phone",
	"telephone":     "phone",
	"tel":           "phone",
	"email":         "email",
	"e-mail":        "email",
	"mail":          "email",
	"domain":        "domain",
	"address":       "address",
	"location":      "address",
	"lat":           "lat",
	"latitude":      "lat",
	"lng":           "lng",
	"lon":           "lng",
	"longitude":     "lng",
	"record type":   "record_type",
	"record_type":   "record_type",
	"source":        "source",
	"business type": "business_type",
	"business_type": "business_type",
	"category":      "business_type",
}

// Importer loads lead files into the store.
type Importer struct {
	store store.Store
}

// NewImporter creates an Importer backed by st.
func NewImporter(st store.Store) *Importer {
	return &Importer{store: st}
}

// ImportCSV reads a CSV file whose first row is a header and inserts its
// leads. Returns how many rows were inserted and how many the dedup path
// skipped.
func (im *Importer) ImportCSV(ctx context.Context, path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, eris.Wrap(err, "exportfile: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return 0, 0, eris.Wrap(err, "exportfile: read csv header")
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, eris.Wrap(err, "exportfile: read csv row")
		}
		rows = append(rows, row)
	}
	return im.insert(ctx, path, header, rows)
}

// ImportXLSX reads the first sheet of an Excel workbook, header row first,
// and inserts its leads.
func (im *Importer) ImportXLSX(ctx context.Context, path string) (int, int, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return 0, 0, eris.Wrap(err, "exportfile: open xlsx")
	}
	if len(wb.Sheets) == 0 {
		return 0, 0, eris.New("exportfile: workbook has no sheets")
	}

	sheet := wb.Sheets[0]
	if len(sheet.Rows) == 0 {
		return 0, 0, eris.New("exportfile: sheet is empty")
	}

	header := cellValues(sheet.Rows[0])
	var rows [][]string
	for _, r := range sheet.Rows[1:] {
		rows = append(rows, cellValues(r))
	}
	return im.insert(ctx, path, header, rows)
}

func cellValues(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = c.String()
	}
	return out
}

func (im *Importer) insert(ctx context.Context, path string, header []string, rows [][]string) (int, int, error) {
	cols := mapHeader(header)
	if _, ok := cols["name"]; !ok {
		return 0, 0, eris.Errorf("exportfile: %s has no recognizable name column", path)
	}

	leads := make([]model.Lead, 0, len(rows))
	for _, row := range rows {
		lead := leadFromRow(cols, row)
		if lead.Name == "" {
			continue
		}
		leads = append(leads, lead)
	}

	inserted, skipped, err := im.store.InsertLeads(ctx, leads)
	if err != nil {
		return 0, 0, eris.Wrap(err, "exportfile: insert imported leads")
	}
	zap.L().Info("file imported",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
		zap.Int("inserted", inserted),
		zap.Int("skipped", skipped),
	)
	return inserted, skipped, nil
}

// mapHeader resolves a header row to field -> column index.
func mapHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		field, ok := headerAliases[key]
		if !ok {
			continue
		}
		if _, taken := cols[field]; taken {
			continue
		}
		cols[field] = i
	}
	return cols
}

func leadFromRow(cols map[string]int, row []string) model.Lead {
	get := func(field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	lead := model.Lead{
		TS:           time.Now().UTC(),
		RecordType:   model.RecordType(get("record_type")),
		Source:       get("source"),
		Name:         get("name"),
		Title:        get("title"),
		LinkedIn:     get("linkedin"),
		Website:      get("website"),
		Phone:        get("phone"),
		Email:        get("email"),
		Domain:       get("domain"),
		Address:      get("address"),
		BusinessType: get("business_type"),
	}
	if lead.Source == "" {
		lead.Source = "file_import"
	}
	if lead.RecordType == "" {
		lead.RecordType = model.RecordTypeBusiness
	}
	if lead.Domain == "" {
		lead.Domain = model.DomainFromURL(lead.Website)
	}
	if v, err := strconv.ParseFloat(get("lat"), 64); err == nil {
		lead.Lat = &v
	}
	if v, err := strconv.ParseFloat(get("lng"), 64); err == nil {
		lead.Lng = &v
	}
	return lead
}
