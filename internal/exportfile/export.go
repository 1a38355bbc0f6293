package exportfile

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store"
)

var exportHeader = []string{
	"id", "ts", "record_type", "source", "name", "title", "linkedin",
	"website", "phone", "email", "domain", "lat", "lng", "address",
	"business_type",
}

var reportHeader = []string{
	"psi_latest", "identified_needs", "outreach_strategy", "last_analyzed",
}

// Exporter writes filtered lead sets out of the store.
type Exporter struct {
	store store.Store

	// WithReports joins each row with its advanced report columns, left
	// blank for leads that have none.
	WithReports bool
}

// NewExporter creates an Exporter backed by st.
func NewExporter(st store.Store) *Exporter {
	return &Exporter{store: st}
}

// ExportCSV writes the leads matching f to w as CSV, returning the number
// of data rows written.
func (ex *Exporter) ExportCSV(ctx context.Context, w io.Writer, f store.Filter) (int, error) {
	rows, err := ex.rows(ctx, f)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ex.header()); err != nil {
		return 0, eris.Wrap(err, "exportfile: write csv header")
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return 0, eris.Wrap(err, "exportfile: write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, eris.Wrap(err, "exportfile: flush csv")
	}
	return len(rows), nil
}

// ExportXLSX writes the leads matching f to an Excel workbook at path.
func (ex *Exporter) ExportXLSX(ctx context.Context, path string, f store.Filter) (int, error) {
	rows, err := ex.rows(ctx, f)
	if err != nil {
		return 0, err
	}

	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Leads")
	if err != nil {
		return 0, eris.Wrap(err, "exportfile: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range ex.header() {
		hr.AddCell().SetString(h)
	}
	for _, row := range rows {
		xr := sheet.AddRow()
		for _, v := range row {
			xr.AddCell().SetString(v)
		}
	}
	if err := wb.Save(path); err != nil {
		return 0, eris.Wrap(err, "exportfile: save xlsx")
	}
	return len(rows), nil
}

func (ex *Exporter) header() []string {
	if !ex.WithReports {
		return exportHeader
	}
	return append(append([]string{}, exportHeader...), reportHeader...)
}

func (ex *Exporter) rows(ctx context.Context, f store.Filter) ([][]string, error) {
	leads, err := ex.store.ListLeads(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "exportfile: list leads")
	}

	rows := make([][]string, 0, len(leads))
	for _, lead := range leads {
		row := leadRow(lead)
		if ex.WithReports {
			cols, err := ex.reportColumns(ctx, lead.ID)
			if err != nil {
				return nil, err
			}
			row = append(row, cols...)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (ex *Exporter) reportColumns(ctx context.Context, leadID int64) ([]string, error) {
	report, err := ex.store.GetAdvancedReport(ctx, leadID)
	if eris.Is(err, store.ErrNotFound) {
		return []string{"", "", "", ""}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "exportfile: load report")
	}

	psi := ""
	if report.PSILatest != nil {
		psi = strconv.FormatFloat(*report.PSILatest, 'f', -1, 64)
	}
	analyzed := ""
	if !report.LastAnalyzed.IsZero() {
		analyzed = report.LastAnalyzed.UTC().Format("2006-01-02")
	}
	return []string{
		psi,
		strings.Join(report.IdentifiedNeeds, "; "),
		strings.Join(report.OutreachStrategy, "; "),
		analyzed,
	}, nil
}

func leadRow(lead model.Lead) []string {
	coord := func(v *float64) string {
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
	return []string{
		strconv.FormatInt(lead.ID, 10),
		lead.TS.UTC().Format("2006-01-02 15:04:05"),
		string(lead.RecordType),
		lead.Source,
		lead.Name,
		lead.Title,
		lead.LinkedIn,
		lead.Website,
		lead.Phone,
		lead.Email,
		lead.Domain,
		coord(lead.Lat),
		coord(lead.Lng),
		lead.Address,
		lead.BusinessType,
	}
}
