// Package cost meters external API usage. Every paid call writes one CSV
// row through Logger; the rest of the system only ever appends.
package cost

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var usageHeader = []string{"timestamp", "api_service", "cost", "query_info"}

const maxQueryInfoLen = 200

// Logger appends metered API calls to a CSV usage log. Safe for concurrent
// use. A zero-value Logger (empty path) discards entries.
type Logger struct {
	mu   sync.Mutex
	path string
}

// NewLogger creates a usage logger writing to path. The parent directory is
// created on first write.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// Log records one metered call. Errors are logged and swallowed: a broken
// usage log must never fail the call it is accounting for.
func (l *Logger) Log(service string, cost float64, queryInfo string) {
	if l == nil || l.path == "" {
		return
	}
	if len(queryInfo) > maxQueryInfoLen {
		queryInfo = queryInfo[:maxQueryInfoLen]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.append(service, cost, queryInfo); err != nil {
		zap.L().Warn("cost: usage log write failed",
			zap.String("service", service),
			zap.Error(err),
		)
	}
}

func (l *Logger) append(service string, cost float64, queryInfo string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return eris.Wrap(err, "cost: create log dir")
	}

	_, statErr := os.Stat(l.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "cost: open usage log")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(usageHeader); err != nil {
			return eris.Wrap(err, "cost: write header")
		}
	}
	row := []string{
		time.Now().UTC().Format(time.RFC3339),
		service,
		strconv.FormatFloat(cost, 'f', -1, 64),
		queryInfo,
	}
	if err := w.Write(row); err != nil {
		return eris.Wrap(err, "cost: write row")
	}
	w.Flush()
	return eris.Wrap(w.Error(), "cost: flush")
}

// Entry is one parsed usage-log row.
type Entry struct {
	Timestamp time.Time
	Service   string
	Cost      float64
	QueryInfo string
}

// ReadUsage loads the full usage log. A missing file yields an empty slice.
func ReadUsage(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cost: open usage log")
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "cost: parse usage log")
	}

	var entries []Entry
	for i, row := range rows {
		if i == 0 || len(row) < 4 {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, row[0])
		c, _ := strconv.ParseFloat(row[2], 64)
		entries = append(entries, Entry{
			Timestamp: ts,
			Service:   row[1],
			Cost:      c,
			QueryInfo: row[3],
		})
	}
	return entries, nil
}

// TotalsByService aggregates usage-log spend per service.
func TotalsByService(entries []Entry) map[string]float64 {
	totals := make(map[string]float64, len(entries))
	for _, e := range entries {
		totals[e.Service] += e.Cost
	}
	return totals
}
