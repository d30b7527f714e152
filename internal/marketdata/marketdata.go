// Package marketdata loads daily Treasury par yield curves from CSV
// downloads, the Treasury XML feed, or the Treasury HTML text view, and
// aligns them into a date-sorted series on the 13-tenor grid.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yazwaza/us-treasuries/pkg/models"
	"github.com/yazwaza/us-treasuries/pkg/utils"
)

// Source produces a yield series.
type Source interface {
	// Name identifies the source in logs and reports.
	Name() string
	// Load returns observations sorted by date, one per day.
	Load(ctx context.Context) ([]models.YieldObservation, error)
}

// ErrNoData is returned when a source yields no usable rows.
var ErrNoData = errors.New("no yield observations")

// Source kinds accepted by NewSource.
const (
	KindCSV   = "csv"
	KindFeed  = "feed"
	KindTable = "table"
)

// Options selects and configures a Source.
type Options struct {
	Kind     string
	Files    []string
	Years    []int
	FeedURL  string // fmt template taking the year
	TableURL string // fmt template taking the year
	CacheTTL time.Duration
}

// NewSource builds the source named by o.Kind.
func NewSource(o Options) (Source, error) {
	switch strings.ToLower(o.Kind) {
	case "", KindCSV:
		if len(o.Files) == 0 {
			return nil, fmt.Errorf("%w: csv source needs at least one file", models.ErrValidation)
		}
		return NewCSVSource(o.Files...), nil
	case KindFeed:
		return NewTreasuryFeed(o.FeedURL, o.Years, o.CacheTTL)
	case KindTable:
		return NewTreasuryTable(o.TableURL, o.Years, o.CacheTTL)
	}
	return nil, fmt.Errorf("%w: unknown data source %q", models.ErrValidation, o.Kind)
}

// Merge combines batches, keeps the last observation seen for each date and
// sorts ascending.
func Merge(batches ...[]models.YieldObservation) []models.YieldObservation {
	byDate := make(map[string]models.YieldObservation)
	for _, b := range batches {
		for _, o := range b {
			byDate[utils.FormatDate(o.Date)] = o
		}
	}
	out := make([]models.YieldObservation, 0, len(byDate))
	for _, o := range byDate {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b models.YieldObservation) int {
		return a.Date.Compare(b.Date)
	})
	return out
}

// Window keeps the observations on or after the latest date minus months
// calendar months. months <= 0 keeps everything. The input must be sorted.
func Window(series []models.YieldObservation, months int) []models.YieldObservation {
	if months <= 0 || len(series) == 0 {
		return series
	}
	cutoff := series[len(series)-1].Date.AddDate(0, -months, 0)
	i, _ := slices.BinarySearchFunc(series, cutoff, func(o models.YieldObservation, t time.Time) int {
		return o.Date.Compare(t)
	})
	return series[i:]
}

// Range restricts a sorted series to [from, to]. Zero bounds are open.
func Range(series []models.YieldObservation, from, to time.Time) []models.YieldObservation {
	var out []models.YieldObservation
	for _, o := range series {
		if !from.IsZero() && o.Date.Before(from) {
			continue
		}
		if !to.IsZero() && o.Date.After(to) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// ════════════════════════════════════════════════════════════════════
// Column mapping shared by the CSV and HTML table formats
// ════════════════════════════════════════════════════════════════════

// headerAliases maps a normalized column header to its grid position.
// Treasury files use "1 Mo" / "2 Yr"; hand-made files often say "1 Month".
var headerAliases = func() map[string]int {
	m := make(map[string]int)
	for i, label := range models.TenorLabels {
		n, unit := label[:len(label)-1], label[len(label)-1:]
		if unit == "M" {
			for _, s := range []string{"mo", "mos", "month", "months", "m"} {
				m[n+s] = i
			}
		} else {
			for _, s := range []string{"yr", "yrs", "year", "years", "y"} {
				m[n+s] = i
			}
		}
	}
	return m
}()

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(h), " ", ""))
}

// columnMap locates the date column and each tenor column in a header row.
// Unknown columns such as "1.5 Month" are ignored.
type columnMap struct {
	date  int
	tenor [models.NumTenors]int
}

func newColumnMap(header []string) (columnMap, error) {
	cm := columnMap{date: -1}
	for i := range cm.tenor {
		cm.tenor[i] = -1
	}
	for col, h := range header {
		key := normalizeHeader(h)
		if key == "date" {
			cm.date = col
			continue
		}
		if idx, ok := headerAliases[key]; ok {
			cm.tenor[idx] = col
		}
	}
	if cm.date < 0 {
		return cm, fmt.Errorf("%w: header has no Date column", models.ErrValidation)
	}
	var missing []string
	for i, col := range cm.tenor {
		if col < 0 {
			missing = append(missing, models.TenorLabels[i])
		}
	}
	if len(missing) > 0 {
		return cm, fmt.Errorf("%w: header missing tenors %s", models.ErrValidation, strings.Join(missing, ", "))
	}
	return cm, nil
}

// parse converts one record. ok is false for rows with a blank date or
// tenor, which are skipped rather than rejected.
func (cm columnMap) parse(record []string) (obs models.YieldObservation, ok bool, err error) {
	cell := func(col int) string {
		if col >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[col])
	}

	ds := cell(cm.date)
	if ds == "" {
		return obs, false, nil
	}
	obs.Date, err = utils.ParseTreasuryDate(ds)
	if err != nil {
		return obs, false, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	for i, col := range cm.tenor {
		v, present, err := parseYield(cell(col))
		if err != nil {
			return obs, false, fmt.Errorf("%w: %s %s: %v", models.ErrValidation, ds, models.TenorLabels[i], err)
		}
		if !present {
			return obs, false, nil
		}
		obs.Yields[i] = v
	}
	return obs, true, nil
}

// parseYield reads a percent value. Blank and "N/A" cells are absent.
func parseYield(s string) (float64, bool, error) {
	switch strings.ToUpper(s) {
	case "", "N/A", "NA", "ND":
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
