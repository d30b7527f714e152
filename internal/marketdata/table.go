package marketdata

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// DefaultTableURL is the Treasury text view of daily par yield curve rates.
const DefaultTableURL = "https://home.treasury.gov/resource-center/data-chart-center/interest-rates/TextView?type=daily_treasury_yield_curve&field_tdr_date_value=%d"

// NewTreasuryTable creates a source that scrapes the Treasury HTML table,
// one page per year. An empty url uses DefaultTableURL.
func NewTreasuryTable(url string, years []int, ttl time.Duration) (Source, error) {
	if url == "" {
		url = DefaultTableURL
	}
	s, err := newYearlySource("treasury-table", url, years, ttl,
		map[string]string{"Accept": "text/html"},
		ParseTable,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ParseTable reads the first table whose header has a Date column and all
// grid tenors. Rows with blank cells are skipped.
func ParseTable(raw []byte) ([]models.YieldObservation, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse yield table HTML: %w", err)
	}

	var (
		out      []models.YieldObservation
		parseErr error
		found    bool
	)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		var header []string
		table.Find("thead th").Each(func(_ int, th *goquery.Selection) {
			header = append(header, strings.TrimSpace(th.Text()))
		})
		if len(header) == 0 {
			table.Find("tr").First().Find("th, td").Each(func(_ int, c *goquery.Selection) {
				header = append(header, strings.TrimSpace(c.Text()))
			})
		}
		cm, err := newColumnMap(header)
		if err != nil {
			return true
		}
		found = true

		table.Find("tbody tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
			var record []string
			row.Find("td").Each(func(_ int, td *goquery.Selection) {
				record = append(record, strings.TrimSpace(td.Text()))
			})
			if len(record) == 0 {
				return true
			}
			obs, ok, err := cm.parse(record)
			if err != nil {
				parseErr = fmt.Errorf("row %d: %w", i+1, err)
				return false
			}
			if ok {
				out = append(out, obs)
			}
			return true
		})
		return false
	})

	if parseErr != nil {
		return nil, parseErr
	}
	if !found {
		return nil, fmt.Errorf("%w: no yield curve table in page", ErrNoData)
	}
	return Merge(out), nil
}
