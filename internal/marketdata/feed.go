package marketdata

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/yazwaza/us-treasuries/pkg/models"
	"github.com/yazwaza/us-treasuries/pkg/utils"
)

// DefaultFeedURL is the Treasury daily par yield curve XML (Atom) feed.
const DefaultFeedURL = "https://home.treasury.gov/resource-center/data-chart-center/interest-rates/pages/xml?data=daily_treasury_yield_curve&field_tdr_date_value=%d"

// feedFields maps the feed's property names to grid positions.
var feedFields = map[string]int{
	"BC_1MONTH": 0,
	"BC_2MONTH": 1,
	"BC_3MONTH": 2,
	"BC_4MONTH": 3,
	"BC_6MONTH": 4,
	"BC_1YEAR":  5,
	"BC_2YEAR":  6,
	"BC_3YEAR":  7,
	"BC_5YEAR":  8,
	"BC_7YEAR":  9,
	"BC_10YEAR": 10,
	"BC_20YEAR": 11,
	"BC_30YEAR": 12,
}

// NewTreasuryFeed creates a source over the Treasury XML feed, one request
// per year. An empty url uses DefaultFeedURL.
func NewTreasuryFeed(url string, years []int, ttl time.Duration) (Source, error) {
	if url == "" {
		url = DefaultFeedURL
	}
	s, err := newYearlySource("treasury-feed", url, years, ttl,
		map[string]string{"Accept": "application/atom+xml, application/xml, */*"},
		func(raw []byte) ([]models.YieldObservation, error) {
			// gofeed parsers keep per-document state, so one per call.
			return ParseFeed(gofeed.NewParser(), raw)
		},
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ParseFeed reads the Atom entries of a Treasury yield curve feed. Each
// entry carries its values in an m:properties block inside the content.
func ParseFeed(parser *gofeed.Parser, raw []byte) ([]models.YieldObservation, error) {
	feed, err := parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse yield feed: %w", err)
	}

	var out []models.YieldObservation
	for _, item := range feed.Items {
		obs, err := parseProperties(strings.NewReader(item.Content))
		if err != nil {
			continue
		}
		out = append(out, obs...)
	}
	if len(out) == 0 && len(feed.Items) > 0 {
		// Some parsers strip unknown-namespace markup from entry content;
		// read the properties straight from the document instead.
		out, err = parseProperties(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
	}
	return Merge(out), nil
}

// parseProperties walks every properties element in r. Entries with a
// missing date or tenor are skipped.
func parseProperties(r io.Reader) ([]models.YieldObservation, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var (
		out     []models.YieldObservation
		inProps bool
		field   string
		text    strings.Builder
		date    string
		values  map[int]string
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode properties: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "properties":
				inProps, date, values = true, "", make(map[int]string)
			case inProps:
				field = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if inProps && field != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if !inProps {
				continue
			}
			if t.Name.Local == "properties" {
				inProps = false
				if obs, ok := propertiesObservation(date, values); ok {
					out = append(out, obs)
				}
				continue
			}
			if t.Name.Local == field {
				v := strings.TrimSpace(text.String())
				if field == "NEW_DATE" {
					date = v
				} else if idx, ok := feedFields[field]; ok {
					values[idx] = v
				}
				field = ""
			}
		}
	}
	return out, nil
}

func propertiesObservation(date string, values map[int]string) (models.YieldObservation, bool) {
	var obs models.YieldObservation
	if date == "" {
		return obs, false
	}
	d, err := utils.ParseTreasuryDate(date)
	if err != nil {
		return obs, false
	}
	obs.Date = d
	for i := range obs.Yields {
		v, present, err := parseYield(values[i])
		if err != nil || !present {
			return obs, false
		}
		obs.Yields[i] = v
	}
	return obs, true
}
