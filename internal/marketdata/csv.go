package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// ParseCSV reads a "Daily Treasury Par Yield Curve Rates" CSV.
func ParseCSV(r io.Reader) ([]models.YieldObservation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty csv", ErrNoData)
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cm, err := newColumnMap(header)
	if err != nil {
		return nil, err
	}

	var out []models.YieldObservation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		obs, ok, err := cm.parse(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ok {
			out = append(out, obs)
		}
	}
	return out, nil
}

// CSVSource loads one or more CSV files and merges them.
type CSVSource struct {
	files []string
}

// NewCSVSource creates a source over the given paths.
func NewCSVSource(files ...string) *CSVSource {
	return &CSVSource{files: files}
}

// Name implements Source.
func (s *CSVSource) Name() string { return "csv" }

// Load reads every file concurrently and merges the results.
func (s *CSVSource) Load(ctx context.Context) ([]models.YieldObservation, error) {
	if len(s.files) == 0 {
		return nil, fmt.Errorf("%w: no csv files", models.ErrValidation)
	}
	batches := make([][]models.YieldObservation, len(s.files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range s.files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			obs, err := readCSVFile(path)
			if err != nil {
				return err
			}
			batches[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Merge(batches...)
	if len(merged) == 0 {
		return nil, ErrNoData
	}
	return merged, nil
}

func readCSVFile(path string) ([]models.YieldObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	obs, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return obs, nil
}
