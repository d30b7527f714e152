package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yazwaza/us-treasuries/internal/infra"
	"github.com/yazwaza/us-treasuries/pkg/models"
	"github.com/yazwaza/us-treasuries/pkg/utils"
)

// DefaultCacheTTL is how long a downloaded year is reused.
const DefaultCacheTTL = 30 * time.Minute

// yearlySource downloads one document per calendar year, parses each and
// merges the results. Downloads share a cache and a rate limiter.
type yearlySource struct {
	name     string
	template string
	years    []int
	headers  map[string]string
	parse    func(raw []byte) ([]models.YieldObservation, error)
	cache    *infra.Cache[[]models.YieldObservation]
	limiter  *infra.RateLimiter
}

func newYearlySource(name, template string, years []int, ttl time.Duration,
	headers map[string]string, parse func([]byte) ([]models.YieldObservation, error)) (*yearlySource, error) {
	if !strings.Contains(template, "%d") {
		return nil, fmt.Errorf("%w: %s url %q has no %%d year placeholder", models.ErrValidation, name, template)
	}
	if len(years) == 0 {
		years = []int{utils.NowET().Year()}
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &yearlySource{
		name:     name,
		template: template,
		years:    years,
		headers:  headers,
		parse:    parse,
		cache:    infra.NewCache[[]models.YieldObservation](ttl),
		limiter:  infra.NewRateLimiter(2, time.Second),
	}, nil
}

func (s *yearlySource) Name() string { return s.name }

func (s *yearlySource) Load(ctx context.Context) ([]models.YieldObservation, error) {
	batches := make([][]models.YieldObservation, len(s.years))
	g, gctx := errgroup.WithContext(ctx)
	for i, year := range s.years {
		i, year := i, year
		g.Go(func() error {
			obs, err := s.year(gctx, year)
			if err != nil {
				return fmt.Errorf("%s %d: %w", s.name, year, err)
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

func (s *yearlySource) year(ctx context.Context, year int) ([]models.YieldObservation, error) {
	url := fmt.Sprintf(s.template, year)
	if cached, ok := s.cache.Get(url); ok {
		return cached, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	raw, err := infra.GetBytes(ctx, url, s.headers)
	if err != nil {
		return nil, err
	}
	obs, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	s.cache.Set(url, obs)
	return obs, nil
}
