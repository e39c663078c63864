// Package price supplies market quotes to the reporting layer. The ledger
// core never reads prices; only portfolio valuation does.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// Point is one historical closing price.
type Point struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// Quoter is the price-lookup capability consumed by portfolio valuation.
type Quoter interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	HistoricalPrices(ctx context.Context, symbol string, since time.Time) ([]Point, error)
}

// ErrUnavailable is returned when no quote can be obtained for a symbol.
var ErrUnavailable = errors.New("price: quote unavailable")

// chartResponse mirrors the Yahoo-style chart endpoint payload.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// HTTPQuoter fetches quotes from a chart-style HTTP API and memoizes them in
// a TTL cache so repeated portfolio reads don't hammer the upstream.
type HTTPQuoter struct {
	client  *http.Client
	baseURL string
	cache   *gocache.Cache
}

// NewHTTPQuoter creates a quoter against baseURL (e.g. a Yahoo Finance query
// host) caching quotes for ttl.
func NewHTTPQuoter(baseURL string, ttl time.Duration) *HTTPQuoter {
	return &HTTPQuoter{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: baseURL,
		cache:   gocache.New(ttl, 2*ttl),
	}
}

func (q *HTTPQuoter) fetchChart(ctx context.Context, symbol, query string) (*chartResponse, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", q.baseURL, url.PathEscape(symbol), query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("price: build request for %s: %w", symbol, err)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, symbol, resp.StatusCode)
	}
	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrUnavailable, symbol, err)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s: empty result", ErrUnavailable, symbol)
	}
	return &chart, nil
}

func (q *HTTPQuoter) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	cacheKey := "cur:" + symbol
	if v, ok := q.cache.Get(cacheKey); ok {
		return v.(decimal.Decimal), nil
	}

	chart, err := q.fetchChart(ctx, symbol, "range=1d&interval=1d")
	if err != nil {
		return decimal.Zero, err
	}
	p := chart.Chart.Result[0].Meta.RegularMarketPrice
	if p <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s: no market price", ErrUnavailable, symbol)
	}
	current := decimal.NewFromFloat(p)
	q.cache.Set(cacheKey, current, gocache.DefaultExpiration)
	return current, nil
}

func (q *HTTPQuoter) HistoricalPrices(ctx context.Context, symbol string, since time.Time) ([]Point, error) {
	cacheKey := fmt.Sprintf("hist:%s:%s", symbol, since.UTC().Format("2006-01-02"))
	if v, ok := q.cache.Get(cacheKey); ok {
		return v.([]Point), nil
	}

	query := fmt.Sprintf("period1=%d&period2=%d&interval=1d",
		since.UTC().Unix(), time.Now().UTC().Unix())
	chart, err := q.fetchChart(ctx, symbol, query)
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: %s: no quote series", ErrUnavailable, symbol)
	}
	closes := result.Indicators.Quote[0].Close

	points := make([]Point, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] <= 0 {
			continue // upstream pads missing sessions with zeros
		}
		points = append(points, Point{
			Date:  time.Unix(ts, 0).UTC(),
			Price: decimal.NewFromFloat(closes[i]),
		})
	}
	q.cache.Set(cacheKey, points, gocache.DefaultExpiration)
	return points, nil
}

// Static is a fixed-price quoter for development and tests.
type Static struct {
	Prices map[string]decimal.Decimal
}

func (s *Static) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := s.Prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
	}
	return p, nil
}

func (s *Static) HistoricalPrices(_ context.Context, symbol string, _ time.Time) ([]Point, error) {
	p, ok := s.Prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
	}
	return []Point{{Date: time.Now().UTC(), Price: p}}, nil
}
