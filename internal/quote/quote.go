// Package quote looks up the latest adjusted close for a stock symbol via
// the Yahoo Finance CSV download endpoint.
package quote

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable is returned for any lookup failure: unknown symbol,
// network error, or malformed response.
var ErrUnavailable = errors.New("quote: unavailable")

type Quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &Client{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup fetches seven days of daily quotes and returns the most recent
// adjusted close, rounded to cents.
func (c *Client) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrUnavailable
	}

	end := time.Now()
	start := end.AddDate(0, 0, -7)

	u := fmt.Sprintf(
		"%s/v7/finance/download/%s?period1=%d&period2=%d&interval=1d&events=history&includeAdjustedClose=true",
		strings.TrimRight(c.BaseURL, "/"),
		url.PathEscape(symbol),
		start.Unix(),
		end.Unix(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	// CSV header: Date,Open,High,Low,Close,Adj Close,Volume
	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil || len(rows) < 2 {
		return nil, ErrUnavailable
	}

	header := rows[0]
	adjIdx := -1
	for i, col := range header {
		if col == "Adj Close" {
			adjIdx = i
		}
	}
	if adjIdx < 0 {
		return nil, ErrUnavailable
	}

	last := rows[len(rows)-1]
	if adjIdx >= len(last) {
		return nil, ErrUnavailable
	}
	price, err := strconv.ParseFloat(last[adjIdx], 64)
	if err != nil {
		return nil, ErrUnavailable
	}

	return &Quote{Symbol: symbol, Price: math.Round(price*100) / 100}, nil
}
