package pricer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/pkg/retrier"
	"go.uber.org/zap"
)

const (
	DefaultYahooBaseURL = "https://query1.finance.yahoo.com"
	DefaultYahooRange   = "1y"

	yahooTimeout   = 15 * time.Second
	yahooUserAgent = "Mozilla/5.0 (compatible; infbuy/1.0)"
)

// YahooProvider reads the Yahoo Finance chart API.
type YahooProvider struct {
	client  *http.Client
	baseURL string
	rng     string
	retrier *retrier.Retrier
}

// NewYahooProvider creates a provider. Empty baseURL and rng fall back to the defaults.
func NewYahooProvider(l *zap.Logger, baseURL, rng string) *YahooProvider {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	if rng == "" {
		rng = DefaultYahooRange
	}
	return &YahooProvider{
		client:  &http.Client{Timeout: yahooTimeout},
		baseURL: baseURL,
		rng:     rng,
		retrier: retrier.New(retrier.WithLogger(l, "yahoo chart")),
	}
}

// Name implements HistoryProvider.
func (p *YahooProvider) Name() string {
	return "yahoo"
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*decimal.Decimal `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type statusError struct {
	code int
}

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// DailyCloses implements HistoryProvider.
func (p *YahooProvider) DailyCloses(ctx context.Context, ticker string) ([]domain.DailyClose, error) {
	body, err := retrier.DoWithData(p.retrier, ctx, func(ctx context.Context) ([]byte, error) {
		return p.fetch(ctx, ticker)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "yahoo chart for %s", ticker)
	}
	return parseChart(body)
}

func (p *YahooProvider) fetch(ctx context.Context, ticker string) ([]byte, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		p.baseURL, url.PathEscape(ticker), url.QueryEscape(p.rng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retrier.Permanent(err)
	}
	req.Header.Set("User-Agent", yahooUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return nil, statusError{code: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		// the body still carries chart.error
		return body, nil
	case resp.StatusCode != http.StatusOK:
		return nil, retrier.Permanent(statusError{code: resp.StatusCode})
	}
	return body, nil
}

func parseChart(body []byte) ([]domain.DailyClose, error) {
	var r chartResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, errors.Wrap(err, "decode chart response")
	}
	if r.Chart.Error != nil {
		return nil, errors.Errorf("chart error %s: %s", r.Chart.Error.Code, r.Chart.Error.Description)
	}
	if len(r.Chart.Result) == 0 || len(r.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrNoData
	}

	res := r.Chart.Result[0]
	closes := res.Indicators.Quote[0].Close
	out := make([]domain.DailyClose, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		out = append(out, domain.DailyClose{
			Date:  domain.DateOf(time.Unix(ts, 0).UTC()),
			Price: *closes[i],
		})
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}
