package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/cryptoforum/internal/httpx"
)

type Position string

const (
	PositionLong  Position = "Long"
	PositionShort Position = "Short"
)

type Request struct {
	CryptoName   string  `json:"cryptoName"`
	CurrentPrice float64 `json:"currentPrice"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.CryptoName) == "" {
		return fmt.Errorf("%w: crypto name is required", ErrInvalidRequest)
	}
	if r.CurrentPrice <= 0 {
		return fmt.Errorf("%w: current price must be positive", ErrInvalidRequest)
	}
	return nil
}

// Result is a trade suggestion. Prices and confidence are preformatted
// display strings, passed through as received.
type Result struct {
	Position   Position `json:"position"`
	EntryPrice string   `json:"entryPrice"`
	StopLoss   string   `json:"stopLoss"`
	TakeProfit string   `json:"takeProfit"`
	Confidence string   `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

type errorBody struct {
	Error string `json:"error"`
}

// UpstreamError is a failure reported by the analysis service itself.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("analysis service: %s (status %d)", e.Message, e.StatusCode)
}

// Analyzer produces a trade suggestion for one coin.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Result, error)
}

type Client struct {
	http *httpx.Client
	url  string
}

func NewClient(httpClient *httpx.Client, url string) *Client {
	return &Client{http: httpClient, url: url}
}

func (c *Client) Analyze(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	body, err := c.http.Do(ctx, http.MethodPost, c.url, header, payload)
	if err != nil {
		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) {
			var eb errorBody
			if json.Unmarshal(statusErr.Body, &eb) == nil && eb.Error != "" {
				return Result{}, &UpstreamError{StatusCode: statusErr.StatusCode, Message: eb.Error}
			}
		}
		return Result{}, fmt.Errorf("analyze %s: %w", req.CryptoName, err)
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return Result{}, fmt.Errorf("decode analysis: %w", err)
	}
	if res.Position != PositionLong && res.Position != PositionShort {
		return Result{}, fmt.Errorf("decode analysis: unknown position %q", res.Position)
	}
	return res, nil
}
