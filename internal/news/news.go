package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/npezzotti/cryptoforum/internal/httpx"
)

// Article is one entry of the upstream news feed.
type Article struct {
	Url         string `json:"url"`
	Title       string `json:"title"`
	ImageUrl    string `json:"imageurl"`
	PublishedOn int64  `json:"published_on"`
	Source      string `json:"source"`
	Body        string `json:"body"`
}

type feed struct {
	Data    []Article `json:"Data"`
	Message string    `json:"Message,omitempty"`
}

// Fetcher returns the latest batch of articles in upstream order.
type Fetcher interface {
	Latest(ctx context.Context) ([]Article, error)
}

type Client struct {
	http   *httpx.Client
	url    string
	apiKey string
}

func NewClient(httpClient *httpx.Client, url, apiKey string) *Client {
	return &Client{http: httpClient, url: url, apiKey: apiKey}
}

func (c *Client) Latest(ctx context.Context) ([]Article, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.apiKey != "" {
		header.Set("Authorization", "Apikey "+c.apiKey)
	}

	body, err := c.http.Do(ctx, http.MethodGet, c.url, header, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch news: %w", err)
	}

	var f feed
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("decode news: %w", err)
	}

	articles := make([]Article, 0, len(f.Data))
	for _, a := range f.Data {
		if a.Url == "" {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}
