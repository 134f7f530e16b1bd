// Package webshare lists proxies from the Webshare REST API.
package webshare

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/prepcart/brochure-crawler/internal/egress"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://proxy.webshare.io/api/v2"
	defaultMode    = "direct"
	pageSize       = 100
	maxPages       = 20
)

// TokenFunc returns the API token, typically from the secrets provider.
type TokenFunc func(ctx context.Context) (string, error)

// Config controls the client.
type Config struct {
	BaseURL string
	Mode    string
	Timeout time.Duration
}

// Client implements egress.Provider.
type Client struct {
	http   *resty.Client
	mode   string
	token  TokenFunc
	logger *zap.Logger
}

type proxyEntry struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	ProxyAddress string `json:"proxy_address"`
	Port         int    `json:"port"`
	Valid        bool   `json:"valid"`
	CountryCode  string `json:"country_code"`
}

type listResponse struct {
	Count   int          `json:"count"`
	Next    *string      `json:"next"`
	Results []proxyEntry `json:"results"`
}

// New builds a Client.
func New(cfg Config, token TokenFunc, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Mode == "" {
		cfg.Mode = defaultMode
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{http: client, mode: cfg.Mode, token: token, logger: logger}
}

// ListIdentities pages through the proxy list and keeps valid proxies in country.
func (c *Client) ListIdentities(ctx context.Context, country string) ([]egress.Identity, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("webshare token: %w", err)
	}
	country = strings.ToUpper(country)

	var (
		out       []egress.Identity
		pages     int
		truncated bool
	)
	for page := 1; ; page++ {
		if page > maxPages {
			truncated = true
			break
		}
		var body listResponse
		req := c.http.R().
			SetContext(ctx).
			SetHeader("Authorization", "Token "+token).
			SetQueryParam("mode", c.mode).
			SetQueryParam("page", strconv.Itoa(page)).
			SetQueryParam("page_size", strconv.Itoa(pageSize)).
			SetResult(&body)
		if country != "" {
			req.SetQueryParam("country_code__in", country)
		}
		res, err := req.Get("/proxy/list/")
		if err != nil {
			return nil, fmt.Errorf("list proxies: %w", err)
		}
		if res.IsError() {
			return nil, fmt.Errorf("list proxies: unexpected status %d", res.StatusCode())
		}
		pages = page

		for _, p := range body.Results {
			if !p.Valid || (country != "" && !strings.EqualFold(p.CountryCode, country)) {
				continue
			}
			out = append(out, egress.Identity{URL: proxyURL(p), Country: strings.ToUpper(p.CountryCode)})
		}
		if body.Next == nil || *body.Next == "" {
			break
		}
	}
	if truncated {
		c.logger.Warn("webshare proxy list truncated at page limit",
			zap.Int("pages", pages),
			zap.Int("page_size", pageSize),
		)
	}
	c.logger.Info("webshare proxies listed",
		zap.String("country", country),
		zap.Int("usable", len(out)),
		zap.Int("pages", pages),
	)
	return out, nil
}

func proxyURL(p proxyEntry) *url.URL {
	u := &url.URL{Scheme: "http", Host: net.JoinHostPort(p.ProxyAddress, strconv.Itoa(p.Port))}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}
