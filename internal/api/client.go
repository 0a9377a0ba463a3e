// Package api is the HTTP client for the Tesla ownership endpoints used by
// the checker: the account order list and the per-order task tree.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/trappiz/tesla-order-status/internal/engine"
	"github.com/trappiz/tesla-order-status/internal/tree"
)

const (
	// DefaultOrdersURL lists the account's orders.
	DefaultOrdersURL = "https://owner-api.teslamotors.com/api/1/users/orders"

	// DefaultTasksURL serves the per-order task tree.
	DefaultTasksURL = "https://akamai-apigateway-vfx.tesla.com/tasks"

	// appVersion is sent with task requests. The gateway only checks that
	// the parameter is present, not its value.
	appVersion = "9.99.9-9999"
)

// Config carries the client's endpoints and request parameters.
type Config struct {
	OrdersURL string
	TasksURL  string
	// DeviceLanguage and DeviceCountry are forwarded to the tasks endpoint
	// and select the language of translated display values.
	DeviceLanguage string
	DeviceCountry  string
	Timeout        time.Duration
}

// Client fetches order data. It implements engine.Fetcher.
type Client struct {
	http *http.Client
	cfg  Config
}

// NewClient creates a Client, filling unset Config fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.OrdersURL == "" {
		cfg.OrdersURL = DefaultOrdersURL
	}
	if cfg.TasksURL == "" {
		cfg.TasksURL = DefaultTasksURL
	}
	if cfg.DeviceLanguage == "" {
		cfg.DeviceLanguage = "en"
	}
	if cfg.DeviceCountry == "" {
		cfg.DeviceCountry = "DE"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
	}
}

// List returns the account's orders, one per reference number.
func (c *Client) List(ctx context.Context, accessToken string) ([]engine.Order, error) {
	body, err := c.get(ctx, accessToken, c.cfg.OrdersURL, "")
	if err != nil {
		return nil, err
	}

	root, err := tree.Decode(body)
	if err != nil {
		return nil, engine.NewTransientError("malformed order list response", err)
	}
	obj, ok := root.(tree.Object)
	if !ok {
		return nil, engine.NewTransientError("unexpected order list shape", nil)
	}
	list, ok := obj["response"].(tree.Array)
	if !ok {
		return nil, engine.NewTransientError("order list response missing envelope", nil)
	}

	orders := make([]engine.Order, 0, len(list))
	for _, item := range list {
		ref := tree.StringAt(item, "referenceNumber")
		if ref == "" {
			return nil, engine.NewTransientError("order entry missing referenceNumber", nil)
		}
		orders = append(orders, engine.Order{Reference: ref, Summary: item})
	}
	return orders, nil
}

// Details returns the nested task tree for one order. An empty tasks object
// is treated as transient: the gateway intermittently replies with an empty
// body for valid references.
func (c *Client) Details(ctx context.Context, accessToken, reference string) (tree.Node, error) {
	q := url.Values{
		"deviceLanguage":  {c.cfg.DeviceLanguage},
		"deviceCountry":   {c.cfg.DeviceCountry},
		"referenceNumber": {reference},
		"appVersion":      {appVersion},
	}
	body, err := c.get(ctx, accessToken, c.cfg.TasksURL+"?"+q.Encode(), reference)
	if err != nil {
		return nil, err
	}

	root, err := tree.Decode(body)
	if err != nil {
		return nil, engine.NewTransientError("malformed task response", err)
	}
	obj, ok := root.(tree.Object)
	if !ok {
		return nil, engine.NewTransientError("unexpected task response shape", nil)
	}
	tasks, ok := obj["tasks"].(tree.Object)
	if !ok || len(tasks) == 0 {
		return nil, engine.NewTransientError("empty task response", nil)
	}
	return root, nil
}

// get performs an authenticated GET and classifies failures by status code.
func (c *Client) get(ctx context.Context, accessToken, rawURL, reference string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, engine.NewTransientError("request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, reference); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.NewTransientError("read response", err)
	}
	return body, nil
}

// classifyStatus maps an HTTP status to the checker's error taxonomy.
func classifyStatus(status int, reference string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return engine.NewAuthError(fmt.Sprintf("API rejected token: status %d", status), nil)
	case status == http.StatusNotFound:
		return engine.NewNotFoundError(reference)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return engine.NewTransientError(fmt.Sprintf("API unavailable: status %d", status), nil)
	default:
		return engine.NewTransientError(fmt.Sprintf("unexpected status %d", status), nil)
	}
}
