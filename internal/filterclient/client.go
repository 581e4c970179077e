package filterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shinyes/filterdeck/internal/models"
)

const apiPrefix = "/api/v1/saved-filters"

// Client talks to the filter server over its JSON API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Remote = (*Client)(nil)

func (c *Client) ListFilters(ctx context.Context, tableID string) ([]*models.SavedFilter, error) {
	var out []*models.SavedFilter
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/table/"+url.PathEscape(tableID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListGroups(ctx context.Context, tableID string) ([]*models.FilterGroup, error) {
	var out []*models.FilterGroup
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/groups/table/"+url.PathEscape(tableID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateFilter(ctx context.Context, in models.FilterInput) (models.SavedFilter, error) {
	var out models.SavedFilter
	err := c.do(ctx, http.MethodPost, apiPrefix, in, &out)
	return out, err
}

func (c *Client) UpdateFilter(ctx context.Context, id int64, patch models.FilterPatch) (models.SavedFilter, error) {
	var out models.SavedFilter
	err := c.do(ctx, http.MethodPatch, apiPrefix+"/"+models.Int64ToString(id), patch, &out)
	return out, err
}

func (c *Client) DeleteFilter(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/"+models.Int64ToString(id), nil, nil)
}

type groupRequest struct {
	TableID string `json:"tableId,omitempty"`
	Name    string `json:"name"`
}

func (c *Client) CreateGroup(ctx context.Context, tableID, name string) (models.FilterGroup, error) {
	var out models.FilterGroup
	err := c.do(ctx, http.MethodPost, apiPrefix+"/groups", groupRequest{TableID: tableID, Name: name}, &out)
	return out, err
}

func (c *Client) UpdateGroup(ctx context.Context, id int64, name string) (models.FilterGroup, error) {
	var out models.FilterGroup
	err := c.do(ctx, http.MethodPatch, apiPrefix+"/groups/"+models.Int64ToString(id), groupRequest{Name: name}, &out)
	return out, err
}

func (c *Client) DeleteGroup(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/groups/"+models.Int64ToString(id), nil, nil)
}

func (c *Client) AddFilterToGroup(ctx context.Context, filterID, groupID int64) error {
	path := fmt.Sprintf("%s/%d/group/%d", apiPrefix, filterID, groupID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) RemoveFilterFromGroup(ctx context.Context, filterID int64) error {
	path := fmt.Sprintf("%s/%d/group", apiPrefix, filterID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Expression fetches the CEL rendering of a saved filter.
func (c *Client) Expression(ctx context.Context, id int64) (string, error) {
	var out struct {
		Expression string `json:"expression"`
	}
	err := c.do(ctx, http.MethodGet, apiPrefix+"/"+models.Int64ToString(id)+"/expression", nil, &out)
	return out.Expression, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := strings.TrimSpace(payload.Message)
	if msg == "" {
		msg = http.StatusText(status)
	}

	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusConflict:
		sentinel = ErrAlreadyExists
	case http.StatusBadRequest, http.StatusForbidden:
		sentinel = ErrRejected
	case http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	default:
		return fmt.Errorf("saved filter store: status %d: %s", status, msg)
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
