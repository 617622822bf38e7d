package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lenhattan2313/grocery-list-sub000/internal/model"
)

// requestTimeout bounds every remote call so a stalled connection is treated
// as a failure subject to the normal retry policy.
const requestTimeout = 10 * time.Second

// ListUpdate carries a partial list update; nil fields are left unchanged.
type ListUpdate struct {
	Name        *string `json:"name,omitempty"`
	IsCompleted *bool   `json:"is_completed,omitempty"`
	HouseholdID *string `json:"household_id,omitempty"`
}

// Client is the remote grocery API surface the sync engine drains against.
type Client interface {
	CreateList(ctx context.Context, name, userID string, householdID *string) (*model.ShoppingList, error)
	UpdateList(ctx context.Context, listID string, update ListUpdate) (*model.ShoppingList, error)
	DeleteList(ctx context.Context, listID string) error
	ReplaceListItems(ctx context.Context, listID string, items []model.ShoppingItem) (*model.ShoppingList, error)
	FetchLists(ctx context.Context) ([]model.ShoppingList, error)
	Ping(ctx context.Context) error
}

// Error is a remote API failure with its HTTP status, so callers can tell
// permanent rejections from transient network trouble.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// IsPermanent reports whether err is a remote rejection that retrying cannot
// fix. Timeouts (408) and rate limits (429) stay retryable.
func IsPermanent(err error) bool {
	var ae *Error
	if !errors.As(err, &ae) {
		return false
	}
	if ae.StatusCode == http.StatusRequestTimeout || ae.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return ae.StatusCode >= 400 && ae.StatusCode < 500
}

// HTTPClient talks JSON over HTTP to the grocery server.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type createListRequest struct {
	Name        string  `json:"name"`
	UserID      string  `json:"user_id"`
	HouseholdID *string `json:"household_id,omitempty"`
}

type replaceItemsRequest struct {
	Items []model.ShoppingItem `json:"items"`
}

func (c *HTTPClient) CreateList(ctx context.Context, name, userID string, householdID *string) (*model.ShoppingList, error) {
	var list model.ShoppingList
	req := createListRequest{Name: name, UserID: userID, HouseholdID: householdID}
	if err := c.do(ctx, http.MethodPost, "/api/lists", req, &list); err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}
	return &list, nil
}

func (c *HTTPClient) UpdateList(ctx context.Context, listID string, update ListUpdate) (*model.ShoppingList, error) {
	var list model.ShoppingList
	if err := c.do(ctx, http.MethodPatch, "/api/lists/"+listID, update, &list); err != nil {
		return nil, fmt.Errorf("update list %s: %w", listID, err)
	}
	return &list, nil
}

func (c *HTTPClient) DeleteList(ctx context.Context, listID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/lists/"+listID, nil, nil); err != nil {
		return fmt.Errorf("delete list %s: %w", listID, err)
	}
	return nil
}

// ReplaceListItems replaces the list's entire item collection server-side.
func (c *HTTPClient) ReplaceListItems(ctx context.Context, listID string, items []model.ShoppingItem) (*model.ShoppingList, error) {
	var list model.ShoppingList
	if items == nil {
		items = []model.ShoppingItem{}
	}
	if err := c.do(ctx, http.MethodPut, "/api/lists/"+listID+"/items", replaceItemsRequest{Items: items}, &list); err != nil {
		return nil, fmt.Errorf("replace items for list %s: %w", listID, err)
	}
	return &list, nil
}

// FetchLists returns the full list collection for the authenticated user,
// household-shared lists included.
func (c *HTTPClient) FetchLists(ctx context.Context) ([]model.ShoppingList, error) {
	var lists []model.ShoppingList
	if err := c.do(ctx, http.MethodGet, "/api/lists", nil, &lists); err != nil {
		return nil, fmt.Errorf("fetch lists: %w", err)
	}
	return lists, nil
}

// Ping checks server reachability. Used by the network monitor as its
// connectivity probe.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &Error{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errBody)
		return &Error{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
