// Package notion implements the source-side client: page listing, block
// tree fetches and the status ledger table the service mirrors its state
// into.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pagepin/internal/mirror"
	"github.com/MarcoPoloResearchLab/pagepin/internal/page"
)

const (
	defaultBaseURL    = "https://api.notion.com"
	defaultAPIVersion = "2022-06-28"
	// LedgerTitle names the status database under the root page. The prefix
	// keeps the ledger itself out of the mirrored page set.
	LedgerTitle = "[TG_SYNC] Timestamp"
)

// ClientOptions configures the Notion API client.
type ClientOptions struct {
	BaseURL    string
	Token      string
	RootPageID page.PageID
	HTTPClient *http.Client
	APIVersion string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Timezone is used when formatting ledger timestamps.
	Timezone *time.Location
	Logger   *zap.Logger
}

// Client talks to the Notion API. It implements mirror.SourceClient.
type Client struct {
	baseURL    string
	token      string
	rootID     page.PageID
	httpClient *http.Client
	apiVersion string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	timezone   *time.Location
	logger     *zap.Logger

	ledgerID     string
	ledgerRowIDs map[string]string
}

// NewClient builds a client with relayed defaults for anything unset.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	timezone := opts.Timezone
	if timezone == nil {
		timezone = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		token:      opts.Token,
		rootID:     opts.RootPageID,
		httpClient: httpClient,
		apiVersion: apiVersion,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		timezone:   timezone,
		logger:     logger,
	}
}

var _ mirror.SourceClient = (*Client)(nil)

type apiPage struct {
	ID             string    `json:"id"`
	LastEditedTime time.Time `json:"last_edited_time"`
	Properties     map[string]struct {
		Type  string        `json:"type"`
		Title []apiRichText `json:"title"`
	} `json:"properties"`
}

type apiBlockList struct {
	Results    []apiBlock `json:"results"`
	NextCursor string     `json:"next_cursor"`
	HasMore    bool       `json:"has_more"`
}

// ListChildPages returns the first-level child pages of the configured root
// page with their titles and revision markers.
func (c *Client) ListChildPages(ctx context.Context) ([]page.Page, error) {
	children, err := c.listChildren(ctx, c.rootID.String())
	if err != nil {
		return nil, fmt.Errorf("listing root children: %w", err)
	}
	pages := make([]page.Page, 0, len(children))
	for _, child := range children {
		if child.Type != "child_page" {
			continue
		}
		childPage, err := c.retrievePage(ctx, child.ID)
		if err != nil {
			c.logger.Warn("retrieving child page failed",
				zap.String("block_id", child.ID), zap.Error(err))
			continue
		}
		pages = append(pages, childPage)
	}
	return pages, nil
}

func (c *Client) retrievePage(ctx context.Context, rawID string) (page.Page, error) {
	var decoded apiPage
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+rawID, nil, &decoded); err != nil {
		return page.Page{}, err
	}
	id, err := page.NewPageID(decoded.ID)
	if err != nil {
		return page.Page{}, err
	}
	title := ""
	for _, property := range decoded.Properties {
		if property.Type != "title" {
			continue
		}
		for _, entry := range property.Title {
			title += entry.PlainText
		}
		break
	}
	return page.Page{ID: id, Title: title, EditedAt: decoded.LastEditedTime}, nil
}

// FetchPageTree returns the page's top-level blocks with container children
// resolved recursively. Table children become cell rows, never nested
// blocks.
func (c *Client) FetchPageTree(ctx context.Context, id page.PageID) ([]page.Block, error) {
	return c.fetchBlocks(ctx, id.String())
}

func (c *Client) fetchBlocks(ctx context.Context, blockID string) ([]page.Block, error) {
	raw, err := c.listChildren(ctx, blockID)
	if err != nil {
		return nil, err
	}
	blocks := make([]page.Block, 0, len(raw))
	for _, entry := range raw {
		block := parseBlock(entry)
		switch {
		case block.Variant == page.VariantTable:
			rows, err := c.listChildren(ctx, entry.ID)
			if err != nil {
				return nil, fmt.Errorf("fetching table rows: %w", err)
			}
			for _, row := range rows {
				if row.TableRow == nil {
					continue
				}
				cells := make([][]page.Span, 0, len(row.TableRow.Cells))
				for _, cell := range row.TableRow.Cells {
					cells = append(cells, parseSpans(cell))
				}
				block.Rows = append(block.Rows, cells)
			}
		case containerVariant(block.Variant) && entry.HasChildren:
			children, err := c.fetchBlocks(ctx, entry.ID)
			if err != nil {
				return nil, fmt.Errorf("fetching block children: %w", err)
			}
			block.Children = children
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func (c *Client) listChildren(ctx context.Context, blockID string) ([]apiBlock, error) {
	var all []apiBlock
	cursor := ""
	for {
		path := "/v1/blocks/" + blockID + "/children?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		var decoded apiBlockList
		if err := c.do(ctx, http.MethodGet, path, nil, &decoded); err != nil {
			return nil, err
		}
		all = append(all, decoded.Results...)
		if !decoded.HasMore || decoded.NextCursor == "" {
			return all, nil
		}
		cursor = decoded.NextCursor
	}
}

// do issues one API call with retry on rate limits and server errors,
// honouring Retry-After, and maps terminal statuses onto the mirror error
// taxonomy.
func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var bodyBytes []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		bodyBytes = encoded
	}
	url := c.baseURL + path

	for attempt := 0; ; attempt++ {
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", c.apiVersion)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("%w: %v", mirror.ErrTransient, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil {
				return nil
			}
			return json.Unmarshal(respBody, out)
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode >= 500 && resp.StatusCode <= 599)
		if retryable && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		return statusError(resp.StatusCode, respBody)
	}
}

func statusError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		message = parsed.Message
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: notion status=%d message=%s", mirror.ErrNotFound, status, message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: notion status=%d message=%s", mirror.ErrPermanent, status, message)
	case status == http.StatusTooManyRequests || (status >= 500 && status <= 599):
		return fmt.Errorf("%w: notion status=%d message=%s", mirror.ErrTransient, status, message)
	default:
		return fmt.Errorf("notion request failed: status=%d message=%s", status, message)
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
