package notion

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pagepin/internal/mirror"
	"github.com/MarcoPoloResearchLab/pagepin/internal/page"
)

type apiDatabase struct {
	ID    string        `json:"id"`
	Title []apiRichText `json:"title"`
}

type apiLedgerRow struct {
	ID         string `json:"id"`
	Properties struct {
		Page struct {
			Title []struct {
				PlainText string `json:"plain_text"`
				Href      string `json:"href"`
			} `json:"title"`
		} `json:"Page"`
		Telegram struct {
			URL string `json:"url"`
		} `json:"Telegram"`
		Updated struct {
			Date *struct {
				Start string `json:"start"`
			} `json:"date"`
		} `json:"Updated"`
	} `json:"properties"`
}

type apiQueryResult struct {
	Results    []apiLedgerRow `json:"results"`
	NextCursor string         `json:"next_cursor"`
	HasMore    bool           `json:"has_more"`
}

// ensureLedger finds (or creates) the status database under the root page
// and caches its id for the life of the client.
func (c *Client) ensureLedger(ctx context.Context) (string, error) {
	if c.ledgerID != "" {
		return c.ledgerID, nil
	}
	children, err := c.listChildren(ctx, c.rootID.String())
	if err != nil {
		return "", fmt.Errorf("listing root children for ledger: %w", err)
	}
	for _, child := range children {
		if child.Type != "child_database" || child.ChildDatabase == nil {
			continue
		}
		if child.ChildDatabase.Title != LedgerTitle {
			continue
		}
		c.ledgerID = child.ID
		return c.ledgerID, nil
	}

	created, err := c.createLedger(ctx)
	if err != nil {
		return "", err
	}
	c.logger.Info("status ledger database created", zap.String("database_id", created))
	c.ledgerID = created
	return c.ledgerID, nil
}

func (c *Client) createLedger(ctx context.Context) (string, error) {
	payload := map[string]any{
		"parent": map[string]any{"type": "page_id", "page_id": c.rootID.String()},
		"title": []map[string]any{
			{"type": "text", "text": map[string]any{"content": LedgerTitle}},
		},
		"properties": map[string]any{
			"Page":     map[string]any{"title": map[string]any{}},
			"Telegram": map[string]any{"url": map[string]any{}},
			"Updated":  map[string]any{"date": map[string]any{}},
		},
	}
	var created apiDatabase
	if err := c.do(ctx, http.MethodPost, "/v1/databases", payload, &created); err != nil {
		return "", fmt.Errorf("creating ledger database: %w", err)
	}
	return created.ID, nil
}

// QueryLedger reads the current ledger rows keyed by page id. Row ids are
// cached so a following upsert can address existing rows.
func (c *Client) QueryLedger(ctx context.Context) (map[string]mirror.LedgerRow, error) {
	databaseID, err := c.ensureLedger(ctx)
	if err != nil {
		return nil, err
	}
	rows := make(map[string]mirror.LedgerRow)
	rowIDs := make(map[string]string)
	cursor := ""
	for {
		payload := map[string]any{}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}
		var result apiQueryResult
		if err := c.do(ctx, http.MethodPost, "/v1/databases/"+databaseID+"/query", payload, &result); err != nil {
			return nil, fmt.Errorf("querying ledger: %w", err)
		}
		for _, raw := range result.Results {
			row, pageID := parseLedgerRow(raw)
			if pageID == "" {
				continue
			}
			rows[pageID] = row
			rowIDs[pageID] = raw.ID
		}
		if !result.HasMore || result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}
	c.ledgerRowIDs = rowIDs
	return rows, nil
}

func parseLedgerRow(raw apiLedgerRow) (mirror.LedgerRow, string) {
	row := mirror.LedgerRow{MessageURL: raw.Properties.Telegram.URL}
	for _, entry := range raw.Properties.Page.Title {
		row.Title += entry.PlainText
		if entry.Href != "" && row.PageURL == "" {
			row.PageURL = entry.Href
		}
	}
	if raw.Properties.Updated.Date != nil {
		if parsed, err := time.Parse(time.RFC3339, raw.Properties.Updated.Date.Start); err == nil {
			row.UpdatedAt = parsed
		}
	}
	row.PageID = page.ExtractPageID(row.PageURL)
	return row, row.PageID
}

// UpsertLedgerRow writes one status row, updating the existing row for the
// page when one is known.
func (c *Client) UpsertLedgerRow(ctx context.Context, row mirror.LedgerRow) error {
	databaseID, err := c.ensureLedger(ctx)
	if err != nil {
		return err
	}
	if c.ledgerRowIDs == nil {
		if _, err := c.QueryLedger(ctx); err != nil {
			return err
		}
	}

	properties := map[string]any{
		"Page": map[string]any{
			"title": []map[string]any{
				{
					"type": "text",
					"text": map[string]any{
						"content": row.Title,
						"link":    map[string]any{"url": row.PageURL},
					},
				},
			},
		},
		"Updated": map[string]any{
			"date": map[string]any{
				"start": row.UpdatedAt.In(c.timezone).Format(time.RFC3339),
			},
		},
	}
	if row.MessageURL != "" {
		properties["Telegram"] = map[string]any{"url": row.MessageURL}
	} else {
		properties["Telegram"] = map[string]any{"url": nil}
	}

	if rowID, ok := c.ledgerRowIDs[row.PageID]; ok {
		payload := map[string]any{"properties": properties}
		if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+rowID, payload, nil); err != nil {
			return fmt.Errorf("updating ledger row: %w", err)
		}
		return nil
	}

	payload := map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": properties,
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/pages", payload, &created); err != nil {
		return fmt.Errorf("creating ledger row: %w", err)
	}
	if c.ledgerRowIDs == nil {
		c.ledgerRowIDs = make(map[string]string)
	}
	c.ledgerRowIDs[row.PageID] = created.ID
	return nil
}
