package httpfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
)

// Connector reads a source's current document set from an HTTP feed, the
// contract the n8n export flows publish: GET /documents lists everything,
// GET /documents/{id} returns one record with its full text.
type Connector struct {
	source     string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(source, baseURL, apiKey string) *Connector {
	return &Connector{
		source:     source,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Connector) Source() string { return c.source }

func (c *Connector) ListDocuments(ctx context.Context) ([]domain.DocumentPayload, error) {
	var payloads []domain.DocumentPayload
	if err := c.getJSON(ctx, "/documents", &payloads); err != nil {
		return nil, err
	}
	for i := range payloads {
		if payloads[i].Source == "" {
			payloads[i].Source = c.source
		}
	}
	return payloads, nil
}

func (c *Connector) GetDocument(ctx context.Context, docID string) (*domain.DocumentPayload, error) {
	var payload domain.DocumentPayload
	if err := c.getJSON(ctx, "/documents/"+url.PathEscape(docID), &payload); err != nil {
		return nil, err
	}
	if payload.Source == "" {
		payload.Source = c.source
	}
	return &payload, nil
}

func (c *Connector) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create feed request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("feed %s request: %w", c.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("feed %s status: %s: %s", c.source, resp.Status, msg)
		}
		return fmt.Errorf("feed %s status: %s", c.source, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode feed response: %w", err)
	}
	return nil
}
