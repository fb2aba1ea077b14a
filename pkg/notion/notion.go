package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/flamefinish/inventory-agent/agent/contract"
)

const (
	defaultBaseURL       = "https://api.notion.com/v1"
	notionVersion        = "2022-06-28"
	maxResponseSizeBytes = 2 << 20
)

// Property names in the inventory and sales databases. The peso sign lives in
// the column names themselves.
const (
	propProductName = "Product Name"
	propCategory    = "Category"
	propVariant     = "Color / Variant"
	propStock       = "Stock"
	propUnit        = "Unit"
	propUnitPrice   = "Unit Price (₱)"
	propSaleProduct = "Product"
	propSaleQty     = "Quantity"
	propSaleTotal   = "Total (₱)"
	propSaleSoldBy  = "Sold By"
	propSaleDate    = "Date"
)

type Config struct {
	APIKey          string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	DatabaseID      string        `envconfig:"DATABASE_ID" split_words:"true" required:"true"`
	SalesDatabaseID string        `envconfig:"SALES_DATABASE_ID" split_words:"true" required:"true"`
	BaseURL         string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.notion.com/v1"`
	Timeout         time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the time source used for sale dates.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client talks to the Notion REST API and implements the record store the
// agent depends on.
type Client struct {
	baseURL    string
	apiKey     string
	databaseID string
	salesDBID  string
	httpClient *http.Client
	now        func() time.Time
}

var _ contractx.RecordStore = (*Client)(nil)

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid notion base url: %w", err)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("notion api key is required")
	}
	databaseID := strings.TrimSpace(cfg.DatabaseID)
	if databaseID == "" {
		return nil, errors.New("notion inventory database id is required")
	}
	salesDBID := strings.TrimSpace(cfg.SalesDatabaseID)
	if salesDBID == "" {
		return nil, errors.New("notion sales database id is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		databaseID: databaseID,
		salesDBID:  salesDBID,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// SearchProducts queries the inventory database. An empty term returns every
// product; otherwise the title is filtered with a contains match.
func (c *Client) SearchProducts(ctx context.Context, term string) ([]contractx.Product, error) {
	payload := map[string]any{}
	if term = strings.TrimSpace(term); term != "" {
		payload["filter"] = map[string]any{
			"property": propProductName,
			"title":    map[string]any{"contains": term},
		}
	}

	var parsed queryResponse
	path := fmt.Sprintf("/databases/%s/query", c.databaseID)
	if err := c.do(ctx, http.MethodPost, path, payload, &parsed); err != nil {
		return nil, err
	}

	products := make([]contractx.Product, 0, len(parsed.Results))
	for _, page := range parsed.Results {
		products = append(products, contractx.Product{
			ID:       page.ID,
			Name:     page.title(propProductName),
			Category: page.selectName(propCategory),
			Variant:  page.richText(propVariant),
			Stock:    page.number(propStock),
			Unit:     page.selectName(propUnit),
			Price:    page.number(propUnitPrice),
		})
	}
	return products, nil
}

// SetStock overwrites the stock quantity of one product page.
func (c *Client) SetStock(ctx context.Context, pageID string, newStock int) error {
	return c.patchPage(ctx, pageID, map[string]any{
		propStock: map[string]any{"number": newStock},
	})
}

// SetPrice overwrites the unit price of one product page.
func (c *Client) SetPrice(ctx context.Context, pageID string, newPrice float64) error {
	return c.patchPage(ctx, pageID, map[string]any{
		propUnitPrice: map[string]any{"number": newPrice},
	})
}

// AppendSale creates one page in the sales log. The total is computed here as
// quantity times unit price; the date is today in ISO-8601.
func (c *Client) AppendSale(ctx context.Context, sale contractx.Sale) error {
	payload := map[string]any{
		"parent": map[string]any{"database_id": c.salesDBID},
		"properties": map[string]any{
			propSaleProduct: map[string]any{
				"title": []map[string]any{
					{"text": map[string]any{"content": sale.ProductName}},
				},
			},
			propSaleQty:   map[string]any{"number": sale.Quantity},
			propUnitPrice: map[string]any{"number": sale.UnitPrice},
			propSaleTotal: map[string]any{"number": float64(sale.Quantity) * sale.UnitPrice},
			propSaleSoldBy: map[string]any{
				"rich_text": []map[string]any{
					{"text": map[string]any{"content": sale.SoldBy}},
				},
			},
			propSaleDate: map[string]any{
				"date": map[string]any{"start": c.now().Format("2006-01-02")},
			},
		},
	}
	return c.do(ctx, http.MethodPost, "/pages", payload, nil)
}

func (c *Client) patchPage(ctx context.Context, pageID string, properties map[string]any) error {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return errors.New("page id is empty")
	}
	payload := map[string]any{"properties": properties}
	return c.do(ctx, http.MethodPatch, "/pages/"+url.PathEscape(pageID), payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute notion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read notion response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notion http status=%d body=%s", resp.StatusCode, truncate(raw, 512))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode notion response: %w", err)
	}
	return nil
}

func truncate(raw []byte, max int) string {
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}

/* --------------------------- wire format decode -------------------------- */

type queryResponse struct {
	Results []page `json:"results"`
}

type page struct {
	ID         string              `json:"id"`
	Properties map[string]property `json:"properties"`
}

type property struct {
	Title    []richTextValue `json:"title"`
	RichText []richTextValue `json:"rich_text"`
	Number   *float64        `json:"number"`
	Select   *selectValue    `json:"select"`
}

type richTextValue struct {
	PlainText string `json:"plain_text"`
}

type selectValue struct {
	Name string `json:"name"`
}

func (p page) title(key string) string {
	prop, ok := p.Properties[key]
	if !ok || len(prop.Title) == 0 {
		return ""
	}
	return prop.Title[0].PlainText
}

func (p page) richText(key string) string {
	prop, ok := p.Properties[key]
	if !ok || len(prop.RichText) == 0 {
		return ""
	}
	return prop.RichText[0].PlainText
}

func (p page) number(key string) *float64 {
	prop, ok := p.Properties[key]
	if !ok {
		return nil
	}
	return prop.Number
}

func (p page) selectName(key string) string {
	prop, ok := p.Properties[key]
	if !ok || prop.Select == nil {
		return ""
	}
	return prop.Select.Name
}
