package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"supplier-catalog-service/internal/domain"
)

// CrestConfig holds the connection settings of the Crest JSON feed.
type CrestConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Client  ClientOptions
}

type crestItem struct {
	SKU          string            `json:"sku"`
	Title        string            `json:"title"`
	Desc         string            `json:"desc"`
	PriceInc     flexNumber        `json:"price_inc"`
	RRP          flexNumber        `json:"rrp"`
	Manufacturer string            `json:"manufacturer"`
	Category     string            `json:"category"`
	Stock        json.RawMessage   `json:"stock"`
	Image        string            `json:"image"`
	Gallery      []string          `json:"gallery"`
	Attributes   map[string]string `json:"attributes"`
	Modified     string            `json:"modified"`
	Created      string            `json:"created"`
}

// Crest reads a JSON feed published either as a bare array or wrapped in
// {"items": [...]}. Numbers arrive as strings and stock as "10+" style
// lower bounds.
type Crest struct {
	cfg     CrestConfig
	pricing Pricing
	client  *client
	log     *slog.Logger
}

// NewCrest creates the Crest adapter.
func NewCrest(cfg CrestConfig, pricing Pricing, logger *slog.Logger) *Crest {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("supplier", string(domain.SupplierCrest)))
	opts := cfg.Client
	if opts.Timeout == 0 {
		opts.Timeout = cfg.Timeout
	}
	opts.Headers = mergeHeaders(opts.Headers, map[string]string{"Accept": "application/json"})
	return &Crest{
		cfg:     cfg,
		pricing: pricing,
		client:  newClient(opts, logger),
		log:     logger,
	}
}

func (c *Crest) Supplier() domain.Supplier { return domain.SupplierCrest }

// FetchAll downloads and normalizes the whole Crest catalog.
func (c *Crest) FetchAll(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/products?apikey=" + url.QueryEscape(c.cfg.APIKey)
	body, err := c.client.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("crest: fetch products: %w", err)
	}
	items, err := decodeCrestItems(body)
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.SKU) == "" {
			continue
		}
		products = append(products, c.transform(item))
	}
	c.log.Info("feed normalized", slog.Int("products", len(products)))
	return products, nil
}

// decodeCrestItems accepts both envelope variants of the feed.
func decodeCrestItems(body []byte) ([]crestItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("crest: empty response")
	}
	if trimmed[0] == '[' {
		var items []crestItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("crest: parse array feed: %w", err)
		}
		return items, nil
	}
	var env struct {
		Items *[]crestItem `json:"items"`
		Error string       `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("crest: parse envelope feed: %w", err)
	}
	if env.Items == nil {
		if env.Error != "" {
			return nil, fmt.Errorf("crest: feed reported failure: %q", env.Error)
		}
		return nil, fmt.Errorf("crest: envelope without items")
	}
	return *env.Items, nil
}

// crestStock reads the stock field, which is either a number or a string
// such as "10+".
func crestStock(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseQuantity(s)
	}
	var n flexNumber
	_ = n.UnmarshalJSON(raw)
	return ParseQuantity(n.Truncate(0).String())
}

func (c *Crest) transform(item crestItem) domain.Product {
	qty, more := crestStock(item.Stock)

	images := make([]string, 0, len(item.Gallery)+1)
	featured := strings.TrimSpace(item.Image)
	if featured != "" {
		images = append(images, featured)
	}
	for _, g := range nonEmpty(item.Gallery) {
		if g != featured {
			images = append(images, g)
		}
	}

	attrs := make(map[string]string, len(item.Attributes))
	for k, v := range item.Attributes {
		attrs[k] = v
	}

	description := strings.TrimSpace(item.Desc)
	return domain.Product{
		SKU:              strings.TrimSpace(item.SKU),
		Name:             strings.TrimSpace(item.Title),
		Description:      description,
		ShortDescription: shorten(description, 160),
		Price:            amountFloat(item.PriceInc.Decimal),
		RRP:              amountFloat(item.RRP.Decimal),
		Stock:            domain.NewStock(map[string]int{"MAIN": c.pricing.BranchQuantity(qty, more)}),
		FeaturedImage:    featured,
		Images:           images,
		Categories:       splitCategoryPath(item.Category, ">"),
		CategoryTree:     strings.TrimSpace(item.Category),
		Brand:            strings.TrimSpace(item.Manufacturer),
		Attributes:       attrs,
		Supplier:         domain.SupplierCrest,
		LastModified:     parseTime(item.Modified),
		CreatedAt:        parseTime(item.Created),
	}.Finalize()
}
