package supplier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"supplier-catalog-service/internal/domain"
)

// AcmeConfig holds the connection settings of the Acme JSON feed.
type AcmeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Client  ClientOptions
}

type acmeEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Products []acmeProduct `json:"products"`
	} `json:"data"`
}

type acmeBranchStock struct {
	Branch string     `json:"branch"`
	Qty    flexNumber `json:"qty"`
	More   bool       `json:"more"`
}

type acmeProduct struct {
	Code         string            `json:"code"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Summary      string            `json:"summary"`
	Price        flexNumber        `json:"price"`
	RRP          flexNumber        `json:"rrp"`
	Brand        string            `json:"brand"`
	Categories   []string          `json:"categories"`
	CategoryPath string            `json:"category_path"`
	Images       []string          `json:"images"`
	Stock        []acmeBranchStock `json:"stock"`
	Specs        map[string]string `json:"specs"`
	UpdatedAt    string            `json:"updated_at"`
	CreatedAt    string            `json:"created_at"`
}

// Acme reads a JSON envelope feed with tax-inclusive prices and per-branch
// stock.
type Acme struct {
	cfg     AcmeConfig
	pricing Pricing
	client  *client
	log     *slog.Logger
}

// NewAcme creates the Acme adapter.
func NewAcme(cfg AcmeConfig, pricing Pricing, logger *slog.Logger) *Acme {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("supplier", string(domain.SupplierAcme)))
	opts := cfg.Client
	if opts.Timeout == 0 {
		opts.Timeout = cfg.Timeout
	}
	opts.Headers = mergeHeaders(opts.Headers, map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
		"Accept":        "application/json",
	})
	return &Acme{
		cfg:     cfg,
		pricing: pricing,
		client:  newClient(opts, logger),
		log:     logger,
	}
}

func (a *Acme) Supplier() domain.Supplier { return domain.SupplierAcme }

// FetchAll downloads and normalizes the whole Acme catalog.
func (a *Acme) FetchAll(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var env acmeEnvelope
	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/v1/products"
	if err := a.client.getJSON(ctx, url, &env); err != nil {
		return nil, fmt.Errorf("acme: fetch products: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("acme: feed reported failure: %q", env.Message)
	}

	products := make([]domain.Product, 0, len(env.Data.Products))
	for _, raw := range env.Data.Products {
		if strings.TrimSpace(raw.Code) == "" {
			continue
		}
		products = append(products, a.transform(raw))
	}
	a.log.Info("feed normalized", slog.Int("products", len(products)))
	return products, nil
}

func (a *Acme) transform(raw acmeProduct) domain.Product {
	locations := make(map[string]int, len(raw.Stock))
	for _, s := range raw.Stock {
		qty := int(s.Qty.IntPart())
		branch := strings.ToUpper(strings.TrimSpace(s.Branch))
		if branch == "" {
			branch = "MAIN"
		}
		locations[branch] += a.pricing.BranchQuantity(qty, s.More)
	}

	categories := nonEmpty(raw.Categories)
	tree := strings.TrimSpace(raw.CategoryPath)
	if len(categories) == 0 && tree != "" {
		categories = splitCategoryPath(tree, ">")
	}
	if tree == "" {
		tree = strings.Join(categories, " > ")
	}

	attrs := make(map[string]string, len(raw.Specs))
	for k, v := range raw.Specs {
		attrs[k] = v
	}

	short := strings.TrimSpace(raw.Summary)
	if short == "" {
		short = shorten(raw.Description, 160)
	}

	return domain.Product{
		SKU:              strings.TrimSpace(raw.Code),
		Name:             strings.TrimSpace(raw.Name),
		Description:      strings.TrimSpace(raw.Description),
		ShortDescription: short,
		Price:            amountFloat(raw.Price.Decimal),
		RRP:              amountFloat(raw.RRP.Decimal),
		Stock:            domain.NewStock(locations),
		Images:           nonEmpty(raw.Images),
		Categories:       categories,
		CategoryTree:     tree,
		Brand:            strings.TrimSpace(raw.Brand),
		Attributes:       attrs,
		Supplier:         domain.SupplierAcme,
		LastModified:     parseTime(raw.UpdatedAt),
		CreatedAt:        parseTime(raw.CreatedAt),
	}.Finalize()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func mergeHeaders(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
