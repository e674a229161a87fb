package supplier

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"

	"supplier-catalog-service/internal/cache"
	"supplier-catalog-service/internal/domain"
)

// UncategorisedLabel is used when a Dynamo category ID cannot be resolved.
const UncategorisedLabel = "Uncategorised"

// DynamoConfig holds the connection settings of the Dynamo XML feed.
type DynamoConfig struct {
	BaseURL  string
	APIKey   string
	AssetURL string
	Timeout  time.Duration
	// LookupTTL bounds the brand, category and link lookup caches.
	LookupTTL time.Duration
	// LookupFailureTTL is how long an empty lookup is served after a failure.
	LookupFailureTTL time.Duration
	// ImageRequestsPerSecond paces the per-product image calls.
	ImageRequestsPerSecond float64
	Client                 ClientOptions
}

type dynamoFeed struct {
	XMLName xml.Name     `xml:"catalog"`
	Items   []dynamoItem `xml:"item"`
}

type dynamoAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type dynamoItem struct {
	Code        string       `xml:"code"`
	Name        string       `xml:"name"`
	Description string       `xml:"description"`
	BrandID     string       `xml:"brand_id"`
	CategoryID  string       `xml:"category_id"`
	Cost        string       `xml:"cost"`
	RRPEx       string       `xml:"rrp_ex"`
	Qty         string       `xml:"qty"`
	Modified    string       `xml:"modified"`
	Created     string       `xml:"created"`
	Attrs       []dynamoAttr `xml:"attr"`
}

type dynamoBrand struct {
	ID   flexNumber `json:"id"`
	Name string     `json:"name"`
}

type dynamoCategory struct {
	ID     flexNumber `json:"id"`
	Name   string     `json:"name"`
	Parent string     `json:"parent"`
}

// Dynamo reads a legacy XML feed with tax-exclusive prices. Brands,
// categories and product page links come from separate lookup endpoints,
// each cached for LookupTTL. The feed carries no images; EnrichImages fills
// them in the background.
type Dynamo struct {
	cfg     DynamoConfig
	pricing Pricing
	client  *client
	media   *client
	log     *slog.Logger
	images  *ImageStore

	brands     *cache.TTL[map[string]string]
	categories *cache.TTL[map[string]dynamoCategory]
	links      *cache.TTL[map[string]string]

	mu    sync.Mutex
	codes []string
}

// NewDynamo creates the Dynamo adapter. images may be shared with other
// components; a new store is created when nil.
func NewDynamo(cfg DynamoConfig, pricing Pricing, images *ImageStore, logger *slog.Logger) *Dynamo {
	if logger == nil {
		logger = slog.Default()
	}
	if images == nil {
		images = NewImageStore()
	}
	if cfg.LookupTTL <= 0 {
		cfg.LookupTTL = 24 * time.Hour
	}
	if cfg.LookupFailureTTL <= 0 {
		cfg.LookupFailureTTL = time.Minute
	}
	logger = logger.With(slog.String("supplier", string(domain.SupplierDynamo)))

	opts := cfg.Client
	if opts.Timeout == 0 {
		opts.Timeout = cfg.Timeout
	}
	opts.Headers = mergeHeaders(opts.Headers, map[string]string{"X-Api-Key": cfg.APIKey})

	mediaOpts := opts
	mediaOpts.MaxAttempts = 1
	if cfg.ImageRequestsPerSecond > 0 {
		mediaOpts.Limiter = rate.NewLimiter(rate.Limit(cfg.ImageRequestsPerSecond), 1)
	}

	d := &Dynamo{
		cfg:     cfg,
		pricing: pricing,
		client:  newClient(opts, logger),
		media:   newClient(mediaOpts, logger),
		log:     logger,
		images:  images,
	}
	d.brands = cache.New("dynamo:brands", d.loadBrands, cache.Options[map[string]string]{
		TTL: cfg.LookupTTL, FailureTTL: cfg.LookupFailureTTL, Fallback: map[string]string{}, Logger: logger,
	})
	d.categories = cache.New("dynamo:categories", d.loadCategories, cache.Options[map[string]dynamoCategory]{
		TTL: cfg.LookupTTL, FailureTTL: cfg.LookupFailureTTL, Fallback: map[string]dynamoCategory{}, Logger: logger,
	})
	d.links = cache.New("dynamo:links", d.loadLinks, cache.Options[map[string]string]{
		TTL: cfg.LookupTTL, FailureTTL: cfg.LookupFailureTTL, Fallback: map[string]string{}, Logger: logger,
	})
	return d
}

func (d *Dynamo) Supplier() domain.Supplier { return domain.SupplierDynamo }

// Images exposes the store the enrichment step writes into.
func (d *Dynamo) Images() *ImageStore { return d.images }

// FetchAll resolves the lookup tables, then downloads and normalizes the
// XML feed.
func (d *Dynamo) FetchAll(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	var (
		brands     map[string]string
		categories map[string]dynamoCategory
		links      map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { brands = d.brands.Get(gctx); return nil })
	g.Go(func() error { categories = d.categories.Get(gctx); return nil })
	g.Go(func() error { links = d.links.Get(gctx); return nil })
	_ = g.Wait()

	body, err := d.client.get(ctx, d.endpoint("/feed.xml"))
	if err != nil {
		return nil, fmt.Errorf("dynamo: fetch feed: %w", err)
	}
	feed, err := decodeDynamoFeed(body)
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(feed.Items))
	codes := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		code := strings.TrimSpace(item.Code)
		if code == "" {
			continue
		}
		codes = append(codes, code)
		products = append(products, d.transform(item, brands, categories, links))
	}

	d.mu.Lock()
	d.codes = codes
	d.mu.Unlock()

	d.log.Info("feed normalized", slog.Int("products", len(products)))
	return products, nil
}

func decodeDynamoFeed(body []byte) (*dynamoFeed, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charsetReader
	var feed dynamoFeed
	if err := dec.Decode(&feed); err != nil {
		return nil, fmt.Errorf("dynamo: parse feed: %w", err)
	}
	return &feed, nil
}

// charsetReader decodes the single-byte encodings the legacy feed has been
// published in.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("dynamo: unsupported feed charset %q", label)
}

func (d *Dynamo) transform(item dynamoItem, brands map[string]string, categories map[string]dynamoCategory, links map[string]string) domain.Product {
	code := strings.TrimSpace(item.Code)

	labels := []string{UncategorisedLabel}
	tree := UncategorisedLabel
	if c, ok := categories[strings.TrimSpace(item.CategoryID)]; ok && strings.TrimSpace(c.Name) != "" {
		labels = nonEmpty([]string{c.Parent, c.Name})
		tree = strings.Join(labels, " > ")
	}

	attrs := make(map[string]string, len(item.Attrs)+1)
	for _, a := range item.Attrs {
		if name := strings.TrimSpace(a.Name); name != "" {
			attrs[name] = strings.TrimSpace(a.Value)
		}
	}
	if link, ok := links[code]; ok && link != "" {
		attrs["url"] = link
	}

	qty, more := ParseQuantity(item.Qty)
	description := strings.TrimSpace(item.Description)

	return domain.Product{
		SKU:              code,
		Name:             strings.TrimSpace(item.Name),
		Description:      description,
		ShortDescription: shorten(description, 160),
		Price:            d.pricing.TaxInclusive(ParseAmount(item.Cost)),
		RRP:              d.pricing.TaxInclusive(ParseAmount(item.RRPEx)),
		Stock:            domain.NewStock(map[string]int{"WAREHOUSE": d.pricing.BranchQuantity(qty, more)}),
		Images:           d.images.Get(code),
		Categories:       labels,
		CategoryTree:     tree,
		Brand:            brands[strings.TrimSpace(item.BrandID)],
		Attributes:       attrs,
		Supplier:         domain.SupplierDynamo,
		LastModified:     parseTime(item.Modified),
		CreatedAt:        parseTime(item.Created),
	}.Finalize()
}

// EnrichImages fetches images for every product of the last fetch that has
// not been looked up yet. Results show up on the next FetchAll.
func (d *Dynamo) EnrichImages(ctx context.Context) error {
	d.mu.Lock()
	codes := append([]string(nil), d.codes...)
	d.mu.Unlock()

	pending := make([]string, 0, len(codes))
	for _, code := range codes {
		if !d.images.Has(code) {
			pending = append(pending, code)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	var (
		failed  int
		lastErr error
	)
	for _, code := range pending {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("dynamo: image enrichment interrupted: %w", err)
		}
		var resp struct {
			Images []string `json:"images"`
		}
		if err := d.media.getJSON(ctx, d.endpoint("/products/"+url.PathEscape(code)+"/images"), &resp); err != nil {
			failed++
			lastErr = err
			d.log.Debug("image lookup failed", slog.String("code", code), slog.Any("error", err))
			continue
		}
		d.images.Set(code, nonEmpty(resp.Images))
	}

	d.log.Info("image enrichment finished",
		slog.Int("requested", len(pending)),
		slog.Int("failed", failed),
		slog.Int("known", d.images.Len()))
	if failed > 0 {
		return fmt.Errorf("dynamo: image enrichment failed for %d of %d products: %w", failed, len(pending), lastErr)
	}
	return nil
}

func (d *Dynamo) endpoint(path string) string {
	return strings.TrimRight(d.cfg.BaseURL, "/") + path
}

func (d *Dynamo) loadBrands(ctx context.Context) (map[string]string, error) {
	var rows []dynamoBrand
	if err := d.client.getJSON(ctx, d.endpoint("/brands"), &rows); err != nil {
		return nil, fmt.Errorf("dynamo: brand lookup: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[strconv.FormatInt(r.ID.IntPart(), 10)] = strings.TrimSpace(r.Name)
	}
	return out, nil
}

func (d *Dynamo) loadCategories(ctx context.Context) (map[string]dynamoCategory, error) {
	var rows []dynamoCategory
	if err := d.client.getJSON(ctx, d.endpoint("/categories"), &rows); err != nil {
		return nil, fmt.Errorf("dynamo: category lookup: %w", err)
	}
	out := make(map[string]dynamoCategory, len(rows))
	for _, r := range rows {
		r.Name = strings.TrimSpace(r.Name)
		r.Parent = strings.TrimSpace(r.Parent)
		out[strconv.FormatInt(r.ID.IntPart(), 10)] = r
	}
	return out, nil
}

func (d *Dynamo) loadLinks(ctx context.Context) (map[string]string, error) {
	if d.cfg.AssetURL == "" {
		return map[string]string{}, nil
	}
	links := map[string]string{}
	u := strings.TrimRight(d.cfg.AssetURL, "/") + "/links.json"
	if err := d.client.getJSON(ctx, u, &links); err != nil {
		return nil, fmt.Errorf("dynamo: link lookup: %w", err)
	}
	return links, nil
}
