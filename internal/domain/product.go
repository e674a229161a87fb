package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Supplier identifies one of the upstream feeds the catalog is built from.
type Supplier string

const (
	SupplierAcme   Supplier = "acme"
	SupplierDynamo Supplier = "dynamo"
	SupplierCrest  Supplier = "crest"

	// SupplierAll is the filter value meaning "no supplier restriction".
	SupplierAll Supplier = "all"
)

// UnknownBrand is used whenever a feed carries no brand for a product.
const UnknownBrand = "Unknown"

// KnownSuppliers lists every supplier in lookup priority order: the feed with
// the richest media comes first.
var KnownSuppliers = []Supplier{SupplierAcme, SupplierCrest, SupplierDynamo}

// ParseSupplier maps a raw value onto a known supplier or SupplierAll.
func ParseSupplier(raw string) (Supplier, bool) {
	v := Supplier(strings.ToLower(strings.TrimSpace(raw)))
	if v == "" || v == SupplierAll {
		return SupplierAll, true
	}
	for _, s := range KnownSuppliers {
		if s == v {
			return s, true
		}
	}
	return "", false
}

// Stock holds the total available quantity and the per-branch breakdown
// reported by the supplier.
type Stock struct {
	Total     int            `json:"total"`
	Locations map[string]int `json:"locations,omitempty"`
}

// NewStock builds a Stock whose total is the sum of the location quantities.
// Negative quantities are treated as zero.
func NewStock(locations map[string]int) Stock {
	s := Stock{Locations: make(map[string]int, len(locations))}
	for branch, qty := range locations {
		if qty < 0 {
			qty = 0
		}
		s.Locations[branch] = qty
		s.Total += qty
	}
	return s
}

// Product is the supplier-agnostic catalog record. Instances are built fresh
// on every supplier fetch and never mutated afterwards.
type Product struct {
	ID               string            `json:"id"`
	SKU              string            `json:"sku"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	ShortDescription string            `json:"shortDescription"`
	Price            float64           `json:"price"` // tax inclusive
	RRP              float64           `json:"rrp"`
	Discount         int               `json:"discount"`
	Stock            Stock             `json:"stock"`
	InStock          bool              `json:"inStock"`
	FeaturedImage    string            `json:"featuredImage"`
	Images           []string          `json:"images"`
	Categories       []string          `json:"categories"`
	CategoryTree     string            `json:"categoryTree"`
	Brand            string            `json:"brand"`
	Attributes       map[string]string `json:"attributes"`
	Supplier         Supplier          `json:"supplier"`
	LastModified     time.Time         `json:"lastModified"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// ProductID returns the globally unique identifier for a supplier's SKU.
func ProductID(supplier Supplier, sku string) string {
	return fmt.Sprintf("%s-%s", supplier, sku)
}

// Discount returns the markdown of price against rrp as a whole percentage.
// It is zero whenever rrp does not exceed price.
func Discount(price, rrp float64) int {
	if rrp <= 0 || rrp <= price || price < 0 {
		return 0
	}
	d := int(math.Round((rrp - price) / rrp * 100))
	if d < 0 {
		return 0
	}
	if d > 100 {
		return 100
	}
	return d
}

// HasImage reports whether the product carries any usable image.
func (p Product) HasImage() bool {
	return p.FeaturedImage != "" || len(p.Images) > 0
}

// Finalize fills every derived field (id, discount, inStock, brand and image
// fallbacks). Adapters call it as the last step of their transform.
func (p Product) Finalize() Product {
	p.ID = ProductID(p.Supplier, p.SKU)
	if p.Price < 0 {
		p.Price = 0
	}
	p.Discount = Discount(p.Price, p.RRP)
	if p.Stock.Total < 0 {
		p.Stock.Total = 0
	}
	p.InStock = p.Stock.Total > 0
	if strings.TrimSpace(p.Brand) == "" {
		p.Brand = UnknownBrand
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.FeaturedImage == "" && len(p.Images) > 0 {
		p.FeaturedImage = p.Images[0]
	}
	if p.Categories == nil {
		p.Categories = []string{}
	}
	if p.Attributes == nil {
		p.Attributes = map[string]string{}
	}
	return p
}
