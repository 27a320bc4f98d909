package foliokit

import "fmt"

// SKU identifies a purchasable credit pack.
// The set is closed: internal callers use the typed constants, and external
// input is validated once at the Catalog.Lookup boundary.
type SKU string

const (
	// SKUPortfolioPack grants 1 portfolio and 3 projects
	SKUPortfolioPack SKU = "portfolio_pack"
	// SKUProjectsPack grants 5 projects
	SKUProjectsPack SKU = "projects_pack"
	// SKUBlogPack grants 5 blog posts
	SKUBlogPack SKU = "blog_pack"
)

// Product is a static catalog entry: a credit pack with a fixed price and grant.
// Products are defined at deploy time and never user-editable.
type Product struct {
	SKU            SKU
	Name           string
	Description    string
	UnitPriceCents int64
	Grant          CreditGrant
}

// Catalog is a static, immutable lookup from SKU to product definition.
type Catalog struct {
	products map[SKU]Product
	order    []SKU
}

// NewCatalog builds a catalog from product definitions.
// Duplicate SKUs, empty SKUs, and zero grants are rejected.
func NewCatalog(products ...Product) (*Catalog, error) {
	c := &Catalog{
		products: make(map[SKU]Product, len(products)),
		order:    make([]SKU, 0, len(products)),
	}
	for _, p := range products {
		if p.SKU == "" {
			return nil, fmt.Errorf("product %q: empty SKU", p.Name)
		}
		if _, exists := c.products[p.SKU]; exists {
			return nil, fmt.Errorf("duplicate SKU %q", p.SKU)
		}
		if p.Grant.IsZero() {
			return nil, fmt.Errorf("product %q: zero credit grant", p.SKU)
		}
		c.products[p.SKU] = p
		c.order = append(c.order, p.SKU)
	}
	return c, nil
}

// DefaultCatalog returns the built-in credit packs.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Product{
			SKU:            SKUPortfolioPack,
			Name:           "Portfolio Pack",
			Description:    "1 additional portfolio + 3 additional projects",
			UnitPriceCents: 999,
			Grant:          CreditGrant{Portfolios: 1, Projects: 3},
		},
		Product{
			SKU:            SKUProjectsPack,
			Name:           "Projects Pack",
			Description:    "5 additional projects",
			UnitPriceCents: 499,
			Grant:          CreditGrant{Projects: 5},
		},
		Product{
			SKU:            SKUBlogPack,
			Name:           "Blog Pack",
			Description:    "5 additional blog posts",
			UnitPriceCents: 499,
			Grant:          CreditGrant{BlogPosts: 5},
		},
	)
	if err != nil {
		// Static definitions above cannot fail validation.
		panic(err)
	}
	return c
}

// Lookup resolves an external SKU string to a product definition.
// This is the single validated boundary for untrusted SKU input; unknown
// SKUs return ErrUnknownProduct.
func (c *Catalog) Lookup(sku string) (Product, error) {
	p, ok := c.products[SKU(sku)]
	if !ok {
		return Product{}, fmt.Errorf("%w: %q", ErrUnknownProduct, sku)
	}
	return p, nil
}

// Products returns all products in definition order.
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.order))
	for _, sku := range c.order {
		out = append(out, c.products[sku])
	}
	return out
}
