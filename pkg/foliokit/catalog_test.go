package foliokit_test

import (
	"errors"
	"testing"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := foliokit.DefaultCatalog()

	tests := []struct {
		sku   foliokit.SKU
		price int64
		grant foliokit.CreditGrant
	}{
		{foliokit.SKUPortfolioPack, 999, foliokit.CreditGrant{Portfolios: 1, Projects: 3}},
		{foliokit.SKUProjectsPack, 499, foliokit.CreditGrant{Projects: 5}},
		{foliokit.SKUBlogPack, 499, foliokit.CreditGrant{BlogPosts: 5}},
	}

	for _, tt := range tests {
		t.Run(string(tt.sku), func(t *testing.T) {
			product, err := catalog.Lookup(string(tt.sku))
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if product.UnitPriceCents != tt.price {
				t.Errorf("Expected price %d, got %d", tt.price, product.UnitPriceCents)
			}
			if product.Grant != tt.grant {
				t.Errorf("Expected grant %+v, got %+v", tt.grant, product.Grant)
			}
		})
	}

	if len(catalog.Products()) != 3 {
		t.Errorf("Expected 3 products, got %d", len(catalog.Products()))
	}
}

func TestCatalog_Lookup_Unknown(t *testing.T) {
	catalog := foliokit.DefaultCatalog()

	_, err := catalog.Lookup("mega_pack")
	if !errors.Is(err, foliokit.ErrUnknownProduct) {
		t.Errorf("Expected ErrUnknownProduct, got %v", err)
	}

	_, err = catalog.Lookup("")
	if !errors.Is(err, foliokit.ErrUnknownProduct) {
		t.Errorf("Expected ErrUnknownProduct for empty SKU, got %v", err)
	}
}

func TestNewCatalog_Validation(t *testing.T) {
	valid := foliokit.Product{
		SKU:            "pack_a",
		Name:           "Pack A",
		UnitPriceCents: 100,
		Grant:          foliokit.CreditGrant{Projects: 1},
	}

	if _, err := foliokit.NewCatalog(valid, valid); err == nil {
		t.Error("Expected error for duplicate SKU")
	}

	empty := valid
	empty.SKU = ""
	if _, err := foliokit.NewCatalog(empty); err == nil {
		t.Error("Expected error for empty SKU")
	}

	zero := valid
	zero.Grant = foliokit.CreditGrant{}
	if _, err := foliokit.NewCatalog(zero); err == nil {
		t.Error("Expected error for zero grant")
	}
}

func TestCreditGrant_Math(t *testing.T) {
	g := foliokit.CreditGrant{Portfolios: 1, Projects: 3, BlogPosts: 0}

	scaled := g.Scale(2)
	if scaled != (foliokit.CreditGrant{Portfolios: 2, Projects: 6}) {
		t.Errorf("Unexpected scaled grant: %+v", scaled)
	}

	sum := g.Add(foliokit.CreditGrant{BlogPosts: 5})
	if sum != (foliokit.CreditGrant{Portfolios: 1, Projects: 3, BlogPosts: 5}) {
		t.Errorf("Unexpected sum: %+v", sum)
	}

	if g.Total() != 4 {
		t.Errorf("Expected total 4, got %d", g.Total())
	}
	if g.ForResource(foliokit.ResourceProjects) != 3 {
		t.Errorf("Expected 3 projects, got %d", g.ForResource(foliokit.ResourceProjects))
	}
	if !(foliokit.CreditGrant{}).IsZero() {
		t.Error("Expected zero grant to be zero")
	}
}

func TestParseResource(t *testing.T) {
	for _, r := range foliokit.Resources() {
		parsed, err := foliokit.ParseResource(string(r))
		if err != nil || parsed != r {
			t.Errorf("ParseResource(%q) = %v, %v", r, parsed, err)
		}
	}

	if _, err := foliokit.ParseResource("gadgets"); !errors.Is(err, foliokit.ErrInvalidResource) {
		t.Errorf("Expected ErrInvalidResource, got %v", err)
	}
	if _, err := foliokit.ParseResource(""); !errors.Is(err, foliokit.ErrInvalidResource) {
		t.Errorf("Expected ErrInvalidResource for empty string, got %v", err)
	}
}
