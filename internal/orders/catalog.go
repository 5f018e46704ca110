package orders

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryBook     Category = "BOOK"
	CategoryFood     Category = "FOOD"
	CategoryClothing Category = "CLOTHING"
)

// Variant is the capability every product kind shares. Checkout only ever
// needs UnitPrice; Describe is for listings.
type Variant interface {
	UnitPrice() int64
	Describe() string
}

type listing struct {
	Name            string
	PriceCents      int64
	DiscountPercent int
}

func (l listing) UnitPrice() int64 { return discounted(l.PriceCents, l.DiscountPercent) }

func (l listing) priceLabel() string {
	if l.DiscountPercent <= 0 {
		return money(l.PriceCents)
	}
	return fmt.Sprintf("%s (was %s, -%d%%)", money(l.UnitPrice()), money(l.PriceCents), l.DiscountPercent)
}

type Book struct {
	listing
	Author string
}

func (b Book) Describe() string {
	return fmt.Sprintf("[book] %s by %s - %s", b.Name, b.Author, b.priceLabel())
}

type Food struct {
	listing
	BestBefore string
}

func (f Food) Describe() string {
	return fmt.Sprintf("[food] %s, best before %s - %s", f.Name, f.BestBefore, f.priceLabel())
}

type Clothing struct {
	listing
	Size string
}

func (c Clothing) Describe() string {
	return fmt.Sprintf("[clothing] %s, size %s - %s", c.Name, c.Size, c.priceLabel())
}

type generic struct{ listing }

func (g generic) Describe() string { return fmt.Sprintf("%s - %s", g.Name, g.priceLabel()) }

func (p Product) Variant() Variant {
	l := listing{Name: p.Name, PriceCents: p.PriceCents, DiscountPercent: p.DiscountPercent}
	switch p.Category {
	case CategoryBook:
		return Book{listing: l, Author: p.Detail}
	case CategoryFood:
		return Food{listing: l, BestBefore: p.Detail}
	case CategoryClothing:
		return Clothing{listing: l, Size: p.Detail}
	default:
		return generic{listing: l}
	}
}

// discounted rounds half away from zero to whole cents.
func discounted(priceCents int64, pct int) int64 {
	if pct <= 0 {
		return priceCents
	}
	if pct >= 100 {
		return 0
	}
	return decimal.NewFromInt(priceCents).
		Mul(decimal.NewFromInt(int64(100 - pct))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

func money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// StoreCatalog answers catalog reads from short read-only transactions.
type StoreCatalog struct {
	Store Store
}

func (c *StoreCatalog) Product(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := readTx(ctx, c.Store, "catalog.product", func(tx Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, id)
		return err
	})
	return p, err
}

// Available returns the product together with owned stock minus active reservations.
func (c *StoreCatalog) Available(ctx context.Context, id int64) (Product, int, error) {
	var (
		p      Product
		locked int
	)
	err := readTx(ctx, c.Store, "catalog.available", func(tx Tx) error {
		var err error
		if p, err = tx.GetProduct(ctx, id); err != nil {
			return err
		}
		locked, err = tx.LockedQuantity(ctx, id)
		return err
	})
	if err != nil {
		return Product{}, 0, err
	}
	avail := p.Quantity - locked
	if avail < 0 {
		avail = 0
	}
	return p, avail, nil
}

func (c *StoreCatalog) List(ctx context.Context) ([]Product, error) {
	var out []Product
	err := readTx(ctx, c.Store, "catalog.list", func(tx Tx) error {
		var err error
		out, err = tx.ListProducts(ctx)
		return err
	})
	return out, err
}
