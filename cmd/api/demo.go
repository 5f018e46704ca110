package main

import (
	"github.com/ariefcatur/go-order-lifecycle/internal/memstore"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

// seedDemo fills an in-memory store with a few accounts and one product per
// category so the API can be tried without Postgres.
func seedDemo(st *memstore.Store) {
	st.PutAccount("alice", 50_00)
	st.PutAccount("bob", 5_00)
	st.PutAccount("bookshop", 0)
	st.PutAccount("grocer", 0)
	st.PutAccount("tailor", 0)

	st.PutProduct(orders.Product{Seller: "bookshop", Name: "The Go Programming Language", Category: orders.CategoryBook, Detail: "Donovan & Kernighan", PriceCents: 39_99, DiscountPercent: 10, Quantity: 5})
	st.PutProduct(orders.Product{Seller: "grocer", Name: "Sencha", Category: orders.CategoryFood, Detail: "2027-03-01", PriceCents: 8_50, Quantity: 40})
	st.PutProduct(orders.Product{Seller: "tailor", Name: "Gopher tee", Category: orders.CategoryClothing, Detail: "L", PriceCents: 20_00, DiscountPercent: 25, Quantity: 1})
}
