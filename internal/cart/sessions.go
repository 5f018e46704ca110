package cart

import "sync"

// Sessions keeps one cart per buyer and serializes access to each, so a cart
// is never mutated by two requests at once.
type Sessions struct {
	catalog  Catalog
	maxLines int

	mu    sync.Mutex
	carts map[string]*session
}

type session struct {
	mu   sync.Mutex
	cart *Cart
}

func NewSessions(catalog Catalog, maxLines int) *Sessions {
	return &Sessions{catalog: catalog, maxLines: maxLines, carts: map[string]*session{}}
}

// With runs fn with the buyer's cart, creating it on first use.
func (s *Sessions) With(buyer string, fn func(c *Cart) error) error {
	s.mu.Lock()
	sess, ok := s.carts[buyer]
	if !ok {
		sess = &session{cart: New(s.catalog, s.maxLines)}
		s.carts[buyer] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess.cart)
}

// Drop forgets the buyer's cart.
func (s *Sessions) Drop(buyer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, buyer)
}
