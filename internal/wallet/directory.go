package wallet

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Directory tracks the wallets resident in this process by user id.
type Directory struct {
	mu      sync.RWMutex
	wallets map[string]*Engine
}

func NewDirectory() *Directory {
	return &Directory{wallets: make(map[string]*Engine)}
}

func (d *Directory) Add(userId string, e *Engine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wallets[userId] = e
}

// Remove drops userId only if it still maps to e.
func (d *Directory) Remove(userId string, e *Engine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.wallets[userId] == e {
		delete(d.wallets, userId)
	}
}

func (d *Directory) Lookup(userId string) (*Engine, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.wallets[userId]
	return e, ok
}

// CreditRefund credits userId's wallet if it is resident. It reports false
// when it is not; that user sees the refund with their next refresh.
func (d *Directory) CreditRefund(ctx context.Context, userId string, amount decimal.Decimal, reference, description string) (bool, error) {
	e, ok := d.Lookup(userId)
	if !ok {
		return false, nil
	}
	if _, err := e.CreditRefund(ctx, amount, reference, description); err != nil {
		return false, err
	}
	return true, nil
}
