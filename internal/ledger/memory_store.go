package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
)

// MemoryStore keeps grants and transactions in process memory. Atomic units
// run one at a time and stage their writes until fn succeeds.
type MemoryStore struct {
	mu           sync.RWMutex
	grants       map[string]domain.CreditGrant
	transactions map[string]domain.CreditTransaction
	order        []string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants:       make(map[string]domain.CreditGrant),
		transactions: make(map[string]domain.CreditTransaction),
	}
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		store:        s,
		grants:       make(map[string]domain.CreditGrant),
		transactions: make(map[string]domain.CreditTransaction),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, g := range tx.grants {
		s.grants[id] = g
	}
	for _, id := range tx.order {
		if _, exists := s.transactions[id]; !exists {
			s.order = append(s.order, id)
		}
		s.transactions[id] = tx.transactions[id]
	}
	return nil
}

func (s *MemoryStore) ListGrants(ctx context.Context, scope domain.Scope) ([]domain.CreditGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.grantsFor(scope, nil), nil
}

func (s *MemoryStore) CreateGrant(ctx context.Context, grant *domain.CreditGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.grants[grant.ID]; exists {
		return fmt.Errorf("%w: grant %s already exists", domain.ErrConflict, grant.ID)
	}
	s.grants[grant.ID] = *grant
	return nil
}

// Grant returns a stored grant by id.
func (s *MemoryStore) Grant(id string) (domain.CreditGrant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[id]
	return g, ok
}

// Transactions returns every stored transaction in insertion order.
func (s *MemoryStore) Transactions() []domain.CreditTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CreditTransaction, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.transactions[id])
	}
	return out
}

func (s *MemoryStore) grantsFor(scope domain.Scope, staged map[string]domain.CreditGrant) []domain.CreditGrant {
	out := make([]domain.CreditGrant, 0)
	for id, g := range s.grants {
		if override, ok := staged[id]; ok {
			g = override
		}
		if scope.OwnsGrant(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memoryTx struct {
	store        *MemoryStore
	grants       map[string]domain.CreditGrant
	transactions map[string]domain.CreditTransaction
	order        []string
}

func (t *memoryTx) LockGrants(ctx context.Context, scope domain.Scope) ([]domain.CreditGrant, error) {
	return t.store.grantsFor(scope, t.grants), nil
}

func (t *memoryTx) GetTransactions(ctx context.Context, ids []string) ([]domain.CreditTransaction, error) {
	out := make([]domain.CreditTransaction, 0, len(ids))
	for _, id := range ids {
		if txn, ok := t.transactions[id]; ok {
			out = append(out, txn)
			continue
		}
		if txn, ok := t.store.transactions[id]; ok {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (t *memoryTx) SaveGrant(ctx context.Context, grant *domain.CreditGrant) error {
	if _, ok := t.store.grants[grant.ID]; !ok {
		return fmt.Errorf("%w: grant %s", domain.ErrNotFound, grant.ID)
	}
	t.grants[grant.ID] = *grant
	return nil
}

func (t *memoryTx) CreateTransaction(ctx context.Context, txn *domain.CreditTransaction) error {
	if _, exists := t.store.transactions[txn.ID]; exists {
		return fmt.Errorf("%w: transaction %s already exists", domain.ErrConflict, txn.ID)
	}
	t.transactions[txn.ID] = *txn
	t.order = append(t.order, txn.ID)
	return nil
}

func (t *memoryTx) MarkRefunded(ctx context.Context, consumptionID, refundID string) error {
	txn, ok := t.transactions[consumptionID]
	if !ok {
		txn, ok = t.store.transactions[consumptionID]
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, consumptionID)
	}
	if txn.RefundedByID != nil {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyRefunded, consumptionID)
	}

	txn.RefundedByID = &refundID
	if _, staged := t.transactions[consumptionID]; !staged {
		t.order = append(t.order, consumptionID)
	}
	t.transactions[consumptionID] = txn
	return nil
}
