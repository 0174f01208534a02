package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/madronelabs/formpay/internal/domain"
)

// MemoryStore is an in-memory Store for tests and local development.
//
// WithinTx serializes transactions and restores a snapshot when the callback
// fails, so transactional semantics match the database-backed store closely
// enough for service-level tests.
type MemoryStore struct {
	mu sync.RWMutex
	// txMu serializes WithinTx callers. It is separate from mu so store
	// methods invoked inside a transaction callback can still lock mu.
	txMu sync.Mutex

	orders    map[uuid.UUID]*domain.Order
	customers map[int64]*domain.Customer
	forms     map[int64]*domain.PaymentForm
	statuses  map[int64]*domain.OrderStatus

	nextCustomerID int64
	nextFormID     int64
	nextStatusID   int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[uuid.UUID]*domain.Order),
		customers: make(map[int64]*domain.Customer),
		forms:     make(map[int64]*domain.PaymentForm),
		statuses:  make(map[int64]*domain.OrderStatus),
	}
}

// WithinTx runs fn with rollback-on-error semantics.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.restoreLocked(snapshot)
		s.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	orders    map[uuid.UUID]*domain.Order
	customers map[int64]*domain.Customer
	forms     map[int64]*domain.PaymentForm
	statuses  map[int64]*domain.OrderStatus

	nextCustomerID int64
	nextFormID     int64
	nextStatusID   int64
}

func (s *MemoryStore) snapshotLocked() memorySnapshot {
	snap := memorySnapshot{
		orders:         make(map[uuid.UUID]*domain.Order, len(s.orders)),
		customers:      make(map[int64]*domain.Customer, len(s.customers)),
		forms:          make(map[int64]*domain.PaymentForm, len(s.forms)),
		statuses:       make(map[int64]*domain.OrderStatus, len(s.statuses)),
		nextCustomerID: s.nextCustomerID,
		nextFormID:     s.nextFormID,
		nextStatusID:   s.nextStatusID,
	}
	for k, v := range s.orders {
		snap.orders[k] = cloneOrder(v)
	}
	for k, v := range s.customers {
		snap.customers[k] = cloneCustomer(v)
	}
	for k, v := range s.forms {
		snap.forms[k] = cloneForm(v)
	}
	for k, v := range s.statuses {
		snap.statuses[k] = cloneStatus(v)
	}
	return snap
}

func (s *MemoryStore) restoreLocked(snap memorySnapshot) {
	s.orders = snap.orders
	s.customers = snap.customers
	s.forms = snap.forms
	s.statuses = snap.statuses
	s.nextCustomerID = snap.nextCustomerID
	s.nextFormID = snap.nextFormID
	s.nextStatusID = snap.nextStatusID
}

// --- OrderStore ---

func (s *MemoryStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orders {
		if existing.Number == order.Number {
			return domain.ErrDuplicateNumber
		}
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *MemoryStore) UpdateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	order.UpdatedAt = time.Now()
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *MemoryStore) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.Number == number {
			return cloneOrder(o), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *MemoryStore) GetOrderByTransactionID(ctx context.Context, txID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if txID == "" {
		return nil, domain.ErrOrderNotFound
	}
	for _, o := range s.orders {
		if o.StripeTransactionID == txID {
			return cloneOrder(o), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *MemoryStore) ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Order
	for _, o := range s.orders {
		if filter.FormID != 0 && o.FormID != filter.FormID {
			continue
		}
		if filter.StatusID != 0 && o.StatusID != filter.StatusID {
			continue
		}
		if filter.State != "" && o.State != filter.State {
			continue
		}
		if filter.Email != "" && o.Email != filter.Email {
			continue
		}
		out = append(out, cloneOrder(o))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(s.orders, id)
	return nil
}

// --- CustomerStore ---

func (s *MemoryStore) GetCustomerByEmail(ctx context.Context, email string, testMode bool) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if c.Email == email && c.TestMode == testMode {
			return cloneCustomer(c), nil
		}
	}
	return nil, domain.ErrCustomerNotFound
}

func (s *MemoryStore) CreateCustomer(ctx context.Context, customer *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCustomerID++
	customer.ID = s.nextCustomerID
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}
	s.customers[customer.ID] = cloneCustomer(customer)
	return nil
}

func (s *MemoryStore) UpdateCustomer(ctx context.Context, customer *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[customer.ID]; !ok {
		return domain.ErrCustomerNotFound
	}
	s.customers[customer.ID] = cloneCustomer(customer)
	return nil
}

func (s *MemoryStore) DeleteCustomer(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return domain.ErrCustomerNotFound
	}
	delete(s.customers, id)
	return nil
}

// --- FormStore ---

func (s *MemoryStore) GetFormByHandle(ctx context.Context, handle string) (*domain.PaymentForm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.forms {
		if f.Handle == handle {
			return cloneForm(f), nil
		}
	}
	return nil, domain.ErrFormNotFound
}

func (s *MemoryStore) GetFormByID(ctx context.Context, id int64) (*domain.PaymentForm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.forms[id]
	if !ok {
		return nil, domain.ErrFormNotFound
	}
	return cloneForm(f), nil
}

func (s *MemoryStore) CreateForm(ctx context.Context, form *domain.PaymentForm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if form.ID == 0 {
		s.nextFormID++
		form.ID = s.nextFormID
	} else if form.ID > s.nextFormID {
		s.nextFormID = form.ID
	}
	now := time.Now()
	if form.CreatedAt.IsZero() {
		form.CreatedAt = now
	}
	form.UpdatedAt = now
	s.forms[form.ID] = cloneForm(form)
	return nil
}

func (s *MemoryStore) UpdateForm(ctx context.Context, form *domain.PaymentForm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.forms[form.ID]; !ok {
		return domain.ErrFormNotFound
	}
	form.UpdatedAt = time.Now()
	s.forms[form.ID] = cloneForm(form)
	return nil
}

// --- StatusStore ---

func (s *MemoryStore) CreateStatus(ctx context.Context, status *domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextStatusID++
	status.ID = s.nextStatusID
	now := time.Now()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}
	status.UpdatedAt = now
	if status.SortOrder == 0 {
		status.SortOrder = int32(len(s.statuses) + 1)
	}
	s.statuses[status.ID] = cloneStatus(status)
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, status *domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[status.ID]; !ok {
		return domain.ErrStatusNotFound
	}
	status.UpdatedAt = time.Now()
	s.statuses[status.ID] = cloneStatus(status)
	return nil
}

func (s *MemoryStore) GetStatusByID(ctx context.Context, id int64) (*domain.OrderStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.statuses[id]
	if !ok {
		return nil, domain.ErrStatusNotFound
	}
	return cloneStatus(st), nil
}

func (s *MemoryStore) GetStatusByHandle(ctx context.Context, handle string) (*domain.OrderStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.statuses {
		if st.Handle == handle {
			return cloneStatus(st), nil
		}
	}
	return nil, domain.ErrStatusNotFound
}

func (s *MemoryStore) GetDefaultStatus(ctx context.Context) (*domain.OrderStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.statuses {
		if st.IsDefault {
			return cloneStatus(st), nil
		}
	}
	return nil, domain.ErrStatusNotFound
}

func (s *MemoryStore) ListStatuses(ctx context.Context) ([]*domain.OrderStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.OrderStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, cloneStatus(st))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ClearDefaultExcept(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.statuses {
		if st.ID != id && st.IsDefault {
			st.IsDefault = false
			st.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *MemoryStore) ReorderStatuses(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pos, id := range ids {
		st, ok := s.statuses[id]
		if !ok {
			return domain.ErrStatusNotFound
		}
		st.SortOrder = int32(pos + 1)
		st.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) DeleteStatus(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[id]; !ok {
		return domain.ErrStatusNotFound
	}
	delete(s.statuses, id)
	return nil
}

func (s *MemoryStore) CountStatuses(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.statuses), nil
}

// --- clone helpers ---

func cloneOrder(o *domain.Order) *domain.Order {
	out := *o
	if o.Variants != nil {
		out.Variants = make(map[string]string, len(o.Variants))
		for k, v := range o.Variants {
			out.Variants[k] = v
		}
	}
	if o.Address != nil {
		addr := *o.Address
		out.Address = &addr
	}
	if o.RawPayload != nil {
		out.RawPayload = append([]byte(nil), o.RawPayload...)
	}
	return &out
}

func cloneCustomer(c *domain.Customer) *domain.Customer {
	out := *c
	return &out
}

func cloneForm(f *domain.PaymentForm) *domain.PaymentForm {
	out := *f
	if f.Plans != nil {
		out.Plans = append([]domain.FormPlan(nil), f.Plans...)
	}
	return &out
}

func cloneStatus(st *domain.OrderStatus) *domain.OrderStatus {
	out := *st
	return &out
}
