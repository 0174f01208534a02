package billing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider is a test double for Provider. Each method delegates to the
// corresponding Func field when set, otherwise falls back to a canned
// success. Every call is appended to CallLog for order assertions.
type MockProvider struct {
	mu      sync.Mutex
	CallLog []string

	CreateCustomerFunc         func(ctx context.Context, params CreateCustomerParams) (*Customer, error)
	GetCustomerFunc            func(ctx context.Context, customerID string) (*Customer, error)
	UpdateCustomerSourceFunc   func(ctx context.Context, customerID, token string) (*Customer, error)
	CreateChargeFunc           func(ctx context.Context, params CreateChargeParams) (*Charge, error)
	GetPlanFunc                func(ctx context.Context, planID string) (*Plan, error)
	CreatePlanFunc             func(ctx context.Context, params CreatePlanParams) (*Plan, error)
	CreateSubscriptionFunc     func(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)
	CreateInvoiceItemFunc      func(ctx context.Context, params CreateInvoiceItemParams) (*InvoiceItem, error)
	CreateSourceFunc           func(ctx context.Context, params CreateSourceParams) (*Source, error)
	VerifyWebhookSignatureFunc func(payload []byte, signature string, secret string) error

	// Plans seeds GetPlan's default behavior. Unknown IDs return
	// ErrPlanNotFound.
	Plans map[string]*Plan

	counter int
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a mock with an empty plan catalogue.
func NewMockProvider() *MockProvider {
	return &MockProvider{Plans: make(map[string]*Plan)}
}

func (m *MockProvider) log(entry string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, entry)
}

func (m *MockProvider) nextID(prefix string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("%s_mock%d", prefix, m.counter)
}

// Calls returns a copy of the call log.
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.CallLog))
	copy(out, m.CallLog)
	return out
}

func (m *MockProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	m.log("CreateCustomer:" + params.Email)
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, params)
	}
	return &Customer{
		ID:        m.nextID("cus"),
		Email:     params.Email,
		CreatedAt: time.Now(),
	}, nil
}

func (m *MockProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	m.log("GetCustomer:" + customerID)
	if m.GetCustomerFunc != nil {
		return m.GetCustomerFunc(ctx, customerID)
	}
	return &Customer{ID: customerID}, nil
}

func (m *MockProvider) UpdateCustomerSource(ctx context.Context, customerID, token string) (*Customer, error) {
	m.log("UpdateCustomerSource:" + customerID)
	if m.UpdateCustomerSourceFunc != nil {
		return m.UpdateCustomerSourceFunc(ctx, customerID, token)
	}
	return &Customer{ID: customerID}, nil
}

func (m *MockProvider) CreateCharge(ctx context.Context, params CreateChargeParams) (*Charge, error) {
	m.log(fmt.Sprintf("CreateCharge:%d:%s", params.AmountCents, params.Currency))
	if m.CreateChargeFunc != nil {
		return m.CreateChargeFunc(ctx, params)
	}
	return &Charge{
		ID:          m.nextID("ch"),
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
		Status:      "succeeded",
		CreatedAt:   time.Now(),
	}, nil
}

func (m *MockProvider) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	m.log("GetPlan:" + planID)
	if m.GetPlanFunc != nil {
		return m.GetPlanFunc(ctx, planID)
	}
	m.mu.Lock()
	p, ok := m.Plans[planID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	return p, nil
}

func (m *MockProvider) CreatePlan(ctx context.Context, params CreatePlanParams) (*Plan, error) {
	m.log(fmt.Sprintf("CreatePlan:%s:%d", params.ID, params.AmountCents))
	if m.CreatePlanFunc != nil {
		return m.CreatePlanFunc(ctx, params)
	}
	id := params.ID
	if id == "" {
		id = m.nextID("plan")
	}
	p := &Plan{
		ID:            id,
		AmountCents:   params.AmountCents,
		Currency:      params.Currency,
		Interval:      params.Interval,
		IntervalCount: params.IntervalCount,
	}
	m.mu.Lock()
	m.Plans[id] = p
	m.mu.Unlock()
	return p, nil
}

func (m *MockProvider) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error) {
	m.log(fmt.Sprintf("CreateSubscription:%s:%s", params.CustomerID, params.PlanID))
	if m.CreateSubscriptionFunc != nil {
		return m.CreateSubscriptionFunc(ctx, params)
	}
	return &Subscription{
		ID:         m.nextID("sub"),
		CustomerID: params.CustomerID,
		PlanID:     params.PlanID,
		Status:     "active",
		CreatedAt:  time.Now(),
	}, nil
}

func (m *MockProvider) CreateInvoiceItem(ctx context.Context, params CreateInvoiceItemParams) (*InvoiceItem, error) {
	m.log(fmt.Sprintf("CreateInvoiceItem:%s:%d", params.CustomerID, params.AmountCents))
	if m.CreateInvoiceItemFunc != nil {
		return m.CreateInvoiceItemFunc(ctx, params)
	}
	return &InvoiceItem{
		ID:          m.nextID("ii"),
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
	}, nil
}

func (m *MockProvider) CreateSource(ctx context.Context, params CreateSourceParams) (*Source, error) {
	m.log(fmt.Sprintf("CreateSource:%s", params.Type))
	if m.CreateSourceFunc != nil {
		return m.CreateSourceFunc(ctx, params)
	}
	src := &Source{
		ID:          m.nextID("src"),
		Type:        params.Type,
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
		CreatedAt:   time.Now(),
	}
	switch params.Type {
	case SourceTypeIDEAL:
		src.Status = "pending"
		src.RedirectURL = "https://bank.example/authorize/" + src.ID
	case SourceTypeSEPADebit:
		src.Status = "chargeable"
	}
	return src, nil
}

func (m *MockProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	m.log("VerifyWebhookSignature")
	if m.VerifyWebhookSignatureFunc != nil {
		return m.VerifyWebhookSignatureFunc(payload, signature, secret)
	}
	return nil
}
