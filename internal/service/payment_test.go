package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madronelabs/formpay/internal/billing"
	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/store"
)

type paymentFixture struct {
	svc      *PaymentService
	store    *store.MemoryStore
	provider *billing.MockProvider
}

func newPaymentFixture(t *testing.T, cfg Config) *paymentFixture {
	t.Helper()
	st := store.NewMemoryStore()
	provider := billing.NewMockProvider()
	customers := NewCustomerService(st, provider, nil)
	return &paymentFixture{
		svc:      NewPaymentService(st, provider, customers, cfg, nil),
		store:    st,
		provider: provider,
	}
}

func (f *paymentFixture) seedForm(t *testing.T, form *domain.PaymentForm) *domain.PaymentForm {
	t.Helper()
	require.NoError(t, f.store.CreateForm(context.Background(), form))
	return form
}

func oneTimeForm() *domain.PaymentForm {
	return &domain.PaymentForm{
		Handle:            "tshirt",
		Name:              "T-Shirt",
		CompanyName:       "Acme Co",
		Currency:          "usd",
		AmountCents:       2500,
		AmountType:        domain.AmountTypeFixed,
		HasUnlimitedStock: true,
	}
}

func cardSubmission(handle string) *domain.Submission {
	return &domain.Submission{
		Token:      "tok_visa",
		FormHandle: handle,
		Email:      "buyer@example.com",
		Amount:     2500,
		Quantity:   1,
	}
}

func Test_ProcessPayment_OneTimeCharge_HappyPath(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	f.seedForm(t, oneTimeForm())
	ctx := context.Background()

	order, err := f.svc.ProcessPayment(ctx, cardSubmission("tshirt"), nil)
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, domain.OrderStateNew, order.State)
	assert.NotEmpty(t, order.StripeTransactionID)
	assert.NotEmpty(t, order.StripeCustomerID)
	assert.Equal(t, 25.0, order.TotalPrice, "total converted to major units at finalize")
	assert.Equal(t, "usd", order.Currency)
	assert.Equal(t, PaymentTypeCard, order.PaymentType)

	persisted, err := f.store.GetOrderByNumber(ctx, order.Number)
	require.NoError(t, err)
	assert.Equal(t, order.StripeTransactionID, persisted.StripeTransactionID)

	calls := f.provider.Calls()
	assert.Contains(t, calls, "CreateCustomer:buyer@example.com")
	assert.Contains(t, calls, "CreateCharge:2500:usd")
}

func Test_ProcessPayment_MissingToken(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	f.seedForm(t, oneTimeForm())

	sub := cardSubmission("tshirt")
	sub.Token = ""

	order, err := f.svc.ProcessPayment(context.Background(), sub, nil)
	assert.NoError(t, err, "client input errors are not exceptions")
	assert.Nil(t, order)

	orders, _ := f.store.ListOrders(context.Background(), store.OrderFilter{})
	assert.Empty(t, orders, "nothing persisted")
	assert.Empty(t, f.provider.Calls(), "provider never called")
}

func Test_ProcessPayment_UnknownForm_IsConfigurationError(t *testing.T) {
	f := newPaymentFixture(t, Config{})

	order, err := f.svc.ProcessPayment(context.Background(), cardSubmission("ghost"), nil)
	assert.Nil(t, order)
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func Test_ProcessPayment_ZeroAmount(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	form := oneTimeForm()
	form.AmountCents = 0
	f.seedForm(t, form)

	sub := cardSubmission("tshirt")
	sub.Amount = 0

	order, err := f.svc.ProcessPayment(context.Background(), sub, nil)
	assert.NoError(t, err)
	assert.Nil(t, order)
	assert.Empty(t, f.provider.Calls())
}

func Test_ProcessPayment_CardDeclined(t *testing.T) {
	declined := &billing.StripeError{
		Category: billing.CategoryCardDeclined,
		Message:  "Your card was declined.",
		Code:     "card_declined",
	}

	t.Run("swallowed outside dev", func(t *testing.T) {
		f := newPaymentFixture(t, Config{Env: "production"})
		f.seedForm(t, oneTimeForm())
		f.provider.CreateChargeFunc = func(ctx context.Context, params billing.CreateChargeParams) (*billing.Charge, error) {
			return nil, declined
		}

		order, err := f.svc.ProcessPayment(context.Background(), cardSubmission("tshirt"), nil)
		assert.NoError(t, err)
		assert.Nil(t, order)

		orders, _ := f.store.ListOrders(context.Background(), store.OrderFilter{})
		assert.Empty(t, orders)
	})

	t.Run("re-raised in dev", func(t *testing.T) {
		f := newPaymentFixture(t, Config{Env: "dev"})
		f.seedForm(t, oneTimeForm())
		f.provider.CreateChargeFunc = func(ctx context.Context, params billing.CreateChargeParams) (*billing.Charge, error) {
			return nil, declined
		}

		order, err := f.svc.ProcessPayment(context.Background(), cardSubmission("tshirt"), nil)
		assert.Nil(t, order)
		require.Error(t, err)
		assert.Equal(t, billing.CategoryCardDeclined, billing.Classify(err))
	})
}

func Test_ProcessPayment_SinglePlanFixed(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	form := oneTimeForm()
	form.EnableSubscriptions = true
	form.SubscriptionType = domain.SubscriptionTypeSingle
	form.SinglePlanID = "plan_gold"
	form.SinglePlanSetupFeeCents = 500
	f.seedForm(t, form)
	f.provider.Plans["plan_gold"] = &billing.Plan{ID: "plan_gold", AmountCents: 2500, Currency: "usd", Interval: "month"}

	order, err := f.svc.ProcessPayment(context.Background(), cardSubmission("tshirt"), nil)
	require.NoError(t, err)
	require.NotNil(t, order)

	calls := f.provider.Calls()
	assert.Contains(t, calls, "GetPlan:plan_gold")
	assert.Contains(t, calls, "CreateInvoiceItem:"+order.StripeCustomerID+":500")
	assert.Contains(t, calls, "CreateSubscription:"+order.StripeCustomerID+":plan_gold")
	assert.NotContains(t, calls, "CreateCharge:2500:usd", "subscriptions never charge directly")
}

func Test_ProcessPayment_SinglePlanFixed_MissingPlan(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	form := oneTimeForm()
	form.EnableSubscriptions = true
	form.SubscriptionType = domain.SubscriptionTypeSingle
	form.SinglePlanID = "plan_missing"
	f.seedForm(t, form)

	order, err := f.svc.ProcessPayment(context.Background(), cardSubmission("tshirt"), nil)
	assert.Nil(t, order)
	require.Error(t, err, "a missing preconfigured plan is a deployment defect")
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func Test_ProcessPayment_SinglePlanCustomAmount_NetOfTaxAndSetupFee(t *testing.T) {
	f := newPaymentFixture(t, Config{TaxEnabled: true, TaxPercent: 10})
	form := oneTimeForm()
	form.EnableSubscriptions = true
	form.SubscriptionType = domain.SubscriptionTypeSingle
	form.AmountType = domain.AmountTypeCustomerEntered
	form.SinglePlanSetupFeeCents = 1000
	form.CustomPlanInterval = "month"
	f.seedForm(t, form)

	var planAmount int64
	f.provider.CreatePlanFunc = func(ctx context.Context, params billing.CreatePlanParams) (*billing.Plan, error) {
		planAmount = params.AmountCents
		return &billing.Plan{ID: params.ID, AmountCents: params.AmountCents}, nil
	}

	sub := cardSubmission("tshirt")
	sub.Amount = 0
	sub.CustomAmount = 10000

	order, err := f.svc.ProcessPayment(context.Background(), sub, nil)
	require.NoError(t, err)
	require.NotNil(t, order)

	// 10000 entered, minus 1000 setup fee = 9000 base; 10% inclusive tax
	// strips round(9000*10/110) = 818, leaving 8182.
	assert.Equal(t, int64(8182), planAmount)
	assert.Equal(t, 100.0, order.TotalPrice, "order total is the entered amount in major units")

	calls := f.provider.Calls()
	assert.Contains(t, calls, "CreateInvoiceItem:"+order.StripeCustomerID+":1000")
}

func Test_ProcessPayment_MultiPlan(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	form := oneTimeForm()
	form.EnableSubscriptions = true
	form.SubscriptionType = domain.SubscriptionTypeMultiple
	form.Plans = []domain.FormPlan{
		{PlanID: "plan_basic", SetupFeeCents: 0},
		{PlanID: "plan_pro", SetupFeeCents: 2000},
	}
	f.seedForm(t, form)
	f.provider.Plans["plan_pro"] = &billing.Plan{ID: "plan_pro", AmountCents: 5000}

	sub := cardSubmission("tshirt")
	sub.PlanID = "plan_pro"

	order, err := f.svc.ProcessPayment(context.Background(), sub, nil)
	require.NoError(t, err)
	require.NotNil(t, order)

	calls := f.provider.Calls()
	assert.Contains(t, calls, "CreateInvoiceItem:"+order.StripeCustomerID+":2000")
	assert.Contains(t, calls, "CreateSubscription:"+order.StripeCustomerID+":plan_pro")
}

func Test_ProcessPayment_MultiPlan_NoSelection(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	form := oneTimeForm()
	form.EnableSubscriptions = true
	form.SubscriptionType = domain.SubscriptionTypeMultiple
	form.Plans = []domain.FormPlan{{PlanID: "plan_basic"}}
	f.seedForm(t, form)

	order, err := f.svc.ProcessPayment(context.Background(), cardSubmission("tshirt"), nil)
	assert.NoError(t, err)
	assert.Nil(t, order, "missing plan selection is a client error")
}

func Test_ProcessPayment_RecurringOptIn(t *testing.T) {
	f := newPaymentFixture(t, Config{TaxEnabled: true, TaxPercent: 21})
	form := oneTimeForm()
	form.EnableRecurringPayment = true
	form.CustomPlanInterval = "week"
	form.CustomPlanIntervalCount = 2
	f.seedForm(t, form)

	var created billing.CreatePlanParams
	f.provider.CreatePlanFunc = func(ctx context.Context, params billing.CreatePlanParams) (*billing.Plan, error) {
		created = params
		return &billing.Plan{ID: params.ID}, nil
	}

	sub := cardSubmission("tshirt")
	sub.Amount = 0
	sub.RecurringToggle = true
	sub.CustomPlanAmount = 12100

	order, err := f.svc.ProcessPayment(context.Background(), sub, nil)
	require.NoError(t, err)
	require.NotNil(t, order)

	// 21% inclusive tax on 12100 strips round(12100*21/121) = 2100.
	assert.Equal(t, int64(10000), created.AmountCents)
	assert.Equal(t, "week", created.Interval)
	assert.Equal(t, int64(2), created.IntervalCount)
	assert.Equal(t, 121.0, order.TotalPrice)
}

func Test_ProcessPayment_RecurringToggleOff_ChargesOnce(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	form := oneTimeForm()
	form.EnableRecurringPayment = true
	f.seedForm(t, form)

	order, err := f.svc.ProcessPayment(context.Background(), cardSubmission("tshirt"), nil)
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Contains(t, f.provider.Calls(), "CreateCharge:2500:usd")
}

func Test_ProcessPayment_StockDecrement(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	form := oneTimeForm()
	form.HasUnlimitedStock = false
	form.Quantity = 5
	f.seedForm(t, form)
	ctx := context.Background()

	sub := cardSubmission("tshirt")
	sub.Quantity = 2

	order, err := f.svc.ProcessPayment(ctx, sub, nil)
	require.NoError(t, err)
	require.NotNil(t, order)

	got, err := f.store.GetFormByID(ctx, form.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(3), got.Quantity)
}

func Test_ProcessPayment_Oversell_NotRejected(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	form := oneTimeForm()
	form.HasUnlimitedStock = false
	form.Quantity = 1
	f.seedForm(t, form)
	ctx := context.Background()

	sub := cardSubmission("tshirt")
	sub.Quantity = 3

	order, err := f.svc.ProcessPayment(ctx, sub, nil)
	require.NoError(t, err)
	require.NotNil(t, order, "stock sufficiency is not checked")

	got, err := f.store.GetFormByID(ctx, form.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(-2), got.Quantity)
}

func Test_ProcessPayment_ObserversNotified(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	f.seedForm(t, oneTimeForm())

	var gotOrder *domain.Order
	var gotForm *domain.PaymentForm
	f.svc.RegisterObserver(domain.OrderObserverFunc(func(ctx context.Context, o *domain.Order, pf *domain.PaymentForm) {
		gotOrder = o
		gotForm = pf
	}))

	order, err := f.svc.ProcessPayment(context.Background(), cardSubmission("tshirt"), nil)
	require.NoError(t, err)
	require.NotNil(t, order)

	require.NotNil(t, gotOrder, "observer fires after finalize")
	assert.Equal(t, order.Number, gotOrder.Number)
	assert.Equal(t, domain.OrderStateNew, gotOrder.State)
	assert.Equal(t, "tshirt", gotForm.Handle)
}

// failingOrderStore simulates a persistence outage at order insert time.
type failingOrderStore struct {
	*store.MemoryStore
}

func (f *failingOrderStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	return errors.New("disk on fire")
}

func Test_ProcessPayment_PersistenceFailure_NotCompensated(t *testing.T) {
	st := &failingOrderStore{MemoryStore: store.NewMemoryStore()}
	provider := billing.NewMockProvider()
	customers := NewCustomerService(st, provider, nil)
	svc := NewPaymentService(st, provider, customers, Config{}, nil)

	require.NoError(t, st.MemoryStore.CreateForm(context.Background(), oneTimeForm()))

	var observed bool
	svc.RegisterObserver(domain.OrderObserverFunc(func(ctx context.Context, o *domain.Order, pf *domain.PaymentForm) {
		observed = true
	}))

	order, err := svc.ProcessPayment(context.Background(), cardSubmission("tshirt"), nil)
	assert.NoError(t, err, "persistence failures are swallowed")
	assert.Nil(t, order)
	assert.False(t, observed, "no completion event without a persisted order")

	// The remote charge went through and is not rolled back.
	assert.Contains(t, provider.Calls(), "CreateCharge:2500:usd")
}

func Test_PopulateOrder_Defaults(t *testing.T) {
	f := newPaymentFixture(t, Config{TestMode: true})
	form := oneTimeForm()
	form.ID = 7

	sub := &domain.Submission{
		Token:      "tok_visa",
		FormHandle: "tshirt",
		Email:      "buyer@example.com",
		Amount:     1999,
		Metadata:   map[string]interface{}{"size": "L"},
		Address:    &domain.Address{Name: "Ada", City: "London", Country: "GB"},
	}

	order := f.svc.PopulateOrder(sub, form, false)

	assert.Equal(t, domain.OrderStateNew, order.State)
	assert.Equal(t, int32(1), order.Quantity, "quantity defaults to 1")
	assert.Equal(t, float64(1999), order.TotalPrice, "minor units until finalize")
	assert.Equal(t, "usd", order.Currency)
	assert.True(t, order.TestMode, "global test mode forces the flag")
	assert.Equal(t, "L", order.Variants["size"])
	assert.Equal(t, "Ada", order.Address.Name)
	assert.NotEmpty(t, order.Number)
	assert.NotEmpty(t, order.RawPayload)

	pending := f.svc.PopulateOrder(sub, form, true)
	assert.Equal(t, domain.OrderStatePending, pending.State)
	assert.NotEqual(t, order.Number, pending.Number)
}

func Test_ProcessPayment_AssignsDefaultStatus(t *testing.T) {
	f := newPaymentFixture(t, Config{})
	f.seedForm(t, oneTimeForm())
	ctx := context.Background()

	st := &domain.OrderStatus{Name: "New", Handle: "new", IsDefault: true}
	require.NoError(t, f.store.CreateStatus(ctx, st))

	order, err := f.svc.ProcessPayment(ctx, cardSubmission("tshirt"), nil)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, st.ID, order.StatusID)
}
