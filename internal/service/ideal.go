package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/madronelabs/formpay/internal/billing"
	"github.com/madronelabs/formpay/internal/domain"
)

// iDEAL is a Dutch bank-transfer scheme and settles exclusively in euros,
// whatever currency the form is configured with.
const idealCurrency = "eur"

// sepaPlaceholderName stands in when the bank does not report a verified
// payer name; SEPA mandates require one.
const sepaPlaceholderName = "Jane Doe"

// StartBankRedirect begins the two-phase iDEAL flow: create a redirect
// source at the provider, persist a Pending order carrying the source ID and
// the captured payload, and hand back the bank's authorization URL. The
// payment itself completes later, when the source.chargeable webhook
// arrives.
func (s *PaymentService) StartBankRedirect(ctx context.Context, sub *domain.Submission) (string, error) {
	if sub.FormHandle == "" || sub.Email == "" {
		s.logger.Warn("ideal submission rejected: missing form handle or email")
		return "", nil
	}

	form, err := s.store.GetFormByHandle(ctx, sub.FormHandle)
	if err != nil {
		if errors.Is(err, domain.ErrFormNotFound) {
			return "", domain.Errorf(domain.EINTERNAL, "ideal.start",
				"payment form %q is not configured", sub.FormHandle)
		}
		return "", err
	}

	sub.Currency = idealCurrency
	sub.PaymentType = PaymentTypeIDEAL

	amountCents := effectiveAmountCents(sub, form)
	if amountCents <= 0 {
		s.logger.Warn("ideal submission rejected: no positive amount", "form", form.Handle)
		return "", nil
	}

	source, err := s.billing.CreateSource(ctx, billing.CreateSourceParams{
		Type:        billing.SourceTypeIDEAL,
		AmountCents: amountCents,
		Currency:    idealCurrency,
		OwnerEmail:  sub.Email,
		RedirectURL: s.cfg.IdealReturnURL,
		Metadata:    map[string]string{"form_handle": form.Handle},
	})
	if err != nil {
		_, ferr := s.failPayment(form, "ideal_source", err)
		return "", ferr
	}

	order := s.PopulateOrder(sub, form, true)
	order.StripeTransactionID = source.ID

	if err := s.store.CreateOrder(ctx, order); err != nil {
		s.logger.Error("failed to persist pending ideal order",
			"form", form.Handle, "source", source.ID, "error", err)
		return "", nil
	}

	s.logger.Info("ideal redirect started",
		"form", form.Handle, "order", order.Number, "source", source.ID)
	return source.RedirectURL, nil
}

// HandleSourceChargeable is phase two of the iDEAL flow, invoked by the
// source.chargeable webhook. It locates the Pending order for the source,
// optionally exchanges the single-use iDEAL source for a reusable SEPA
// mandate, then re-enters ProcessPayment with the resolved token so the
// standard pipeline charges, finalizes, and notifies.
func (s *PaymentService) HandleSourceChargeable(ctx context.Context, source *billing.Source) error {
	order, err := s.store.GetOrderByTransactionID(ctx, source.ID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Not one of ours; another system may share the webhook.
			s.logger.Debug("chargeable source matches no pending order", "source", source.ID)
			return nil
		}
		return err
	}
	if order.State != domain.OrderStatePending {
		s.logger.Info("chargeable source for an already finalized order",
			"source", source.ID, "order", order.Number)
		return nil
	}

	form, err := s.store.GetFormByID(ctx, order.FormID)
	if err != nil {
		return err
	}

	token := source.ID
	if form.EnableRecurringPayment {
		ownerName := source.OwnerVerifiedName
		if strings.TrimSpace(ownerName) == "" {
			ownerName = sepaPlaceholderName
		}
		sepa, err := s.billing.CreateSource(ctx, billing.CreateSourceParams{
			Type:             billing.SourceTypeSEPADebit,
			Currency:         idealCurrency,
			OwnerName:        ownerName,
			OwnerEmail:       order.Email,
			OriginalSourceID: source.ID,
		})
		if err != nil {
			_, ferr := s.failPayment(form, "sepa_exchange", err)
			return ferr
		}
		token = sepa.ID
	}

	var sub domain.Submission
	if len(order.RawPayload) > 0 {
		if err := json.Unmarshal(order.RawPayload, &sub); err != nil {
			s.logger.Error("captured ideal payload is unreadable",
				"order", order.Number, "error", err)
			return nil
		}
	}

	// Inject the resolved token, amount, and currency into the captured
	// payload and run the standard pipeline against the pending order.
	sub.Token = token
	sub.FormHandle = form.Handle
	sub.Email = order.Email
	sub.Amount = source.AmountCents
	if sub.CustomAmount > 0 {
		sub.CustomAmount = source.AmountCents
	}
	if sub.CustomPlanAmount > 0 {
		sub.CustomPlanAmount = source.AmountCents
	}
	sub.Currency = idealCurrency
	sub.PaymentType = PaymentTypeIDEAL

	_, err = s.ProcessPayment(ctx, &sub, order)
	return err
}
