package contributions

import (
	"context"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/square"
	"github.com/angelmondragon/fundledger-backend/pkg/stripe"
)

// PaymentRequest is what a provider needs to open a payment for a contribution.
type PaymentRequest struct {
	ContributionID uuid.UUID
	TargetID       *uuid.UUID
	AmountCents    int64
	Currency       enums.Currency
	SourceID       string
	IdempotencyKey string
}

// PaymentHandle identifies the provider-side payment. ClientToken is returned to
// the contributor to confirm the payment; it may be empty for server-side charges.
type PaymentHandle struct {
	ProviderReference string
	ClientToken       string
	ProviderStatus    string
}

// PaymentInitiator opens a payment with one provider.
type PaymentInitiator interface {
	Initiate(ctx context.Context, req PaymentRequest) (*PaymentHandle, error)
}

type stripeIntentCreator interface {
	CreatePaymentIntent(ctx context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntentResult, error)
}

// StripeInitiator creates a PaymentIntent; its id becomes the provider reference.
type StripeInitiator struct {
	client stripeIntentCreator
}

func NewStripeInitiator(client stripeIntentCreator) (*StripeInitiator, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &StripeInitiator{client: client}, nil
}

func (s *StripeInitiator) Initiate(ctx context.Context, req PaymentRequest) (*PaymentHandle, error) {
	metadata := map[string]string{"contribution_id": req.ContributionID.String()}
	if req.TargetID != nil {
		metadata["target_id"] = req.TargetID.String()
	}
	result, err := s.client.CreatePaymentIntent(ctx, stripe.PaymentIntentParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency.String(),
		IdempotencyKey: req.IdempotencyKey,
		Description:    "contribution " + req.ContributionID.String(),
		Metadata:       metadata,
	})
	if err != nil {
		return nil, providerError(err, "create stripe payment intent")
	}
	if result == nil || strings.TrimSpace(result.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe returned no payment intent id")
	}
	return &PaymentHandle{
		ProviderReference: result.ID,
		ClientToken:       result.ClientSecret,
		ProviderStatus:    result.Status,
	}, nil
}

type squarePaymentCreator interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
}

// SquareInitiator charges a tokenized source; the payment id becomes the provider reference.
type SquareInitiator struct {
	client squarePaymentCreator
}

func NewSquareInitiator(client squarePaymentCreator) (*SquareInitiator, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square client required")
	}
	return &SquareInitiator{client: client}, nil
}

func (s *SquareInitiator) Initiate(ctx context.Context, req PaymentRequest) (*PaymentHandle, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source_id is required for square payments")
	}
	payment, err := s.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency.String(),
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.ContributionID.String(),
	})
	if err != nil {
		return nil, providerError(err, "create square payment")
	}
	if payment == nil || payment.GetID() == nil || strings.TrimSpace(*payment.GetID()) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment id")
	}
	handle := &PaymentHandle{ProviderReference: *payment.GetID()}
	if status := payment.GetStatus(); status != nil {
		handle.ProviderStatus = *status
	}
	return handle, nil
}

// providerError keeps codes the provider client already assigned and treats
// anything untyped as a retryable dependency failure.
func providerError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
