package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/fundledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

type paymentCreator interface {
	Create(ctx context.Context, request *sq.CreatePaymentRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error)
}

// Client creates Square payments for contributions and holds the webhook
// signing material used to verify Square notifications.
type Client struct {
	payments        paymentCreator
	webhookSecret   string
	notificationURL string
	locationID      string
	logger          *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square environment must be sandbox or production, got %q", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errors.New("square webhook secret is required")
	}

	sdk := sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token))
	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return &Client{
		payments:        sdk.Payments,
		webhookSecret:   secret,
		notificationURL: strings.TrimSpace(cfg.NotificationURL),
		locationID:      strings.TrimSpace(cfg.LocationID),
		logger:          logg,
	}, nil
}

// SigningSecret is the HMAC key for x-square-hmacsha256-signature.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// NotificationURL is prepended to the body when Square computes its signature.
func (c *Client) NotificationURL() string {
	if c == nil {
		return ""
	}
	return c.notificationURL
}

// CreatePayment charges params.SourceID. The returned payment id becomes the
// contribution's provider reference; settlement still arrives by webhook.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	if c == nil || c.payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square client not initialized")
	}
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		key = "payment.create-" + uuid.NewString()
	}

	ctx = c.logger.WithFields(ctx, map[string]any{
		"operation":    "square.create_payment",
		"location_id":  params.LocationID,
		"amount_cents": params.AmountCents,
		"reference_id": params.ReferenceID,
	})

	resp, err := c.payments.Create(ctx, params.request(key))
	if err != nil {
		mapped := mapError(err, "create payment")
		c.logger.Error(ctx, "square payment create failed", mapped)
		return nil, mapped
	}

	payment := resp.GetPayment()
	c.logger.Info(c.logger.WithFields(ctx, map[string]any{
		"payment_id":     deref(payment.GetID()),
		"payment_status": deref(payment.GetStatus()),
	}), "square payment created")
	return payment, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
