// Package stripe wraps the Stripe customer and subscription list endpoints
// used for subscription checks.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.stripe.com"

// Client defines the Stripe API operations used for subscription checks.
type Client interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	ListSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error)
}

// Customer is a Stripe customer.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Subscription is a Stripe subscription.
type Subscription struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
}

// SubscriptionItem is a line item on a subscription.
type SubscriptionItem struct {
	ID               string `json:"id"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Price            struct {
		Recurring *struct {
			Interval string `json:"interval"`
		} `json:"recurring"`
	} `json:"price"`
}

// PeriodEnd returns the end of the current billing period. Newer API versions
// carry it on the first item; older ones on the subscription.
func (s Subscription) PeriodEnd() (time.Time, bool) {
	end := s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 && s.Items.Data[0].CurrentPeriodEnd != 0 {
		end = s.Items.Data[0].CurrentPeriodEnd
	}
	if end == 0 {
		return time.Time{}, false
	}
	return time.Unix(end, 0).UTC(), true
}

// Interval returns the billing interval of the first item ("month", "year").
func (s Subscription) Interval() string {
	if len(s.Items.Data) == 0 || s.Items.Data[0].Price.Recurring == nil {
		return ""
	}
	return s.Items.Data[0].Price.Recurring.Interval
}

// Entitled reports whether the subscription grants access.
func (s Subscription) Entitled() bool {
	return s.Status == "active" || s.Status == "trialing"
}

// APIError is returned when Stripe responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus exposes the response status to retry classification.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the sdkClient.
type Option func(*sdkClient)

// WithBaseURL overrides the API host. Paths carry their own /v1 prefix.
func WithBaseURL(u string) Option {
	return func(c *sdkClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *sdkClient) {
		c.http = hc
	}
}

type sdkClient struct {
	customers     *customer.Client
	subscriptions *subscription.Client

	baseURL string
	http    *http.Client
}

// NewClient creates a Stripe client authenticated with a secret key.
func NewClient(secretKey string, opts ...Option) Client {
	c := &sdkClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
		URL:               stripeapi.String(c.baseURL),
		HTTPClient:        c.http,
		MaxNetworkRetries: stripeapi.Int64(0),
		EnableTelemetry:   stripeapi.Bool(false),
		LeveledLogger:     zap.L().Sugar(),
	})
	c.customers = &customer.Client{B: backend, Key: secretKey}
	c.subscriptions = &subscription.Client{B: backend, Key: secretKey}
	return c
}

func (c *sdkClient) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripeapi.CustomerListParams{Email: stripeapi.String(email)}
	params.Context = ctx
	params.Limit = stripeapi.Int64(1)
	params.Single = true

	it := c.customers.List(params)
	if it.Next() {
		cust := it.Customer()
		return &Customer{ID: cust.ID, Email: cust.Email}, nil
	}
	if err := it.Err(); err != nil {
		return nil, eris.Wrap(apiError(err), "stripe: list customers")
	}
	return nil, nil
}

func (c *sdkClient) ListSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error) {
	params := &stripeapi.SubscriptionListParams{Customer: stripeapi.String(customerID)}
	params.Context = ctx
	params.Limit = stripeapi.Int64(int64(limit))
	params.Single = true

	var out []Subscription
	it := c.subscriptions.List(params)
	for it.Next() {
		out = append(out, fromSDKSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, eris.Wrapf(apiError(err), "stripe: list subscriptions for %s", customerID)
	}
	return out, nil
}

func fromSDKSubscription(s *stripeapi.Subscription) Subscription {
	out := Subscription{ID: s.ID, Status: string(s.Status)}
	if s.Items == nil {
		return out
	}
	for _, item := range s.Items.Data {
		si := SubscriptionItem{ID: item.ID, CurrentPeriodEnd: item.CurrentPeriodEnd}
		if item.Price != nil && item.Price.Recurring != nil {
			si.Price.Recurring = &struct {
				Interval string `json:"interval"`
			}{Interval: string(item.Price.Recurring.Interval)}
		}
		out.Items.Data = append(out.Items.Data, si)
	}
	return out
}

// apiError converts SDK response errors into *APIError so callers can
// classify by status without importing stripe-go.
func apiError(err error) error {
	var se *stripeapi.Error
	if !errors.As(err, &se) {
		return err
	}
	body := se.Msg
	if body == "" {
		body = string(se.Type)
	}
	return &APIError{StatusCode: se.HTTPStatusCode, Body: body}
}
