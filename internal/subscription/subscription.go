// Package subscription resolves a user's paid-tier status from Stripe.
package subscription

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rabatt-cli/pkg/stripe"
)

// subscriptionsPerCustomer bounds the Stripe list call.
const subscriptionsPerCustomer = 10

// Status is the subscription state reported to clients.
type Status struct {
	Subscribed      bool       `json:"subscribed"`
	SubscriptionEnd *time.Time `json:"subscription_end"`
	BillingInterval *string    `json:"billing_interval"`
}

// Equal reports whether s and o describe the same subscription.
func (s Status) Equal(o Status) bool {
	if s.Subscribed != o.Subscribed {
		return false
	}
	if (s.SubscriptionEnd == nil) != (o.SubscriptionEnd == nil) ||
		(s.SubscriptionEnd != nil && !s.SubscriptionEnd.Equal(*o.SubscriptionEnd)) {
		return false
	}
	if (s.BillingInterval == nil) != (o.BillingInterval == nil) ||
		(s.BillingInterval != nil && *s.BillingInterval != *o.BillingInterval) {
		return false
	}
	return true
}

// Checker looks up status for an email address.
type Checker struct {
	client stripe.Client
}

// NewChecker creates a Checker backed by client.
func NewChecker(client stripe.Client) *Checker {
	return &Checker{client: client}
}

// Check returns the status for email. A missing customer is not an error.
func (c *Checker) Check(ctx context.Context, email string) (Status, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Status{}, eris.New("subscription: email is required")
	}
	log := zap.L().With(zap.String("email", email))

	cust, err := c.client.FindCustomerByEmail(ctx, email)
	if err != nil {
		return Status{}, eris.Wrap(err, "subscription: find customer")
	}
	if cust == nil {
		log.Info("subscription: no customer found")
		return Status{}, nil
	}

	subs, err := c.client.ListSubscriptions(ctx, cust.ID, subscriptionsPerCustomer)
	if err != nil {
		return Status{}, eris.Wrapf(err, "subscription: list subscriptions for %s", cust.ID)
	}

	for _, sub := range subs {
		if !sub.Entitled() {
			continue
		}
		st := Status{Subscribed: true}
		if end, ok := sub.PeriodEnd(); ok {
			st.SubscriptionEnd = &end
		}
		if iv := sub.Interval(); iv != "" {
			st.BillingInterval = &iv
		}
		log.Info("subscription: entitled",
			zap.String("customer", cust.ID),
			zap.String("subscription", sub.ID),
			zap.String("status", sub.Status),
		)
		return st, nil
	}

	log.Info("subscription: no active or trialing subscription", zap.Int("subscriptions", len(subs)))
	return Status{}, nil
}

// ShouldRefresh reports whether a cached status checked at lastChecked is
// stale at now. A zero lastChecked is always stale.
func ShouldRefresh(now, lastChecked time.Time, minInterval time.Duration) bool {
	if lastChecked.IsZero() {
		return true
	}
	return now.Sub(lastChecked) >= minInterval
}

// StatusChecker is what a Session polls.
type StatusChecker interface {
	Check(ctx context.Context, email string) (Status, error)
}

// Session owns the last known status for one signed-in user and throttles
// refreshes to at most one per interval.
type Session struct {
	checker     StatusChecker
	email       string
	minInterval time.Duration

	mu          sync.Mutex
	status      Status
	lastChecked time.Time
	inFlight    bool
}

// NewSession creates a Session for email.
func NewSession(checker StatusChecker, email string, minInterval time.Duration) *Session {
	return &Session{checker: checker, email: email, minInterval: minInterval}
}

// Status returns the cached status and when it was fetched.
func (s *Session) Status() (Status, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastChecked
}

// Refresh checks upstream when the cache is stale and no other refresh is
// running, and returns the resulting status. On failure the previous status
// is kept and the error returned.
func (s *Session) Refresh(ctx context.Context, now time.Time) (Status, error) {
	s.mu.Lock()
	if s.inFlight || !ShouldRefresh(now, s.lastChecked, s.minInterval) {
		st := s.status
		s.mu.Unlock()
		return st, nil
	}
	s.inFlight = true
	s.mu.Unlock()

	st, err := s.checker.Check(ctx, s.email)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		return s.status, err
	}
	s.status = st
	s.lastChecked = now
	return st, nil
}

// Reset clears the cached status, as on sign-out.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{}
	s.lastChecked = time.Time{}
}
