package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("sk_test", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestFindCustomerByEmail(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "kari@example.no", r.URL.Query().Get("email"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Stripe-Version"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","url":"/v1/customers","has_more":false,
			"data":[{"id":"cus_1","object":"customer","email":"kari@example.no"}]}`))
	})

	cust, err := c.FindCustomerByEmail(context.Background(), "kari@example.no")
	require.NoError(t, err)
	require.NotNil(t, cust)
	assert.Equal(t, "cus_1", cust.ID)
	assert.Equal(t, "kari@example.no", cust.Email)
}

func TestFindCustomerByEmail_None(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","url":"/v1/customers","has_more":false,"data":[]}`))
	})

	cust, err := c.FindCustomerByEmail(context.Background(), "nobody@example.no")
	require.NoError(t, err)
	assert.Nil(t, cust)
}

func TestListSubscriptions(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions", r.URL.Path)
		assert.Equal(t, "cus_1", r.URL.Query().Get("customer"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","url":"/v1/subscriptions","has_more":false,"data":[
			{"id":"sub_1","object":"subscription","status":"canceled"},
			{"id":"sub_2","object":"subscription","status":"trialing","items":{"object":"list","data":[
				{"id":"si_1","object":"subscription_item","current_period_end":1767225600,
				 "price":{"id":"price_1","object":"price","recurring":{"interval":"year"}}}
			]}}
		]}`))
	})

	subs, err := c.ListSubscriptions(context.Background(), "cus_1", 10)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub_1", subs[0].ID)
	assert.False(t, subs[0].Entitled())
	assert.True(t, subs[1].Entitled())
	assert.Equal(t, "year", subs[1].Interval())
	end, ok := subs[1].PeriodEnd()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestAPIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key"}}`))
	})

	_, err := c.FindCustomerByEmail(context.Background(), "x@example.no")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.HTTPStatus())
	assert.Equal(t, "Invalid API Key", apiErr.Body)
	assert.Contains(t, err.Error(), "stripe: list customers")
}

func TestSubscription_PeriodEndFallback(t *testing.T) {
	s := Subscription{CurrentPeriodEnd: 1700000000}
	end, ok := s.PeriodEnd()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), end.Unix())
	assert.Equal(t, "", s.Interval())

	_, ok = Subscription{}.PeriodEnd()
	assert.False(t, ok)
}
