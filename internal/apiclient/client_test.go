package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketbaza/internal/apiclient"
	"marketbaza/internal/domain"
	"marketbaza/internal/session"
	"marketbaza/internal/testserver"
)

func TestLoginPersistsSessionAndAuthorizesLaterCalls(t *testing.T) {
	ctx := context.Background()
	srv := testserver.Start(t)
	kv := session.NewMemoryKV()
	sess := session.New(kv)
	client := apiclient.New(srv.BaseURL(), sess)

	resp, err := client.Login(ctx, testserver.MarketEmail, testserver.MarketPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	stored, ok, err := kv.Get(ctx, session.KeyToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, resp.Token, stored)

	profile, err := client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, testserver.MarketEmail, profile.Email)
	assert.Equal(t, int64(1), profile.MarketRef())
}

func TestLoginFailureLeavesSessionEmpty(t *testing.T) {
	ctx := context.Background()
	srv := testserver.Start(t)
	sess := session.New(nil)
	client := apiclient.New(srv.BaseURL(), sess)

	_, err := client.Login(ctx, testserver.MarketEmail, "nope")
	var srvErr *apiclient.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusUnauthorized, srvErr.Status)
	assert.Equal(t, "invalid credentials", srvErr.Message)

	token, err := sess.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestServerMessageIsSurfaced(t *testing.T) {
	ctx := context.Background()
	srv := testserver.Start(t)
	client := apiclient.New(srv.BaseURL(), session.New(nil))
	_, err := client.Login(ctx, testserver.MarketEmail, testserver.MarketPassword)
	require.NoError(t, err)

	_, err = client.CreateProduct(ctx, "Banan")
	var srvErr *apiclient.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusForbidden, srvErr.Status)
	assert.Equal(t, "forbidden role", srvErr.Message)
}

func TestErrorFieldAndUndecodableBodies(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/market", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"market locked"}`))
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>boom</html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client := apiclient.New(srv.URL, session.New(nil), apiclient.WithRetries(0))

	_, err := client.Markets(ctx)
	var srvErr *apiclient.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, "market locked", srvErr.Message)

	_, err = client.Products(ctx)
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusInternalServerError, srvErr.Status)
	assert.Equal(t, "server error (status 500)", srvErr.Message)
}

func TestUnreachableServiceIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := apiclient.New(url, session.New(nil), apiclient.WithRetries(1), apiclient.WithBackoff(time.Millisecond))
	_, err := client.Products(context.Background())

	var netErr *apiclient.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.MethodGet, netErr.Method)
}

func TestIdempotentRequestsRetryOnGatewayErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Pomidor"}]`))
	}))
	t.Cleanup(srv.Close)

	client := apiclient.New(srv.URL, session.New(nil), apiclient.WithRetries(2), apiclient.WithBackoff(time.Millisecond))
	products, err := client.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := apiclient.New(srv.URL, session.New(nil), apiclient.WithRetries(3), apiclient.WithBackoff(time.Millisecond))
	err := client.SavePrices(context.Background(), domain.PriceSaveRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := apiclient.New(srv.URL, session.New(nil), apiclient.WithTimeout(50*time.Millisecond), apiclient.WithRetries(0))
	_, err := client.Markets(context.Background())

	var netErr *apiclient.NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestLogoutClearsSessionEvenWhenServerFails(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	sess := session.New(nil)
	require.NoError(t, sess.Save(ctx, "tok", domain.User{ID: 1, Role: domain.RoleAdmin}))

	client := apiclient.New(srv.URL, sess)
	require.NoError(t, client.Logout(ctx))

	token, err := sess.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestRequestsCarryRequestIDAndBearer(t *testing.T) {
	ctx := context.Background()
	var gotAuth, gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	sess := session.New(nil)
	require.NoError(t, sess.Save(ctx, "tok-xyz", domain.User{ID: 2, Role: domain.RoleBaza}))
	client := apiclient.New(srv.URL, sess)

	_, err := client.PendingOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-xyz", gotAuth)
	assert.NotEmpty(t, gotID)
}

func TestCanceledContextStopsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	client := apiclient.New(srv.URL, session.New(nil), apiclient.WithRetries(5), apiclient.WithBackoff(time.Hour))

	done := make(chan error, 1)
	go func() {
		_, err := client.Markets(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop ignored cancellation")
	}
}

func TestTimeoutLeavesCallerHTTPClientAlone(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	shared := &http.Client{}
	client := apiclient.New(srv.URL, session.New(nil),
		apiclient.WithHTTPClient(shared),
		apiclient.WithTimeout(50*time.Millisecond),
		apiclient.WithRetries(0),
	)

	_, err := client.Markets(context.Background())
	var netErr *apiclient.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Zero(t, shared.Timeout)
}
