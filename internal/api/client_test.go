package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgs/marketchat/internal/api"
	"github.com/vgs/marketchat/internal/api/apitest"
	"github.com/vgs/marketchat/internal/metrics"
)

func setup(t *testing.T) (*apitest.Server, *api.Client) {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	return srv, api.New(srv.URL(), api.WithTimeout(5*time.Second))
}

func TestListThreads(t *testing.T) {
	srv, client := setup(t)
	srv.AddUser("alice@uni.edu", "Alice A")
	srv.AddUser("carol@uni.edu", "Carol C")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv.Seed("alice@uni.edu", "me@uni.edu", "hi", base)
	srv.Seed("me@uni.edu", "carol@uni.edu", "is it still for sale?", base.Add(time.Hour))
	srv.Seed("me@uni.edu", "alice@uni.edu", "hello", base.Add(2*time.Hour))

	threads, err := client.ListThreads(context.Background(), srv.Token("me@uni.edu"))
	require.NoError(t, err)
	require.Len(t, threads, 2)

	assert.Equal(t, "alice@uni.edu", threads[0].UserID)
	assert.Equal(t, "Alice A", threads[0].Name)
	assert.Equal(t, "hello", threads[0].LastMessage)
	assert.Equal(t, "carol@uni.edu", threads[1].UserID)
}

func TestListThreadsEmpty(t *testing.T) {
	srv, client := setup(t)

	threads, err := client.ListThreads(context.Background(), srv.Token("me@uni.edu"))
	require.NoError(t, err)
	assert.NotNil(t, threads)
	assert.Empty(t, threads)
}

func TestListMessagesOrdered(t *testing.T) {
	srv, client := setup(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv.Seed("me@uni.edu", "bob@uni.edu", "second", base.Add(time.Minute))
	srv.Seed("bob@uni.edu", "me@uni.edu", "first", base)
	srv.Seed("carol@uni.edu", "me@uni.edu", "unrelated", base)

	msgs, err := client.ListMessages(context.Background(), srv.Token("me@uni.edu"), "bob@uni.edu")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
}

func TestSendMessage(t *testing.T) {
	srv, client := setup(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	srv.SetClock(func() time.Time { return at })

	msg, err := client.SendMessage(context.Background(), srv.Token("me@uni.edu"), "bob@uni.edu", "hello")
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "me@uni.edu", msg.SenderID)
	assert.Equal(t, "bob@uni.edu", msg.RecipientID)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "2024-03-01T12:00:00Z", msg.SentAt)
	assert.Equal(t, 1, srv.Calls("send"))
}

func TestErrorEnvelope(t *testing.T) {
	srv, client := setup(t)
	srv.Fail("conversation", http.StatusInternalServerError, "INTERNAL")

	_, err := client.ListMessages(context.Background(), srv.Token("me@uni.edu"), "bob@uni.edu")
	require.Error(t, err)

	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "INTERNAL", apiErr.Code)
	assert.False(t, apiErr.Unauthorized())
}

func TestUnauthorized(t *testing.T) {
	_, client := setup(t)

	_, err := client.ListThreads(context.Background(), "not-a-jwt")
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Unauthorized())
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
}

func TestMissingTokenShortCircuits(t *testing.T) {
	srv, client := setup(t)

	_, err := client.ListThreads(context.Background(), "")
	assert.ErrorIs(t, err, api.ErrMissingToken)
	assert.Equal(t, 0, srv.Calls("threads"))
}

func TestNonEnvelopeError(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer hs.Close()

	_, err := api.New(hs.URL).ListThreads(context.Background(), "tok")
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "UNKNOWN", apiErr.Code)
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("[]"))
	}))
	defer hs.Close()

	_, err := api.New(hs.URL+"/").ListThreads(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Len(t, got.Get("X-Request-ID"), 36)
}

func TestMetrics(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	m := metrics.New(nil)
	client := api.New(srv.URL(), api.WithMetrics(m))

	_, err := client.ListThreads(context.Background(), srv.Token("me@uni.edu"))
	require.NoError(t, err)
	srv.Fail("threads", http.StatusServiceUnavailable, "UNAVAILABLE")
	_, err = client.ListThreads(context.Background(), srv.Token("me@uni.edu"))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("threads", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("threads", "error")))
}

func TestContextCancel(t *testing.T) {
	srv, client := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListThreads(ctx, srv.Token("me@uni.edu"))
	assert.ErrorIs(t, err, context.Canceled)
}
