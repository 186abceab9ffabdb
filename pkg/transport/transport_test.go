package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransport struct {
	responses []*http.Response
	errs      []error
	calls     int
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.responses[i], nil
}

func newReq(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "http://example.test/v1/chat", strings.NewReader("body"))
	require.NoError(t, err)
	return req
}

func resp(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}}
}

func TestRoundTripSucceedsFirstTry(t *testing.T) {
	stub := &stubTransport{responses: []*http.Response{resp(200)}}
	rt := New(stub, Config{MaxAttempts: 3, BaseWait: time.Millisecond, MaxWait: time.Second}, nil)

	got, err := rt.RoundTrip(newReq(t))
	require.NoError(t, err)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, 1, stub.calls)
}

func TestRoundTripRetries429ThenSucceeds(t *testing.T) {
	var events []ProgressEvent
	stub := &stubTransport{responses: []*http.Response{resp(429), resp(200)}}
	rt := New(stub, Config{MaxAttempts: 3, BaseWait: time.Millisecond, MaxWait: time.Second}, func(e ProgressEvent) {
		events = append(events, e)
	})

	got, err := rt.RoundTrip(newReq(t))
	require.NoError(t, err)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, 2, stub.calls)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Attempt)
}

func TestRoundTripHonorsRetryAfterSeconds(t *testing.T) {
	r := resp(429)
	r.Header.Set("Retry-After", "0")
	stub := &stubTransport{responses: []*http.Response{r, resp(200)}}
	rt := New(stub, Config{MaxAttempts: 3, BaseWait: time.Millisecond, MaxWait: time.Second}, nil)

	start := time.Now()
	_, err := rt.RoundTrip(newReq(t))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRoundTripExhaustsAttempts(t *testing.T) {
	stub := &stubTransport{responses: []*http.Response{resp(503), resp(503), resp(503)}}
	rt := New(stub, Config{MaxAttempts: 3, BaseWait: time.Millisecond, MaxWait: time.Millisecond}, nil)

	got, err := rt.RoundTrip(newReq(t))
	require.NoError(t, err)
	assert.Equal(t, 503, got.StatusCode)
	assert.Equal(t, 3, stub.calls)
}

func TestRoundTripNonRetriableStatusReturnsImmediately(t *testing.T) {
	stub := &stubTransport{responses: []*http.Response{resp(400)}}
	rt := New(stub, Config{MaxAttempts: 3, BaseWait: time.Millisecond, MaxWait: time.Second}, nil)

	got, err := rt.RoundTrip(newReq(t))
	require.NoError(t, err)
	assert.Equal(t, 400, got.StatusCode)
	assert.Equal(t, 1, stub.calls)
}

func TestRoundTripRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.test/v1/x", nil)
	require.NoError(t, err)

	stub := &stubTransport{responses: []*http.Response{resp(200)}}
	rt := New(stub, Config{MaxAttempts: 3, BaseWait: time.Millisecond, MaxWait: time.Second}, nil)

	_, err = rt.RoundTrip(req)
	require.Error(t, err)
	assert.Equal(t, 0, stub.calls)
}

func TestParseRetryAfterSeconds(t *testing.T) {
	d, ok := parseRetryAfter("30")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, d)
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	future := time.Now().Add(2 * time.Minute).UTC().Format(http.TimeFormat)
	d, ok := parseRetryAfter(future)
	require.True(t, ok)
	assert.InDelta(t, 2*time.Minute, d, float64(5*time.Second))
}

func TestParseRetryAfterEmpty(t *testing.T) {
	_, ok := parseRetryAfter("")
	assert.False(t, ok)
}

func TestParseRetryAfterInvalid(t *testing.T) {
	_, ok := parseRetryAfter("not-a-valid-value")
	assert.False(t, ok)
}

func TestLiveHTTPServerRetryAfter429(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: New(http.DefaultTransport, Config{MaxAttempts: 3, BaseWait: time.Millisecond, MaxWait: time.Second}, nil)}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	got, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, 2, hits)
}
