package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedTransport struct {
	statuses []int
	calls    int
	bodies   []string
}

func (t *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		t.bodies = append(t.bodies, string(b))
	}
	status := t.statuses[t.calls]
	t.calls++
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
		Header:     make(http.Header),
	}, nil
}

func newRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "http://llm.local/v1", r)
	require.NoError(t, err)
	return req
}

func TestDoJSONRetriesServerErrors(t *testing.T) {
	rt := &scriptedTransport{statuses: []int{500, 503, 200}}
	c := NewClient(time.Second, 3, WithTransport(rt), WithBackoffStep(time.Millisecond))

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.DoJSON(newRequest(t, `{"model":"m"}`), &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 3, rt.calls)
}

func TestDoRequestReplaysBodyOnRetry(t *testing.T) {
	rt := &scriptedTransport{statuses: []int{429, 200}}
	c := NewClient(time.Second, 1, WithTransport(rt), WithBackoffStep(time.Millisecond))

	resp, err := c.DoRequest(newRequest(t, `{"input":["a"]}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Len(t, rt.bodies, 2)
	assert.Equal(t, rt.bodies[0], rt.bodies[1])
}

func TestDoRequestExhaustsRetries(t *testing.T) {
	rt := &scriptedTransport{statuses: []int{500, 500, 500}}
	c := NewClient(time.Second, 2, WithTransport(rt), WithBackoffStep(time.Millisecond))

	_, err := c.DoRequest(newRequest(t, ""))
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.StatusCode)
	assert.True(t, statusErr.Retryable())
	assert.Equal(t, 3, rt.calls)
}

func TestDoJSONClientErrorNotRetried(t *testing.T) {
	rt := &scriptedTransport{statuses: []int{400}}
	c := NewClient(time.Second, 3, WithTransport(rt), WithBackoffStep(time.Millisecond))

	err := c.DoJSON(newRequest(t, ""), nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 400, statusErr.StatusCode)
	assert.False(t, statusErr.Retryable())
	assert.Contains(t, statusErr.Error(), "400")
	assert.Equal(t, 1, rt.calls)
}

func TestDoRequestHonorsContextDuringBackoff(t *testing.T) {
	rt := &scriptedTransport{statuses: []int{500, 200}}
	c := NewClient(time.Second, 1, WithTransport(rt), WithBackoffStep(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://llm.local/v1", nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = c.DoRequest(req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rt.calls)
}
