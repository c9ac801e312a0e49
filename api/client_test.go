package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bassamadnan/tmpmail/apperror"
)

func newTestClient(t *testing.T, handler http.Handler, attempts int, delay time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, RetryAttempts: attempts, RetryDelay: delay},
		WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGenerateAddressRetriesTransientStatus(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/address/generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["username"] != "alice" || body["domain"] != "example.test" {
			t.Errorf("unexpected body %v", body)
		}
		w.Write([]byte(`{"email":"alice@example.test","expires_in":3600}`))
	})

	delay := 20 * time.Millisecond
	c := newTestClient(t, handler, 3, delay)

	start := time.Now()
	got, err := c.GenerateAddress(context.Background(), "alice", "example.test")
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("GenerateAddress: %v", err)
	}
	if got.Email != "alice@example.test" {
		t.Fatalf("Email = %q", got.Email)
	}
	if _, ok := got.Extra["expires_in"]; !ok {
		t.Fatal("extra fields should be kept")
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("attempts = %d, want 3", n)
	}
	if elapsed < 2*delay {
		t.Fatalf("elapsed %v, want at least two delays of %v", elapsed, delay)
	}
}

func TestValidationErrorIsNotRetried(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"msg":"username already taken"}`))
	})
	c := newTestClient(t, handler, 3, time.Millisecond)

	_, err := c.GenerateAddress(context.Background(), "bob", "example.test")
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if err.Error() != "username already taken" {
		t.Fatalf("message = %q, want server message", err.Error())
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("attempts = %d, want 1", n)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status   int
		kind     apperror.Kind
		attempts int32
	}{
		{http.StatusNotFound, apperror.KindNotFound, 1},
		{http.StatusTooManyRequests, apperror.KindRateLimit, 2},
		{http.StatusInternalServerError, apperror.KindService, 2},
		{http.StatusBadGateway, apperror.KindService, 2},
		{http.StatusGatewayTimeout, apperror.KindService, 2},
		{http.StatusRequestTimeout, apperror.KindUnknown, 2},
		{http.StatusForbidden, apperror.KindUnknown, 1},
	}
	for _, tc := range cases {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(tc.status)
		})
		c := newTestClient(t, handler, 2, time.Millisecond)

		_, err := c.Domains(context.Background())
		if got := apperror.KindOf(err); got != tc.kind {
			t.Errorf("status %d: kind = %v, want %v", tc.status, got, tc.kind)
		}
		if err != nil && err.Error() != apperror.Message(tc.kind) {
			t.Errorf("status %d: message = %q, want default", tc.status, err.Error())
		}
		if n := atomic.LoadInt32(&calls); n != tc.attempts {
			t.Errorf("status %d: attempts = %d, want %d", tc.status, n, tc.attempts)
		}
	}
}

func TestNetworkErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: base, RetryAttempts: 3, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Envelopes(context.Background(), "x@example.test")
	if !apperror.Is(err, apperror.KindNetwork) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
}

func TestClientTimeoutIsClassified(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	hc := srv.Client()
	hc.Timeout = 20 * time.Millisecond
	c, err := NewClient(Config{BaseURL: srv.URL, RetryAttempts: 1}, WithHTTPClient(hc))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Domains(context.Background())
	if !apperror.Is(err, apperror.KindTimeout) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c := newTestClient(t, handler, 5, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Domains(ctx)
	if !apperror.Is(err, apperror.KindTimeout) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("attempts = %d, want 1", n)
	}
}

func TestRequestShape(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		if r.URL.Query().Get("_t") == "" {
			t.Error("missing cache-busting _t parameter")
		}
		switch {
		case r.URL.Path == "/getEnvelopes/someone@example.test":
			io.WriteString(w, `{"envelopes":[{"uid":7,"sender":"a@b.c","subject":"hi","date":"Mon, 02 Jan 2006 15:04:05 -0700","has_attachments":true},{"uid":"8","subject":"second"}]}`)
		case r.URL.Path == "/email/7/content":
			if r.URL.Query().Get("email") != "someone@example.test" {
				t.Errorf("content email param = %q", r.URL.Query().Get("email"))
			}
			io.WriteString(w, `{"subject":"hi","sender":"a@b.c","recipient":"someone@example.test","html_content":"<p>hello</p>","has_attachments":true,"attachment_count":2}`)
		case r.URL.Path == "/getAttachments/7":
			io.WriteString(w, `{"attachments":[{"filename":"a.txt","content_type":"text/plain","size":12}]}`)
		case r.URL.Path == "/":
			io.WriteString(w, "ok")
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := newTestClient(t, handler, 1, 0)
	ctx := context.Background()

	envs, err := c.Envelopes(ctx, "someone@example.test")
	if err != nil {
		t.Fatalf("Envelopes: %v", err)
	}
	if len(envs) != 2 || envs[0].UID != "7" || envs[1].UID != "8" {
		t.Fatalf("unexpected envelopes %+v", envs)
	}
	if envs[0].Time().IsZero() {
		t.Error("first envelope date should parse")
	}

	content, err := c.Content(ctx, envs[0].UID, "someone@example.test")
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if content.HTMLContent != "<p>hello</p>" || content.AttachmentCount != 2 {
		t.Fatalf("unexpected content %+v", content)
	}

	atts, err := c.Attachments(ctx, envs[0].UID, "someone@example.test")
	if err != nil {
		t.Fatalf("Attachments: %v", err)
	}
	if len(atts) != 1 || atts[0].Filename != "a.txt" {
		t.Fatalf("unexpected attachments %+v", atts)
	}

	health, err := c.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if strings.TrimSpace(string(health)) != "ok" {
		t.Fatalf("Health = %q", health)
	}
}

func TestUndecodableBodyIsUnknown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not json</html>")
	})
	c := newTestClient(t, handler, 3, time.Millisecond)

	_, err := c.Domains(context.Background())
	if !apperror.Is(err, apperror.KindUnknown) {
		t.Fatalf("err = %v, want UnknownError", err)
	}
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "/relative"}); err == nil {
		t.Fatal("expected error for relative base url")
	}
}
