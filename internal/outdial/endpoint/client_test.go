package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sebas/outdial/internal/outdial/host"
)

func TestValidateSendsRequest(t *testing.T) {
	var gotAuth, gotReqID string
	var gotBody ValidationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"allowed":true,"message":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Name: "validation", URL: srv.URL, Token: "secret"})
	ctx := WithRequestID(context.Background(), "attempt-1")
	v, err := c.Validate(ctx, ValidationRequest{PhoneNumber: "+1555", APIParameter: "p", AgentID: "agent-7", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !v.Allowed || v.Message != "ok" {
		t.Errorf("Validate() = %+v, want allowed ok", v)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret")
	}
	if gotReqID != "attempt-1" {
		t.Errorf("X-Request-ID = %q, want attempt-1", gotReqID)
	}
	if gotBody.PhoneNumber != "+1555" || gotBody.AgentID != "agent-7" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestValidateInterpretsVerdict(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantAllowed bool
		wantMessage string
	}{
		{"success false", `{"success":false,"message":"X"}`, false, "X"},
		{"allowed wins", `{"allowed":false,"success":true}`, false, "Validation denied"},
		{"empty object", `{}`, true, "Validation successful"},
		{"empty body", ``, true, "Validation successful"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			v, err := NewClient(Config{Name: "validation", URL: srv.URL}).Validate(context.Background(), ValidationRequest{})
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if v.Allowed != tt.wantAllowed || v.Message != tt.wantMessage {
				t.Errorf("Validate() = %+v, want allowed=%v message=%q", v, tt.wantAllowed, tt.wantMessage)
			}
		})
	}
}

func TestValidateNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(Config{Name: "validation", URL: srv.URL}).Validate(context.Background(), ValidationRequest{})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Validate() error = %v, want *TransportError", err)
	}
	if te.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", te.StatusCode)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{
		Name:    "validation",
		URL:     srv.URL,
		Breaker: BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	})
	for i := 0; i < 2; i++ {
		_, _ = c.Validate(context.Background(), ValidationRequest{})
	}
	_, err := c.Validate(context.Background(), ValidationRequest{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("third Validate() error = %v, want ErrCircuitOpen", err)
	}
	if hits != 2 {
		t.Errorf("server hits = %d, want 2", hits)
	}
	if c.BreakerState() != StateOpen {
		t.Errorf("BreakerState() = %q, want open", c.BreakerState())
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	b.now = func() time.Time { return now }

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("Allow() = true right after tripping")
	}
	now = now.Add(2 * time.Second)
	if !b.Allow() {
		t.Fatal("Allow() = false after reset timeout")
	}
	if b.State() != StateHalfOpen {
		t.Errorf("State() = %q, want half_open", b.State())
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Errorf("State() = %q, want closed", b.State())
	}
}

func TestBreakerHalfOpenLimitsTrialRequests(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second, HalfOpenMaxAttempts: 2})
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Second)

	if !b.Allow() || !b.Allow() {
		t.Fatal("Allow() = false within the half-open allowance")
	}
	if b.Allow() {
		t.Fatal("Allow() = true beyond HalfOpenMaxAttempts")
	}

	b.RecordSuccess()
	if b.State() != StateHalfOpen {
		t.Fatalf("State() = %q after one success, want half_open", b.State())
	}
	if !b.Allow() {
		t.Fatal("Allow() = false after a trial request reported back")
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Errorf("State() = %q, want closed", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Second)
	if !b.Allow() {
		t.Fatal("Allow() = false after reset timeout")
	}
	if b.Allow() {
		t.Error("second concurrent trial admitted with HalfOpenMaxAttempts 1")
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Errorf("State() = %q, want open", b.State())
	}
}

func TestNotifyReturnsOpaqueBody(t *testing.T) {
	var got NotificationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"ticket":42}`)
	}))
	defer srv.Close()

	c := NewClient(Config{Name: "notification", URL: srv.URL})
	raw, err := c.Notify(context.Background(), NotificationRequest{
		PhoneNumber:   "+1555",
		OutdialResult: &host.OutdialResponse{InteractionID: "call-1"},
		Status:        StatusInitiated,
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if !strings.Contains(string(raw), `"ticket":42`) {
		t.Errorf("Notify() = %s", raw)
	}
	if got.Status != "initiated" || got.OutdialResult == nil || got.OutdialResult.InteractionID != "call-1" {
		t.Errorf("notification body = %+v", got)
	}
}

func TestNotifyTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{Name: "notification", URL: url}).Notify(context.Background(), NotificationRequest{})
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != 0 {
		t.Errorf("Notify() error = %v, want transport error without status", err)
	}
}
