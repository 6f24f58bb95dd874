package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"fx-digest/internal/adapters/links"
	"fx-digest/internal/domain"
	infrahttp "fx-digest/internal/infra/http"
)

type stubSubscriptions struct {
	subscribeErr error
	setErr       error
	gotLink      string
	gotEmail     string
	gotToken     string
}

func (s *stubSubscriptions) Subscribe(_ context.Context, email, fullName string, link domain.LinkFunc) (domain.Subscriber, error) {
	if s.subscribeErr != nil {
		return domain.Subscriber{}, s.subscribeErr
	}
	s.gotLink, _ = link(email, "1-1")
	return domain.Subscriber{Email: email, FullName: fullName}, nil
}

func (s *stubSubscriptions) Activate(_ context.Context, email, token string) (domain.Subscriber, error) {
	s.gotEmail, s.gotToken = email, token
	return domain.Subscriber{Email: email, Active: true}, s.setErr
}

func (s *stubSubscriptions) Deactivate(_ context.Context, email, token string) (domain.Subscriber, error) {
	s.gotEmail, s.gotToken = email, token
	return domain.Subscriber{Email: email}, s.setErr
}

type stubTrigger struct {
	baseURL string
}

func (s *stubTrigger) TriggerWithBase(_ context.Context, cause domain.DispatchJobCause, baseURL string) (domain.DispatchJob, error) {
	s.baseURL = baseURL
	return domain.DispatchJob{ID: "job-1", Day: "2024-05-20", Cause: cause, BaseURL: baseURL}, nil
}

func newRouter(subs *stubSubscriptions, trigger DispatchTrigger) http.Handler {
	link := func(email, token string) (string, error) {
		return fmt.Sprintf("https://fx.example/activate/%s/%s", email, token), nil
	}
	r := chi.NewRouter()
	NewHandler(subs, trigger, link, infrahttp.AdminTokenMiddleware("secret"), zerolog.Nop()).Mount(r)
	return r
}

func TestSubscribe(t *testing.T) {
	subs := &stubSubscriptions{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"email":"ana@example.com","full_name":"Ana"}`))
	newRouter(subs, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидали 202, получили %d: %s", rec.Code, rec.Body.String())
	}
	if subs.gotLink != "https://fx.example/activate/ana@example.com/1-1" {
		t.Fatalf("неожиданная ссылка активации: %s", subs.gotLink)
	}
}

func TestSubscribeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
		want string
	}{
		{name: "bad json", body: `{`, code: http.StatusBadRequest, want: "invalid_request"},
		{name: "bad email", body: `{}`, err: domain.ErrInvalidEmail, code: http.StatusBadRequest, want: "invalid_email"},
		{name: "bad name", body: `{}`, err: domain.ErrInvalidName, code: http.StatusBadRequest, want: "invalid_full_name"},
		{name: "delivery", body: `{}`, err: fmt.Errorf("send: %w", &domain.DeliveryError{Recipient: "a", Err: errors.New("smtp")}), code: http.StatusInternalServerError, want: "delivery_failed"},
		{name: "store", body: `{}`, err: errors.New("db down"), code: http.StatusInternalServerError, want: "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(tt.body))
			newRouter(&stubSubscriptions{subscribeErr: tt.err}, nil).ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Fatalf("ожидали %d, получили %d", tt.code, rec.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Code != tt.want {
				t.Fatalf("ожидали код %s, получили %+v (%v)", tt.want, resp, err)
			}
		})
	}
}

func TestActivateDeactivate(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		err    error
		code   int
		active bool
	}{
		{name: "activate", path: "/activate/ana@example.com/1-1", code: http.StatusOK, active: true},
		{name: "deactivate", path: "/deactivate/ana@example.com/1-1", code: http.StatusOK},
		{name: "not found", path: "/activate/nobody@example.com/1-1", err: domain.ErrSubscriberNotFound, code: http.StatusNotFound},
		{name: "bad token", path: "/deactivate/ana@example.com/0-0", err: domain.ErrInvalidToken, code: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(&stubSubscriptions{setErr: tt.err}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.code {
				t.Fatalf("ожидали %d, получили %d", tt.code, rec.Code)
			}
			if tt.err != nil {
				return
			}
			var resp subscriptionResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("ответ не разбирается: %v", err)
			}
			if resp.Active != tt.active {
				t.Fatalf("ожидали active=%v, получили %+v", tt.active, resp)
			}
		})
	}
}

func TestDispatchRequiresAdminToken(t *testing.T) {
	trigger := &stubTrigger{}
	router := newRouter(&stubSubscriptions{}, trigger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/dispatch", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("без токена ожидали 401, получили %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch", strings.NewReader(`{"base_url":"https://other.example"}`))
	req.Header.Set(infrahttp.AdminTokenHeader, "secret")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидали 202, получили %d", rec.Code)
	}
	if trigger.baseURL != "https://other.example" {
		t.Fatalf("базовый URL не передан: %q", trigger.baseURL)
	}
}

func TestBuiltLinksRoundTrip(t *testing.T) {
	builder, err := links.New("https://fx.example")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	tests := []struct {
		name  string
		link  func(email, token string) (string, error)
		email string
		token string
	}{
		{name: "slash in local part", link: builder.Activation(), email: "a/b@example.com", token: "1-1-ab"},
		{name: "percent in local part", link: builder.Deactivation(), email: "a%b@example.com", token: "2-5"},
		{name: "plain", link: builder.Deactivation(), email: "ana@example.com", token: "3-7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := tt.link(tt.email, tt.token)
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			subs := &stubSubscriptions{}
			rec := httptest.NewRecorder()
			newRouter(subs, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, link, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("ожидали 200 для %s, получили %d", link, rec.Code)
			}
			if subs.gotEmail != tt.email || subs.gotToken != tt.token {
				t.Fatalf("сервис получил %q/%q, ожидали %q/%q", subs.gotEmail, subs.gotToken, tt.email, tt.token)
			}
		})
	}
}
