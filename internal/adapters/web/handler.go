package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"fx-digest/internal/domain"
)

type subscriptions interface {
	Subscribe(ctx context.Context, email, fullName string, activationLink domain.LinkFunc) (domain.Subscriber, error)
	Activate(ctx context.Context, email, token string) (domain.Subscriber, error)
	Deactivate(ctx context.Context, email, token string) (domain.Subscriber, error)
}

// DispatchTrigger ставит ручной запуск рассылки в очередь.
type DispatchTrigger interface {
	TriggerWithBase(ctx context.Context, cause domain.DispatchJobCause, baseURL string) (domain.DispatchJob, error)
}

// Handler обслуживает публичный API подписок и административный запуск рассылки.
type Handler struct {
	subs       subscriptions
	trigger    DispatchTrigger
	activation domain.LinkFunc
	admin      func(http.Handler) http.Handler
	log        zerolog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type subscribeRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

type subscriptionResponse struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	Active bool   `json:"active"`
}

type dispatchRequest struct {
	BaseURL string `json:"base_url"`
}

// NewHandler создаёт обработчик. admin оборачивает административные маршруты;
// trigger может быть nil, тогда /api/v1/dispatch не регистрируется.
func NewHandler(subs subscriptions, trigger DispatchTrigger, activation domain.LinkFunc, admin func(http.Handler) http.Handler, logger zerolog.Logger) *Handler {
	return &Handler{subs: subs, trigger: trigger, activation: activation, admin: admin, log: logger}
}

// Mount регистрирует маршруты в роутере.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/api/v1/subscriptions", h.handleSubscribe)
	r.Get("/activate/{email}/{token}", h.handleSetActive(true))
	r.Get("/deactivate/{email}/{token}", h.handleSetActive(false))

	if h.trigger != nil {
		r.Group(func(r chi.Router) {
			if h.admin != nil {
				r.Use(h.admin)
			}
			r.Post("/api/v1/dispatch", h.handleDispatch)
		})
	}
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	sub, err := h.subs.Subscribe(r.Context(), req.Email, req.FullName, h.activation)
	if err != nil {
		h.writeDomainError(w, "subscribe", err)
		return
	}
	writeJSON(w, http.StatusAccepted, subscriptionResponse{Email: sub.Email, Status: "pending_activation", Active: false})
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, err := pathParam(r, "email")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid email in path")
			return
		}
		token, err := pathParam(r, "token")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid token in path")
			return
		}

		var sub domain.Subscriber
		if active {
			sub, err = h.subs.Activate(r.Context(), email, token)
		} else {
			sub, err = h.subs.Deactivate(r.Context(), email, token)
		}
		if err != nil {
			h.writeDomainError(w, "set_active", err)
			return
		}
		status := "deactivated"
		if sub.Active {
			status = "activated"
		}
		writeJSON(w, http.StatusOK, subscriptionResponse{Email: sub.Email, Status: status, Active: sub.Active})
	}
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
	}
	job, err := h.trigger.TriggerWithBase(r.Context(), domain.DispatchCauseManual, req.BaseURL)
	if err != nil {
		h.log.Error().Err(err).Msg("web: не удалось поставить рассылку")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to enqueue dispatch")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "invalid_email", "invalid email")
	case errors.Is(err, domain.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid_full_name", "full_name is required")
	case errors.Is(err, domain.ErrSubscriberNotFound):
		writeError(w, http.StatusNotFound, "subscription_not_found", "subscription not found")
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusForbidden, "invalid_token", "invalid token")
	default:
		var deliveryErr *domain.DeliveryError
		if errors.As(err, &deliveryErr) {
			h.log.Error().Err(err).Str("op", op).Msg("web: письмо не отправлено")
			writeError(w, http.StatusInternalServerError, "delivery_failed", "failed to send activation email")
			return
		}
		h.log.Error().Err(err).Str("op", op).Msg("web: внутренняя ошибка")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// pathParam возвращает декодированный параметр маршрута. chi матчит по RawPath,
// когда в пути есть экранирование вроде %2F, и тогда значение приходит закодированным.
func pathParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value, nil
	}
	return url.PathUnescape(value)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
