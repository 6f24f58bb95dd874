package subscription

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"

	"fx-digest/internal/domain"
	"fx-digest/internal/infra/metrics"
)

// ActivationSubject — тема письма со ссылкой активации.
const ActivationSubject = "Servicio de Compra/Venta de dolares en los Bancos Comerciales"

// Service управляет жизненным циклом подписки.
type Service struct {
	repo      domain.SubscriberRepo
	tokens    domain.TokenIssuer
	renderer  domain.Renderer
	transport domain.Transport
	log       zerolog.Logger
}

// NewService создаёт сервис подписок.
func NewService(repo domain.SubscriberRepo, tokens domain.TokenIssuer, renderer domain.Renderer, transport domain.Transport, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, renderer: renderer, transport: transport, log: logger}
}

// NormalizeEmail приводит адрес к каноничному виду.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", domain.ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// CreateOrUpdate создаёт подписчика или перевыпускает токен существующему.
// Подписчик всегда становится неактивным, прежние ссылки перестают работать.
func (s *Service) CreateOrUpdate(ctx context.Context, email, fullName string) (domain.Subscriber, string, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return domain.Subscriber{}, "", err
	}
	name := strings.TrimSpace(fullName)
	if name == "" {
		return domain.Subscriber{}, "", domain.ErrInvalidName
	}

	token := s.tokens.Issue()
	sub, err := s.repo.UpsertSubscriber(ctx, normalized, name, token)
	metrics.ObserveSubscription("create_or_update", err)
	if err != nil {
		return domain.Subscriber{}, "", fmt.Errorf("сохранение подписчика: %w", err)
	}
	s.log.Debug().Int64("subscriber_id", sub.ID).Str("email", sub.Email).Msg("подписка создана или обновлена")
	return sub, token, nil
}

// Subscribe регистрирует подписку и отправляет письмо со ссылкой активации.
func (s *Service) Subscribe(ctx context.Context, email, fullName string, activationLink domain.LinkFunc) (domain.Subscriber, error) {
	sub, token, err := s.CreateOrUpdate(ctx, email, fullName)
	if err != nil {
		return domain.Subscriber{}, err
	}
	link, err := activationLink(sub.Email, token)
	if err != nil {
		return domain.Subscriber{}, fmt.Errorf("ссылка активации: %w", err)
	}
	doc, err := s.renderer.RenderActivationMessage(sub.FullName, link)
	if err != nil {
		return domain.Subscriber{}, fmt.Errorf("письмо активации: %w", err)
	}
	if err := s.transport.Deliver(ctx, sub.Email, ActivationSubject, doc); err != nil {
		s.log.Error().Err(err).Str("email", sub.Email).Msg("не удалось отправить письмо активации")
		return domain.Subscriber{}, fmt.Errorf("отправка письма активации: %w", err)
	}
	return sub, nil
}

// Activate включает подписку по актуальному токену.
func (s *Service) Activate(ctx context.Context, email, token string) (domain.Subscriber, error) {
	sub, err := s.setActive(ctx, email, token, true)
	metrics.ObserveSubscription("activate", err)
	return sub, err
}

// Deactivate выключает подписку по актуальному токену.
func (s *Service) Deactivate(ctx context.Context, email, token string) (domain.Subscriber, error) {
	sub, err := s.setActive(ctx, email, token, false)
	metrics.ObserveSubscription("deactivate", err)
	return sub, err
}

func (s *Service) setActive(ctx context.Context, email, token string, active bool) (domain.Subscriber, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sub, err := s.repo.GetSubscriberByEmail(ctx, normalized)
	if errors.Is(err, domain.ErrSubscriberNotFound) {
		return domain.Subscriber{}, domain.ErrSubscriberNotFound
	}
	if err != nil {
		return domain.Subscriber{}, fmt.Errorf("получение подписчика: %w", err)
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(sub.Token), []byte(token)) != 1 {
		return domain.Subscriber{}, domain.ErrInvalidToken
	}
	// Токен мог смениться между чтением и записью, поэтому обновление условное.
	updated, err := s.repo.SetSubscriberActive(ctx, normalized, token, active)
	if err != nil {
		return domain.Subscriber{}, fmt.Errorf("обновление подписчика: %w", err)
	}
	if !updated {
		return domain.Subscriber{}, domain.ErrInvalidToken
	}
	sub.Active = active
	s.log.Info().Int64("subscriber_id", sub.ID).Bool("active", active).Msg("статус подписки изменён")
	return sub, nil
}
