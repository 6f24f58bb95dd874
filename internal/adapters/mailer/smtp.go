package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"fx-digest/internal/domain"
	"fx-digest/internal/infra/metrics"
)

var _ domain.Transport = (*SMTP)(nil)

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig описывает подключение к SMTP-серверу и отправителя.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTP отправляет письма multipart/alternative через SMTP.
type SMTP struct {
	cfg  SMTPConfig
	addr string
	auth smtp.Auth
	send sendFunc
	now  func() time.Time
	log  zerolog.Logger
}

// NewSMTP создаёт транспорт. PLAIN-аутентификация включается, если задан логин.
func NewSMTP(cfg SMTPConfig, logger zerolog.Logger) *SMTP {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTP{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth: auth,
		send: smtp.SendMail,
		now:  time.Now,
		log:  logger,
	}
}

// Deliver собирает и отправляет одно письмо.
func (s *SMTP) Deliver(ctx context.Context, recipient, subject string, body domain.Document) (err error) {
	if err := ctx.Err(); err != nil {
		return &domain.DeliveryError{Recipient: recipient, Err: err}
	}
	msg, err := s.compose(recipient, subject, body)
	if err != nil {
		return &domain.DeliveryError{Recipient: recipient, Err: err}
	}

	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("smtp", "send", s.cfg.Host, start, err)
	}()
	if sendErr := s.send(s.addr, s.auth, s.cfg.From, []string{recipient}, msg); sendErr != nil {
		return &domain.DeliveryError{Recipient: recipient, Err: sendErr}
	}
	s.log.Debug().Str("to", recipient).Str("subject", subject).Msg("smtp: письмо отправлено")
	return nil
}

func (s *SMTP) compose(recipient, subject string, body domain.Document) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{{Name: s.cfg.FromName, Address: s.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: recipient}})
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline: %w", err)
	}
	if err := writePart(tw, "text/plain", body.Text); err != nil {
		return nil, err
	}
	if err := writePart(tw, "text/html", body.HTML); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(tw *mail.InlineWriter, contentType, content string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		w.Close()
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s part: %w", contentType, err)
	}
	return nil
}
