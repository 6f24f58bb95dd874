package links

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"fx-digest/internal/domain"
)

const (
	// ActivationPath — шаблон ссылки активации подписки.
	ActivationPath = "/activate/{email}/{token}"
	// DeactivationPath — шаблон ссылки отписки.
	DeactivationPath = "/deactivate/{email}/{token}"
)

// Builder строит абсолютные ссылки относительно базового URL.
type Builder struct {
	base *url.URL
}

// New разбирает базовый URL. Схема по умолчанию — http.
func New(baseURL string) (*Builder, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("base url is required")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}
	return &Builder{base: parsed}, nil
}

// Build подставляет значения по порядку вместо плейсхолдеров {name} в шаблоне пути.
func (b *Builder) Build(template string, values ...string) (string, error) {
	var out strings.Builder
	rest := template
	used := 0
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			out.WriteString(rest)
			break
		}
		closeIdx := strings.IndexByte(rest[open:], '}')
		if closeIdx < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", template)
		}
		if used >= len(values) {
			return "", fmt.Errorf("not enough values for %q", template)
		}
		out.WriteString(rest[:open])
		out.WriteString(url.PathEscape(values[used]))
		used++
		rest = rest[open+closeIdx+1:]
	}
	if used != len(values) {
		return "", fmt.Errorf("too many values for %q", template)
	}

	expanded := out.String()
	u := *b.base
	u.RawQuery = ""
	u.Fragment = ""
	raw := path.Join("/", strings.TrimSuffix(u.EscapedPath(), "/"), expanded)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("build path: %w", err)
	}
	u.Path = decoded
	u.RawPath = raw
	return u.String(), nil
}

// Activation возвращает функцию ссылок активации.
func (b *Builder) Activation() domain.LinkFunc {
	return func(email, token string) (string, error) {
		return b.Build(ActivationPath, email, token)
	}
}

// Deactivation возвращает функцию ссылок отписки.
func (b *Builder) Deactivation() domain.LinkFunc {
	return func(email, token string) (string, error) {
		return b.Build(DeactivationPath, email, token)
	}
}

// DeactivationFor строит функцию ссылок отписки для заданного базового URL.
func DeactivationFor(baseURL string) (domain.LinkFunc, error) {
	b, err := New(baseURL)
	if err != nil {
		return nil, err
	}
	return b.Deactivation(), nil
}
