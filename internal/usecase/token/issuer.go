package token

import (
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fx-digest/internal/domain"
)

// Issuer выдаёт токены вида "<счётчик>-<миллисекунда дня>-<случайный суффикс>".
// Счётчик принадлежит экземпляру и гарантирует уникальность, даже если часы не сдвинулись.
// Суффикс не даёт угадать токен и повторить старый после перезапуска процесса.
type Issuer struct {
	counter atomic.Uint64
	now     func() time.Time
	suffix  func() string
}

var _ domain.TokenIssuer = (*Issuer)(nil)

// NewIssuer создаёт генератор токенов.
func NewIssuer() *Issuer {
	return &Issuer{now: time.Now, suffix: randomSuffix}
}

// Issue возвращает новый токен. Безопасен для конкурентного вызова.
func (i *Issuer) Issue() string {
	n := i.counter.Add(1)
	now := i.now()
	milliOfDay := now.Sub(domain.StartOfDay(now)).Milliseconds()
	return strconv.FormatUint(n, 10) + "-" + strconv.FormatInt(milliOfDay, 10) + "-" + i.suffix()
}

// randomSuffix берёт 64 бита из UUIDv4 (crypto/rand внутри).
func randomSuffix() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}
