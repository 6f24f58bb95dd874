package domain

import "errors"

var (
	// ErrSubscriberNotFound возвращается, когда подписчик с таким email отсутствует.
	ErrSubscriberNotFound = errors.New("subscriber not found")

	// ErrInvalidToken возвращается, когда токен не совпадает с сохранённым.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidEmail возвращается для некорректного адреса.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidName возвращается для пустого имени.
	ErrInvalidName = errors.New("invalid full name")
)

// DeliveryError описывает ошибку транспорта при отправке одному получателю.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return "delivery to " + e.Recipient + ": " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error { return e.Err }
