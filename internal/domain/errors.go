package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProductIDInvalid возвращается при попытке добавить товар с неположительным id.
	ErrProductIDInvalid = errors.New("product id must be positive")
	// ErrCartEmpty — оформление пустой корзины.
	ErrCartEmpty = errors.New("cart is empty, nothing to checkout")
	// ErrUnreachable — удалённое хранилище недоступно (сеть, таймаут, 5xx).
	ErrUnreachable = errors.New("remote store unreachable")
	// ErrRejected — удалённое хранилище доступно, но отклонило операцию.
	ErrRejected = errors.New("remote store rejected the operation")
	// ErrKeyNotFound возвращается локальным хранилищем, если ключ ещё не записан.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyRequired — пустой ключ локального хранилища.
	ErrKeyRequired = errors.New("key is required")
	// ErrCredentialsRequired — вход без email или пароля.
	ErrCredentialsRequired = errors.New("email and password are required")
)

// Outcome классифицирует результат обращения к удалённому хранилищу.
type Outcome int

const (
	// OutcomeSuccess — удалённый вызов выполнен.
	OutcomeSuccess Outcome = iota
	// OutcomeUnreachable — удалённый вызов не дошёл; включается локальный fallback.
	OutcomeUnreachable
	// OutcomeRejected — удалённый вызов отклонён по бизнес-правилу; состояние не меняется.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// RemoteError описывает неуспешный вызов REST-коллаборатора.
type RemoteError struct {
	Op         string
	Outcome    Outcome
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Outcome)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять класс ошибки через errors.Is(err, ErrUnreachable|ErrRejected).
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrUnreachable:
		return e.Outcome == OutcomeUnreachable
	case ErrRejected:
		return e.Outcome == OutcomeRejected
	default:
		return false
	}
}

// Unreachable оборачивает причину недоступности.
func Unreachable(op string, statusCode int, err error) *RemoteError {
	return &RemoteError{Op: op, Outcome: OutcomeUnreachable, StatusCode: statusCode, Err: err}
}

// Rejected формирует ошибку отказа с сообщением коллаборатора.
func Rejected(op string, statusCode int, message string) *RemoteError {
	return &RemoteError{Op: op, Outcome: OutcomeRejected, StatusCode: statusCode, Message: message}
}

// ClassifyOutcome сводит ошибку к Outcome. Любая неизвестная ошибка считается недоступностью.
func ClassifyOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrRejected):
		return OutcomeRejected
	default:
		return OutcomeUnreachable
	}
}
