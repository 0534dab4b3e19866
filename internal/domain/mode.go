package domain

// Mode — режим, в котором выполнена последняя применённая операция с корзиной.
type Mode string

const (
	// ModeUnknown — корзина ещё не загружалась в этой сессии.
	ModeUnknown Mode = "unknown"
	// ModeRemoteBacked — источник истины — удалённое хранилище.
	ModeRemoteBacked Mode = "remote_backed"
	// ModeLocalFallback — удалённое хранилище недоступно, работаем с локальной копией.
	ModeLocalFallback Mode = "local_fallback"
)

// Valid проверяет, что режим относится к поддерживаемым значениям.
func (m Mode) Valid() bool {
	switch m {
	case ModeUnknown, ModeRemoteBacked, ModeLocalFallback:
		return true
	default:
		return false
	}
}
