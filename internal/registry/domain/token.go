package domain

import "time"

// вид токена: одноразовый код или многоразовая ссылка
type TokenKind int

const (
	KindCode TokenKind = iota + 1
	KindLink
)

func (k TokenKind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// токен доступа к файлу. код и ссылка отличаются только видом и поведением при чтении
type Token struct {
	Code      string
	Kind      TokenKind
	FileID    string
	CreatedAt time.Time
	TTL       time.Duration
}

// ConsumeOnRead сообщает, удаляется ли токен после первой выдачи файла.
func (t *Token) ConsumeOnRead() bool {
	return t.Kind == KindCode
}

// ExpiresAt - момент, после которого токен уже недействителен.
func (t *Token) ExpiresAt() time.Time {
	return t.CreatedAt.Add(t.TTL)
}

// ExpiredAt проверяет истечение токена на момент now.
// тот же предикат в sql использует репозиторий при массовой очистке, см. Expired.
func (t *Token) ExpiredAt(now time.Time) bool {
	return Expired(now.UnixMilli(), t.CreatedAt.UnixMilli(), t.TTL.Milliseconds())
}

// Expired - единое определение истечения в миллисекундах:
// возраст строго больше ttl. при равенстве токен ещё жив.
func Expired(nowMs, createdMs, ttlMs int64) bool {
	return nowMs-createdMs > ttlMs
}
