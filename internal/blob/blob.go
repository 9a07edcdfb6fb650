// Пакет blob - байтовое хранилище файлов, адресуемое непрозрачным id.
// запись однократная, удаление идемпотентное.
package blob

import (
	"context"
	"errors"
	"io"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrBlobExists   = errors.New("blob already exists")
	ErrInvalidID    = errors.New("invalid blob id")
)

// Store - контракт хранилища, которым пользуются registry и gateway.
type Store interface {
	// Put записывает блоб один раз. повторная запись с тем же id - ErrBlobExists.
	Put(ctx context.Context, id string, r io.Reader, size int64, contentType string) error
	// Open открывает блоб на чтение, вызывающий закрывает reader.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Delete не считает отсутствие блоба ошибкой.
	Delete(ctx context.Context, id string) error
}

// id блоба попадает в путь на диске и в ключ объекта, поэтому пускаем только
// буквы, цифры и дефис (формат uuid).
func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}
	return true
}
