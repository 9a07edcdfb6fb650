package domain

import "time"

// основная структура файла. id одновременно ключ блоба в хранилище
type File struct {
	ID          string
	Name        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}
