package domain

import "errors"

// все ошибки домена в одном месте. хендлер переводит их в статусы grpc,
// поэтому новую ошибку достаточно описать тут и добавить в маппинг.

var (
	ErrNotFound     = errors.New("token or file not found") // токена или файла нет
	ErrExpired      = errors.New("token expired")           // ttl токена истёк
	ErrInvalidToken = errors.New("invalid token")           // пустой или кривой токен
	ErrTooLarge     = errors.New("file too large")
	ErrBadUpload    = errors.New("invalid upload")  // имя временного файла не из tmp-директории

	// ErrFileMissing - токен валиден, но нет записи файла или блоба.
	// это нарушение инварианта, а не ошибка пользователя.
	ErrFileMissing = errors.New("file missing")

	ErrCodeConflict       = errors.New("access code already taken")
	ErrCodeSpaceExhausted = errors.New("no free access code")

	ErrInRepo    = errors.New("repo error")
	ErrInService = errors.New("error in service")
)
