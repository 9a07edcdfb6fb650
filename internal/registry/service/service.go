package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kfcempoyee/gofiledrop/internal/blob"
	"github.com/kfcempoyee/gofiledrop/internal/registry/domain"
	"github.com/kfcempoyee/gofiledrop/internal/registry/repository"
)

// интерфейс репо: файлы, токены и то, что нужно очистке
type FileRepoInterface interface {
	RegisterFile(ctx context.Context, file *domain.File, code *domain.Token) error
	GetFile(ctx context.Context, id string) (*domain.File, error)
	FindToken(ctx context.Context, code string) (*domain.Token, error)
	InsertLink(ctx context.Context, link *domain.Token) (*domain.Token, error)
	DeleteToken(ctx context.Context, kind domain.TokenKind, code string) (bool, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
	ListOrphans(ctx context.Context) ([]domain.File, error)
	DeleteOrphan(ctx context.Context, id string, release func()) (bool, error)
	Stats(ctx context.Context) (repository.Stats, error)
}

var _ FileRepoInterface = (*repository.FileRepo)(nil)

// Options - настройки реестра доступа
type Options struct {
	CodeTTL       time.Duration
	LinkTTL       time.Duration
	MaxUploadSize int64
	// откуда забирать загруженные gateway временные файлы
	TmpDir string
	// часы, в тестах подменяются
	Now func() time.Time
}

// сервис содержит репо, хранилище блобов и логгер
type FileService struct {
	Repo   FileRepoInterface
	Store  blob.Store
	Logger *slog.Logger

	opts Options
}

// передаем в сервис репо, хранилище и логгер
func NewFileService(repo FileRepoInterface, store blob.Store, opts Options, logger *slog.Logger) *FileService {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &FileService{
		Repo:   repo,
		Store:  store,
		Logger: logger.With(slog.String("component", "registry")),
		opts:   opts,
	}
}

const (
	codeCharset = "0123456789"
	codeLength  = 6

	// сколько раз пробуем сгенерировать свободный код или ссылку
	maxCodeAttempts = 16
)

// генерирует цифровой код доступа, каждая цифра равновероятна
func generateCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)

	base := big.NewInt(int64(len(codeCharset)))
	for range length {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeCharset[n.Int64()])
	}

	return b.String(), nil
}

// RegisterParams описывает загрузку, которую gateway уже положил во временную директорию.
type RegisterParams struct {
	TmpName     string
	Filename    string
	Size        int64
	ContentType string
}

// Register переносит временный файл в хранилище блобов и сохраняет запись файла
// вместе с первым кодом доступа. временный файл удаляется в любом случае.
func (s *FileService) Register(ctx context.Context, p RegisterParams) (*domain.File, *domain.Token, error) {
	if p.TmpName == "" || filepath.Base(p.TmpName) != p.TmpName || p.TmpName == "." || p.TmpName == ".." {
		return nil, nil, domain.ErrBadUpload
	}
	tmpPath := filepath.Join(s.opts.TmpDir, p.TmpName)
	defer os.Remove(tmpPath)

	if p.Size > s.opts.MaxUploadSize {
		return nil, nil, domain.ErrTooLarge
	}

	tmp, err := os.Open(tmpPath)
	if err != nil {
		s.Logger.Warn("temp upload not found", "tmp_name", p.TmpName, "error", err)
		return nil, nil, domain.ErrBadUpload
	}
	defer tmp.Close()

	// размер берём с диска, заявленному не доверяем
	st, err := tmp.Stat()
	if err != nil {
		s.Logger.Error("error reading temp upload", "error", err)
		return nil, nil, domain.ErrInService
	}
	if st.Size() > s.opts.MaxUploadSize {
		return nil, nil, domain.ErrTooLarge
	}

	now := s.opts.Now()
	file := &domain.File{
		ID:          uuid.NewString(),
		Name:        p.Filename,
		ContentType: p.ContentType,
		Size:        st.Size(),
		CreatedAt:   now,
	}

	if err := s.Store.Put(ctx, file.ID, tmp, file.Size, file.ContentType); err != nil {
		s.Logger.Error("error storing blob", "file_id", file.ID, "error", err)
		return nil, nil, domain.ErrInService
	}

	code, err := s.commitWithCode(ctx, file, now)
	if err != nil {
		// запись не появилась, значит и блоб никому не нужен
		if delErr := s.Store.Delete(context.WithoutCancel(ctx), file.ID); delErr != nil {
			s.Logger.Error("error removing blob after failed register", "file_id", file.ID, "error", delErr)
		}
		return nil, nil, err
	}

	filesRegisteredTotal.Inc()
	s.Logger.Info("registered file", "file_id", file.ID, "size", file.Size)
	return file, code, nil
}

func (s *FileService) commitWithCode(ctx context.Context, file *domain.File, now time.Time) (*domain.Token, error) {
	for range maxCodeAttempts {
		value, err := generateCode(codeLength)
		if err != nil {
			s.Logger.Error("error generating access code", "error", err)
			return nil, domain.ErrInService
		}

		code := &domain.Token{
			Code:      value,
			Kind:      domain.KindCode,
			FileID:    file.ID,
			CreatedAt: now,
			TTL:       s.opts.CodeTTL,
		}

		err = s.Repo.RegisterFile(ctx, file, code)
		if errors.Is(err, domain.ErrCodeConflict) {
			codeConflictsTotal.Inc()
			continue
		}
		if err != nil {
			s.Logger.Error("error saving file", "file_id", file.ID, "error", err)
			return nil, domain.ErrInRepo
		}
		return code, nil
	}

	s.Logger.Error("no free access code", "attempts", maxCodeAttempts)
	return nil, domain.ErrCodeSpaceExhausted
}

// Validate проверяет токен и возвращает файл, на который он указывает, и вид токена.
// токен не расходуется, для этого есть Consume.
func (s *FileService) Validate(ctx context.Context, token string) (*domain.File, domain.TokenKind, error) {
	if token == "" {
		return nil, 0, domain.ErrInvalidToken
	}

	tok, err := s.Repo.FindToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.Logger.Debug("token not found")
			return nil, 0, err
		}

		s.Logger.Error("error finding token", "error", err)
		return nil, 0, domain.ErrInRepo
	}

	now := s.opts.Now()
	if tok.ExpiredAt(now) {
		s.purgeExpired(ctx, tok, now)
		s.Logger.Debug("token expired", "kind", tok.Kind.String(), "file_id", tok.FileID)
		return nil, 0, domain.ErrExpired
	}

	file, err := s.Repo.GetFile(ctx, tok.FileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.fileMissing(tok, "record")
			return nil, 0, domain.ErrFileMissing
		}

		s.Logger.Error("error getting a file", "error", err)
		return nil, 0, domain.ErrInRepo
	}

	ok, err := s.Store.Exists(ctx, file.ID)
	if err != nil {
		s.Logger.Error("error checking blob", "file_id", file.ID, "error", err)
		return nil, 0, domain.ErrInService
	}
	if !ok {
		s.fileMissing(tok, "blob")
		return nil, 0, domain.ErrFileMissing
	}

	return file, tok.Kind, nil
}

// сам токен удаляется сразу, остальные истекшие - заодно. ошибки только логируем
func (s *FileService) purgeExpired(ctx context.Context, tok *domain.Token, now time.Time) {
	if _, err := s.Repo.DeleteToken(ctx, tok.Kind, tok.Code); err != nil {
		s.Logger.Warn("error deleting expired token", "kind", tok.Kind.String(), "error", err)
	}
	if _, err := s.Repo.DeleteExpiredTokens(ctx, now); err != nil {
		s.Logger.Warn("error purging expired tokens", "error", err)
	}
}

func (s *FileService) fileMissing(tok *domain.Token, what string) {
	fileMissingTotal.Inc()
	s.Logger.Error("valid token points to missing file",
		"missing", what,
		"kind", tok.Kind.String(),
		"file_id", tok.FileID,
	)
}

// Consume расходует токен после того, как файл решено отдать.
// код удаляется условно: из двух одновременных вызовов успешен ровно один.
// ссылки не расходуются.
func (s *FileService) Consume(ctx context.Context, token string, kind domain.TokenKind) error {
	switch kind {
	case domain.KindLink:
		return nil
	case domain.KindCode:
	default:
		return domain.ErrInvalidToken
	}

	if token == "" {
		return domain.ErrInvalidToken
	}

	deleted, err := s.Repo.DeleteToken(ctx, kind, token)
	if err != nil {
		s.Logger.Error("error consuming code", "error", err)
		return domain.ErrInRepo
	}
	if !deleted {
		return domain.ErrNotFound
	}

	s.Logger.Info("access code consumed")
	return nil
}

// MintLink создает многоразовую ссылку на существующий файл.
func (s *FileService) MintLink(ctx context.Context, fileID string) (*domain.Token, error) {
	if fileID == "" {
		return nil, domain.ErrNotFound
	}

	if _, err := s.Repo.GetFile(ctx, fileID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		s.Logger.Error("error getting a file", "error", err)
		return nil, domain.ErrInRepo
	}

	for range maxCodeAttempts {
		link := &domain.Token{
			Code:      uuid.NewString(),
			Kind:      domain.KindLink,
			FileID:    fileID,
			CreatedAt: s.opts.Now(),
			TTL:       s.opts.LinkTTL,
		}

		saved, err := s.Repo.InsertLink(ctx, link)
		switch {
		case errors.Is(err, domain.ErrCodeConflict):
			continue
		case errors.Is(err, domain.ErrNotFound):
			return nil, err
		case err != nil:
			s.Logger.Error("error saving link", "file_id", fileID, "error", err)
			return nil, domain.ErrInRepo
		}

		s.Logger.Info("minted link", "file_id", fileID, "expires_at", saved.ExpiresAt())
		return saved, nil
	}

	return nil, fmt.Errorf("%w: link", domain.ErrCodeSpaceExhausted)
}
