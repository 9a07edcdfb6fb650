package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"

	"github.com/kfcempoyee/gofiledrop/internal/registry/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// репозиторий содержит указатель на бд и реализует интерфейс service.FileRepoInterface
type FileRepo struct {
	db *sql.DB
}

// счётчики строк по таблицам, для метрик
type Stats struct {
	Files int64
	Codes int64
	Links int64
}

const (
	tableFiles = "files"
	tableCodes = "access_codes"
	tableLinks = "access_links"
)

// Open открывает файл sqlite с включёнными внешними ключами.
// пул ограничен одним соединением: sqlite и так пишет в один поток,
// а так все запросы сериализуются в одной точке.
func Open(path string) (*sql.DB, error) {
	dsn := "file::memory:?_foreign_keys=on"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
		dsn = "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

// инициализация (миграции) происходит прямо при создании репозитория
func NewFileRepo(db *sql.DB) (*FileRepo, error) {
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrateUp(db); err != nil {
		return nil, err
	}

	return &FileRepo{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	defer source.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}

	// m.Close() не вызываем: драйвер закрыл бы общий *sql.DB
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func tableFor(kind domain.TokenKind) (string, error) {
	switch kind {
	case domain.KindCode:
		return tableCodes, nil
	case domain.KindLink:
		return tableLinks, nil
	default:
		return "", fmt.Errorf("unknown token kind %d", kind)
	}
}

// RegisterFile в одной транзакции сохраняет файл и его первый код.
// если код уже занят, транзакция откатывается и возвращается ErrCodeConflict.
func (f *FileRepo) RegisterFile(ctx context.Context, file *domain.File, code *domain.Token) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO "+tableFiles+" (id, name, mime_type, size, created_at) VALUES (?, ?, ?, ?, ?);",
		file.ID, file.Name, file.ContentType, file.Size, file.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO "+tableCodes+" (code, file_id, created_at, ttl_ms) VALUES (?, ?, ?, ?);",
		code.Code, file.ID, code.CreatedAt.UnixMilli(), code.TTL.Milliseconds(),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
			return domain.ErrCodeConflict
		}
		return fmt.Errorf("failed to insert access code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit file: %w", err)
	}
	return nil
}

// взять файл или ErrNotFound
func (f *FileRepo) GetFile(ctx context.Context, id string) (*domain.File, error) {
	query := "SELECT id, name, mime_type, size, created_at FROM " + tableFiles + " WHERE id = ?;"

	var (
		file    domain.File
		created int64
	)
	err := f.db.QueryRowContext(ctx, query, id).Scan(
		&file.ID,
		&file.Name,
		&file.ContentType,
		&file.Size,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	file.CreatedAt = time.UnixMilli(created)

	return &file, nil
}

// FindToken ищет токен сначала среди кодов, потом среди ссылок.
// пространства имён не пересекаются: коды цифровые, ссылки - uuid.
func (f *FileRepo) FindToken(ctx context.Context, code string) (*domain.Token, error) {
	for _, kind := range []domain.TokenKind{domain.KindCode, domain.KindLink} {
		tok, err := f.getToken(ctx, kind, code)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		return tok, err
	}
	return nil, domain.ErrNotFound
}

func (f *FileRepo) getToken(ctx context.Context, kind domain.TokenKind, code string) (*domain.Token, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var (
		tok     = domain.Token{Kind: kind}
		created int64
		ttl     int64
	)
	err = f.db.QueryRowContext(ctx,
		"SELECT code, file_id, created_at, ttl_ms FROM "+table+" WHERE code = ?;", code,
	).Scan(&tok.Code, &tok.FileID, &created, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}

	tok.CreatedAt = time.UnixMilli(created)
	tok.TTL = time.Duration(ttl) * time.Millisecond
	return &tok, nil
}

// InsertLink сохраняет ссылку и возвращает строку в том виде, как её записала бд.
func (f *FileRepo) InsertLink(ctx context.Context, link *domain.Token) (*domain.Token, error) {
	query := "INSERT INTO " + tableLinks + " (code, file_id, created_at, ttl_ms) VALUES (?, ?, ?, ?) " +
		"RETURNING code, file_id, created_at, ttl_ms;"

	var (
		saved   = domain.Token{Kind: domain.KindLink}
		created int64
		ttl     int64
	)
	err := f.db.QueryRowContext(ctx, query,
		link.Code, link.FileID, link.CreatedAt.UnixMilli(), link.TTL.Milliseconds(),
	).Scan(&saved.Code, &saved.FileID, &created, &ttl)
	if err != nil {
		switch {
		case isConstraint(err, sqlite3.ErrConstraintPrimaryKey):
			return nil, domain.ErrCodeConflict
		case isConstraint(err, sqlite3.ErrConstraintForeignKey):
			// файл успели удалить между проверкой и вставкой
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to insert link: %w", err)
	}

	saved.CreatedAt = time.UnixMilli(created)
	saved.TTL = time.Duration(ttl) * time.Millisecond
	return &saved, nil
}

// DeleteToken удаляет токен, только если он ещё существует, и сообщает, удалила ли именно эта операция.
// на этом держится одноразовость кода при гонке двух скачиваний.
func (f *FileRepo) DeleteToken(ctx context.Context, kind domain.TokenKind, code string) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	res, err := f.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE code = ?;", code)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return n == 1, nil
}

// DeleteExpiredTokens удаляет истекшие коды и ссылки.
// предикат тот же, что domain.Expired: now - created_at > ttl_ms.
func (f *FileRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	nowMs := now.UnixMilli()
	var total int64
	for _, table := range []string{tableCodes, tableLinks} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE (? - created_at) > ttl_ms;", nowMs)
		if err != nil {
			return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expired cleanup: %w", err)
	}
	return total, nil
}

const orphanCondition = "NOT EXISTS (SELECT 1 FROM " + tableCodes + " c WHERE c.file_id = files.id) " +
	"AND NOT EXISTS (SELECT 1 FROM " + tableLinks + " l WHERE l.file_id = files.id)"

// ListOrphans - файлы, на которые не ссылается ни один код или ссылка.
func (f *FileRepo) ListOrphans(ctx context.Context) ([]domain.File, error) {
	query := "SELECT id, name, mime_type, size, created_at FROM " + tableFiles + " WHERE " + orphanCondition + ";"
	rows, err := f.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphans: %w", err)
	}
	defer rows.Close()

	var orphans []domain.File
	for rows.Next() {
		var (
			file    domain.File
			created int64
		)
		if err := rows.Scan(&file.ID, &file.Name, &file.ContentType, &file.Size, &created); err != nil {
			return nil, fmt.Errorf("failed to scan orphan: %w", err)
		}
		file.CreatedAt = time.UnixMilli(created)
		orphans = append(orphans, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list orphans: %w", err)
	}

	return orphans, nil
}

// DeleteOrphan удаляет запись файла, если на неё всё ещё никто не ссылается.
// release (удаление блоба) вызывается внутри транзакции до коммита: пока блоб
// удаляется, запись для остальных ещё видна, а после коммита нет ни того, ни другого.
// вернёт false, если за время между ListOrphans и удалением появился новый токен.
func (f *FileRepo) DeleteOrphan(ctx context.Context, id string, release func()) (bool, error) {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM "+tableFiles+" WHERE id = ? AND "+orphanCondition+";", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if release != nil {
		release()
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit file delete: %w", err)
	}
	return true, nil
}

// Stats считает строки в таблицах.
func (f *FileRepo) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := f.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM "+tableFiles+"), "+
			"(SELECT COUNT(*) FROM "+tableCodes+"), "+
			"(SELECT COUNT(*) FROM "+tableLinks+");",
	).Scan(&s.Files, &s.Codes, &s.Links)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return s, nil
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == code
	}
	return false
}
