package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/dhsimulator/internal/domain/model"
)

// ProfileRepository — интерфейс для таблицы profiles.
type ProfileRepository interface {
	// GetByID возвращает профиль по Keycloak ID. Если не найден — ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.UserProfile, error)
	// ListByIDs возвращает профили по набору ID (ключ — ID).
	ListByIDs(ctx context.Context, ids []string) (map[string]*model.UserProfile, error)
	// Upsert создаёт или обновляет профиль.
	Upsert(ctx context.Context, p *model.UserProfile) error
	// EnsureExists создаёт профиль, если его ещё нет. Существующий не меняется.
	EnsureExists(ctx context.Context, p *model.UserProfile) (created bool, err error)
	// Delete удаляет профиль по ID.
	Delete(ctx context.Context, id string) error
	// Count возвращает количество профилей.
	Count(ctx context.Context) (int, error)
}

type profileRepo struct {
	db DBTX
}

// NewProfileRepository создаёт репозиторий профилей.
func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByID(ctx context.Context, id string) (*model.UserProfile, error) {
	query := `
		SELECT id, email, full_name, role, created_at, updated_at
		FROM profiles
		WHERE id = $1`

	p := &model.UserProfile{}
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля %s: %w", id, err)
	}
	return p, nil
}

func (r *profileRepo) ListByIDs(ctx context.Context, ids []string) (map[string]*model.UserProfile, error) {
	result := make(map[string]*model.UserProfile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, email, full_name, role, created_at, updated_at
		FROM profiles
		WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения профилей: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := &model.UserProfile{}
		if err := rows.Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования профиля: %w", err)
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (r *profileRepo) Upsert(ctx context.Context, p *model.UserProfile) error {
	query := `
		INSERT INTO profiles (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			role = EXCLUDED.role,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, p.ID, p.Email, p.FullName, p.Role).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return wrapWriteError("ошибка сохранения профиля "+p.ID, err)
	}
	return nil
}

func (r *profileRepo) EnsureExists(ctx context.Context, p *model.UserProfile) (bool, error) {
	query := `
		INSERT INTO profiles (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, p.ID, p.Email, p.FullName, p.Role)
	if err != nil {
		return false, wrapWriteError("ошибка создания профиля "+p.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *profileRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления профиля %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *profileRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта профилей: %w", err)
	}
	return count, nil
}
