package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/dhsimulator/internal/domain/model"
)

// MaxClientList — предельное количество записей в списке клиентов.
const MaxClientList = 1000

// ClientLimitRepository — интерфейс для таблицы client_limits.
type ClientLimitRepository interface {
	// List возвращает клиентов от новых к старым, не более limit записей.
	List(ctx context.Context, limit int) ([]*model.ClientLimit, error)
	// ListIDs возвращает идентификаторы всех клиентов.
	ListIDs(ctx context.Context) ([]string, error)
	// GetByID возвращает клиента по ID. Если не найден — ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.ClientLimit, error)
	// GetByDNI возвращает клиента по DNI. Если не найден — ErrNotFound.
	GetByDNI(ctx context.Context, dni string) (*model.ClientLimit, error)
	// Upsert создаёт клиента или обновляет существующего с тем же DNI.
	Upsert(ctx context.Context, c *model.ClientLimit) error
	// Update перезаписывает поля клиента по ID.
	Update(ctx context.Context, c *model.ClientLimit) error
	// SetLimits устанавливает min/max для клиента по ID.
	SetLimits(ctx context.Context, id string, minAmount, maxAmount float64) error
	// SetLimitsMany устанавливает min/max для набора ID. Возвращает число обновлённых строк.
	SetLimitsMany(ctx context.Context, ids []string, minAmount, maxAmount float64) (int64, error)
	// Delete удаляет клиента по ID.
	Delete(ctx context.Context, id string) error
}

type clientLimitRepo struct {
	db DBTX
}

// NewClientLimitRepository создаёт репозиторий белого списка клиентов.
func NewClientLimitRepository(db DBTX) ClientLimitRepository {
	return &clientLimitRepo{db: db}
}

const clientColumns = `id, dni, full_name, min_amount, max_amount, created_at, updated_at`

func scanClient(row pgx.Row) (*model.ClientLimit, error) {
	c := &model.ClientLimit{}
	err := row.Scan(&c.ID, &c.DNI, &c.FullName, &c.MinAmount, &c.MaxAmount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *clientLimitRepo) List(ctx context.Context, limit int) ([]*model.ClientLimit, error) {
	if limit <= 0 || limit > MaxClientList {
		limit = MaxClientList
	}

	query := `SELECT ` + clientColumns + `
		FROM client_limits
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка клиентов: %w", err)
	}
	defer rows.Close()

	var clients []*model.ClientLimit
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования клиента: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *clientLimitRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM client_limits ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ID клиентов: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования ID клиентов: %w", err)
	}
	return ids, nil
}

func (r *clientLimitRepo) GetByID(ctx context.Context, id string) (*model.ClientLimit, error) {
	query := `SELECT ` + clientColumns + ` FROM client_limits WHERE id = $1`

	c, err := scanClient(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения клиента %s: %w", id, err)
	}
	return c, nil
}

func (r *clientLimitRepo) GetByDNI(ctx context.Context, dni string) (*model.ClientLimit, error) {
	query := `SELECT ` + clientColumns + ` FROM client_limits WHERE dni = $1`

	c, err := scanClient(r.db.QueryRow(ctx, query, dni))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения клиента по DNI: %w", err)
	}
	return c, nil
}

// Upsert заполняет ID, CreatedAt и UpdatedAt по данным из БД.
// При совпадении DNI сохраняется исходный ID записи.
func (r *clientLimitRepo) Upsert(ctx context.Context, c *model.ClientLimit) error {
	query := `
		INSERT INTO client_limits (id, dni, full_name, min_amount, max_amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (dni) DO UPDATE
		SET full_name = EXCLUDED.full_name,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, c.ID, c.DNI, c.FullName, c.MinAmount, c.MaxAmount).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return wrapWriteError("ошибка сохранения клиента", err)
	}
	return nil
}

func (r *clientLimitRepo) Update(ctx context.Context, c *model.ClientLimit) error {
	query := `
		UPDATE client_limits
		SET dni = $2, full_name = $3, min_amount = $4, max_amount = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, c.ID, c.DNI, c.FullName, c.MinAmount, c.MaxAmount).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return wrapWriteError("ошибка обновления клиента "+c.ID, err)
	}
	return nil
}

func (r *clientLimitRepo) SetLimits(ctx context.Context, id string, minAmount, maxAmount float64) error {
	query := `
		UPDATE client_limits
		SET min_amount = $2, max_amount = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, minAmount, maxAmount)
	if err != nil {
		return wrapWriteError("ошибка обновления лимитов клиента "+id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *clientLimitRepo) SetLimitsMany(ctx context.Context, ids []string, minAmount, maxAmount float64) (int64, error) {
	query := `
		UPDATE client_limits
		SET min_amount = $2, max_amount = $3, updated_at = NOW()
		WHERE id = ANY($1::uuid[])`

	tag, err := r.db.Exec(ctx, query, ids, minAmount, maxAmount)
	if err != nil {
		return 0, wrapWriteError("ошибка массового обновления лимитов", err)
	}
	return tag.RowsAffected(), nil
}

func (r *clientLimitRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM client_limits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления клиента %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
