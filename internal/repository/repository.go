// Пакет repository — хранение данных симулятора в PostgreSQL на чистом SQL (pgx):
// конфигурация калькулятора, белый список клиентов с лимитами, профили
// пользователей и журнал симуляций.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound — записи с таким ключом нет.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — повтор уникального ключа (DNI клиента, email профиля).
	ErrConflict = errors.New("запись уже существует")
	// ErrConstraint — данные нарушают ограничение схемы (min_amount > max_amount, неизвестная роль).
	ErrConstraint = errors.New("нарушено ограничение схемы")
)

// DBTX — общее у *pgxpool.Pool и pgx.Tx: репозиторий работает одинаково
// в транзакции и вне её.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner выполняет группу запросов атомарно (массовое обновление лимитов).
type TxRunner struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// NewTxRunner — транзакции READ COMMITTED.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// RunInTx вызывает fn в транзакции: ошибка fn откатывает, nil коммитит.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(q DBTX) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// pgErrorKinds — коды SQLSTATE, которые вызывающий код различает.
var pgErrorKinds = map[string]error{
	"23505": ErrConflict,   // unique_violation
	"23514": ErrConstraint, // check_violation
	"23502": ErrConstraint, // not_null_violation
	"22P02": ErrConstraint, // invalid_text_representation (uuid, enum)
}

// wrapWriteError оборачивает ошибку записи с именем операции; известные
// коды PostgreSQL получают sentinel и имя нарушенного ограничения.
func wrapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	kind, ok := pgErrorKinds[pgErr.Code]
	if !ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	if pgErr.ConstraintName != "" {
		return fmt.Errorf("%s: %w (%s)", op, kind, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, kind)
}
