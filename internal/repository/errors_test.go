package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestWrapWriteError(t *testing.T) {
	plain := errors.New("conn closed")
	tests := []struct {
		name     string
		err      error
		want     error
		contains string
	}{
		{"дубль DNI", &pgconn.PgError{Code: "23505", ConstraintName: "client_limits_dni_key"}, ErrConflict, "client_limits_dni_key"},
		{"min больше max", &pgconn.PgError{Code: "23514", ConstraintName: "client_limits_amounts_check"}, ErrConstraint, "amounts_check"},
		{"NULL в обязательном поле", &pgconn.PgError{Code: "23502"}, ErrConstraint, "сохранение"},
		{"обёрнутая ошибка pgx", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"}), ErrConflict, "сохранение"},
		{"прочая ошибка PostgreSQL", &pgconn.PgError{Code: "40001"}, nil, "40001"},
		{"не PostgreSQL", plain, plain, "conn closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapWriteError("сохранение", tt.err)
			if tt.want != nil && !errors.Is(got, tt.want) {
				t.Errorf("ожидается %v, получено: %v", tt.want, got)
			}
			if tt.want == nil && (errors.Is(got, ErrConflict) || errors.Is(got, ErrConstraint)) {
				t.Errorf("неожиданный sentinel: %v", got)
			}
			if !strings.Contains(got.Error(), tt.contains) {
				t.Errorf("%q не содержит %q", got, tt.contains)
			}
		})
	}
}
