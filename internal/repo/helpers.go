package repo

import (
	"database/sql"
	"errors"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullDeliveryMethod(m *domain.DeliveryMethod) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*m), Valid: true}
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return err != nil && pgErrorCode(err) == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return err != nil && pgErrorCode(err) == pgForeignKeyViolation
}
