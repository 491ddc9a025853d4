package postgres

import (
	"errors"
	"fmt"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

// translate maps driver errors onto the domain taxonomy. resource names
// the entity in the resulting message.
func translate(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.AppError{Err: domain.ErrNotFound, Message: resource + " not found"}
	}
	if isUniqueViolation(err) {
		return domain.Conflict(resource, "already exists")
	}
	return fmt.Errorf("%s: %w", resource, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
