package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"feedsync/internal/domain"
)

const uniqueViolation = "23505"

// translate maps driver errors onto domain sentinels.
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domain.ErrConflict
	}
	return err
}
