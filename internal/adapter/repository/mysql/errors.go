package mysql

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"loan-proposal-service/internal/domain/errs"
)

// mapErr turns gorm's not-found into the domain sentinel.
func mapErr(err error, what, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, errs.ErrNotFound)
	}
	return err
}

// isDuplicate reports a unique-index violation. Dialects translate it to
// gorm.ErrDuplicatedKey when TranslateError is on; the message check covers
// connections opened without it.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}
