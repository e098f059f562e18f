package core

import (
	"errors"

	"github.com/gbsr/chappy/internal/common"
	"github.com/gbsr/chappy/internal/store"
)

// translate maps store errors onto the shared error taxonomy.
func translate(entity string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return &common.NotFoundError{Entity: entity}
	}
	var dup *store.DuplicateError
	if errors.As(err, &dup) {
		return &common.ConflictError{Entity: entity, Field: dup.Field}
	}
	return err
}
