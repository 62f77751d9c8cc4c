package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"recordbridge/internal/ports"
)

// gormFromContext prefers an in-flight transaction over the base handle, so
// repository calls inside a unit of work share one transaction.
func gormFromContext(ctx context.Context, base *gorm.DB) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return base.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}
