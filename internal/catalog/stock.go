package catalog

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// StockLine is one (product, size, qty) mutation.
type StockLine struct {
	ProductID uuid.UUID
	Size      string
	Qty       int
}

// CommitLines decrements every line in order. On the first failure it returns
// the lines already applied so the caller can compensate when no transaction
// wraps the calls.
func CommitLines(ctx context.Context, repo Repository, lines []StockLine) ([]StockLine, error) {
	applied := make([]StockLine, 0, len(lines))
	for _, line := range lines {
		if err := repo.DecrementStock(ctx, line.ProductID, line.Size, line.Qty); err != nil {
			return applied, err
		}
		applied = append(applied, line)
	}
	return applied, nil
}

// RestoreLines increments every line, newest first, and keeps going on failure.
func RestoreLines(ctx context.Context, repo Repository, lines []StockLine) error {
	var errs error
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		errs = multierr.Append(errs, repo.IncrementStock(ctx, line.ProductID, line.Size, line.Qty))
	}
	return errs
}
