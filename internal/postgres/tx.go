package postgres

import (
	"context"
	"errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/inventory"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/katoapp/agrimarket/internal/production"
	"github.com/katoapp/agrimarket/internal/store"
)

const (
	codeUniqueViolation = "23505"
	codeInvalidText     = "22P02"
)

// Runner implements store.Runner on a pool. Row locks taken with
// SELECT ... FOR UPDATE inside fn are held until commit or rollback.
type Runner struct {
	DB *pgxpool.Pool
}

var _ store.Runner = (*Runner)(nil)

func (r *Runner) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.Storage("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txRepos{tx: tx}); err != nil {
		return classify("transaction", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Storage("commit transaction", err)
	}
	return nil
}

type txRepos struct{ tx pgx.Tx }

func (t *txRepos) Items() inventory.Store        { return &ItemRepo{tx: t.tx} }
func (t *txRepos) Orders() orders.Store          { return &OrderRepo{tx: t.tx} }
func (t *txRepos) Productions() production.Store { return &ProductionRepo{tx: t.tx} }

// classify keeps domain errors as they are and turns everything else into
// a storage error. entity names the row for a missing-row error.
func classify(entity string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeInvalidText {
		// malformed uuid in a lookup
		return apperr.NotFound(entity)
	}
	return apperr.Storage(entity, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraint
}
