// passes.go - customer pass repository, including the locked balance
// mutation used by the loyalty engine.

package store

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stampwise/passd/internal/loyalty"
)

var passColumns = []string{
	"id", "serial_number", "card_id", "customer_id",
	"current_balance", "lifetime_balance", "active",
	"created_at", "updated_at",
}

// CreatePass inserts a new pass row. A duplicate (card, customer) pair or
// serial number is reported as a conflict.
func (s *Store) CreatePass(ctx context.Context, pass loyalty.Pass) (loyalty.Pass, error) {
	query, args, err := psql.Insert("customer_passes").
		Columns("id", "serial_number", "card_id", "customer_id", "current_balance", "lifetime_balance", "active").
		Values(pass.ID, pass.SerialNumber, pass.CardID, pass.CustomerID, pass.CurrentBalance, pass.LifetimeBalance, pass.Active).
		Suffix("RETURNING " + joinColumns(passColumns)).
		ToSql()
	if err != nil {
		return loyalty.Pass{}, WrapInternalError(err, "failed to build pass insert")
	}

	created, err := scanPass(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return loyalty.Pass{}, NewConflictError(fmt.Sprintf("pass for customer %s on card %s already exists", pass.CustomerID, pass.CardID))
		}
		return loyalty.Pass{}, WrapInternalError(err, "failed to create pass")
	}
	return created, nil
}

// GetPassBySerial loads one pass by its serial number.
func (s *Store) GetPassBySerial(ctx context.Context, serial string) (loyalty.Pass, error) {
	query, args, err := psql.Select(passColumns...).
		From("customer_passes").
		Where(sq.Eq{"serial_number": serial}).
		ToSql()
	if err != nil {
		return loyalty.Pass{}, WrapInternalError(err, "failed to build pass query")
	}

	pass, err := scanPass(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return loyalty.Pass{}, NewNotFoundError(fmt.Sprintf("pass %s not found", serial))
		}
		return loyalty.Pass{}, WrapInternalError(err, "failed to load pass")
	}
	return pass, nil
}

// GetPassByCardAndCustomer loads the pass a customer holds on a card, if any.
// Used to keep issuance idempotent per (customer, card).
func (s *Store) GetPassByCardAndCustomer(ctx context.Context, cardID, customerID uuid.UUID) (loyalty.Pass, error) {
	query, args, err := psql.Select(passColumns...).
		From("customer_passes").
		Where(sq.Eq{"card_id": cardID, "customer_id": customerID}).
		ToSql()
	if err != nil {
		return loyalty.Pass{}, WrapInternalError(err, "failed to build pass query")
	}

	pass, err := scanPass(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return loyalty.Pass{}, NewNotFoundError(fmt.Sprintf("customer %s has no pass on card %s", customerID, cardID))
		}
		return loyalty.Pass{}, WrapInternalError(err, "failed to load pass")
	}
	return pass, nil
}

// MutateBalance implements the engine's store contract. The pass row is
// locked for the duration of the transaction, so concurrent scans on the
// same serial serialize and each sees the previous scan's committed balance.
// The balance update and the ledger row commit atomically.
func (s *Store) MutateBalance(ctx context.Context, serial string, apply func(pass loyalty.Pass, design loyalty.Design) (loyalty.BalanceUpdate, error)) (loyalty.Pass, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return loyalty.Pass{}, loyalty.WrapInternalError(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	lockQuery, lockArgs, err := psql.Select(passColumns...).
		From("customer_passes").
		Where(sq.Eq{"serial_number": serial}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return loyalty.Pass{}, loyalty.WrapInternalError(err, "failed to build lock query")
	}

	pass, err := scanPass(tx.QueryRow(ctx, lockQuery, lockArgs...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return loyalty.Pass{}, loyalty.NewNotFoundError(fmt.Sprintf("pass %s not found", serial))
		}
		return loyalty.Pass{}, loyalty.WrapInternalError(err, "failed to lock pass")
	}

	designQuery, designArgs, err := psql.Select(designColumns...).
		From("card_designs").
		Where(sq.Eq{"id": pass.CardID}).
		ToSql()
	if err != nil {
		return loyalty.Pass{}, loyalty.WrapInternalError(err, "failed to build design query")
	}

	design, err := scanDesign(tx.QueryRow(ctx, designQuery, designArgs...))
	if err != nil {
		return loyalty.Pass{}, loyalty.WrapInternalError(err, "failed to load card design")
	}

	update, err := apply(pass, design)
	if err != nil {
		return loyalty.Pass{}, err
	}

	updateQuery, updateArgs, err := psql.Update("customer_passes").
		Set("current_balance", update.NewBalance).
		Set("lifetime_balance", pass.LifetimeBalance+update.Delta).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": pass.ID}).
		Suffix("RETURNING " + joinColumns(passColumns)).
		ToSql()
	if err != nil {
		return loyalty.Pass{}, loyalty.WrapInternalError(err, "failed to build balance update")
	}

	updated, err := scanPass(tx.QueryRow(ctx, updateQuery, updateArgs...))
	if err != nil {
		return loyalty.Pass{}, loyalty.WrapInternalError(err, "failed to update balance")
	}

	ledgerQuery, ledgerArgs, err := psql.Insert("transactions").
		Columns("id", "pass_id", "amount", "tx_type", "description").
		Values(uuid.New(), pass.ID, update.Delta, string(update.Type), update.Description).
		ToSql()
	if err != nil {
		return loyalty.Pass{}, loyalty.WrapInternalError(err, "failed to build ledger insert")
	}

	if _, err := tx.Exec(ctx, ledgerQuery, ledgerArgs...); err != nil {
		return loyalty.Pass{}, loyalty.WrapInternalError(err, "failed to append ledger entry")
	}

	if err := tx.Commit(ctx); err != nil {
		return loyalty.Pass{}, loyalty.WrapInternalError(err, "failed to commit balance update")
	}

	return updated, nil
}

// ListTransactions returns the ledger for one pass, newest first.
func (s *Store) ListTransactions(ctx context.Context, passID uuid.UUID, limit uint64) ([]loyalty.Transaction, error) {
	builder := psql.Select("id", "pass_id", "amount", "tx_type", "description", "created_at").
		From("transactions").
		Where(sq.Eq{"pass_id": passID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		builder = builder.Limit(limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, WrapInternalError(err, "failed to build transaction query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, WrapInternalError(err, "failed to list transactions")
	}
	defer rows.Close()

	var transactions []loyalty.Transaction
	for rows.Next() {
		var t loyalty.Transaction
		var txType string
		if err := rows.Scan(&t.ID, &t.PassID, &t.Amount, &txType, &t.Description, &t.CreatedAt); err != nil {
			return nil, WrapInternalError(err, "failed to scan transaction")
		}
		t.Type = loyalty.TransactionType(txType)
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapInternalError(err, "failed to read transactions")
	}
	return transactions, nil
}

func scanPass(row pgx.Row) (loyalty.Pass, error) {
	var pass loyalty.Pass
	err := row.Scan(
		&pass.ID, &pass.SerialNumber, &pass.CardID, &pass.CustomerID,
		&pass.CurrentBalance, &pass.LifetimeBalance, &pass.Active,
		&pass.CreatedAt, &pass.UpdatedAt,
	)
	return pass, err
}
