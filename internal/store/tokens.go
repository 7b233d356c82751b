// tokens.go - per-pass authentication tokens for the wallet web service.

package store

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// GetAuthToken returns the stored authentication token for a serial.
func (s *Store) GetAuthToken(ctx context.Context, serial string) (string, error) {
	query, args, err := psql.Select("token").
		From("pass_auth_tokens").
		Where(sq.Eq{"serial_number": serial}).
		ToSql()
	if err != nil {
		return "", WrapInternalError(err, "failed to build token query")
	}

	var token string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", NewNotFoundError(fmt.Sprintf("no auth token for pass %s", serial))
		}
		return "", WrapInternalError(err, "failed to load auth token")
	}
	return token, nil
}

// SaveAuthToken stores a token for a serial unless one already exists, and
// returns the token that is now on record. Two racing callers both get the
// winner's token.
func (s *Store) SaveAuthToken(ctx context.Context, serial, token string) (string, error) {
	query, args, err := psql.Insert("pass_auth_tokens").
		Columns("serial_number", "token").
		Values(serial, token).
		Suffix("ON CONFLICT (serial_number) DO UPDATE SET token = pass_auth_tokens.token").
		Suffix("RETURNING token").
		ToSql()
	if err != nil {
		return "", WrapInternalError(err, "failed to build token insert")
	}

	var stored string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&stored); err != nil {
		return "", WrapInternalError(err, "failed to save auth token")
	}
	return stored, nil
}
