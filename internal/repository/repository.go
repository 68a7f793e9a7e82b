// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors for repository operations.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrCharacterNotFound = errors.New("character not found")
	ErrQuestNotFound     = errors.New("quest not found")
	ErrDuplicateName     = errors.New("name already in use")
	ErrAlreadyJoined     = errors.New("already part of this quest")
)

// DBTX is the subset of pgx operations the repositories use. It is
// satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// method can run standalone or inside a caller-owned transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InTx begins a transaction on the pool, runs fn, and commits. Any
// error from fn rolls the transaction back, so a failure partway
// through a multi-row mutation leaves no partial state behind.
func InTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
