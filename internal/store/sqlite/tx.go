package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cristinecula/knowledge-mcp/internal/idgen"
	"github.com/cristinecula/knowledge-mcp/internal/store"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

type txKeyType struct{}

var txKey = txKeyType{}

func txFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// RunInTransaction executes fn inside a single SQLite transaction, using
// BEGIN IMMEDIATE to acquire the write lock up front and avoid the
// "database is locked" deadlock that two concurrent BEGIN DEFERRED writers
// can hit -- grounded on untoldecay-BeadsLog's storage.go Transaction
// doc comment, which specifies the identical discipline.
//
// If fn returns nil the transaction commits; if fn returns an error or
// panics, it rolls back (re-raising the panic after rollback).
func (d *DB) RunInTransaction(ctx context.Context, fn func(tx store.Transaction) error) error {
	return d.withWriteLock(func() (err error) {
		// The _txlock=immediate DSN parameter (set in Open) makes this
		// BeginTx issue BEGIN IMMEDIATE under the hood.
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() {
			if p := recover(); p != nil {
				tx.Rollback()
				panic(p)
			}
		}()

		txCtx := context.WithValue(ctx, txKey, tx)
		if err := fn(&transaction{ctx: txCtx, db: d}); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// transaction implements store.Transaction by delegating to the same
// entry/link helpers DB uses, routed through the tx-carrying context so
// reads within the callback observe the transaction's own writes.
type transaction struct {
	ctx context.Context
	db  *DB
}

func (t *transaction) Insert(ctx context.Context, p store.InsertParams) (*types.Entry, error) {
	return t.db.insertViaTx(t.ctx, p)
}

func (t *transaction) Update(ctx context.Context, id string, fields map[string]any) (*types.Entry, error) {
	return t.db.Update(t.ctx, id, fields)
}

func (t *transaction) Deprecate(ctx context.Context, id string, reason string) (*types.Entry, error) {
	return t.db.Deprecate(t.ctx, id, reason)
}

func (t *transaction) Get(ctx context.Context, id string) (*types.Entry, error) {
	return t.db.Get(t.ctx, id)
}

func (t *transaction) InsertLink(ctx context.Context, l *types.Link) (*types.Link, error) {
	return t.db.InsertLink(t.ctx, l)
}

func (t *transaction) DeleteLink(ctx context.Context, id string) error {
	return t.db.DeleteLink(t.ctx, id)
}

// insertViaTx mirrors DB.Insert but skips the process-wide write-lock
// acquisition, since RunInTransaction already holds it for the whole
// callback.
func (d *DB) insertViaTx(ctx context.Context, p store.InsertParams) (*types.Entry, error) {
	if err := validateInsert(p); err != nil {
		return nil, err
	}
	e := &types.Entry{
		ID:           idgen.NewEntryID(),
		Type:         p.Type,
		Title:        p.Title,
		Content:      p.Content,
		Tags:         normalizeTags(p.Tags),
		Declaration:  p.Declaration,
		Scope:        p.Scope,
		Project:      p.Project,
		ParentPageID: p.ParentPageID,
		Source:       p.Source,
		Status:       types.StatusActive,
		Version:      1,
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt, e.ContentUpdatedAt = now, now, now
	if err := d.insertEntry(ctx, d.txFromCtx(ctx), e); err != nil {
		return nil, err
	}
	return e, nil
}
