// Package sqlxrepos stores the engine's records in PostgreSQL through sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core"
)

// postgres error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func newID() string {
	return uuid.New().String()
}

// validID reports whether id can be compared to a uuid column.
// Anything else can simply not exist.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

// idArray binds the valid uuids of ids as a text array. It is '{}' rather than NULL when none is left,
// so that "NOT (id::text = ANY(...))" holds for every row.
func idArray(ids []string) interface{} {
	return pq.Array(validIDs(ids))
}

// trapNoRowsErr maps the "no rows" error to a *core.NotFoundError.
func trapNoRowsErr(err error, entity, id, msg string) error {
	if err == sql.ErrNoRows {
		return core.NewNotFoundError(entity, id)
	}
	return errors.Wrap(err, msg)
}

func pqError(err error, code string) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == code {
		return pqErr, true
	}
	return nil, false
}

// checkAffected returns a *core.NotFoundError if res touched no row.
func checkAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return core.NewNotFoundError(entity, id)
	}
	return nil
}

// withTx runs fn in a transaction, committed only if fn succeeds.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// where joins "?" placeholder conditions with AND.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// query appends the WHERE clause and the suffix to base, rebound to $ placeholders.
func (w *where) query(base, suffix string) string {
	q := base
	if len(w.conds) > 0 {
		q += " WHERE " + strings.Join(w.conds, " AND ")
	}
	return sqlx.Rebind(sqlx.DOLLAR, q+" "+suffix)
}
