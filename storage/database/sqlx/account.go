package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
	"github.com/trezcool/minimoodle/core/account"
)

type accountRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     string      `db:"username"`
	Email        string      `db:"email"`
	Department   string      `db:"department"`
	Role         null.String `db:"role"`
	IsApproved   bool        `db:"is_approved"`
	EverApproved bool        `db:"ever_approved"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func toAccountRow(acc account.Account) accountRow {
	role := acc.Role()
	return accountRow{
		ID:           acc.ID,
		Name:         acc.Name,
		Username:     acc.Username,
		Email:        acc.Email,
		Department:   acc.Department,
		Role:         null.NewString(string(role), role != access.RoleNone),
		IsApproved:   acc.IsApproved(),
		EverApproved: acc.EverApproved(),
		PasswordHash: acc.PasswordHash,
		CreatedAt:    acc.CreatedAt.UTC(),
		UpdatedAt:    acc.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(acc.LastLogin.UTC(), !acc.LastLogin.IsZero()),
	}
}

func (row accountRow) account() account.Account {
	acc := account.Account{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username,
		Email:        row.Email,
		Department:   row.Department,
		Profile:      account.ProfileFrom(access.Role(row.Role.String), row.IsApproved, row.EverApproved),
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		acc.LastLogin = row.LastLogin.Time.UTC()
	}
	return acc
}

type accountRepository struct {
	db *sqlx.DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *sqlx.DB) account.Repository {
	return &accountRepository{db: db}
}

// trapUniqueErr maps the unique constraints of the account table to their domain errors.
func trapUniqueErr(err error, msg string) error {
	if pqErr, ok := pqError(err, uniqueViolation); ok {
		switch pqErr.Constraint {
		case "account_username_key":
			return account.ErrUsernameExists
		case "account_email_key":
			return account.ErrEmailExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo *accountRepository) CheckUniqueness(ctx context.Context, uname, email string, excludedIDs ...string) error {
	var taken []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	err := repo.db.SelectContext(ctx, &taken,
		`SELECT username, email FROM account WHERE (username = $1 OR email = $2) AND NOT (id::text = ANY($3))`,
		uname, email, idArray(excludedIDs))
	if err != nil {
		return errors.Wrap(err, "checking account uniqueness")
	}
	for _, t := range taken {
		if t.Username == uname {
			return account.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return account.ErrEmailExists
	}
	return nil
}

const insertAccount = `
INSERT INTO account (id, name, username, email, department, role, is_approved, ever_approved, password_hash, created_at, updated_at, last_login)
VALUES (:id, :name, :username, :email, :department, :role, :is_approved, :ever_approved, :password_hash, :created_at, :updated_at, :last_login)`

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	if err := repo.CheckUniqueness(ctx, acc.Username, acc.Email); err != nil {
		return account.Account{}, err
	}
	acc.ID = newID()
	row := toAccountRow(acc)
	if _, err := repo.db.NamedExecContext(ctx, insertAccount, row); err != nil {
		return account.Account{}, trapUniqueErr(err, "inserting account")
	}
	return row.account(), nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	var row accountRow
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return account.Account{}, core.NewNotFoundError(account.Entity, filter.ID)
		}
		err := repo.db.GetContext(ctx, &row, `SELECT * FROM account WHERE id = $1`, filter.ID)
		if err != nil {
			return account.Account{}, trapNoRowsErr(err, account.Entity, filter.ID, "finding account by ID")
		}
	case filter.UsernameOrEmail != "":
		err := repo.db.GetContext(ctx, &row,
			`SELECT * FROM account WHERE username = $1 OR email = $1 LIMIT 1`, filter.UsernameOrEmail)
		if err != nil {
			return account.Account{}, trapNoRowsErr(err, account.Entity, filter.UsernameOrEmail, "finding account")
		}
	default:
		return account.Account{}, core.NewNotFoundError(account.Entity, "")
	}
	return row.account(), nil
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter account.QueryFilter) ([]account.Account, error) {
	var w where
	if filter.Role != access.RoleNone {
		w.add("role = ?", string(filter.Role))
	}
	if filter.Approved != nil {
		w.add("is_approved = ?", *filter.Approved)
	}

	var rows []accountRow
	if err := repo.db.SelectContext(ctx, &rows, w.query("SELECT * FROM account", "ORDER BY created_at, username"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying accounts")
	}
	accs := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accs = append(accs, row.account())
	}
	return accs, nil
}

const updateAccount = `
UPDATE account SET
	name = :name, username = :username, email = :email, department = :department,
	role = :role, is_approved = :is_approved, ever_approved = :ever_approved,
	password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
WHERE id = :id`

func (repo *accountRepository) UpdateAccount(ctx context.Context, id string, fn func(acc *account.Account) error) (account.Account, error) {
	if !validID(id) {
		return account.Account{}, core.NewNotFoundError(account.Entity, id)
	}

	var acc account.Account
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var row accountRow
		if err := tx.GetContext(ctx, &row, `SELECT * FROM account WHERE id = $1 FOR UPDATE`, id); err != nil {
			return trapNoRowsErr(err, account.Entity, id, "locking account")
		}
		acc = row.account()
		if err := fn(&acc); err != nil {
			return err
		}
		acc.ID = id
		if _, err := tx.NamedExecContext(ctx, updateAccount, toAccountRow(acc)); err != nil {
			return trapUniqueErr(err, "updating account")
		}
		return nil
	})
	if err != nil {
		return account.Account{}, err
	}
	return acc, nil
}
