package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
)

type accountRepository struct {
	db *DB
}

var _ account.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) query() []account.Account {
	accs := make([]account.Account, 0, len(repo.db.accounts))
	for _, acc := range repo.db.accounts {
		accs = append(accs, *acc)
	}
	sort.Slice(accs, func(i, j int) bool {
		if accs[i].CreatedAt.Equal(accs[j].CreatedAt) {
			return accs[i].Username < accs[j].Username
		}
		return accs[i].CreatedAt.Before(accs[j].CreatedAt)
	})
	return accs
}

func (repo *accountRepository) CheckUniqueness(_ context.Context, uname, email string, excludedIDs ...string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.checkUniqueness(uname, email, excludedIDs...)
}

func (repo *accountRepository) checkUniqueness(uname, email string, excludedIDs ...string) error {
	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	for _, acc := range repo.db.accounts {
		if excluded[acc.ID] {
			continue
		}
		if acc.Username == uname {
			return account.ErrUsernameExists
		}
		if acc.Email == email {
			return account.ErrEmailExists
		}
	}
	return nil
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.checkUniqueness(acc.Username, acc.Email); err != nil {
		return account.Account{}, err
	}
	acc.ID = newID()
	repo.db.accounts[acc.ID] = &acc
	return acc, nil
}

func (repo *accountRepository) GetAccount(_ context.Context, filter account.GetFilter) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if acc, ok := repo.db.accounts[filter.ID]; ok {
			return *acc, nil
		}
		return account.Account{}, core.NewNotFoundError(account.Entity, filter.ID)
	}
	if filter.UsernameOrEmail != "" {
		for _, acc := range repo.db.accounts {
			if acc.Username == filter.UsernameOrEmail || acc.Email == filter.UsernameOrEmail {
				return *acc, nil
			}
		}
	}
	return account.Account{}, core.NewNotFoundError(account.Entity, filter.UsernameOrEmail)
}

func (repo *accountRepository) QueryAccounts(_ context.Context, filter account.QueryFilter) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	accs := make([]account.Account, 0)
	for _, acc := range repo.query() {
		if filter.Match(acc) {
			accs = append(accs, acc)
		}
	}
	return accs, nil
}

func (repo *accountRepository) UpdateAccount(_ context.Context, id string, fn func(acc *account.Account) error) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.accounts[id]
	if !ok {
		return account.Account{}, core.NewNotFoundError(account.Entity, id)
	}
	acc := *orig
	if err := fn(&acc); err != nil {
		return account.Account{}, err
	}
	acc.ID = id
	repo.db.accounts[id] = &acc
	return acc, nil
}
