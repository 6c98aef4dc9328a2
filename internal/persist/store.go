package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"owlmoney/internal/account"
	"owlmoney/internal/card"
	"owlmoney/internal/core"
	"owlmoney/internal/profile"
	ports "owlmoney/internal/sheets"
)

// Warning is a storage failure that did not undo the in-memory change.
type Warning struct {
	Table string
	Err   error
}

func (w Warning) Error() string { return fmt.Sprintf("saving %s: %v", w.Table, w.Err) }
func (w Warning) Unwrap() error { return w.Err }

// Store saves and loads profiles through a table backend.
type Store struct {
	tables ports.TableStore
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(tables ports.TableStore, opts ...Option) *Store {
	s := &Store{tables: tables, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// write stores one table, turning a failure into a logged warning.
func (s *Store) write(ctx context.Context, name string, t ports.Table) []Warning {
	if err := s.tables.WriteTable(ctx, name, t); err != nil {
		s.logger.WarnContext(ctx, "Table not saved", "table", name, "error", err)
		return []Warning{{Table: name, Err: err}}
	}
	return nil
}

// SaveProfile writes every table of the profile.
func (s *Store) SaveProfile(ctx context.Context, p *profile.Profile) []Warning {
	warnings := s.SaveAccounts(ctx, p)
	warnings = append(warnings, s.SaveCards(ctx, p)...)
	for _, a := range p.Accounts() {
		warnings = append(warnings, s.SaveAccount(ctx, a)...)
	}
	for _, c := range p.Cards() {
		warnings = append(warnings, s.SaveCard(ctx, c)...)
	}
	return warnings
}

// SaveAccounts writes the accounts table.
func (s *Store) SaveAccounts(ctx context.Context, p *profile.Profile) []Warning {
	return s.write(ctx, AccountsTable, EncodeAccounts(p.Accounts()))
}

// SaveCards writes the cards table.
func (s *Store) SaveCards(ctx context.Context, p *profile.Profile) []Warning {
	return s.write(ctx, CardsTable, EncodeCards(p.Cards()))
}

// SaveAccount writes the transactions of an account and, when it has them,
// its recurring expenditures.
func (s *Store) SaveAccount(ctx context.Context, a *account.Account) []Warning {
	warnings := s.write(ctx, TransactionsTable(a.Name()), EncodeTransactions(a.Transactions()))
	if a.HasRecurring() {
		warnings = append(warnings, s.write(ctx, RecurringTable(a.Name()), EncodeRecurring(a.RecurringTemplates()))...)
	}
	return warnings
}

// SaveCard writes the paid and unpaid ledgers of a card.
func (s *Store) SaveCard(ctx context.Context, c *card.Card) []Warning {
	warnings := s.write(ctx, PaidTable(c.Name()), EncodeTransactions(c.PaidExpenditures()))
	return append(warnings, s.write(ctx, UnpaidTable(c.Name()), EncodeTransactions(c.UnpaidExpenditures()))...)
}

// Forget removes the tables of an account or card that no longer exists
// under name. Backends that cannot delete keep the stale tables.
func (s *Store) Forget(ctx context.Context, name string) []Warning {
	d, ok := s.tables.(ports.TableDeleter)
	if !ok {
		return nil
	}
	var warnings []Warning
	for _, table := range []string{TransactionsTable(name), RecurringTable(name), PaidTable(name), UnpaidTable(name)} {
		if err := d.DeleteTable(ctx, table); err != nil {
			s.logger.WarnContext(ctx, "Table not removed", "table", table, "error", err)
			warnings = append(warnings, Warning{Table: table, Err: err})
		}
	}
	return warnings
}

// read returns the table, or ok=false when the backend does not have it.
func (s *Store) read(ctx context.Context, name string) (ports.Table, bool, error) {
	t, err := s.tables.ReadTable(ctx, name)
	if errors.Is(err, ports.ErrTableNotFound) {
		return ports.Table{}, false, nil
	}
	if err != nil {
		return ports.Table{}, false, fmt.Errorf("read %s: %w", name, err)
	}
	return t, true, nil
}

// Load rebuilds a profile from the backend. A backend without an accounts
// table yields an empty profile. Records are restored through the import
// paths, so balances are taken from the accounts table as stored.
func (s *Store) Load(ctx context.Context, name string, opts ...profile.Option) (*profile.Profile, error) {
	p := profile.New(name, opts...)

	t, ok, err := s.read(ctx, AccountsTable)
	if err != nil {
		return nil, err
	}
	if ok {
		rows, err := DecodeAccounts(t)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if err := s.loadAccount(ctx, p, r); err != nil {
				return nil, err
			}
		}
	}

	t, ok, err = s.read(ctx, CardsTable)
	if err != nil {
		return nil, err
	}
	if ok {
		rows, err := DecodeCards(t)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if err := s.loadCard(ctx, p, r); err != nil {
				return nil, err
			}
		}
	}

	s.logger.DebugContext(ctx, "Profile loaded", "accounts", len(p.Accounts()), "cards", len(p.Cards()))
	return p, nil
}

func (s *Store) loadAccount(ctx context.Context, p *profile.Profile, r AccountRow) error {
	var (
		a   *account.Account
		err error
	)
	if r.Kind == account.Saving {
		a, err = p.AddSaving(r.Name, r.Balance, r.Income, r.NextIncome)
	} else {
		a, err = p.AddCurrent(r.Name, r.Balance)
	}
	if err != nil {
		return fmt.Errorf("load account %q: %w", r.Name, err)
	}

	name := TransactionsTable(r.Name)
	t, ok, err := s.read(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		txs, err := DecodeTransactions(name, t)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			a.ImportTransaction(tx)
		}
	}

	if !a.HasRecurring() {
		return nil
	}
	name = RecurringTable(r.Name)
	if t, ok, err = s.read(ctx, name); err != nil || !ok {
		return err
	}
	templates, err := DecodeRecurring(name, t)
	if err != nil {
		return err
	}
	for _, tpl := range templates {
		if err := a.ImportRecurring(tpl); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadCard(ctx context.Context, p *profile.Profile, r CardRow) error {
	c, err := p.AddCard(r.Name, r.Limit, r.Rebate, r.ID)
	if err != nil {
		return fmt.Errorf("load card %q: %w", r.Name, err)
	}
	sides := []struct {
		table   string
		restore func(core.Transaction)
	}{
		{PaidTable(r.Name), c.ImportPaid},
		{UnpaidTable(r.Name), c.ImportUnpaid},
	}
	for _, side := range sides {
		t, ok, err := s.read(ctx, side.table)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		txs, err := DecodeTransactions(side.table, t)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			side.restore(tx)
		}
	}
	return nil
}
