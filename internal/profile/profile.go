// Package profile keeps the named accounts and cards of one user and runs
// the card bill protocol between a card and a bank account.
package profile

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"owlmoney/internal/account"
	"owlmoney/internal/card"
	"owlmoney/internal/core"
	"owlmoney/internal/recurring"
)

// Profile is the name registry. Account and card names share one namespace
// and are compared case-insensitively.
type Profile struct {
	name     string
	accounts []*account.Account
	cards    []*card.Card

	clock        core.Clock
	newCardID    card.IDGenerator
	catchUpLimit int
	logger       *slog.Logger
}

// Option configures a Profile.
type Option func(*Profile)

func WithClock(c core.Clock) Option {
	return func(p *Profile) {
		if c != nil {
			p.clock = c
		}
	}
}

func WithCardIDGenerator(gen card.IDGenerator) Option {
	return func(p *Profile) {
		if gen != nil {
			p.newCardID = gen
		}
	}
}

func WithCatchUpLimit(n int) Option {
	return func(p *Profile) {
		if n > 0 {
			p.catchUpLimit = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Profile) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns an empty profile.
func New(name string, opts ...Option) *Profile {
	p := &Profile{
		name:         strings.TrimSpace(name),
		clock:        core.SystemClock{},
		newCardID:    uuid.New,
		catchUpLimit: recurring.DefaultCatchUpLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Profile) Name() string      { return p.name }
func (p *Profile) Clock() core.Clock { return p.clock }

// Accounts returns the accounts in creation order.
func (p *Profile) Accounts() []*account.Account { return slices.Clone(p.accounts) }

// Cards returns the cards in creation order.
func (p *Profile) Cards() []*card.Card { return slices.Clone(p.cards) }

func (p *Profile) nameTaken(name string) bool {
	for _, a := range p.accounts {
		if strings.EqualFold(a.Name(), name) {
			return true
		}
	}
	for _, c := range p.cards {
		if strings.EqualFold(c.Name(), name) {
			return true
		}
	}
	return false
}

func (p *Profile) checkFree(name string) error {
	if p.nameTaken(strings.TrimSpace(name)) {
		return fmt.Errorf("%w: %q is already in use", core.ErrDuplicateName, strings.TrimSpace(name))
	}
	return nil
}

// accountOptions returns the capabilities of kind. Saving accounts earn
// income and carry recurring expenditures; current accounts carry neither.
func (p *Profile) accountOptions(kind account.Kind, income core.Money, nextIncome core.Date) []account.Option {
	opts := []account.Option{
		account.WithClock(p.clock),
		account.WithLogger(p.logger),
		account.WithCatchUpLimit(p.catchUpLimit),
	}
	if kind == account.Saving {
		opts = append(opts, account.WithIncome(income, nextIncome), account.WithRecurring())
	}
	return opts
}

// AddSaving creates a saving account whose first income is paid on
// nextIncome.
func (p *Profile) AddSaving(name string, balance, income core.Money, nextIncome core.Date) (*account.Account, error) {
	return p.addAccount(name, account.Saving, balance, income, nextIncome)
}

// AddCurrent creates a current account.
func (p *Profile) AddCurrent(name string, balance core.Money) (*account.Account, error) {
	return p.addAccount(name, account.Current, balance, core.Money{}, core.Date{})
}

func (p *Profile) addAccount(name string, kind account.Kind, balance, income core.Money, nextIncome core.Date) (*account.Account, error) {
	if err := p.checkFree(name); err != nil {
		return nil, err
	}
	a, err := account.New(name, kind, balance, p.accountOptions(kind, income, nextIncome)...)
	if err != nil {
		return nil, err
	}
	p.accounts = append(p.accounts, a)
	p.logger.Info("Account added", "account", a.Name(), "kind", kind.String())
	return a, nil
}

// AddCard creates a card. A nil id asks the profile's generator for one.
func (p *Profile) AddCard(name string, limit core.Money, rebate decimal.Decimal, id uuid.UUID) (*card.Card, error) {
	if err := p.checkFree(name); err != nil {
		return nil, err
	}
	c, err := card.New(name, limit, rebate,
		card.WithID(id),
		card.WithIDGenerator(p.newCardID),
		card.WithClock(p.clock),
		card.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	p.cards = append(p.cards, c)
	p.logger.Info("Card added", "card", c.Name(), "card_id", c.ID().String())
	return c, nil
}

func (p *Profile) accountIndex(name string) (int, error) {
	name = strings.TrimSpace(name)
	i := slices.IndexFunc(p.accounts, func(a *account.Account) bool { return strings.EqualFold(a.Name(), name) })
	if i < 0 {
		return 0, fmt.Errorf("%w: account %q does not exist", core.ErrNotFound, name)
	}
	return i, nil
}

func (p *Profile) cardIndex(name string) (int, error) {
	name = strings.TrimSpace(name)
	i := slices.IndexFunc(p.cards, func(c *card.Card) bool { return strings.EqualFold(c.Name(), name) })
	if i < 0 {
		return 0, fmt.Errorf("%w: card %q does not exist", core.ErrNotFound, name)
	}
	return i, nil
}

// Account resolves an account by name.
func (p *Profile) Account(name string) (*account.Account, error) {
	i, err := p.accountIndex(name)
	if err != nil {
		return nil, err
	}
	return p.accounts[i], nil
}

// Card resolves a card by name.
func (p *Profile) Card(name string) (*card.Card, error) {
	i, err := p.cardIndex(name)
	if err != nil {
		return nil, err
	}
	return p.cards[i], nil
}

// RemoveAccount deletes an account and its ledger.
func (p *Profile) RemoveAccount(name string) error {
	i, err := p.accountIndex(name)
	if err != nil {
		return err
	}
	p.accounts = slices.Delete(p.accounts, i, i+1)
	return nil
}

// RemoveCard deletes a card and both its ledgers.
func (p *Profile) RemoveCard(name string) error {
	i, err := p.cardIndex(name)
	if err != nil {
		return err
	}
	p.cards = slices.Delete(p.cards, i, i+1)
	return nil
}

// Rename renames the account or card called oldName.
func (p *Profile) Rename(oldName, newName string) error {
	if !strings.EqualFold(strings.TrimSpace(oldName), strings.TrimSpace(newName)) {
		if err := p.checkFree(newName); err != nil {
			return err
		}
	}
	if a, err := p.Account(oldName); err == nil {
		return a.Rename(newName)
	}
	c, err := p.Card(oldName)
	if err != nil {
		return fmt.Errorf("%w: %q is neither an account nor a card", core.ErrNotFound, strings.TrimSpace(oldName))
	}
	return c.Rename(newName)
}
