// Package card implements a credit card with a monthly spending limit and
// separate ledgers for unpaid and paid expenditures.
package card

import (
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"owlmoney/internal/core"
)

// MaxRebate is the largest rebate percentage a card may carry.
var MaxRebate = decimal.NewFromInt(100)

// IDGenerator returns a fresh card id.
type IDGenerator func() uuid.UUID

// Card holds expenditures in an unpaid ledger until their month's bill is
// settled, then in a paid ledger.
type Card struct {
	name   string
	limit  core.Money
	rebate decimal.Decimal
	id     uuid.UUID

	unpaid *core.Ledger
	paid   *core.Ledger

	newID  IDGenerator
	clock  core.Clock
	logger *slog.Logger
}

// Option configures a Card.
type Option func(*Card)

// WithID restores a card with a known id.
func WithID(id uuid.UUID) Option {
	return func(c *Card) { c.id = id }
}

// WithIDGenerator sets the generator used when no id is given.
func WithIDGenerator(gen IDGenerator) Option {
	return func(c *Card) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithClock sets the source of "now" for RemainingLimitNow.
func WithClock(clock core.Clock) Option {
	return func(c *Card) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Card) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a card. rebate is a percentage of the monthly bill.
func New(name string, limit core.Money, rebate decimal.Decimal, opts ...Option) (*Card, error) {
	c := &Card{
		name:   strings.TrimSpace(name),
		unpaid: core.NewLedger(),
		paid:   core.NewLedger(),
		newID:  uuid.New,
		clock:  core.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.name == "" {
		return nil, fmt.Errorf("%w: card name cannot be empty", core.ErrValidation)
	}
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	if err := validateRebate(rebate); err != nil {
		return nil, err
	}
	c.limit, c.rebate = limit, rebate
	if c.id == uuid.Nil {
		c.id = c.newID()
	}
	c.logger = c.logger.With("card", c.name)
	return c, nil
}

func validateLimit(limit core.Money) error {
	if limit.Cents <= 0 || limit.GreaterThan(core.MaxAmount) {
		return fmt.Errorf("%w: card limit must be between 0.01 and %s", core.ErrValidation, core.MaxAmount)
	}
	return nil
}

func validateRebate(rebate decimal.Decimal) error {
	if rebate.IsNegative() || rebate.GreaterThan(MaxRebate) {
		return fmt.Errorf("%w: rebate must be between 0 and %s percent", core.ErrValidation, MaxRebate)
	}
	return nil
}

func (c *Card) Name() string            { return c.name }
func (c *Card) ID() uuid.UUID           { return c.id }
func (c *Card) Limit() core.Money       { return c.limit }
func (c *Card) Rebate() decimal.Decimal { return c.rebate }

// Rename changes the card name. Uniqueness is the registry's concern.
func (c *Card) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: card name cannot be empty", core.ErrValidation)
	}
	c.name = name
	return nil
}

// SetLimit changes the monthly limit for future postings.
func (c *Card) SetLimit(limit core.Money) error {
	if err := validateLimit(limit); err != nil {
		return err
	}
	c.limit = limit
	return nil
}

// SetRebate changes the rebate percentage.
func (c *Card) SetRebate(rebate decimal.Decimal) error {
	if err := validateRebate(rebate); err != nil {
		return err
	}
	c.rebate = rebate
	return nil
}

// RebateFor returns the rebate earned on amount, truncated to cents.
func (c *Card) RebateFor(amount core.Money) core.Money {
	return core.FromDecimal(amount.Decimal().Mul(c.rebate).Div(decimal.NewFromInt(100)))
}

// RemainingLimit returns what may still be spent in ym.
func (c *Card) RemainingLimit(ym core.YearMonth) core.Money {
	return c.limit.Sub(c.unpaid.SumInMonth(ym, core.Expenditures))
}

// RemainingLimitNow returns what may still be spent in the current month.
func (c *Card) RemainingLimitNow() core.Money {
	return c.RemainingLimit(c.clock.Today().YearMonth())
}

// PostExpenditure adds tx to the unpaid ledger if it fits in the remaining
// limit of its month.
func (c *Card) PostExpenditure(tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.IsCardBill() {
		return fmt.Errorf("%w: card bill transactions belong to a bank account", core.ErrValidation)
	}
	if remaining := c.RemainingLimit(tx.Date.YearMonth()); tx.Amount.GreaterThan(remaining) {
		c.logger.Warn("Expenditure exceeds remaining limit",
			"amount", tx.Amount.String(),
			"remaining", remaining.String())
		return fmt.Errorf("%w: expenditure cannot exceed remaining limit of %s", core.ErrLimitExceeded, remaining)
	}
	c.unpaid.AppendExpenditure(tx)
	return nil
}

// EditExpenditure edits the unpaid record at index. The remaining limit is
// computed without the record itself when it stays in the same month.
func (c *Card) EditExpenditure(index int, e core.Edit) (core.Transaction, error) {
	before, after, err := c.unpaid.PreviewEdit(index, e)
	if err != nil {
		return core.Transaction{}, err
	}
	month := after.Date.YearMonth()
	remaining := c.RemainingLimit(month)
	if month.Contains(before.Date) {
		remaining = remaining.Add(before.Amount)
	}
	if after.Amount.GreaterThan(remaining) {
		c.logger.Warn("Edited expenditure exceeds remaining limit",
			"amount", after.Amount.String(),
			"remaining", remaining.String())
		return core.Transaction{}, fmt.Errorf("%w: edited expenditure cannot exceed remaining limit of %s", core.ErrLimitExceeded, remaining)
	}
	if _, _, err := c.unpaid.EditAt(index, e); err != nil {
		return core.Transaction{}, err
	}
	return after, nil
}

// DeleteExpenditure removes the unpaid record at index.
func (c *Card) DeleteExpenditure(index int) (core.Transaction, error) {
	tx, err := c.unpaid.GetAt(index)
	if err != nil {
		return core.Transaction{}, err
	}
	if _, err := c.unpaid.DeleteAt(index); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// TotalUnpaid returns the unpaid expenditures dated in ym.
func (c *Card) TotalUnpaid(ym core.YearMonth) core.Money {
	return c.unpaid.SumInMonth(ym, core.Expenditures)
}

// TotalPaid returns the paid expenditures dated in ym.
func (c *Card) TotalPaid(ym core.YearMonth) core.Money {
	return c.paid.SumInMonth(ym, core.Expenditures)
}

// SettleBill moves every unpaid expenditure dated in ym to the paid ledger
// and returns how many moved.
func (c *Card) SettleBill(ym core.YearMonth) int {
	moved := move(c.unpaid, c.paid, ym)
	c.logger.Info("Card bill settled", "month", ym.String(), "moved", moved)
	return moved
}

// ReverseSettlement moves every paid expenditure dated in ym back to the
// unpaid ledger. It is the inverse of SettleBill for the same month.
func (c *Card) ReverseSettlement(ym core.YearMonth) int {
	moved := move(c.paid, c.unpaid, ym)
	c.logger.Info("Card bill settlement reversed", "month", ym.String(), "moved", moved)
	return moved
}

func move(from, to *core.Ledger, ym core.YearMonth) int {
	taken := from.TakeMonth(ym, core.Expenditures)
	for _, tx := range taken {
		to.ImportRaw(tx)
	}
	return len(taken)
}

// ListExpenditures returns up to n records from each ledger, most recent
// first. A side with no expenditures yields nothing; the call fails only when
// both are empty.
func (c *Card) ListExpenditures(n int) (paid, unpaid iter.Seq2[int, core.Transaction], err error) {
	if n < 1 {
		return nil, nil, fmt.Errorf("%w: number of expenditures to list must be at least 1", core.ErrValidation)
	}
	if c.paid.Len() == 0 && c.unpaid.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: there are no expenditures in card %q", core.ErrNotFound, c.name)
	}
	return listOrEmpty(c.paid, n), listOrEmpty(c.unpaid, n), nil
}

func listOrEmpty(l *core.Ledger, n int) iter.Seq2[int, core.Transaction] {
	seq, err := l.ListRecent(n, core.Expenditures)
	if err != nil {
		return func(func(int, core.Transaction) bool) {}
	}
	return seq
}

// Find searches both ledgers. It fails only when neither has a match.
func (c *Card) Find(q core.Query) (paid, unpaid []core.Entry, err error) {
	paid, paidErr := c.paid.Find(q)
	unpaid, unpaidErr := c.unpaid.Find(q)
	if paidErr != nil && unpaidErr != nil {
		return nil, nil, unpaidErr
	}
	return paid, unpaid, nil
}

// PaidExpenditures yields the paid ledger in order.
func (c *Card) PaidExpenditures() iter.Seq2[int, core.Transaction] { return c.paid.All() }

// UnpaidExpenditures yields the unpaid ledger in order.
func (c *Card) UnpaidExpenditures() iter.Seq2[int, core.Transaction] { return c.unpaid.All() }

// ImportPaid restores a paid record without validation.
func (c *Card) ImportPaid(tx core.Transaction) { c.paid.ImportRaw(tx) }

// ImportUnpaid restores an unpaid record without validation.
func (c *Card) ImportUnpaid(tx core.Transaction) { c.unpaid.ImportRaw(tx) }
