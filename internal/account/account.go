// Package account implements a bank account: a balance kept between zero and
// core.MaxAmount, the ledger of every movement, and the optional income and
// recurring expenditure schedules that are caught up lazily on access.
package account

import (
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"owlmoney/internal/core"
	"owlmoney/internal/recurring"
)

// Kind names the account variant. Behaviour depends on the capabilities an
// account was built with, not on its kind.
type Kind uint8

const (
	Saving Kind = iota
	Current
)

func (k Kind) String() string {
	if k == Current {
		return "current"
	}
	return "saving"
}

// ParseKind accepts "saving" and "current", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "saving":
		return Saving, nil
	case "current":
		return Current, nil
	}
	return 0, fmt.Errorf("%w: unknown account kind %q", core.ErrValidation, s)
}

// IncomeCategory is the category of deposits produced by income catch-up.
const IncomeCategory = "Income"

type income struct {
	amount    core.Money
	next      core.Date
	anchorDay int
}

// Account owns one ledger and keeps the balance equal to the net of every
// movement committed through it.
type Account struct {
	name    string
	kind    Kind
	balance core.Money
	ledger  *core.Ledger

	income       *income
	recurring    *recurring.Engine
	catchUpLimit int

	clock  core.Clock
	logger *slog.Logger
}

// Option configures an Account.
type Option func(*Account)

// WithIncome enables monthly income, first paid on next.
func WithIncome(amount core.Money, next core.Date) Option {
	return func(a *Account) {
		a.income = &income{amount: amount, next: next, anchorDay: next.Day()}
	}
}

// WithRecurring enables recurring expenditures.
func WithRecurring() Option {
	return func(a *Account) {
		a.recurring = recurring.New()
	}
}

// WithClock sets the source of "now" used by reconciliation.
func WithClock(c core.Clock) Option {
	return func(a *Account) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Account) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCatchUpLimit bounds how many periods one reconciliation may replay per
// schedule.
func WithCatchUpLimit(n int) Option {
	return func(a *Account) {
		if n > 0 {
			a.catchUpLimit = n
		}
	}
}

// New creates an account holding an opening balance.
func New(name string, kind Kind, balance core.Money, opts ...Option) (*Account, error) {
	a := &Account{
		name:         strings.TrimSpace(name),
		kind:         kind,
		balance:      balance,
		ledger:       core.NewLedger(),
		catchUpLimit: recurring.DefaultCatchUpLimit,
		clock:        core.SystemClock{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.name == "" {
		return nil, fmt.Errorf("%w: account name cannot be empty", core.ErrValidation)
	}
	if err := checkRange(balance); err != nil {
		return nil, err
	}
	if a.income != nil {
		if err := validateIncome(a.income.amount, a.income.next); err != nil {
			return nil, err
		}
	}
	if a.recurring != nil {
		a.recurring = recurring.New(
			recurring.WithCatchUpLimit(a.catchUpLimit),
			recurring.WithLogger(a.logger.With("account", a.name)),
		)
	}
	a.logger = a.logger.With("account", a.name)
	return a, nil
}

func validateIncome(amount core.Money, next core.Date) error {
	if err := amount.Validate(); err != nil {
		return fmt.Errorf("income: %w", err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("next income date: %w", err)
	}
	return nil
}

func checkRange(balance core.Money) error {
	if balance.IsNegative() {
		return fmt.Errorf("%w: balance cannot go below 0.00", core.ErrNegativeBalance)
	}
	if balance.GreaterThan(core.MaxAmount) {
		return fmt.Errorf("%w: balance cannot exceed %s", core.ErrBalanceExceeded, core.MaxAmount)
	}
	return nil
}

func (a *Account) Name() string        { return a.name }
func (a *Account) Kind() Kind          { return a.kind }
func (a *Account) Balance() core.Money { return a.balance }

// Rename changes the account name. Uniqueness is the registry's concern.
func (a *Account) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: account name cannot be empty", core.ErrValidation)
	}
	a.name = name
	return nil
}

// HasIncome reports whether the account supports income.
func (a *Account) HasIncome() bool { return a.income != nil }

// HasRecurring reports whether the account supports recurring expenditures.
func (a *Account) HasRecurring() bool { return a.recurring != nil }

// Income returns the monthly income and the date of the next payment.
func (a *Account) Income() (amount core.Money, next core.Date, ok bool) {
	if a.income == nil {
		return core.Money{}, core.Date{}, false
	}
	return a.income.amount, a.income.next, true
}

// SetIncome changes the monthly income and, when next is not zero, the date
// of the next payment.
func (a *Account) SetIncome(amount core.Money, next core.Date) error {
	if a.income == nil {
		return fmt.Errorf("%w: %s account %q has no income", core.ErrUnsupported, a.kind, a.name)
	}
	if next.IsZero() {
		next = a.income.next
	}
	if err := validateIncome(amount, next); err != nil {
		return err
	}
	anchor := a.income.anchorDay
	if !next.Equal(a.income.next.Time) {
		anchor = next.Day()
	}
	a.income = &income{amount: amount, next: next, anchorDay: anchor}
	return nil
}

// PostDeposit appends a deposit if the resulting balance stays within
// core.MaxAmount.
func (a *Account) PostDeposit(tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	next := a.balance.Add(tx.Amount)
	if next.GreaterThan(core.MaxAmount) {
		return fmt.Errorf("%w: depositing %s would exceed the maximum balance of %s",
			core.ErrBalanceExceeded, tx.Amount, core.MaxAmount)
	}
	a.ledger.AppendDeposit(tx)
	a.balance = next
	return nil
}

// PostExpenditure appends an expenditure if the balance covers it.
func (a *Account) PostExpenditure(tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	next := a.balance.Sub(tx.Amount)
	if next.IsNegative() {
		return fmt.Errorf("%w: expenditure of %s exceeds the balance of %s",
			core.ErrNegativeBalance, tx.Amount, a.balance)
	}
	a.ledger.AppendExpenditure(tx)
	a.balance = next
	return nil
}

// EditTransaction applies e to the record at index. The ledger and balance
// stay unchanged if parsing fails or the new balance would leave its range.
// Card bill legs cannot be edited.
func (a *Account) EditTransaction(index int, e core.Edit) (core.Transaction, error) {
	before, after, err := a.ledger.PreviewEdit(index, e)
	if err != nil {
		return core.Transaction{}, err
	}
	if before.IsCardBill() {
		return core.Transaction{}, fmt.Errorf("%w: card bill transactions cannot be edited", core.ErrValidation)
	}
	next := a.balance.Sub(before.Signed()).Add(after.Signed())
	if err := checkRange(next); err != nil {
		return core.Transaction{}, err
	}
	if _, _, err := a.ledger.EditAt(index, e); err != nil {
		return core.Transaction{}, err
	}
	a.balance = next
	return after, nil
}

// DeleteTransaction removes the record at index and reverses its effect on
// the balance, unless that would leave the balance out of range. Card bill
// legs are only removed by reversing the bill.
func (a *Account) DeleteTransaction(index int) (core.Transaction, error) {
	tx, err := a.ledger.GetAt(index)
	if err != nil {
		return core.Transaction{}, err
	}
	if tx.IsCardBill() {
		return core.Transaction{}, fmt.Errorf("%w: card bill transactions cannot be deleted, reverse the bill instead", core.ErrValidation)
	}
	return a.deleteAt(index, tx)
}

// RemoveCardBillLeg deletes one leg of a card bill with the same balance
// check as DeleteTransaction.
func (a *Account) RemoveCardBillLeg(cardID uuid.UUID, billMonth core.YearMonth, dir core.Direction) (core.Transaction, error) {
	index, ok := a.ledger.FindByCardBillKey(cardID, billMonth, dir)
	if !ok {
		return core.Transaction{}, fmt.Errorf("%w: no %s bill transaction for %s", core.ErrNotFound, billMonth, cardID)
	}
	tx, err := a.ledger.GetAt(index)
	if err != nil {
		return core.Transaction{}, err
	}
	return a.deleteAt(index, tx)
}

func (a *Account) deleteAt(index int, tx core.Transaction) (core.Transaction, error) {
	next := a.balance.Sub(tx.Signed())
	if err := checkRange(next); err != nil {
		return core.Transaction{}, err
	}
	if _, err := a.ledger.DeleteAt(index); err != nil {
		return core.Transaction{}, err
	}
	a.balance = next
	return tx, nil
}

// FindCardBillLegIndex returns the 1-based index of one leg of a card bill.
func (a *Account) FindCardBillLegIndex(cardID uuid.UUID, billMonth core.YearMonth, dir core.Direction) (int, bool) {
	return a.ledger.FindByCardBillKey(cardID, billMonth, dir)
}

// IsCardBillPosted reports whether both the debit and the rebate leg of the
// bill exist.
func (a *Account) IsCardBillPosted(cardID uuid.UUID, billMonth core.YearMonth) bool {
	_, debit := a.ledger.FindByCardBillKey(cardID, billMonth, core.Expenditures)
	_, rebate := a.ledger.FindByCardBillKey(cardID, billMonth, core.Deposits)
	return debit && rebate
}

// Reconciliation describes what one ReconcileToNow call replayed.
type Reconciliation struct {
	IncomePosted int
	// IncomeDeferred is set when the catch-up limit stopped income while
	// payments were still overdue.
	IncomeDeferred bool
	NextIncome     core.Date
	Recurring      recurring.Report
}

// IncomeWarning describes a deferred income catch-up, or returns "".
func (r Reconciliation) IncomeWarning() string {
	if !r.IncomeDeferred {
		return ""
	}
	return fmt.Sprintf("income catch-up stopped after %d payments, next due %s is posted on the next run",
		r.IncomePosted, r.NextIncome.StorageString())
}

// Warnings returns the recoverable problems of the pass.
func (r Reconciliation) Warnings() []recurring.Warning { return r.Recurring.Warnings }

// ReconcileToNow replays every income payment and recurring expenditure due
// on or before today. Income runs first; an income deposit that cannot be
// posted aborts the call with an error, keeping the months already posted.
// Recurring failures only produce warnings.
func (a *Account) ReconcileToNow() (Reconciliation, error) {
	now := a.clock.Today()
	var r Reconciliation

	if a.income != nil {
		for a.income.next.OnOrBefore(now) {
			if r.IncomePosted == a.catchUpLimit {
				a.logger.Warn("Income catch-up limit reached, resuming on next reconciliation",
					"next_income_date", a.income.next.StorageString(),
					"limit", a.catchUpLimit)
				r.IncomeDeferred, r.NextIncome = true, a.income.next
				break
			}
			due := a.income.next
			if err := a.PostDeposit(core.NewDeposit(IncomeCategory, a.income.amount, due, IncomeCategory)); err != nil {
				a.logger.Error("Income catch-up failed",
					"due", due.StorageString(),
					"posted", r.IncomePosted,
					"error", err)
				return r, fmt.Errorf("income due %s: %w", due.StorageString(), err)
			}
			a.income.next = due.AddMonthsClamped(1, a.income.anchorDay)
			r.IncomePosted++
		}
	}

	if a.recurring != nil {
		r.Recurring = a.recurring.CatchUp(now, recurring.PosterFunc(a.materialize))
	}
	return r, nil
}

func (a *Account) materialize(tx core.Transaction) recurring.Materialization {
	if err := a.PostExpenditure(tx); err != nil {
		return recurring.Failed(err)
	}
	return recurring.Succeeded()
}

// ListTransactions reconciles, then lists up to n records in dir, most
// recent first.
func (a *Account) ListTransactions(n int, dir core.Direction) (iter.Seq2[int, core.Transaction], error) {
	if _, err := a.ReconcileToNow(); err != nil {
		return nil, err
	}
	return a.ledger.ListRecent(n, dir)
}

// FindTransactions reconciles, then searches the ledger.
func (a *Account) FindTransactions(q core.Query) ([]core.Entry, error) {
	if _, err := a.ReconcileToNow(); err != nil {
		return nil, err
	}
	return a.ledger.Find(q)
}

// Transactions yields every record in ledger order without reconciling.
func (a *Account) Transactions() iter.Seq2[int, core.Transaction] { return a.ledger.All() }

// TransactionCount returns the ledger size.
func (a *Account) TransactionCount() int { return a.ledger.Len() }

// Summary is a point-in-time view of an account.
type Summary struct {
	Name       string
	Kind       Kind
	Balance    core.Money
	HasIncome  bool
	Income     core.Money
	NextIncome core.Date
	Recurring  int
	Month      core.MonthOverview
}

// Summary reconciles, then reports the account state and the current month.
func (a *Account) Summary() (Summary, error) {
	if _, err := a.ReconcileToNow(); err != nil {
		return Summary{}, err
	}
	s := Summary{
		Name:    a.name,
		Kind:    a.kind,
		Balance: a.balance,
		Month:   a.ledger.MonthOverview(a.clock.Today().YearMonth()),
	}
	if a.income != nil {
		s.HasIncome, s.Income, s.NextIncome = true, a.income.amount, a.income.next
	}
	if a.recurring != nil {
		s.Recurring = a.recurring.Len()
	}
	return s, nil
}

// ImportTransaction restores a stored record without validation or balance
// changes.
func (a *Account) ImportTransaction(tx core.Transaction) {
	a.ledger.ImportRaw(tx)
}

func (a *Account) recurringEngine() (*recurring.Engine, error) {
	if a.recurring == nil {
		return nil, fmt.Errorf("%w: %s account %q has no recurring expenditures", core.ErrUnsupported, a.kind, a.name)
	}
	return a.recurring, nil
}

// ImportRecurring restores a stored template without validation.
func (a *Account) ImportRecurring(t recurring.Template) error {
	e, err := a.recurringEngine()
	if err != nil {
		return err
	}
	e.ImportRaw(t)
	return nil
}

// AddRecurring validates and adds a template.
func (a *Account) AddRecurring(t recurring.Template) error {
	e, err := a.recurringEngine()
	if err != nil {
		return err
	}
	return e.Add(t)
}

// EditRecurring edits the template at index.
func (a *Account) EditRecurring(index int, ed recurring.Edit) (recurring.Template, error) {
	e, err := a.recurringEngine()
	if err != nil {
		return recurring.Template{}, err
	}
	return e.EditAt(index, ed)
}

// DeleteRecurring removes the template at index.
func (a *Account) DeleteRecurring(index int) (recurring.Template, error) {
	e, err := a.recurringEngine()
	if err != nil {
		return recurring.Template{}, err
	}
	return e.DeleteAt(index)
}

// ListRecurring lists up to n templates, most recent first.
func (a *Account) ListRecurring(n int) (iter.Seq2[int, recurring.Template], error) {
	e, err := a.recurringEngine()
	if err != nil {
		return nil, err
	}
	return e.List(n)
}

// FindRecurring searches templates by description and category.
func (a *Account) FindRecurring(description, category string) ([]recurring.Entry, error) {
	e, err := a.recurringEngine()
	if err != nil {
		return nil, err
	}
	return e.Find(description, category)
}

// RecurringTemplates yields every template in order. It yields nothing for
// accounts without recurring support.
func (a *Account) RecurringTemplates() iter.Seq2[int, recurring.Template] {
	if a.recurring == nil {
		return func(func(int, recurring.Template) bool) {}
	}
	return a.recurring.All()
}
