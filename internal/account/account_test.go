package account

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"owlmoney/internal/core"
	"owlmoney/internal/recurring"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSaving(t *testing.T, balance core.Money, today core.Date, opts ...Option) *Account {
	t.Helper()
	opts = append([]Option{WithClock(core.FixedClock{Day: today}), WithLogger(quietLogger())}, opts...)
	a, err := New("jun savings", Saving, balance, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

// net recomputes the balance from the ledger.
func net(a *Account, opening core.Money) core.Money {
	total := opening
	for _, tx := range a.Transactions() {
		total = total.Add(tx.Signed())
	}
	return total
}

func TestNewRejectsOutOfRangeBalance(t *testing.T) {
	if _, err := New("a", Current, core.Cents(-1)); !errors.Is(err, core.ErrNegativeBalance) {
		t.Fatalf("expected negative balance error, got %v", err)
	}
	if _, err := New("a", Current, core.MaxAmount.Add(core.Cents(1))); !errors.Is(err, core.ErrBalanceExceeded) {
		t.Fatalf("expected balance exceeded error, got %v", err)
	}
	if _, err := New("  ", Current, core.Cents(0)); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPostingKeepsBalanceEqualToNet(t *testing.T) {
	opening := core.Cents(10000)
	a := newSaving(t, opening, core.NewDate(2024, 3, 1))
	day := core.NewDate(2024, 2, 10)

	steps := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{"deposit", func() error { return a.PostDeposit(core.NewDeposit("bonus", core.Cents(5000), day, "Work")) }, nil},
		{"expenditure", func() error { return a.PostExpenditure(core.NewExpenditure("shoes", core.Cents(12000), day, "Shopping")) }, nil},
		{"overdraw", func() error { return a.PostExpenditure(core.NewExpenditure("tv", core.Cents(3001), day, "Shopping")) }, core.ErrNegativeBalance},
		{"over cap", func() error { return a.PostDeposit(core.NewDeposit("lottery", core.MaxAmount, day, "Luck")) }, core.ErrBalanceExceeded},
		{"invalid", func() error { return a.PostDeposit(core.NewDeposit("", core.Cents(1), day, "x")) }, core.ErrValidation},
	}
	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			before, size := a.Balance(), a.TransactionCount()
			err := s.run()
			if s.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.wantErr != nil {
				if !errors.Is(err, s.wantErr) {
					t.Fatalf("expected %v, got %v", s.wantErr, err)
				}
				if a.Balance() != before || a.TransactionCount() != size {
					t.Fatal("failed posting changed state")
				}
			}
			if a.Balance() != net(a, opening) {
				t.Fatalf("balance %v != net %v", a.Balance(), net(a, opening))
			}
		})
	}
	if a.Balance() != core.Cents(3000) {
		t.Fatalf("final balance = %v", a.Balance())
	}
}

func TestDeleteThenRepostRestoresState(t *testing.T) {
	a := newSaving(t, core.Cents(50000), core.NewDate(2024, 3, 1))
	tx := core.NewExpenditure("rent", core.Cents(20000), core.NewDate(2024, 2, 1), "Housing")
	if err := a.PostExpenditure(tx); err != nil {
		t.Fatalf("PostExpenditure: %v", err)
	}
	balance, size := a.Balance(), a.TransactionCount()

	removed, err := a.DeleteTransaction(1)
	if err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if a.Balance() != core.Cents(50000) {
		t.Fatalf("balance after delete = %v", a.Balance())
	}
	if err := a.PostExpenditure(removed); err != nil {
		t.Fatalf("repost: %v", err)
	}
	if a.Balance() != balance || a.TransactionCount() != size {
		t.Fatalf("state not restored: %v %d", a.Balance(), a.TransactionCount())
	}
}

func TestDeleteDepositCannotDriveBalanceNegative(t *testing.T) {
	a := newSaving(t, core.Cents(0), core.NewDate(2024, 3, 1))
	_ = a.PostDeposit(core.NewDeposit("salary", core.Cents(1000), core.NewDate(2024, 2, 1), "Income"))
	_ = a.PostExpenditure(core.NewExpenditure("food", core.Cents(800), core.NewDate(2024, 2, 2), "Food"))

	if _, err := a.DeleteTransaction(1); !errors.Is(err, core.ErrNegativeBalance) {
		t.Fatalf("expected negative balance error, got %v", err)
	}
	if a.Balance() != core.Cents(200) || a.TransactionCount() != 2 {
		t.Fatalf("state changed: %v %d", a.Balance(), a.TransactionCount())
	}
	if _, err := a.DeleteTransaction(3); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEditTransaction(t *testing.T) {
	a := newSaving(t, core.Cents(1000), core.NewDate(2024, 3, 1))
	_ = a.PostExpenditure(core.NewExpenditure("food", core.Cents(500), core.NewDate(2024, 2, 2), "Food"))

	if _, err := a.EditTransaction(1, core.Edit{Amount: "10.01"}); !errors.Is(err, core.ErrNegativeBalance) {
		t.Fatalf("expected negative balance error, got %v", err)
	}
	if _, err := a.EditTransaction(1, core.Edit{Date: "99/99/2024"}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := a.ledger.GetAt(1)
	if got.Amount != core.Cents(500) || a.Balance() != core.Cents(500) {
		t.Fatalf("rejected edit changed state: %v %v", got.Amount, a.Balance())
	}

	edited, err := a.EditTransaction(1, core.Edit{Amount: "2", Description: "snacks"})
	if err != nil {
		t.Fatalf("EditTransaction: %v", err)
	}
	if edited.Description != "snacks" || a.Balance() != core.Cents(800) {
		t.Fatalf("edited = %v, balance %v", edited, a.Balance())
	}
}

func TestReconcileIncomeCatchUp(t *testing.T) {
	a := newSaving(t, core.Cents(10000), core.NewDate(2024, 3, 15),
		WithIncome(core.Cents(5000), core.NewDate(2024, 1, 1)))

	r, err := a.ReconcileToNow()
	if err != nil {
		t.Fatalf("ReconcileToNow: %v", err)
	}
	if r.IncomePosted != 3 || a.TransactionCount() != 3 {
		t.Fatalf("posted %d, ledger %d", r.IncomePosted, a.TransactionCount())
	}
	want := []core.Date{core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1), core.NewDate(2024, 3, 1)}
	for i, tx := range a.Transactions() {
		if tx.IsDebit() || !tx.Date.Equal(want[i-1].Time) {
			t.Errorf("record %d = %v", i, tx)
		}
	}
	if a.Balance() != core.Cents(25000) {
		t.Fatalf("balance = %v, want 250.00", a.Balance())
	}
	_, next, _ := a.Income()
	if !next.Equal(core.NewDate(2024, 4, 1).Time) {
		t.Fatalf("next income = %s", next.StorageString())
	}

	again, err := a.ReconcileToNow()
	if err != nil || again.IncomePosted != 0 || a.TransactionCount() != 3 {
		t.Fatalf("second reconcile produced records: %+v %v", again, err)
	}
}

func TestReconcileIncomePartialFailure(t *testing.T) {
	opening := core.MaxAmount.Sub(core.Cents(12000))
	a := newSaving(t, opening, core.NewDate(2024, 3, 15),
		WithIncome(core.Cents(5000), core.NewDate(2024, 1, 1)))

	r, err := a.ReconcileToNow()
	if !errors.Is(err, core.ErrBalanceExceeded) {
		t.Fatalf("expected balance exceeded, got %v", err)
	}
	if r.IncomePosted != 2 || a.TransactionCount() != 2 {
		t.Fatalf("posted %d, ledger %d", r.IncomePosted, a.TransactionCount())
	}
	if a.Balance() != opening.Add(core.Cents(10000)) {
		t.Fatalf("balance = %v", a.Balance())
	}
	_, next, _ := a.Income()
	if !next.Equal(core.NewDate(2024, 3, 1).Time) {
		t.Fatalf("next income = %s, want 01/03/2024", next.StorageString())
	}

	// Reads surface the hard error too.
	if _, err := a.ListTransactions(5, core.AnyDirection); !errors.Is(err, core.ErrBalanceExceeded) {
		t.Fatalf("ListTransactions error = %v", err)
	}
}

func TestReconcileRunsIncomeBeforeRecurring(t *testing.T) {
	a := newSaving(t, core.Cents(0), core.NewDate(2024, 2, 20),
		WithIncome(core.Cents(100000), core.NewDate(2024, 2, 15)),
		WithRecurring())
	if err := a.AddRecurring(recurring.NewTemplate("rent", core.Cents(80000), core.NewDate(2024, 2, 1), "Housing")); err != nil {
		t.Fatalf("AddRecurring: %v", err)
	}

	r, err := a.ReconcileToNow()
	if err != nil {
		t.Fatalf("ReconcileToNow: %v", err)
	}
	if r.IncomePosted != 1 || r.Recurring.Materialized != 1 || len(r.Warnings()) != 0 {
		t.Fatalf("reconciliation = %+v", r)
	}
	if a.Balance() != core.Cents(20000) {
		t.Fatalf("balance = %v", a.Balance())
	}
}

func TestReconcileRecurringFailureIsWarning(t *testing.T) {
	a := newSaving(t, core.Cents(1000), core.NewDate(2024, 3, 10), WithRecurring())
	_ = a.AddRecurring(recurring.NewTemplate("gym", core.Cents(600), core.NewDate(2024, 2, 10), "Health"))

	r, err := a.ReconcileToNow()
	if err != nil {
		t.Fatalf("ReconcileToNow: %v", err)
	}
	if r.Recurring.Materialized != 1 || len(r.Warnings()) != 1 {
		t.Fatalf("reconciliation = %+v", r)
	}
	if r.Warnings()[0].Outcome != recurring.InsufficientFunds {
		t.Fatalf("warning = %+v", r.Warnings()[0])
	}
	seq, err := a.ListRecurring(1)
	if err != nil {
		t.Fatalf("ListRecurring: %v", err)
	}
	for _, tpl := range seq {
		if !tpl.NextDue.Equal(core.NewDate(2024, 3, 10).Time) {
			t.Fatalf("NextDue = %s", tpl.NextDue.StorageString())
		}
	}
}

func TestUnsupportedCapabilities(t *testing.T) {
	a, err := New("daily", Current, core.Cents(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.SetIncome(core.Cents(100), core.NewDate(2024, 1, 1)); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("SetIncome error = %v", err)
	}
	if err := a.AddRecurring(recurring.NewTemplate("x", core.Cents(1), core.NewDate(2024, 1, 1), "y")); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("AddRecurring error = %v", err)
	}
	if err := a.ImportRecurring(recurring.Template{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("ImportRecurring error = %v", err)
	}
	count := 0
	for range a.RecurringTemplates() {
		count++
	}
	if count != 0 {
		t.Fatalf("RecurringTemplates yielded %d", count)
	}
}

func TestCardBillLegs(t *testing.T) {
	a := newSaving(t, core.Cents(100000), core.NewDate(2024, 4, 2))
	card := uuid.New()
	month := core.YearMonth{Year: 2024, Month: time.March}

	if a.IsCardBillPosted(card, month) {
		t.Fatal("posted before any leg exists")
	}
	if err := a.PostExpenditure(core.NewCardBillExpenditure("bill", core.Cents(30000), core.NewDate(2024, 4, 1), card, month)); err != nil {
		t.Fatalf("debit leg: %v", err)
	}
	if a.IsCardBillPosted(card, month) {
		t.Fatal("posted with only the debit leg")
	}
	if err := a.PostDeposit(core.NewCardBillDeposit("rebate", core.Cents(0), core.NewDate(2024, 4, 1), card, month)); err != nil {
		t.Fatalf("rebate leg: %v", err)
	}
	if !a.IsCardBillPosted(card, month) {
		t.Fatal("not posted with both legs")
	}
	if idx, ok := a.FindCardBillLegIndex(card, month, core.Deposits); !ok || idx != 2 {
		t.Fatalf("rebate leg index = %d, %v", idx, ok)
	}
	if _, err := a.EditTransaction(1, core.Edit{Description: "renamed"}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected card bill edit rejection, got %v", err)
	}
}

func TestCardBillLegsCannotBeDeletedOneByOne(t *testing.T) {
	a := newSaving(t, core.Cents(100000), core.NewDate(2024, 4, 2))
	card := uuid.New()
	month := core.YearMonth{Year: 2024, Month: time.March}
	_ = a.PostExpenditure(core.NewCardBillExpenditure("bill", core.Cents(30000), core.NewDate(2024, 4, 1), card, month))
	_ = a.PostDeposit(core.NewCardBillDeposit("rebate", core.Cents(300), core.NewDate(2024, 4, 1), card, month))

	for _, dir := range []core.Direction{core.Expenditures, core.Deposits} {
		idx, _ := a.FindCardBillLegIndex(card, month, dir)
		if _, err := a.DeleteTransaction(idx); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("DeleteTransaction(%d) = %v, want validation error", idx, err)
		}
	}
	if !a.IsCardBillPosted(card, month) || a.Balance() != core.Cents(70300) {
		t.Fatalf("bill changed: posted=%v balance=%v", a.IsCardBillPosted(card, month), a.Balance())
	}

	if _, err := a.RemoveCardBillLeg(card, month, core.Deposits); err != nil {
		t.Fatalf("RemoveCardBillLeg(rebate): %v", err)
	}
	if _, err := a.RemoveCardBillLeg(card, month, core.Expenditures); err != nil {
		t.Fatalf("RemoveCardBillLeg(debit): %v", err)
	}
	if _, err := a.RemoveCardBillLeg(card, month, core.Expenditures); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("removing a missing leg = %v", err)
	}
	if a.Balance() != core.Cents(100000) || a.TransactionCount() != 0 {
		t.Fatalf("after removal balance=%v records=%d", a.Balance(), a.TransactionCount())
	}
}

func TestReconcileReportsDeferredIncome(t *testing.T) {
	a := newSaving(t, core.Cents(0), core.NewDate(2024, 6, 15),
		WithCatchUpLimit(2), WithIncome(core.Cents(1000), core.NewDate(2024, 1, 10)))

	r, err := a.ReconcileToNow()
	if err != nil {
		t.Fatalf("ReconcileToNow: %v", err)
	}
	if r.IncomePosted != 2 || !r.IncomeDeferred || !r.NextIncome.Equal(core.NewDate(2024, 3, 10).Time) {
		t.Fatalf("reconciliation = %+v", r)
	}
	if r.IncomeWarning() == "" {
		t.Fatal("deferred income produced no warning")
	}

	for range 2 {
		r, _ = a.ReconcileToNow()
	}
	if r.IncomeDeferred || r.IncomeWarning() != "" || r.IncomePosted != 2 {
		t.Fatalf("final reconciliation = %+v", r)
	}
}

func TestSummaryAndImport(t *testing.T) {
	a := newSaving(t, core.Cents(5000), core.NewDate(2024, 3, 20),
		WithIncome(core.Cents(1000), core.NewDate(2024, 4, 1)))
	a.ImportTransaction(core.NewExpenditure("old", core.Cents(999999), core.NewDate(2023, 1, 1), "Old"))
	if a.Balance() != core.Cents(5000) {
		t.Fatalf("import changed balance: %v", a.Balance())
	}
	_ = a.PostExpenditure(core.NewExpenditure("coffee", core.Cents(300), core.NewDate(2024, 3, 19), "Food"))

	s, err := a.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !s.HasIncome || s.Income != core.Cents(1000) || s.Balance != core.Cents(4700) {
		t.Fatalf("summary = %+v", s)
	}
	if s.Month.Expenditures != core.Cents(300) {
		t.Fatalf("month expenditures = %v", s.Month.Expenditures)
	}
}
