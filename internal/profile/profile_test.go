package profile

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"owlmoney/internal/core"
)

var cardID = uuid.MustParse("5a0f6a2c-3b9e-4a58-9d7e-0c1b2a3d4e5f")

func newProfile(t *testing.T, today core.Date) *Profile {
	t.Helper()
	return New("tester",
		WithClock(core.FixedClock{Day: today}),
		WithCardIDGenerator(func() uuid.UUID { return cardID }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestRegistryNames(t *testing.T) {
	p := newProfile(t, core.NewDate(2024, 4, 2))
	if _, err := p.AddCurrent("Daily", core.Cents(100)); err != nil {
		t.Fatalf("AddCurrent: %v", err)
	}
	if _, err := p.AddCard("daily", core.Cents(100), decimal.Zero, uuid.Nil); !errors.Is(err, core.ErrDuplicateName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}
	if _, err := p.AddCard("visa", core.Cents(100), decimal.Zero, uuid.Nil); err != nil {
		t.Fatalf("AddCard: %v", err)
	}
	if err := p.Rename("visa", "DAILY"); !errors.Is(err, core.ErrDuplicateName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}
	if err := p.Rename("visa", "Visa Gold"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := p.Card("visa gold"); err != nil {
		t.Fatalf("Card lookup after rename: %v", err)
	}
	if _, err := p.Account("missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := p.RemoveAccount("daily"); err != nil || len(p.Accounts()) != 0 {
		t.Fatalf("RemoveAccount: %v", err)
	}

	cur, _ := p.AddCurrent("plain", core.Cents(0))
	if cur.HasIncome() || cur.HasRecurring() {
		t.Fatal("current account has saving capabilities")
	}
	sav, err := p.AddSaving("stash", core.Cents(0), core.Cents(100), core.NewDate(2024, 5, 1))
	if err != nil || !sav.HasIncome() || !sav.HasRecurring() {
		t.Fatalf("AddSaving: %v", err)
	}
}

func setupBill(t *testing.T, balance int64) *Profile {
	t.Helper()
	p := newProfile(t, core.NewDate(2024, 4, 2))
	if _, err := p.AddCurrent("bank", core.Cents(balance)); err != nil {
		t.Fatalf("AddCurrent: %v", err)
	}
	c, err := p.AddCard("visa", core.Cents(100000), decimal.RequireFromString("1"), uuid.Nil)
	if err != nil {
		t.Fatalf("AddCard: %v", err)
	}
	for _, tx := range []core.Transaction{
		core.NewExpenditure("flight", core.Cents(40000), core.NewDate(2024, 3, 3), "Travel"),
		core.NewExpenditure("dinner", core.Cents(10050), core.NewDate(2024, 3, 8), "Food"),
		core.NewExpenditure("books", core.Cents(2000), core.NewDate(2024, 4, 1), "Books"),
	} {
		if err := c.PostExpenditure(tx); err != nil {
			t.Fatalf("PostExpenditure: %v", err)
		}
	}
	return p
}

func TestPayCardBill(t *testing.T) {
	p := setupBill(t, 100000)
	march := core.YearMonth{Year: 2024, Month: time.March}
	bank, _ := p.Account("bank")
	visa, _ := p.Card("visa")

	bill, err := p.PayCardBill("visa", "bank", march)
	if err != nil {
		t.Fatalf("PayCardBill: %v", err)
	}
	if bill.Amount != core.Cents(50050) || bill.Rebate != core.Cents(500) || bill.Moved != 2 {
		t.Fatalf("bill = %+v", bill)
	}
	if bank.Balance() != core.Cents(100000-50050+500) {
		t.Fatalf("balance = %v", bank.Balance())
	}
	if !bank.IsCardBillPosted(visa.ID(), march) {
		t.Fatal("bill not marked as posted")
	}
	if !visa.TotalUnpaid(march).IsZero() || visa.TotalPaid(march) != core.Cents(50050) {
		t.Fatal("card month not settled")
	}

	if _, err := p.PayCardBill("visa", "bank", march); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected second payment to be rejected, got %v", err)
	}
	if _, err := p.PayCardBill("visa", "bank", core.YearMonth{Year: 2024, Month: time.April}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected current month to be rejected, got %v", err)
	}
	if _, err := p.PayCardBill("visa", "bank", core.YearMonth{Year: 2024, Month: time.February}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected empty month to be not found, got %v", err)
	}
}

func TestPayCardBillZeroRebateStillPostsTwoLegs(t *testing.T) {
	p := setupBill(t, 100000)
	visa, _ := p.Card("visa")
	_ = visa.SetRebate(decimal.Zero)
	march := core.YearMonth{Year: 2024, Month: time.March}

	if _, err := p.PayCardBill("visa", "bank", march); err != nil {
		t.Fatalf("PayCardBill: %v", err)
	}
	bank, _ := p.Account("bank")
	if bank.TransactionCount() != 2 || !bank.IsCardBillPosted(visa.ID(), march) {
		t.Fatalf("ledger size %d", bank.TransactionCount())
	}
}

func TestPayCardBillInsufficientFunds(t *testing.T) {
	p := setupBill(t, 30000)
	march := core.YearMonth{Year: 2024, Month: time.March}

	if _, err := p.PayCardBill("visa", "bank", march); !errors.Is(err, core.ErrNegativeBalance) {
		t.Fatalf("expected negative balance, got %v", err)
	}
	bank, _ := p.Account("bank")
	visa, _ := p.Card("visa")
	if bank.TransactionCount() != 0 || bank.Balance() != core.Cents(30000) {
		t.Fatal("failed payment changed the account")
	}
	if visa.TotalUnpaid(march) != core.Cents(50050) {
		t.Fatal("failed payment settled the card")
	}
}

func TestReverseCardBill(t *testing.T) {
	p := setupBill(t, 100000)
	march := core.YearMonth{Year: 2024, Month: time.March}
	bank, _ := p.Account("bank")
	visa, _ := p.Card("visa")

	if _, err := p.ReverseCardBill("visa", "bank", march); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found before payment, got %v", err)
	}
	if _, err := p.PayCardBill("visa", "bank", march); err != nil {
		t.Fatalf("PayCardBill: %v", err)
	}
	bill, err := p.ReverseCardBill("visa", "bank", march)
	if err != nil {
		t.Fatalf("ReverseCardBill: %v", err)
	}
	if bill.Moved != 2 || bill.Amount != core.Cents(50050) {
		t.Fatalf("bill = %+v", bill)
	}
	if bank.Balance() != core.Cents(100000) || bank.TransactionCount() != 0 {
		t.Fatalf("account not restored: %v %d", bank.Balance(), bank.TransactionCount())
	}
	if visa.TotalUnpaid(march) != core.Cents(50050) || !visa.TotalPaid(march).IsZero() {
		t.Fatal("card not restored")
	}
	if bank.IsCardBillPosted(visa.ID(), march) {
		t.Fatal("bill still posted")
	}
}

func TestPaidBillStaysReversibleAfterLegDelete(t *testing.T) {
	p := setupBill(t, 100000)
	march := core.YearMonth{Year: 2024, Month: time.March}
	bank, _ := p.Account("bank")
	visa, _ := p.Card("visa")

	if _, err := p.PayCardBill("visa", "bank", march); err != nil {
		t.Fatalf("PayCardBill: %v", err)
	}
	rebateIdx, _ := bank.FindCardBillLegIndex(visa.ID(), march, core.Deposits)
	if _, err := bank.DeleteTransaction(rebateIdx); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("deleting the rebate leg = %v, want validation error", err)
	}
	if _, err := p.ReverseCardBill("visa", "bank", march); err != nil {
		t.Fatalf("ReverseCardBill: %v", err)
	}
	if visa.TotalUnpaid(march) != core.Cents(50050) || bank.Balance() != core.Cents(100000) {
		t.Fatalf("unpaid=%v balance=%v", visa.TotalUnpaid(march), bank.Balance())
	}
}
