package persist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"owlmoney/internal/core"
	"owlmoney/internal/profile"
	"owlmoney/internal/recurring"
	ports "owlmoney/internal/sheets"
	"owlmoney/internal/sheets/memory"
)

var (
	today  = core.NewDate(2024, 4, 2)
	cardID = uuid.MustParse("3f1e2d3c-4b5a-4978-8a6b-5c4d3e2f1a0b")
	quiet  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func profileOptions() []profile.Option {
	return []profile.Option{
		profile.WithClock(core.FixedClock{Day: today}),
		profile.WithCardIDGenerator(func() uuid.UUID { return cardID }),
		profile.WithLogger(quiet),
	}
}

func sampleProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p := profile.New("tester", profileOptions()...)

	stash, err := p.AddSaving("Stash", core.Cents(200000), core.Cents(25000), core.NewDate(2024, 5, 1))
	if err != nil {
		t.Fatalf("AddSaving: %v", err)
	}
	if err := stash.PostExpenditure(core.NewExpenditure("rent", core.Cents(50000), core.NewDate(2024, 4, 1), "Housing")); err != nil {
		t.Fatalf("PostExpenditure: %v", err)
	}
	if err := stash.AddRecurring(recurring.NewTemplate("gym", core.Cents(3000), core.NewDate(2024, 4, 30), "Health")); err != nil {
		t.Fatalf("AddRecurring: %v", err)
	}
	if _, err := p.AddCurrent("Daily", core.Cents(1230)); err != nil {
		t.Fatalf("AddCurrent: %v", err)
	}

	visa, err := p.AddCard("visa", core.Cents(100000), decimal.RequireFromString("1.5"), uuid.Nil)
	if err != nil {
		t.Fatalf("AddCard: %v", err)
	}
	for _, tx := range []core.Transaction{
		core.NewExpenditure("flight", core.Cents(40000), core.NewDate(2024, 3, 3), "Travel"),
		core.NewExpenditure("books", core.Cents(2000), core.NewDate(2024, 4, 1), "Books"),
	} {
		if err := visa.PostExpenditure(tx); err != nil {
			t.Fatalf("card PostExpenditure: %v", err)
		}
	}
	if _, err := p.PayCardBill("visa", "Stash", core.YearMonth{Year: 2024, Month: time.March}); err != nil {
		t.Fatalf("PayCardBill: %v", err)
	}
	return p
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	tables := memory.New()
	store := New(tables, WithLogger(quiet))
	p := sampleProfile(t)

	if warnings := store.SaveProfile(ctx, p); len(warnings) != 0 {
		t.Fatalf("warnings: %v", warnings)
	}
	wantTables := []string{
		"account/Daily/transactions",
		"account/Stash/recurring",
		"account/Stash/transactions",
		"accounts",
		"card/visa/paid",
		"card/visa/unpaid",
		"cards",
	}
	if got := tables.Names(); !slices.Equal(got, wantTables) {
		t.Fatalf("tables = %v", got)
	}

	loaded, err := store.Load(ctx, "tester", profileOptions()...)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !reflect.DeepEqual(EncodeAccounts(loaded.Accounts()), EncodeAccounts(p.Accounts())) {
		t.Errorf("accounts differ:\n%v\n%v", EncodeAccounts(loaded.Accounts()), EncodeAccounts(p.Accounts()))
	}
	if !reflect.DeepEqual(EncodeCards(loaded.Cards()), EncodeCards(p.Cards())) {
		t.Errorf("cards differ")
	}
	for _, a := range p.Accounts() {
		got, err := loaded.Account(a.Name())
		if err != nil {
			t.Fatalf("Account(%s): %v", a.Name(), err)
		}
		if !reflect.DeepEqual(EncodeTransactions(got.Transactions()), EncodeTransactions(a.Transactions())) {
			t.Errorf("%s transactions differ", a.Name())
		}
		if !reflect.DeepEqual(EncodeRecurring(got.RecurringTemplates()), EncodeRecurring(a.RecurringTemplates())) {
			t.Errorf("%s recurring differ", a.Name())
		}
		if got.Balance() != a.Balance() {
			t.Errorf("%s balance %v, want %v", a.Name(), got.Balance(), a.Balance())
		}
	}

	stash, _ := loaded.Account("Stash")
	visa, _ := loaded.Card("visa")
	if visa.ID() != cardID {
		t.Fatalf("card id = %v", visa.ID())
	}
	if !stash.IsCardBillPosted(visa.ID(), core.YearMonth{Year: 2024, Month: time.March}) {
		t.Fatal("bill legs not restored")
	}
	if visa.TotalPaid(core.YearMonth{Year: 2024, Month: time.March}) != core.Cents(40000) {
		t.Fatal("paid ledger not restored")
	}
}

func TestLoadEmptyBackend(t *testing.T) {
	p, err := New(memory.New(), WithLogger(quiet)).Load(context.Background(), "fresh", profileOptions()...)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.Accounts()) != 0 || len(p.Cards()) != 0 || p.Name() != "fresh" {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestLoadCorruptTable(t *testing.T) {
	ctx := context.Background()
	tables := memory.New()
	_ = tables.WriteTable(ctx, AccountsTable, ports.Table{Header: AccountHeader, Rows: [][]string{
		{"Daily", "current", "12.30", "", ""},
	}})
	_ = tables.WriteTable(ctx, TransactionsTable("Daily"), ports.Table{Header: TransactionHeader, Rows: [][]string{
		{"coffee", "2.50", "31/02/2024", "Food", "", "", "true"},
	}})

	_, err := New(tables, WithLogger(quiet)).Load(ctx, "x", profileOptions()...)
	if !errors.Is(err, core.ErrValidation) || !strings.Contains(err.Error(), "account/Daily/transactions line 2") {
		t.Fatalf("expected located validation error, got %v", err)
	}
}

var errBoom = errors.New("disk full")

// flakyTables fails writes to tables whose name contains fail.
type flakyTables struct {
	*memory.Store
	fail string
}

func (f flakyTables) WriteTable(ctx context.Context, name string, t ports.Table) error {
	if strings.Contains(name, f.fail) {
		return errBoom
	}
	return f.Store.WriteTable(ctx, name, t)
}

func TestSaveFailuresAreWarnings(t *testing.T) {
	ctx := context.Background()
	tables := flakyTables{Store: memory.New(), fail: "card/"}
	p := sampleProfile(t)
	stash, _ := p.Account("Stash")
	before := stash.Balance()

	warnings := New(tables, WithLogger(quiet)).SaveProfile(ctx, p)
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v", warnings)
	}
	for _, w := range warnings {
		if !errors.Is(w, errBoom) || !strings.HasPrefix(w.Table, "card/visa/") {
			t.Errorf("unexpected warning %v", w)
		}
	}
	if stash.Balance() != before {
		t.Fatal("failed save changed the profile")
	}
	if _, err := tables.ReadTable(ctx, AccountsTable); err != nil {
		t.Fatalf("other tables not written: %v", err)
	}
}

func TestForgetRemovesTables(t *testing.T) {
	ctx := context.Background()
	tables := memory.New()
	store := New(tables, WithLogger(quiet))
	p := sampleProfile(t)
	_ = store.SaveProfile(ctx, p)

	if err := p.RemoveCard("visa"); err != nil {
		t.Fatalf("RemoveCard: %v", err)
	}
	if warnings := store.Forget(ctx, "visa"); len(warnings) != 0 {
		t.Fatalf("warnings: %v", warnings)
	}
	_ = store.SaveCards(ctx, p)
	for _, name := range tables.Names() {
		if strings.HasPrefix(name, "card/") {
			t.Errorf("stale table %s", name)
		}
	}
}
