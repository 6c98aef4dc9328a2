package core

import (
	"iter"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Ledger is an ordered list of transactions owned by exactly one account or
// one side of a card. Insertion order defines the 1-based indices shown to
// callers. The ledger enforces no balance or limit rules; that is the owner's
// job.
type Ledger struct {
	items []Transaction
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Len returns the number of records.
func (l *Ledger) Len() int { return len(l.items) }

// AppendDeposit appends tx as a deposit.
func (l *Ledger) AppendDeposit(tx Transaction) {
	l.items = append(l.items, tx.withDirection(false))
}

// AppendExpenditure appends tx as an expenditure.
func (l *Ledger) AppendExpenditure(tx Transaction) {
	l.items = append(l.items, tx.withDirection(true))
}

// ImportRaw appends tx as-is. It is the trusted restore path from storage.
func (l *Ledger) ImportRaw(tx Transaction) {
	l.items = append(l.items, tx)
}

func (l *Ledger) checkIndex(index int) error {
	if len(l.items) == 0 {
		return ErrEmptyLedger
	}
	if index < 1 || index > len(l.items) {
		return notFoundf("transaction %d does not exist, valid range is 1-%d", index, len(l.items))
	}
	return nil
}

// GetAt returns the record at the 1-based index.
func (l *Ledger) GetAt(index int) (Transaction, error) {
	if err := l.checkIndex(index); err != nil {
		return Transaction{}, err
	}
	return l.items[index-1], nil
}

// DeleteAt removes the record at index and returns its signed amount, the
// delta the owner must reverse.
func (l *Ledger) DeleteAt(index int) (Money, error) {
	if err := l.checkIndex(index); err != nil {
		return Money{}, err
	}
	removed := l.items[index-1]
	l.items = slices.Delete(l.items, index-1, index)
	return removed.Signed(), nil
}

// PreviewEdit returns the record at index before and after applying e,
// without changing the ledger.
func (l *Ledger) PreviewEdit(index int, e Edit) (before, after Transaction, err error) {
	if err := l.checkIndex(index); err != nil {
		return Transaction{}, Transaction{}, err
	}
	before = l.items[index-1]
	after, err = e.Apply(before)
	if err != nil {
		return Transaction{}, Transaction{}, err
	}
	return before, after, nil
}

// EditAt applies e to the record at index and returns its old and new
// amounts. Parse failures leave the record untouched.
func (l *Ledger) EditAt(index int, e Edit) (oldAmount, newAmount Money, err error) {
	before, after, err := l.PreviewEdit(index, e)
	if err != nil {
		return Money{}, Money{}, err
	}
	l.items[index-1] = after
	return before.Amount, after.Amount, nil
}

// ListRecent returns up to n records matching dir, most recent first, with
// their 1-based ledger index. The sequence is lazy and may be ranged over
// more than once; each pass reflects the ledger at iteration time.
func (l *Ledger) ListRecent(n int, dir Direction) (iter.Seq2[int, Transaction], error) {
	if n < 1 {
		return nil, validationf("number of %ss to list must be at least 1", dir)
	}
	if !slices.ContainsFunc(l.items, dir.Matches) {
		return nil, notFoundf("there are no %ss", dir)
	}
	return func(yield func(int, Transaction) bool) {
		listed := 0
		for i := len(l.items) - 1; i >= 0 && listed < n; i-- {
			if !dir.Matches(l.items[i]) {
				continue
			}
			listed++
			if !yield(i+1, l.items[i]) {
				return
			}
		}
	}, nil
}

// All yields every record in insertion order with its 1-based index.
func (l *Ledger) All() iter.Seq2[int, Transaction] {
	return func(yield func(int, Transaction) bool) {
		for i, tx := range l.items {
			if !yield(i+1, tx) {
				return
			}
		}
	}
}

// SumInMonth adds up the amounts of records in dir dated in ym.
func (l *Ledger) SumInMonth(ym YearMonth, dir Direction) Money {
	var total Money
	for _, tx := range l.items {
		if dir.Matches(tx) && ym.Contains(tx.Date) {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// FindByCardBillKey returns the 1-based index of the record in dir carrying
// the card-bill key.
func (l *Ledger) FindByCardBillKey(cardID uuid.UUID, billMonth YearMonth, dir Direction) (int, bool) {
	for i, tx := range l.items {
		if dir.Matches(tx) && tx.MatchesCardBill(cardID, billMonth) {
			return i + 1, true
		}
	}
	return 0, false
}

// TakeMonth removes every record in dir dated in ym and returns them in
// ledger order.
func (l *Ledger) TakeMonth(ym YearMonth, dir Direction) []Transaction {
	var taken []Transaction
	kept := l.items[:0]
	for _, tx := range l.items {
		if dir.Matches(tx) && ym.Contains(tx.Date) {
			taken = append(taken, tx)
			continue
		}
		kept = append(kept, tx)
	}
	clear(l.items[len(kept):])
	l.items = kept
	return taken
}

// Query selects records for Find. Zero dates leave that side of the range
// open; empty strings match everything.
type Query struct {
	From        Date
	To          Date
	Description string
	Category    string
}

// Entry is a record together with its 1-based ledger index.
type Entry struct {
	Index int
	Transaction
}

// Find returns the records matching q: inclusive date range and
// case-insensitive substring match on description and category.
func (l *Ledger) Find(q Query) ([]Entry, error) {
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From.Time) {
		return nil, validationf("start date %s is after end date %s", q.From.StorageString(), q.To.StorageString())
	}
	desc := strings.ToLower(strings.TrimSpace(q.Description))
	cat := strings.ToLower(strings.TrimSpace(q.Category))

	var out []Entry
	for i, tx := range l.items {
		if !q.From.IsZero() && tx.Date.Before(q.From.Time) {
			continue
		}
		if !q.To.IsZero() && tx.Date.After(q.To.Time) {
			continue
		}
		if desc != "" && !strings.Contains(strings.ToLower(tx.Description), desc) {
			continue
		}
		if cat != "" && !strings.Contains(strings.ToLower(tx.Category), cat) {
			continue
		}
		out = append(out, Entry{Index: i + 1, Transaction: tx})
	}
	if len(out) == 0 {
		return nil, notFoundf("no transactions match the search")
	}
	return out, nil
}
