// Package recurring holds monthly recurring expenditure templates and the
// catch-up loop that replays overdue templates into an account.
package recurring

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"owlmoney/internal/core"
)

// DefaultCatchUpLimit is the number of periods a single template may
// materialize in one CatchUp call.
const DefaultCatchUpLimit = 120

// ErrCatchUpLimit is the warning reason when a template stops because it hit
// the per-call limit. It resumes on the next call.
var ErrCatchUpLimit = errors.New("catch-up limit reached")

// Template is a monthly obligation not yet turned into a transaction.
type Template struct {
	Description string
	Amount      core.Money
	Category    string
	NextDue     core.Date
	// Spent reports whether the instance of the latest due cycle has been
	// posted. CatchUp sets it when it advances the template and clears it
	// when it leaves the template overdue.
	Spent bool

	anchorDay int
}

// NewTemplate creates a template whose day of month is taken from firstDue.
func NewTemplate(description string, amount core.Money, firstDue core.Date, category string) Template {
	return Template{
		Description: strings.TrimSpace(description),
		Amount:      amount,
		Category:    strings.TrimSpace(category),
		NextDue:     firstDue,
		anchorDay:   firstDue.Day(),
	}
}

// AnchorDay returns the day of month fixed at creation.
func (t Template) AnchorDay() int {
	if t.anchorDay == 0 {
		return t.NextDue.Day()
	}
	return t.anchorDay
}

// WithAnchorDay returns t with its day of month restored from storage.
func (t Template) WithAnchorDay(day int) Template {
	t.anchorDay = day
	return t
}

// Instance returns the expenditure the template produces for its current
// due date.
func (t Template) Instance() core.Transaction {
	return core.NewExpenditure(t.Description, t.Amount, t.NextDue, t.Category)
}

// advance moves NextDue forward by exactly one calendar month.
func (t *Template) advance() {
	t.NextDue = t.NextDue.AddMonthsClamped(1, t.AnchorDay())
	t.Spent = true
}

func (t Template) Validate() error {
	if err := t.NextDue.Validate(); err != nil {
		return err
	}
	if t.Description == "" {
		return core.ErrEmptyDescription
	}
	if t.Category == "" {
		return core.ErrEmptyCategory
	}
	return t.Amount.Validate()
}

func (t Template) String() string {
	return fmt.Sprintf("%s $%s (%s) next due %s", t.Description, t.Amount, t.Category, t.NextDue.Display())
}

// Outcome is the result kind of one materialization attempt.
type Outcome uint8

const (
	Posted Outcome = iota
	// InsufficientFunds means the account rejected the expenditure on a
	// balance rule.
	InsufficientFunds
	// Rejected means the expenditure itself was invalid.
	Rejected
	// Deferred means the catch-up limit stopped a template that is still
	// overdue; nothing was attempted.
	Deferred
)

func (o Outcome) String() string {
	switch o {
	case Posted:
		return "posted"
	case InsufficientFunds:
		return "insufficient funds"
	case Deferred:
		return "deferred"
	default:
		return "rejected"
	}
}

// Materialization is the explicit result of posting one template instance.
type Materialization struct {
	Outcome Outcome
	Reason  error
}

// Succeeded returns the Posted result.
func Succeeded() Materialization { return Materialization{Outcome: Posted} }

// Failed classifies a posting error into a failed Materialization.
func Failed(err error) Materialization {
	if errors.Is(err, core.ErrBalanceExceeded) || errors.Is(err, core.ErrNegativeBalance) {
		return Materialization{Outcome: InsufficientFunds, Reason: err}
	}
	return Materialization{Outcome: Rejected, Reason: err}
}

// Poster posts template instances through the owner's normal expenditure
// path so its balance rules apply.
type Poster interface {
	MaterializeExpenditure(tx core.Transaction) Materialization
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(tx core.Transaction) Materialization

func (f PosterFunc) MaterializeExpenditure(tx core.Transaction) Materialization { return f(tx) }

// Warning is a recoverable catch-up failure. The template keeps its due date
// and is retried on the next call.
type Warning struct {
	Index       int
	Description string
	Due         core.Date
	Outcome     Outcome
	Reason      error
}

func (w Warning) String() string {
	return fmt.Sprintf("recurring expenditure %d %q due %s was not posted: %v",
		w.Index, w.Description, w.Due.StorageString(), w.Reason)
}

// Report summarizes one CatchUp call.
type Report struct {
	Materialized int
	Warnings     []Warning
}

// Engine owns an ordered set of templates.
type Engine struct {
	templates []Template
	limit     int
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCatchUpLimit sets the per-template, per-call period limit. Values below
// one fall back to DefaultCatchUpLimit.
func WithCatchUpLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// WithLogger sets the logger used for catch-up warnings.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{limit: DefaultCatchUpLimit, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Len returns the number of templates.
func (e *Engine) Len() int { return len(e.templates) }

// CatchUpLimit returns the configured per-call limit.
func (e *Engine) CatchUpLimit() int { return e.limit }

// Add validates t and appends it.
func (e *Engine) Add(t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.anchorDay == 0 {
		t.anchorDay = t.NextDue.Day()
	}
	e.templates = append(e.templates, t)
	return nil
}

// ImportRaw appends t without validation.
func (e *Engine) ImportRaw(t Template) {
	e.templates = append(e.templates, t)
}

func (e *Engine) checkIndex(index int) error {
	if len(e.templates) == 0 {
		return fmt.Errorf("%w: there are no recurring expenditures", core.ErrNotFound)
	}
	if index < 1 || index > len(e.templates) {
		return fmt.Errorf("%w: recurring expenditure %d does not exist, valid range is 1-%d",
			core.ErrNotFound, index, len(e.templates))
	}
	return nil
}

// GetAt returns the template at the 1-based index.
func (e *Engine) GetAt(index int) (Template, error) {
	if err := e.checkIndex(index); err != nil {
		return Template{}, err
	}
	return e.templates[index-1], nil
}

// DeleteAt removes and returns the template at index.
func (e *Engine) DeleteAt(index int) (Template, error) {
	if err := e.checkIndex(index); err != nil {
		return Template{}, err
	}
	removed := e.templates[index-1]
	e.templates = slices.Delete(e.templates, index-1, index)
	return removed, nil
}

// Edit holds raw input for a template edit. Blank fields are unchanged; the
// due date and day of month cannot be edited.
type Edit struct {
	Description string
	Amount      string
	Category    string
}

// EditAt applies ed to the template at index and returns the result. Parse
// failures leave the template untouched.
func (e *Engine) EditAt(index int, ed Edit) (Template, error) {
	if err := e.checkIndex(index); err != nil {
		return Template{}, err
	}
	t := e.templates[index-1]
	if s := strings.TrimSpace(ed.Amount); s != "" {
		amount, err := core.ParseMoney(s)
		if err != nil {
			return Template{}, err
		}
		t.Amount = amount
	}
	if s := strings.TrimSpace(ed.Description); s != "" {
		t.Description = s
	}
	if s := strings.TrimSpace(ed.Category); s != "" {
		t.Category = s
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	e.templates[index-1] = t
	return t, nil
}

// List returns up to n templates, most recently added first.
func (e *Engine) List(n int) (iter.Seq2[int, Template], error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: number of recurring expenditures to list must be at least 1", core.ErrValidation)
	}
	if len(e.templates) == 0 {
		return nil, fmt.Errorf("%w: there are no recurring expenditures", core.ErrNotFound)
	}
	return func(yield func(int, Template) bool) {
		for i := len(e.templates) - 1; i >= 0 && len(e.templates)-i <= n; i-- {
			if !yield(i+1, e.templates[i]) {
				return
			}
		}
	}, nil
}

// All yields every template in insertion order with its 1-based index.
func (e *Engine) All() iter.Seq2[int, Template] {
	return func(yield func(int, Template) bool) {
		for i, t := range e.templates {
			if !yield(i+1, t) {
				return
			}
		}
	}
}

// Entry is a template together with its 1-based index.
type Entry struct {
	Index int
	Template
}

// Find returns templates whose description and category contain the given
// substrings, case-insensitively.
func (e *Engine) Find(description, category string) ([]Entry, error) {
	desc := strings.ToLower(strings.TrimSpace(description))
	cat := strings.ToLower(strings.TrimSpace(category))
	var out []Entry
	for i, t := range e.templates {
		if desc != "" && !strings.Contains(strings.ToLower(t.Description), desc) {
			continue
		}
		if cat != "" && !strings.Contains(strings.ToLower(t.Category), cat) {
			continue
		}
		out = append(out, Entry{Index: i + 1, Template: t})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no recurring expenditures match the search", core.ErrNotFound)
	}
	return out, nil
}

// CatchUp materializes every template instance due on or before now, in
// template order. A template stops at its first failed posting, or when it
// reaches the limit, and keeps that due date for the next call; the loop then
// moves on to the next template. Successful postings are never undone.
func (e *Engine) CatchUp(now core.Date, p Poster) Report {
	var report Report
	for i := range e.templates {
		t := &e.templates[i]
		steps := 0
		for t.NextDue.OnOrBefore(now) {
			if steps == e.limit {
				w := Warning{Index: i + 1, Description: t.Description, Due: t.NextDue, Outcome: Deferred, Reason: ErrCatchUpLimit}
				e.logger.Warn("Recurring catch-up limit reached, resuming on next reconciliation",
					"template", t.Description,
					"next_due", t.NextDue.StorageString(),
					"limit", e.limit)
				report.Warnings = append(report.Warnings, w)
				break
			}
			res := p.MaterializeExpenditure(t.Instance())
			if res.Outcome != Posted {
				w := Warning{Index: i + 1, Description: t.Description, Due: t.NextDue, Outcome: res.Outcome, Reason: res.Reason}
				e.logger.Warn("Recurring expenditure not posted",
					"template", t.Description,
					"due", t.NextDue.StorageString(),
					"outcome", res.Outcome.String(),
					"error", res.Reason)
				report.Warnings = append(report.Warnings, w)
				break
			}
			t.advance()
			steps++
			report.Materialized++
		}
		if t.NextDue.OnOrBefore(now) {
			t.Spent = false
		}
	}
	if report.Materialized > 0 {
		e.logger.Info("Recurring expenditures caught up",
			"materialized", report.Materialized,
			"warnings", len(report.Warnings))
	}
	return report
}
