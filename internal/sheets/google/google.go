package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"owlmoney/internal/cache"
	ports "owlmoney/internal/sheets"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultCacheSize = 64
	defaultCacheTTL  = 2 * time.Minute
	// lastColumn bounds the cleared range; the widest table has seven columns.
	lastColumn = "Z"
)

// Ensure interface conformance
var (
	_ ports.TableStore   = (*Client)(nil)
	_ ports.TableDeleter = (*Client)(nil)
)

// Client mirrors tables into tabs of one spreadsheet, one tab per table.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string

	reads *cache.LRUCache[ports.Table]

	mu    sync.Mutex
	known map[string]bool
}

// Option configures a Client.
type Option func(*Client)

// WithTabPrefix prefixes every tab title, so several profiles can share a
// spreadsheet.
func WithTabPrefix(prefix string) Option {
	return func(c *Client) { c.prefix = strings.TrimSpace(prefix) }
}

// WithReadCache replaces the default read cache.
func WithReadCache(rc *cache.LRUCache[ports.Table]) Option {
	return func(c *Client) {
		if rc != nil {
			c.reads = rc
		}
	}
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID string, opts ...Option) *Client {
	c := &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		reads:         cache.NewLRUCache[ports.Table](defaultCacheSize, defaultCacheTTL),
		known:         map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_TAB_PREFIX.
func NewFromEnv(ctx context.Context, opts ...Option) (*Client, error) {
	if prefix := os.Getenv("GOOGLE_TAB_PREFIX"); prefix != "" {
		opts = append([]Option{WithTabPrefix(prefix)}, opts...)
	}
	return Open(ctx, os.Getenv("GOOGLE_SPREADSHEET_ID"), opts...)
}

// Open connects to spreadsheetID with service account credentials taken
// from the environment.
func Open(ctx context.Context, spreadsheetID string, opts ...Option) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, opts...), nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	creds, err := googleoauth.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(newHTTPClientWithPooling(creds.TokenSource)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts, authorizing requests with ts.
func newHTTPClientWithPooling(ts oauth2.TokenSource) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: transport},
		Timeout:   60 * time.Second,
	}
}

// tabTitle maps a logical table name to a tab title. Sheets titles cannot
// contain some characters used in range syntax.
func (c *Client) tabTitle(name string) string {
	title := strings.NewReplacer("/", " - ", "!", " ", ":", " ").Replace(name)
	if c.prefix != "" {
		title = c.prefix + " " + title
	}
	if len(title) > 100 {
		title = title[:100]
	}
	return title
}

// quoteRange returns the A1 range of the whole tab, quoting the title.
func quoteRange(title, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(title, "'", "''"), cells)
}

// WriteTable replaces the tab of the table with the header and rows.
func (c *Client) WriteTable(ctx context.Context, name string, t ports.Table) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := c.tabTitle(name)
	if err := c.ensureTab(ctx, title); err != nil {
		return err
	}

	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoteRange(title, "A:"+lastColumn), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", title, err)
	}

	values := make([][]any, 0, len(t.Rows)+1)
	values = append(values, toRow(t.Header))
	for _, r := range t.Rows {
		values = append(values, toRow(r))
	}
	// RAW keeps dates and amounts as text instead of letting Sheets reformat them.
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteRange(title, "A1"), &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", title, err)
	}
	c.reads.Set(name, t.Clone())
	return nil
}

// ReadTable returns the tab of the table, served from the read cache while
// fresh.
func (c *Client) ReadTable(ctx context.Context, name string) (ports.Table, error) {
	if t, ok := c.reads.Get(name); ok {
		return t.Clone(), nil
	}
	if c.svc == nil {
		return ports.Table{}, errors.New("sheets service not initialized")
	}
	title := c.tabTitle(name)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoteRange(title, "A:"+lastColumn)).Context(ctx).Do()
	if err != nil {
		if isMissingRange(err) {
			return ports.Table{}, fmt.Errorf("%s: %w", name, ports.ErrTableNotFound)
		}
		return ports.Table{}, fmt.Errorf("read %s: %w", title, err)
	}
	t := fromValues(resp.Values)
	c.reads.Set(name, t.Clone())
	return t, nil
}

// DeleteTable clears the tab. The tab itself is kept.
func (c *Client) DeleteTable(ctx context.Context, name string) error {
	c.reads.Delete(name)
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := c.tabTitle(name)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoteRange(title, "A:"+lastColumn), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil && !isMissingRange(err) {
		return fmt.Errorf("clear %s: %w", title, err)
	}
	return nil
}

// CacheStats reports read cache usage.
func (c *Client) CacheStats() cache.Stats { return c.reads.Stats() }

// ReadCache exposes the read cache so it can be registered with a janitor.
func (c *Client) ReadCache() *cache.LRUCache[ports.Table] { return c.reads }

// ensureTab creates the tab if the spreadsheet does not have it yet.
func (c *Client) ensureTab(ctx context.Context, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[title] {
		return nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.known[s.Properties.Title] = true
		}
	}
	if c.known[title] {
		return nil
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", title, err)
	}
	slog.InfoContext(ctx, "Created spreadsheet tab", "tab", title)
	c.known[title] = true
	return nil
}

func isMissingRange(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range")
}

func toRow(cells []string) []any {
	row := make([]any, len(cells))
	for i, v := range cells {
		row[i] = v
	}
	return row
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// fromValues converts a values matrix into a table. Sheets drops trailing
// empty cells, so short rows are padded to the header width.
func fromValues(values [][]any) ports.Table {
	if len(values) == 0 {
		return ports.Table{}
	}
	t := ports.Table{Header: toStrings(values[0])}
	for _, raw := range values[1:] {
		row := toStrings(raw)
		for len(row) < len(t.Header) {
			row = append(row, "")
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
