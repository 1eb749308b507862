package viewmodel

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"go.uber.org/zap"
)

const (
	// DefaultPageSize is the number of rows shown per page.
	DefaultPageSize = 5
	// LoginRoute is where the navigator sends signed-out operators.
	LoginRoute = "/login"
)

var (
	// ErrNotAuthenticated is returned by Load when the session holds no usable token.
	ErrNotAuthenticated = errors.New("viewmodel: not authenticated")
	// ErrNotConfirmed is returned by Remove when the deletion was not confirmed.
	ErrNotConfirmed = errors.New("viewmodel: deletion not confirmed")

	errMissingSource    = errors.New("viewmodel: data source is required")
	errMissingSession   = errors.New("viewmodel: session is required")
	errMissingNavigator = errors.New("viewmodel: navigator is required")
)

// Source is the affiliate data source.
type Source interface {
	FetchAll(ctx context.Context) ([]affiliates.Record, error)
	Create(ctx context.Context, request affiliates.CreateRequest) (affiliates.Record, error)
	UpdateStatus(ctx context.Context, id string, status affiliates.Status) (affiliates.Record, error)
	Delete(ctx context.Context, id string) error
}

// SessionGuard exposes the login state the list depends on.
type SessionGuard interface {
	IsAuthenticated() bool
	CurrentUser() (users.Profile, bool)
	Invalidate()
}

// Navigator moves the presentation layer to another route.
type Navigator interface {
	Redirect(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

// Redirect calls f(route).
func (f NavigatorFunc) Redirect(route string) {
	f(route)
}

// Config describes the collaborators of an AffiliateList.
type Config struct {
	Source    Source
	Session   SessionGuard
	Navigator Navigator
	Logger    *zap.Logger
	// PageSize defaults to DefaultPageSize.
	PageSize int
}

// Stats summarises the whole working list, independent of search and paging.
type Stats struct {
	Total   int
	Active  int
	Revenue float64
}

// View is the page of rows the presentation layer renders.
type View struct {
	Rows          []affiliates.Record
	Page          int
	TotalPages    int
	PageSize      int
	FilteredCount int
	// RangeStart and RangeEnd are 1-based and inclusive; both are 0 when nothing matches.
	RangeStart int
	RangeEnd   int
	Sort       Sort
	SearchTerm string
}

// AffiliateList holds the working list of affiliates and the table state derived from it.
// The mutex keeps state reads and writes consistent; it does not serialise operations,
// so overlapping loads race and the last one to finish wins.
type AffiliateList struct {
	source    Source
	session   SessionGuard
	navigator Navigator
	logger    *zap.Logger
	pageSize  int

	mu         sync.Mutex
	records    []affiliates.Record
	stats      Stats
	searchTerm string
	order      Sort
	page       int
	inFlight   int
	lastError  string
}

// New constructs an empty list.
func New(cfg Config) (*AffiliateList, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	if cfg.Session == nil {
		return nil, errMissingSession
	}
	if cfg.Navigator == nil {
		return nil, errMissingNavigator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &AffiliateList{
		source:    cfg.Source,
		session:   cfg.Session,
		navigator: cfg.Navigator,
		logger:    logger,
		pageSize:  pageSize,
		records:   []affiliates.Record{},
		order:     DefaultSort,
		page:      1,
	}, nil
}

// Load replaces the working list with the data source's current contents.
// On failure the previous list is kept and the error is recorded; a rejected session is invalidated.
func (l *AffiliateList) Load(ctx context.Context) error {
	if !l.session.IsAuthenticated() {
		l.navigator.Redirect(LoginRoute)
		return ErrNotAuthenticated
	}

	l.begin()
	defer l.end()

	records, err := l.source.FetchAll(ctx)
	if err != nil {
		l.mu.Lock()
		l.lastError = errorMessage(err)
		l.mu.Unlock()

		if affiliates.IsUnauthorized(err) {
			l.logger.Info("session rejected while loading affiliates", zap.Error(err))
			l.session.Invalidate()
			l.navigator.Redirect(LoginRoute)
			return err
		}
		l.logger.Warn("failed to load affiliates",
			zap.String("operation", "viewmodel.load"),
			zap.String("kind", string(affiliates.KindOf(err))),
			zap.Error(err))
		return err
	}

	working := make([]affiliates.Record, len(records))
	copy(working, records)

	l.mu.Lock()
	l.records = working
	l.stats = summarize(working)
	l.lastError = ""
	l.mu.Unlock()
	return nil
}

// SetSearchTerm filters the list to rows whose name or email contains term, ignoring case.
func (l *AffiliateList) SetSearchTerm(term string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.searchTerm = term
}

// SetSort selects the sort column. Selecting the active column flips its direction;
// another column starts ascending. Unknown keys are ignored.
func (l *AffiliateList) SetSort(key SortKey) {
	parsed, ok := ParseSortKey(string(key))
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = l.order.next(parsed)
}

// SetPage moves to page n, clamped into the available range.
func (l *AffiliateList) SetPage(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.page = clampPage(n, totalPages(len(l.filteredLocked()), l.pageSize))
}

// Create validates the draft, submits it, and reloads the list.
// Validation failures are returned as *affiliates.ValidationError without contacting the source.
func (l *AffiliateList) Create(ctx context.Context, draft affiliates.Draft) (affiliates.Record, error) {
	request, err := affiliates.NewCreateRequest(draft)
	if err != nil {
		return affiliates.Record{}, err
	}

	record, err := l.mutate(ctx, "viewmodel.create", func(ctx context.Context) (affiliates.Record, error) {
		return l.source.Create(ctx, request)
	})
	if err != nil {
		return affiliates.Record{}, err
	}
	return record, l.Load(ctx)
}

// UpdateStatus submits the status, upper-cased, for the affiliate and reloads the list.
func (l *AffiliateList) UpdateStatus(ctx context.Context, id string, status string) (affiliates.Record, error) {
	normalized := affiliates.Status(strings.ToUpper(strings.TrimSpace(status)))
	record, err := l.mutate(ctx, "viewmodel.update_status", func(ctx context.Context) (affiliates.Record, error) {
		return l.source.UpdateStatus(ctx, id, normalized)
	})
	if err != nil {
		return affiliates.Record{}, err
	}
	return record, l.Load(ctx)
}

// Remove deletes the affiliate once confirmed and reloads the list.
func (l *AffiliateList) Remove(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	_, err := l.mutate(ctx, "viewmodel.remove", func(ctx context.Context) (affiliates.Record, error) {
		return affiliates.Record{}, l.source.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return l.Load(ctx)
}

func (l *AffiliateList) mutate(ctx context.Context, operation string, call func(context.Context) (affiliates.Record, error)) (affiliates.Record, error) {
	l.begin()
	defer l.end()
	record, err := call(ctx)
	if err != nil {
		l.logger.Warn("affiliate mutation failed",
			zap.String("operation", operation),
			zap.String("kind", string(affiliates.KindOf(err))),
			zap.Error(err))
	}
	return record, err
}

// View derives the visible page: filter, then stable sort, then slice.
func (l *AffiliateList) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()

	filtered := l.filteredLocked()
	sortRecords(filtered, l.order)

	pages := totalPages(len(filtered), l.pageSize)
	page := clampPage(l.page, pages)

	start := (page - 1) * l.pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + l.pageSize
	if end > len(filtered) {
		end = len(filtered)
	}

	view := View{
		Rows:          filtered[start:end],
		Page:          page,
		TotalPages:    pages,
		PageSize:      l.pageSize,
		FilteredCount: len(filtered),
		Sort:          l.order,
		SearchTerm:    l.searchTerm,
	}
	if len(filtered) > 0 {
		view.RangeStart = start + 1
		view.RangeEnd = end
	}
	return view
}

// Stats returns the summary of the last successful load.
func (l *AffiliateList) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Loading reports whether any load or mutation is in flight.
func (l *AffiliateList) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight > 0
}

// LastError returns the message of the most recent failed load, or "".
func (l *AffiliateList) LastError() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastError
}

// CurrentUser returns the signed-in operator for display.
func (l *AffiliateList) CurrentUser() (users.Profile, bool) {
	return l.session.CurrentUser()
}

// Records returns a copy of the full working list in source order.
func (l *AffiliateList) Records() []affiliates.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]affiliates.Record, len(l.records))
	copy(out, l.records)
	return out
}

func (l *AffiliateList) begin() {
	l.mu.Lock()
	l.inFlight++
	l.mu.Unlock()
}

func (l *AffiliateList) end() {
	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()
}

// filteredLocked returns a fresh slice of matching records; l.mu must be held.
func (l *AffiliateList) filteredLocked() []affiliates.Record {
	term := strings.ToLower(l.searchTerm)
	filtered := make([]affiliates.Record, 0, len(l.records))
	for _, record := range l.records {
		if matchesSearch(record, term) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

func summarize(records []affiliates.Record) Stats {
	stats := Stats{Total: len(records)}
	for _, record := range records {
		if record.Status == affiliates.StatusActive {
			stats.Active++
		}
		stats.Revenue += record.Revenue
	}
	return stats
}

func totalPages(count, pageSize int) int {
	if count == 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

func clampPage(page, pages int) int {
	if page < 1 {
		return 1
	}
	if page > pages {
		return pages
	}
	return page
}

func errorMessage(err error) string {
	var sourceErr *affiliates.SourceError
	if errors.As(err, &sourceErr) && sourceErr.Message != "" {
		return sourceErr.Message
	}
	return err.Error()
}
