package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/trappiz/tesla-order-status/internal/diff"
	"github.com/trappiz/tesla-order-status/internal/store"
	"github.com/trappiz/tesla-order-status/internal/tree"
)

// DefaultTTL is the throttle window: a reference fetched more recently than
// this is served from cache instead of hitting the API again.
const DefaultTTL = 60 * time.Second

// DefaultIgnoredPrefixes lists change paths that never flip the status code.
// The API re-translates task texts on every deviceLanguage change, which
// would otherwise report phantom changes. The records are still written to
// history; they are only excluded from status relevance.
var DefaultIgnoredPrefixes = []string{
	"details.tasks.registration.translations",
	"details.tasks.scheduling.translations",
	"details.tasks.finalPayment.translations",
	"details.tasks.deliveryDetails.translations",
}

// Order is one entry of the remote order list: the reference plus the raw
// summary subtree the list endpoint returned for it.
type Order struct {
	Reference string
	Summary   tree.Node
}

// Fetcher performs authenticated remote reads. Implementations classify
// failures as CheckError codes and perform no internal retries.
type Fetcher interface {
	// List returns all orders visible to the account.
	List(ctx context.Context, accessToken string) ([]Order, error)

	// Details returns the nested task tree for one order reference.
	Details(ctx context.Context, accessToken, reference string) (tree.Node, error)
}

// TokenSource owns bearer-token persistence and refresh. It never initiates
// an interactive login.
type TokenSource interface {
	// Load returns the stored token record or a MISSING_CREDENTIALS error.
	Load(ctx context.Context) (store.TokenRecord, error)

	// EnsureValid returns a valid record, transparently refreshing a
	// near-expiry token. Refresh failure is an AUTH_ERROR.
	EnsureValid(ctx context.Context, rec store.TokenRecord) (store.TokenRecord, error)
}

// Options controls one run.
type Options struct {
	// ForceCached serves every reference from the stored snapshot and never
	// calls the fetcher. A reference without a snapshot is a CACHE_MISS.
	ForceCached bool

	// BypassCache forces a live fetch even inside the TTL window.
	BypassCache bool

	// OrderFilter narrows which reference's missing-entry errors are
	// reported in cached mode. Display filtering is the caller's concern;
	// every tracked reference is still refreshed.
	OrderFilter string
}

// Result is the outcome for one order reference.
type Result struct {
	Reference string
	Snapshot  store.Snapshot
	Changes   []diff.Record

	// Throttled marks automatic TTL-based cache reuse.
	Throttled bool

	// FirstSeen marks the first snapshot for a reference; there is no prior
	// tree to diff against, so no history batch is written.
	FirstSeen bool

	Code Code
	Err  error
}

// Engine coordinates the per-reference check pipeline.
type Engine struct {
	store   *store.Store
	fetcher Fetcher
	tokens  TokenSource
	clock   Clock
	ttl     time.Duration
	ignored []string
}

// Config carries optional engine settings; zero values select defaults.
type Config struct {
	TTL             time.Duration
	IgnoredPrefixes []string
	Clock           Clock
}

// New creates an engine over the given store, fetcher, and token source.
func New(st *store.Store, fetcher Fetcher, tokens TokenSource, cfg Config) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.IgnoredPrefixes == nil {
		cfg.IgnoredPrefixes = DefaultIgnoredPrefixes
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Engine{
		store:   st,
		fetcher: fetcher,
		tokens:  tokens,
		clock:   cfg.Clock,
		ttl:     cfg.TTL,
		ignored: cfg.IgnoredPrefixes,
	}
}

// CheckAll runs one poll cycle over every tracked reference and returns one
// Result per reference in stable reference order.
//
// The returned error is run-level only: missing credentials, an
// unrefreshable token, or a failed order-list fetch. Per-reference failures
// are isolated in their Result.
func (e *Engine) CheckAll(ctx context.Context, opts Options) ([]Result, error) {
	if opts.ForceCached {
		return e.checkCached(ctx, opts)
	}

	rec, err := e.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	rec, err = e.tokens.EnsureValid(ctx, rec)
	if err != nil {
		return nil, err
	}

	orders, err := e.fetcher.List(ctx, rec.AccessToken)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(orders, func(a, b Order) int {
		if a.Reference < b.Reference {
			return -1
		}
		if a.Reference > b.Reference {
			return 1
		}
		return 0
	})

	results := make([]Result, 0, len(orders))
	for _, o := range orders {
		results = append(results, e.checkOrder(ctx, rec.AccessToken, o, opts))
	}
	return results, nil
}

// checkCached serves every stored reference without touching the network.
func (e *Engine) checkCached(ctx context.Context, opts Options) ([]Result, error) {
	refs, err := e.store.References(ctx)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		ref := opts.OrderFilter
		return nil, NewCacheMissError(ref)
	}

	results := make([]Result, 0, len(refs))
	for _, ref := range refs {
		res := Result{Reference: ref}
		snap, err := e.store.LoadSnapshot(ctx, ref)
		if err != nil {
			res.Err = NewCacheMissError(ref)
			res.Code = CodeError
		} else {
			res.Snapshot = snap
			res.Code = CodeNoChange
		}
		results = append(results, res)
	}

	if opts.OrderFilter != "" && !slices.Contains(refs, opts.OrderFilter) {
		results = append(results, Result{
			Reference: opts.OrderFilter,
			Err:       NewCacheMissError(opts.OrderFilter),
			Code:      CodeError,
		})
	}
	return results, nil
}

// checkOrder runs the fetch-or-cache, diff, and persist steps for a single
// reference. Any failure is captured in the Result.
func (e *Engine) checkOrder(ctx context.Context, accessToken string, o Order, opts Options) Result {
	res := Result{Reference: o.Reference}

	prior, err := e.store.LoadSnapshot(ctx, o.Reference)
	hasPrior := err == nil
	if err != nil && !errors.Is(err, store.ErrNoSnapshot) {
		res.Err = err
		res.Code = CodeError
		return res
	}

	now := e.clock.Now()
	if hasPrior && !opts.BypassCache && now.Sub(prior.FetchedAt) < e.ttl {
		slog.Debug("throttled, reusing cached snapshot",
			"reference", o.Reference, "age", now.Sub(prior.FetchedAt))
		res.Snapshot = prior
		res.Throttled = true
		res.Code = Classify(false, true, true, true)
		return res
	}

	details, err := e.fetcher.Details(ctx, accessToken, o.Reference)
	if err != nil {
		// Cache entry stays untouched so the next run retries immediately.
		res.Err = err
		res.Code = Classify(false, false, false, true)
		return res
	}

	body := tree.Object{"order": o.Summary, "details": details}
	snap := store.Snapshot{Reference: o.Reference, Body: body, FetchedAt: now}

	if !hasPrior {
		if err := e.store.ReplaceSnapshot(ctx, snap); err != nil {
			res.Err = err
			res.Code = CodeError
			return res
		}
		slog.Info("tracking new order", "reference", o.Reference)
		res.Snapshot = snap
		res.FirstSeen = true
		res.Code = Classify(false, false, true, true)
		return res
	}

	records := diff.Diff(prior.Body, body)
	if len(records) == 0 {
		// Unchanged: restart the TTL window without rewriting the body.
		if err := e.store.TouchSnapshot(ctx, o.Reference, now); err != nil {
			res.Err = err
			res.Code = CodeError
			return res
		}
		res.Snapshot = snap
		res.Code = Classify(false, false, true, true)
		return res
	}

	if err := e.store.ReplaceSnapshot(ctx, snap); err != nil {
		res.Err = err
		res.Code = CodeError
		return res
	}
	if err := e.store.AppendChanges(ctx, o.Reference, records, now); err != nil {
		res.Err = err
		res.Code = CodeError
		return res
	}

	slog.Info("order changed", "reference", o.Reference, "records", len(records))
	res.Snapshot = snap
	res.Changes = records
	res.Code = Classify(e.relevant(records), false, true, true)
	return res
}

// relevant reports whether any record lies outside the ignored prefixes.
func (e *Engine) relevant(records []diff.Record) bool {
	for _, rec := range records {
		ignored := false
		for _, prefix := range e.ignored {
			if rec.Path.HasPrefix(prefix) {
				ignored = true
				break
			}
		}
		if !ignored {
			return true
		}
	}
	return false
}
