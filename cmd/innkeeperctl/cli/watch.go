package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/innkeeper-pms/innkeeper/internal/querycache"
	"github.com/innkeeper-pms/innkeeper/internal/realtime/syncclient"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	URL          string
	Cookie       string
	UserID       int64
	BranchID     *int64
	PollInterval time.Duration
	// Fetch, when set, refetches every invalidated key through the cache.
	Fetch  func(ctx context.Context, key string) (any, error)
	Out    io.Writer
	Logger *slog.Logger
}

// Watcher is a syncclient.Cache that reports each invalidation.
type Watcher struct {
	ctx   context.Context
	cache *querycache.Cache
	fetch func(ctx context.Context, key string) (any, error)

	mu  sync.Mutex
	out io.Writer
}

// NewWatcher wraps a query cache that prints to out.
func NewWatcher(ctx context.Context, out io.Writer, fetch func(context.Context, string) (any, error)) (*Watcher, error) {
	cache, err := querycache.New(512)
	if err != nil {
		return nil, err
	}
	return &Watcher{ctx: ctx, cache: cache, fetch: fetch, out: out}, nil
}

// Invalidate implements syncclient.Cache.
func (w *Watcher) Invalidate(keys ...string) {
	w.cache.Invalidate(keys...)
	w.printf("invalidate %s\n", strings.Join(keys, " "))
	w.refetch(keys)
}

// InvalidateAll implements syncclient.Cache.
func (w *Watcher) InvalidateAll() {
	w.cache.InvalidateAll()
	w.printf("invalidate *\n")
}

func (w *Watcher) refetch(keys []string) {
	if w.fetch == nil {
		return
	}
	for _, key := range keys {
		v, err := w.cache.Get(w.ctx, key, func(ctx context.Context) (any, error) {
			return w.fetch(ctx, key)
		})
		if err != nil {
			w.printf("refetch %s: %v\n", key, err)
			continue
		}
		w.printf("refetch %s: %v\n", key, v)
	}
}

func (w *Watcher) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprintf(w.out, format, args...)
}

// Watch runs a sync controller until ctx ends, printing what a browser
// client would invalidate.
func Watch(ctx context.Context, opts WatchOptions) error {
	watcher, err := NewWatcher(ctx, opts.Out, opts.Fetch)
	if err != nil {
		return err
	}
	header := http.Header{}
	if opts.Cookie != "" {
		header.Set("Cookie", opts.Cookie)
	}
	controller := syncclient.New(syncclient.Config{
		URL:          opts.URL,
		Header:       header,
		UserID:       opts.UserID,
		BranchID:     opts.BranchID,
		PollInterval: opts.PollInterval,
		Logger:       opts.Logger,
	}, watcher)
	if err := controller.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	controller.Close()
	return nil
}

// HTTPFetcher GETs keys relative to base and reports the status line.
func HTTPFetcher(client *http.Client, base, cookie string) func(context.Context, string) (any, error) {
	base = strings.TrimRight(base, "/")
	return func(ctx context.Context, key string) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+key, nil)
		if err != nil {
			return nil, err
		}
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		n, err := io.Copy(io.Discard, resp.Body)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%s (%d bytes)", resp.Status, n), nil
	}
}
