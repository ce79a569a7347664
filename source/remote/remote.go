package remote

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.miragespace.co/inline/source"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/puzpuzpuz/xsync/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	UserAgent = "require-inline/fetcher"

	DefaultCacheLimit = 32 << 20
)

// RemoteSource fetches http(s) urls. Concurrent fetches of one url share a
// request. Successful bodies are cached until the cache holds its limit in
// bytes; bodies fetched after that are served but not kept.
type RemoteSource struct {
	logger     *zap.Logger
	client     *http.Client
	group      singleflight.Group
	cache      *xsync.MapOf[string, []byte]
	cacheLimit int64
	cached     atomic.Int64
}

var _ source.Source = (*RemoteSource)(nil)

func NewRemoteSource(logger *zap.Logger, client *http.Client) *RemoteSource {
	if client == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConns = 100
		t.MaxIdleConnsPerHost = 10
		t.IdleConnTimeout = time.Minute

		client = &http.Client{
			Timeout:   time.Second * 10,
			Transport: t,
		}
	}

	return &RemoteSource{
		logger:     logger.With(zap.String("component", "remoteSource")),
		client:     client,
		cache:      xsync.NewMapOf[[]byte](),
		cacheLimit: DefaultCacheLimit,
	}
}

// WithCacheLimit sets the number of body bytes kept in the cache. Zero
// disables caching.
func (r *RemoteSource) WithCacheLimit(limit int64) *RemoteSource {
	r.cacheLimit = limit
	return r
}

// CacheSize returns the number of body bytes currently cached.
func (r *RemoteSource) CacheSize() int64 {
	return r.cached.Load()
}

func (r *RemoteSource) store(url string, body []byte) {
	size := int64(len(body))
	if r.cached.Add(size) > r.cacheLimit {
		r.cached.Add(-size)
		r.logger.Debug("Cache full, not keeping body", zap.String("url", url), zap.Int64("size", size))
		return
	}
	if _, loaded := r.cache.LoadOrStore(url, body); loaded {
		r.cached.Add(-size)
	}
}

func (r *RemoteSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	if b, ok := r.cache.Load(url); ok {
		return b, nil
	}

	v, err, shared := r.group.Do(url, func() (any, error) {
		return r.fetch(ctx, url)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Fetched", zap.String("url", url), zap.Bool("shared", shared))
	return v.([]byte), nil
}

func (r *RemoteSource) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("source: GET %s: %s", url, resp.Status)
	}

	buf := pool.NewBuffer(nil)
	defer buf.Reset()

	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("source: reading %s: %w", url, err)
	}

	body := make([]byte, buf.Len())
	copy(body, buf.Bytes())

	r.store(url, body)
	return body, nil
}
