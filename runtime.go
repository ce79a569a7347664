package inline

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.miragespace.co/inline/amd"
	"go.miragespace.co/inline/config"
	"go.miragespace.co/inline/document"
	"go.miragespace.co/inline/plugins/text"
	"go.miragespace.co/inline/source"

	"github.com/puzpuzpuz/xsync/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/cpu"
)

// PluginEnv carries the per-page services a loader plugin may use.
type PluginEnv struct {
	Context context.Context
	Logger  *zap.Logger
	Source  source.Source
	Offload text.Offload
}

// PluginFactory builds a plugin instance for one page.
type PluginFactory func(env PluginEnv) amd.Plugin

type Options struct {
	// Config defaults to config.Default() when nil.
	Config *config.Config
	Source source.Source
}

// Result is the outcome of rendering one page.
type Result struct {
	HTML    string              `json:"html"`
	Defined map[string][]string `json:"defined"`
	Errors  []string            `json:"errors,omitempty"`
}

type Stats struct {
	Pages    uint64 `json:"pages"`
	Failures uint64 `json:"failures"`
	Active   int64  `json:"active"`
}

type Runtime struct {
	logger   *zap.Logger
	source   source.Source
	shimSrc  string
	settle   time.Duration
	contexts map[string]amd.Config
	plugins  *xsync.MapOf[string, PluginFactory]
	limiter  *semaphore.Weighted
	pages    atomic.Uint64
	_        cpu.CacheLinePad
	failures atomic.Uint64
	_        cpu.CacheLinePad
	active   atomic.Int64
}

// NewRuntime returns a runtime rendering at most Config.MaxPages pages
// concurrently. Every page gets a fresh JavaScript VM.
func NewRuntime(logger *zap.Logger, opts Options) (*Runtime, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if opts.Source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	settle, err := cfg.Settle()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		logger:   logger,
		source:   opts.Source,
		shimSrc:  cfg.ShimSrc,
		settle:   settle,
		contexts: cfg.ModuleContexts(),
		plugins:  xsync.NewMapOf[PluginFactory](),
		limiter:  semaphore.NewWeighted(int64(cfg.MaxPages)),
	}

	rt.RegisterPlugin(text.Name, func(env PluginEnv) amd.Plugin {
		return text.New(env.Context, env.Logger, env.Source, env.Offload)
	})

	logger.Info("Inline runtime configured",
		zap.String("shimSrc", rt.shimSrc),
		zap.Duration("settleTimeout", settle),
		zap.Int("maxPages", cfg.MaxPages),
		zap.Int("contexts", len(rt.contexts)),
	)

	return rt, nil
}

// RegisterPlugin makes a loader plugin available to pages rendered after
// the call. Registering a name twice replaces the previous factory.
func (rt *Runtime) RegisterPlugin(name string, factory PluginFactory) {
	rt.plugins.Store(name, factory)
}

// Render executes the scripts of the page read from r in document order
// and returns the document once the page settles. name identifies the page
// in logs and script positions.
func (rt *Runtime) Render(ctx context.Context, name string, r io.Reader) (*Result, error) {
	if err := rt.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer rt.limiter.Release(1)

	rt.pages.Add(1)
	rt.active.Add(1)
	defer rt.active.Add(-1)

	start := time.Now()
	res, err := rt.render(ctx, name, r)
	if err != nil {
		rt.failures.Add(1)
		rt.logger.Error("Page render failed", zap.String("page", name), zap.Error(err))
		return nil, err
	}

	rt.logger.Debug("Page rendered",
		zap.String("page", name),
		zap.Duration("duration", time.Since(start)),
		zap.Int("errors", len(res.Errors)),
	)

	return res, nil
}

func (rt *Runtime) render(ctx context.Context, name string, r io.Reader) (*Result, error) {
	doc, err := document.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("error parsing page: %w", err)
	}

	page, err := rt.newPage(ctx, name, doc)
	if err != nil {
		return nil, err
	}

	res, err := page.run(ctx, rt.settle)
	page.stop(err != nil)

	return res, err
}

func (rt *Runtime) Stats() Stats {
	return Stats{
		Pages:    rt.pages.Load(),
		Failures: rt.failures.Load(),
		Active:   rt.active.Load(),
	}
}
