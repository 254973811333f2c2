package research

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Browser loads a page and returns its rendered HTML.
type Browser interface {
	HTML(ctx context.Context, url string) (string, error)
	Close() error
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	Bin        string        // Chrome binary; empty lets the launcher find or download one
	MaxPages   int64         // Concurrent pages
	NavTimeout time.Duration // Per-page load budget
	DisableSHM bool          // Pass --disable-dev-shm-usage, needed in small containers
	ControlURL string        // Connect to a running browser instead of launching
}

// RodBrowser drives a single headless Chrome shared by all requests. The
// browser is launched on first use; pages are bounded by a semaphore.
type RodBrowser struct {
	cfg    BrowserConfig
	slots  *semaphore.Weighted
	logger *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodBrowser creates a browser that launches lazily.
func NewRodBrowser(cfg BrowserConfig, logger *zap.Logger) *RodBrowser {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	return &RodBrowser{
		cfg:    cfg,
		slots:  semaphore.NewWeighted(cfg.MaxPages),
		logger: logger,
	}
}

func (b *RodBrowser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return b.browser, nil
		}
		b.logger.Warn("Stale browser connection, relaunching")
		_ = b.browser.Close()
		b.browser = nil
	}

	controlURL := b.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true).Set("no-sandbox")
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		if b.cfg.DisableSHM {
			l = l.Set("disable-dev-shm-usage")
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser
	return browser, nil
}

// HTML opens url in a fresh incognito page, waits for it to load and returns
// the document markup.
func (b *RodBrowser) HTML(ctx context.Context, url string) (string, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer b.slots.Release(1)

	browser, err := b.connect()
	if err != nil {
		return "", err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	p := page.Context(ctx).Timeout(b.cfg.NavTimeout)
	defer p.CancelTimeout()

	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
		b.logger.Debug("Failed to set user agent", zap.Error(err))
	}
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", url, err)
	}
	return p.HTML()
}

// Close shuts the browser down if it was launched.
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
