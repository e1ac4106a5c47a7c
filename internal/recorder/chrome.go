// Package recorder drives a real Chrome for recipe sessions. The live page
// is mirrored into a dom.Page snapshot and user events are replayed onto
// it, so the in-process inspector works against what the user sees.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"tinking/backend/internal/config"
	"tinking/backend/internal/dom"
	"tinking/backend/pkg/chrome"

	"github.com/chromedp/chromedp"
)

var ErrLauncherClosed = errors.New("recorder: launcher closed")

const (
	defaultSettleTime   = 2 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	closeTimeout        = 5 * time.Second
)

// LivePage is one Chrome tab kept in sync with a dom.Page.
type LivePage struct {
	page      *dom.Page
	ctx       context.Context
	cancel    context.CancelFunc
	poll      time.Duration
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once

	mutex     sync.RWMutex
	intercept func() bool
	onClose   func()
}

// Page returns the snapshot the inspector works on.
func (l *LivePage) Page() *dom.Page {
	return l.page
}

// Done is closed once the browser is gone.
func (l *LivePage) Done() <-chan struct{} {
	return l.done
}

// Intercept sets the guard deciding whether clicks reach the live page.
// While it reports true, clicks are captured but not performed.
func (l *LivePage) Intercept(fn func() bool) {
	l.mutex.Lock()
	l.intercept = fn
	l.mutex.Unlock()
}

// Close shuts the browser down. It is safe to call more than once.
func (l *LivePage) Close() {
	l.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(l.ctx, closeTimeout)
		if err := chromedp.Cancel(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Debug("graceful browser close failed", "error", err)
		}
		cancel()
		l.cancel()
		<-l.done

		l.mutex.RLock()
		onClose := l.onClose
		l.mutex.RUnlock()
		if onClose != nil {
			onClose()
		}
	})
}

func (l *LivePage) intercepting() bool {
	l.mutex.RLock()
	fn := l.intercept
	l.mutex.RUnlock()
	return fn != nil && fn()
}

// listen polls the capture script until the browser goes away.
func (l *LivePage) listen() {
	defer close(l.done)
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if err := l.tick(); err != nil {
				if l.ctx.Err() != nil {
					return
				}
				l.logger.Debug("live page poll failed", "error", err)
			}
		}
	}
}

func (l *LivePage) tick() error {
	expr, err := drainExpr(l.intercepting(), l.page.MarkedPaths())
	if err != nil {
		return err
	}
	var batch drained
	if err := chromedp.Run(l.ctx, chromedp.Evaluate(expr, &batch)); err != nil {
		return fmt.Errorf("drain events: %w", err)
	}
	if batch.Missing {
		if err := chromedp.Run(l.ctx, chromedp.Evaluate(captureScript, nil)); err != nil {
			return fmt.Errorf("reinstall capture script: %w", err)
		}
		l.logger.Debug("capture script reinstalled")
	}
	if batch.Dirty {
		if err := l.snapshot(); err != nil {
			return err
		}
	}
	for _, ev := range resolve(l.page, batch.Events) {
		l.page.Dispatch(ev)
	}
	return nil
}

func (l *LivePage) snapshot() error {
	var src string
	if err := chromedp.Run(l.ctx, chromedp.Evaluate(snapshotExpr, &src)); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return l.page.Reload(strings.NewReader(src))
}

// Launcher starts live pages and tracks them until they close.
type Launcher struct {
	cfg    config.ChromeConfig
	logger *slog.Logger

	mutex  sync.Mutex
	pages  map[*LivePage]struct{}
	closed bool
}

func NewLauncher(cfg config.ChromeConfig, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SettleTime <= 0 {
		cfg.SettleTime = defaultSettleTime
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Launcher{cfg: cfg, logger: logger, pages: make(map[*LivePage]struct{})}
}

// Open launches Chrome on pageURL and returns once the first snapshot is
// taken. ctx bounds the startup only; the browser lives until Close.
func (r *Launcher) Open(ctx context.Context, pageURL string) (*LivePage, error) {
	r.mutex.Lock()
	closed := r.closed
	r.mutex.Unlock()
	if closed {
		return nil, ErrLauncherClosed
	}

	execPath, err := chrome.Find(r.cfg.ExecPath)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With("url", pageURL)
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", r.cfg.HeadlessMode),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("no-pings", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(format, args...))
		}),
	)
	cancel := func() {
		tabCancel()
		allocCancel()
	}
	stop := context.AfterFunc(ctx, cancel)

	var src string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.SettleTime),
		chromedp.Evaluate(captureScript, nil),
		chromedp.Evaluate(snapshotExpr, &src),
	)
	if !stop() {
		return nil, fmt.Errorf("recorder: open %s: %w", pageURL, ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("recorder: open %s: %w", pageURL, err)
	}

	page, err := dom.ParseString(src, pageURL)
	if err != nil {
		cancel()
		return nil, err
	}

	live := &LivePage{
		page:   page,
		ctx:    tabCtx,
		cancel: cancel,
		poll:   r.cfg.PollInterval,
		logger: logger,
		done:   make(chan struct{}),
	}
	live.onClose = func() { r.forget(live) }

	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		cancel()
		return nil, ErrLauncherClosed
	}
	r.pages[live] = struct{}{}
	r.mutex.Unlock()

	go live.listen()
	logger.Info("live page opened", "chrome", execPath, "headless", r.cfg.HeadlessMode)
	return live, nil
}

// Len returns the number of open live pages.
func (r *Launcher) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.pages)
}

// CloseAll shuts every browser down and refuses further opens.
func (r *Launcher) CloseAll() {
	r.mutex.Lock()
	r.closed = true
	pages := make([]*LivePage, 0, len(r.pages))
	for p := range r.pages {
		pages = append(pages, p)
	}
	r.mutex.Unlock()

	for _, p := range pages {
		p.Close()
	}
}

func (r *Launcher) forget(p *LivePage) {
	r.mutex.Lock()
	delete(r.pages, p)
	r.mutex.Unlock()
}
