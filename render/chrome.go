package render

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Browser drives an external browser process. Start acquires the process,
// Close releases it; Capture renders one page and returns a PNG of the
// element matching selector.
type Browser interface {
	Start(ctx context.Context) error
	Capture(ctx context.Context, markup, selector string) ([]byte, error)
	Close() error
}

// ChromeOptions configures the headless Chrome process.
type ChromeOptions struct {
	ExecPath    string
	Width       int64
	Height      int64
	DeviceScale float64
	Headless    bool
}

// ChromeBrowser is a Browser backed by Chrome through the DevTools protocol.
type ChromeBrowser struct {
	opts ChromeOptions

	ctx           context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

var errNotStarted = errors.New("browser not started")

// chromeCandidates are looked up on PATH by FindChrome.
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
}

// FindChrome returns the first Chrome binary found on PATH, or "".
func FindChrome() string {
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// NewChromeBrowser creates a browser that is launched on Start.
func NewChromeBrowser(opts ChromeOptions) *ChromeBrowser {
	return &ChromeBrowser{opts: opts}
}

// Start launches the browser process. The process is tied to ctx and is
// killed when ctx ends, even if Close is never called.
func (b *ChromeBrowser) Start(ctx context.Context) error {
	if b.ctx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(int(b.opts.Width), int(b.opts.Height)),
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("hide-scrollbars", true),
	)
	if b.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// The first Run on a fresh context launches the process
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	b.ctx = browserCtx
	b.cancelAlloc = cancelAlloc
	b.cancelBrowser = cancelBrowser
	return nil
}

// Capture opens a new tab, injects markup, waits for selector to become
// visible and screenshots that element. The tab is closed before returning.
func (b *ChromeBrowser) Capture(ctx context.Context, markup, selector string) ([]byte, error) {
	if b.ctx == nil {
		return nil, errNotStarted
	}

	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var buf []byte
	err := chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(b.opts.Width, b.opts.Height, b.opts.DeviceScale, false),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, markup).Do(ctx)
		}),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return buf, nil
}

// Close shuts the browser down and waits for the process to exit. It is
// safe to call more than once.
func (b *ChromeBrowser) Close() error {
	if b.ctx == nil {
		return nil
	}

	err := chromedp.Cancel(b.ctx)
	b.cancelBrowser()
	b.cancelAlloc()
	b.ctx = nil
	b.cancelBrowser = nil
	b.cancelAlloc = nil

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
