// Package render turns a stored record into a PNG card by driving a headless
// browser through a prepare, render, destroy lifecycle.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pevans/dailybrief/digest"
	"github.com/pevans/dailybrief/logger"
)

var (
	ErrRender      = errors.New("render failed")
	ErrNotPrepared = errors.New("renderer not prepared")
)

// Lifecycle is the prepare, render, destroy contract a Renderer fulfils.
type Lifecycle interface {
	Prepare(ctx context.Context) error
	Render(ctx context.Context, rec digest.Record) ([]byte, error)
	Destroy() error
}

// Renderer owns one browser process between Prepare and Destroy. It renders
// one card at a time; there is no page pool.
type Renderer struct {
	browser  Browser
	timeout  time.Duration
	log      *logger.Logger
	prepared bool
}

// NewRenderer creates a renderer over browser. A zero timeout leaves each
// render bounded only by the caller's context.
func NewRenderer(browser Browser, timeout time.Duration, log *logger.Logger) *Renderer {
	if log == nil {
		log = logger.Discard()
	}
	return &Renderer{browser: browser, timeout: timeout, log: log}
}

// Prepare starts the browser. Calling it again before Destroy is a no-op.
func (r *Renderer) Prepare(ctx context.Context) error {
	if r.prepared {
		return nil
	}

	start := time.Now()
	if err := r.browser.Start(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	r.prepared = true
	r.log.Debug("browser started", "elapsed", time.Since(start))
	return nil
}

// Render produces the PNG card for rec.
func (r *Renderer) Render(ctx context.Context, rec digest.Record) ([]byte, error) {
	if !r.prepared {
		return nil, ErrNotPrepared
	}

	markup, err := HTML(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	png, err := r.browser.Capture(ctx, markup, MainSelector)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRender, rec.Date, err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("%w: %s: empty screenshot", ErrRender, rec.Date)
	}

	r.log.Debug("card rendered", "date", rec.Date, "bytes", len(png), "elapsed", time.Since(start))
	return png, nil
}

// Destroy shuts the browser down. It is safe to call without a successful
// Prepare.
func (r *Renderer) Destroy() error {
	if !r.prepared {
		return nil
	}
	r.prepared = false

	if err := r.browser.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	r.log.Debug("browser closed")
	return nil
}

// Capture renders a single record inside its own Prepare/Destroy bracket.
// Destroy runs whether or not the render succeeds.
func Capture(ctx context.Context, r Lifecycle, rec digest.Record) (png []byte, err error) {
	if err := r.Prepare(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if derr := r.Destroy(); derr != nil && err == nil {
			err = derr
		}
	}()

	return r.Render(ctx, rec)
}
