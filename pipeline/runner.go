// Package pipeline runs the daily digest for one date: find the article,
// extract it, store the record once and render its card.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/dailybrief/digest"
	"github.com/pevans/dailybrief/extract"
	"github.com/pevans/dailybrief/logger"
	"github.com/pevans/dailybrief/render"
	"github.com/pevans/dailybrief/sources"
	"github.com/pevans/dailybrief/store"
)

// Status describes what a successful run did.
type Status string

const (
	// StatusSkipped means the record and image already existed.
	StatusSkipped Status = "skipped"
	// StatusRendered means the record existed and only the image was made.
	StatusRendered Status = "rendered"
	// StatusCreated means both the record and the image were made.
	StatusCreated Status = "created"
)

// Searcher finds the article for a target date.
type Searcher interface {
	Search(ctx context.Context, target time.Time) (*sources.Match, error)
}

// Extractor turns an article link into content and names the strategy that
// produced it.
type Extractor interface {
	Extract(ctx context.Context, link string) (*digest.Article, string, error)
}

// Recorder receives per-run metrics. metrics.Collector implements it.
type Recorder interface {
	RecordRender(outcome string)
	RecordRun(result string, d time.Duration, finished time.Time)
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Store     *store.Store
	Searcher  Searcher
	Extractor Extractor
	Renderer  render.Lifecycle

	// Location is the timezone dates and timestamps are interpreted in.
	Location *time.Location
	// ImageURL returns the public image URL recorded for a date. Optional.
	ImageURL func(date string) string
	Logger   *logger.Logger
	Recorder Recorder
}

// Result reports a successful run.
type Result struct {
	RunID    string
	Date     string
	Status   Status
	Record   *digest.Record
	Account  string
	Strategy string
}

// Runner executes runs. It holds no state between runs beyond its
// collaborators.
type Runner struct {
	store     *store.Store
	searcher  Searcher
	extractor Extractor
	renderer  render.Lifecycle
	loc       *time.Location
	imageURL  func(string) string
	log       *logger.Logger
	recorder  Recorder
	now       func() time.Time
}

// NewRunner creates a runner over deps.
func NewRunner(deps Deps) *Runner {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Runner{
		store:     deps.Store,
		searcher:  deps.Searcher,
		extractor: deps.Extractor,
		renderer:  deps.Renderer,
		loc:       loc,
		imageURL:  deps.ImageURL,
		log:       log,
		recorder:  deps.Recorder,
		now:       time.Now,
	}
}

// Today returns the current date key in the runner's timezone.
func (r *Runner) Today() string {
	return digest.Today(r.now(), r.loc)
}

// Run produces the record and image for date. When both already exist it
// returns StatusSkipped without touching the network. When only the record
// exists the image is rendered from it. Otherwise the article is searched,
// extracted, stored and rendered.
func (r *Runner) Run(ctx context.Context, date string) (result *Result, err error) {
	start := r.now()
	runID := uuid.NewString()
	log := r.log.With("run_id", runID, "date", date)

	defer func() {
		r.recordRun(result, err, r.now().Sub(start))
	}()

	if err := digest.ValidateDate(date); err != nil {
		return nil, newError(KindInvalidInput, date, err)
	}

	hasData := r.store.HasData(date)
	hasImage := r.store.HasImage(date)
	if hasData && hasImage {
		log.Info("record and image already exist, nothing to do")
		return &Result{RunID: runID, Date: date, Status: StatusSkipped}, nil
	}

	if hasData {
		log.Info("record exists, rendering image from it")
		rec, err := r.load(date)
		if err != nil {
			return nil, err
		}
		if err := r.renderAndSave(ctx, log, *rec); err != nil {
			return nil, err
		}
		return &Result{RunID: runID, Date: date, Status: StatusRendered, Record: rec}, nil
	}

	target, err := digest.ParseDate(date, r.loc)
	if err != nil {
		return nil, newError(KindInvalidInput, date, err)
	}

	match, err := r.searcher.Search(ctx, target)
	if err != nil {
		if errors.Is(err, sources.ErrNoMatch) {
			return nil, newError(KindNoMatchFound, date, err)
		}
		return nil, newError(KindSourceUnavailable, date, err)
	}
	log = log.With("account", match.Account.Name)
	log.Info("found article", "title", logger.Preview(match.Candidate.Title, 60), "link", match.Candidate.Link)

	article, strategy, err := r.extractor.Extract(ctx, match.Candidate.Link)
	if err != nil {
		if errors.Is(err, extract.ErrEmptyExtraction) {
			return nil, newError(KindEmptyExtraction, date, err)
		}
		return nil, newError(KindExtractionFailed, date, err)
	}
	if article == nil || len(article.News) == 0 {
		return nil, newError(KindEmptyExtraction, date, extract.ErrEmptyExtraction)
	}
	log.Info("extracted article", "strategy", strategy, "news", len(article.News),
		"first", logger.Preview(article.News[0], 40))

	rec := Assemble(date, match.Candidate, article, r.recordImageURL(date), r.loc)

	if err := r.store.SaveData(rec); err != nil {
		if !errors.Is(err, store.ErrRecordExists) {
			return nil, newError(KindPersistenceFailure, date, fmt.Errorf("%w: %w", ErrPersistence, err))
		}
		// Another run stored the record first; render from its copy
		log.Warn("record was written concurrently, keeping the stored one")
		stored, err := r.load(date)
		if err != nil {
			return nil, err
		}
		rec = *stored
	} else {
		log.Info("record saved", "path", r.store.DataPath(date))
	}

	if err := r.renderAndSave(ctx, log, rec); err != nil {
		return nil, err
	}

	return &Result{
		RunID:    runID,
		Date:     date,
		Status:   StatusCreated,
		Record:   &rec,
		Account:  match.Account.Name,
		Strategy: strategy,
	}, nil
}

// Summary reports a RenderMissing pass.
type Summary struct {
	Rendered []string
	Failed   []string
}

// RenderMissing renders an image for every stored record that lacks one.
// The browser is prepared once for the whole pass. A failure for one date is
// logged and the pass continues; the returned error covers only failures
// that stop the pass entirely.
func (r *Runner) RenderMissing(ctx context.Context) (*Summary, error) {
	log := r.log.With("run_id", uuid.NewString())

	dates, err := r.store.MissingImages()
	if err != nil {
		return nil, newError(KindPersistenceFailure, "", fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	summary := &Summary{}
	if len(dates) == 0 {
		log.Info("every record already has an image")
		return summary, nil
	}
	log.Info("rendering missing images", "count", len(dates))

	if err := r.renderer.Prepare(ctx); err != nil {
		return nil, newError(KindRenderFailed, "", err)
	}
	defer func() {
		if err := r.renderer.Destroy(); err != nil {
			log.Warn("failed to close browser", "error", err)
		}
	}()

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if err := r.renderOne(ctx, date); err != nil {
			log.Error("failed to render image", "date", date, "error", err)
			summary.Failed = append(summary.Failed, date)
			continue
		}
		log.Info("image rendered", "date", date)
		summary.Rendered = append(summary.Rendered, date)
	}

	log.Info("render pass finished", "rendered", len(summary.Rendered), "failed", len(summary.Failed))
	return summary, nil
}

// renderOne renders date inside an already-prepared renderer.
func (r *Runner) renderOne(ctx context.Context, date string) error {
	rec, err := r.load(date)
	if err != nil {
		return err
	}

	png, err := r.renderer.Render(ctx, *rec)
	if err != nil {
		r.recordRender(false)
		return newError(KindRenderFailed, date, err)
	}
	r.recordRender(true)

	return r.saveImage(date, png)
}

// renderAndSave renders rec inside its own prepare/destroy bracket and stores
// the image.
func (r *Runner) renderAndSave(ctx context.Context, log *logger.Logger, rec digest.Record) error {
	png, err := render.Capture(ctx, r.renderer, rec)
	if err != nil {
		r.recordRender(false)
		return newError(KindRenderFailed, rec.Date, err)
	}
	r.recordRender(true)

	if err := r.saveImage(rec.Date, png); err != nil {
		return err
	}
	log.Info("image saved", "path", r.store.ImagePath(rec.Date))
	return nil
}

func (r *Runner) load(date string) (*digest.Record, error) {
	rec, err := r.store.LoadData(date)
	if err != nil {
		return nil, newError(KindPersistenceFailure, date, fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	if rec == nil {
		return nil, newError(KindPersistenceFailure, date, fmt.Errorf("%w: record disappeared", ErrPersistence))
	}
	return rec, nil
}

func (r *Runner) saveImage(date string, png []byte) error {
	if err := r.store.SaveImage(date, png); err != nil {
		return newError(KindPersistenceFailure, date, fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	return nil
}

func (r *Runner) recordImageURL(date string) string {
	if r.imageURL == nil {
		return ""
	}
	return r.imageURL(date)
}

func (r *Runner) recordRender(ok bool) {
	if r.recorder == nil {
		return
	}
	if ok {
		r.recorder.RecordRender("success")
	} else {
		r.recorder.RecordRender("failure")
	}
}

func (r *Runner) recordRun(result *Result, err error, d time.Duration) {
	if r.recorder == nil {
		return
	}
	outcome := "failure"
	if err == nil && result != nil {
		outcome = string(result.Status)
	}
	r.recorder.RecordRun(outcome, d, r.now())
}

// Assemble builds the stored record for date from the selected candidate and
// its extracted content. The parsed cover wins over the candidate's; a
// configured public image URL wins over the parsed image.
func Assemble(date string, c digest.Candidate, a *digest.Article, imageURL string, loc *time.Location) digest.Record {
	cover := a.Cover
	if cover == "" {
		cover = c.Cover
	}
	image := imageURL
	if image == "" {
		image = a.Image
	}

	return digest.Record{
		Date:      date,
		News:      a.News,
		Cover:     cover,
		Tip:       a.Tip,
		Image:     image,
		Link:      digest.SanitizeLink(c.Link),
		Created:   digest.FormatTime(c.CreateTime, loc),
		CreatedAt: c.CreateTime * 1000,
		Updated:   digest.FormatTime(c.UpdateTime, loc),
		UpdatedAt: c.UpdateTime * 1000,
	}
}
