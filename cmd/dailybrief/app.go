package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/pevans/dailybrief/config"
	"github.com/pevans/dailybrief/extract"
	"github.com/pevans/dailybrief/logger"
	"github.com/pevans/dailybrief/metrics"
	"github.com/pevans/dailybrief/pipeline"
	"github.com/pevans/dailybrief/render"
	"github.com/pevans/dailybrief/sources"
	"github.com/pevans/dailybrief/store"
)

// app holds everything a command needs, built once from the configuration.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Collector
	runner  *pipeline.Runner
}

// newApp wires the pipeline from cfg. Logs go to w.
func newApp(cfg *config.Config, w io.Writer) (*app, error) {
	log := logger.NewWithWriter(cfg.Logging.Level, w)
	loc := cfg.Location()
	collector := metrics.NewCollector()

	st, err := store.New(cfg.Storage.DataDir, cfg.Storage.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	coordinator := sources.NewCoordinator(
		cfg.Accounts,
		newSourceFetchers(cfg),
		sources.SearchConfig{
			Begin:     cfg.Search.Begin,
			Count:     cfg.Search.Count,
			MaxJitter: cfg.Search.MaxJitter,
		},
		loc,
		log,
	)
	coordinator.SetRecorder(collector)

	chain := newExtractChain(cfg, log)
	chain.SetRecorder(collector)

	renderer := render.NewRenderer(render.NewChromeBrowser(render.ChromeOptions{
		ExecPath:    cfg.Render.ChromePath,
		Width:       cfg.Render.Width,
		Height:      cfg.Render.Height,
		DeviceScale: cfg.Render.DeviceScale,
		Headless:    cfg.Render.Headless,
	}), cfg.Render.Timeout, log)

	runner := pipeline.NewRunner(pipeline.Deps{
		Store:     st,
		Searcher:  coordinator,
		Extractor: chain,
		Renderer:  renderer,
		Location:  loc,
		ImageURL:  cfg.ImageURL,
		Logger:    log,
		Recorder:  collector,
	})

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: collector,
		runner:  runner,
	}, nil
}

// newSourceFetchers returns one client per source kind.
func newSourceFetchers(cfg *config.Config) map[string]sources.Fetcher {
	client := &http.Client{Timeout: cfg.Search.Timeout}

	return map[string]sources.Fetcher{
		sources.KindWeChat: sources.NewWeChatClient(sources.WeChatConfig{
			Endpoint:  cfg.WeChat.Endpoint,
			Token:     cfg.WeChat.Token,
			Cookie:    cfg.WeChat.Cookie,
			UserAgent: cfg.Search.UserAgent,
		}, client),
		sources.KindFeed: sources.NewFeedClient(cfg.Search.UserAgent, client),
	}
}

// newExtractChain returns the AI strategy followed by the rule-based one.
func newExtractChain(cfg *config.Config, log *logger.Logger) *extract.Chain {
	articleClient := &http.Client{Timeout: cfg.Extract.FetchTimeout}
	if cfg.Extract.SafeClient {
		articleClient = extract.NewSafeClient(cfg.Extract.FetchTimeout)
	}
	fetcher := extract.NewFetcher(articleClient, cfg.Search.UserAgent, cfg.Extract.MaxBodyBytes)

	var endpoints []string
	for _, tmpl := range []string{cfg.Extract.PrimaryEndpoint, cfg.Extract.SecondaryEndpoint} {
		if tmpl != "" {
			endpoints = append(endpoints, cfg.EndpointURL(tmpl))
		}
	}

	ai := extract.NewAIExtractor(fetcher, &http.Client{Timeout: cfg.Extract.Timeout}, extract.AIConfig{
		Endpoints: endpoints,
		APIKey:    cfg.Extract.APIKey,
		Timeout:   cfg.Extract.Timeout,
	}, log)

	return extract.NewChain(log, ai, extract.NewRuleExtractor(fetcher))
}

// flushMetrics writes the metrics textfile when one is configured.
func (a *app) flushMetrics() {
	if a.cfg.Metrics.Textfile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.log.Warn("failed to write metrics", "error", err)
	}
}
