package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/d1lod/internal/graph"
	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/metrics"
	"github.com/roach88/d1lod/internal/store"
)

// Document outcome labels.
const (
	DocProcessed = "processed"
	DocSkipped   = "skipped"
	DocFailed    = "failed"
)

// Coordinator is the part of *graph.Coordinator the driver uses.
type Coordinator interface {
	AddDocument(ctx context.Context, doc graph.Document) (graph.DocumentOutcome, error)
	DatasetExists(ctx context.Context, identifier string) (bool, error)
	Save(ctx context.Context) (graph.Report, error)
}

// RunLog is the part of *store.Store the driver uses.
type RunLog interface {
	BeginRun(ctx context.Context, id string, from, to time.Time) error
	FinishRun(ctx context.Context, id string, status store.RunStatus, report any) error
	RecordFailure(ctx context.Context, runID, identifier, reason string) error
	SetCursor(ctx context.Context, name string, t time.Time) error
}

// Result summarizes a harvest run. It is also the report stored in the run
// log.
type Result struct {
	RunID     string       `json:"run_id"`
	From      time.Time    `json:"from"`
	To        time.Time    `json:"to"`
	Found     int          `json:"found"`
	Pages     int          `json:"pages"`
	Processed int          `json:"processed"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Graph     graph.Report `json:"graph"`
	Started   time.Time    `json:"started"`
	Finished  time.Time    `json:"finished"`
}

// Driver runs harvests.
type Driver struct {
	index     Index
	fetcher   Fetcher
	extractor Extractor
	validator Validator
	coord     Coordinator
	runs      RunLog

	workers      int
	skipExisting bool
	runIDs       RunIDGenerator
	now          func() time.Time
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithWorkers sets the number of documents processed concurrently.
// Default: 1, which processes documents in index order.
func WithWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithSkipExisting skips documents whose dataset is already in the
// datasets graph.
func WithSkipExisting(skip bool) Option {
	return func(d *Driver) { d.skipExisting = skip }
}

// WithRunIDGenerator replaces the UUIDv7 run ID generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(d *Driver) { d.runIDs = g }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithExtractor replaces the default IndexExtractor.
func WithExtractor(e Extractor) Option {
	return func(d *Driver) { d.extractor = e }
}

// WithValidator replaces the DefaultValidator.
func WithValidator(v Validator) Option {
	return func(d *Driver) { d.validator = v }
}

// WithMetrics records document outcomes and the last completed window.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// New creates a driver.
func New(index Index, fetcher Fetcher, coord Coordinator, runs RunLog, opts ...Option) *Driver {
	d := &Driver{
		index:     index,
		fetcher:   fetcher,
		extractor: NewIndexExtractor(),
		validator: DefaultValidator{},
		coord:     coord,
		runs:      runs,
		workers:   1,
		runIDs:    UUIDv7Generator{},
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run harvests every document uploaded in [from, to].
//
// Failing to count or page the index, or to save the coordinator, fails the
// run: the run is logged as failed and the cursor is left alone. Failures of
// individual documents are recorded and counted. A completed run advances
// the "since" cursor to to.
func (d *Driver) Run(ctx context.Context, from, to time.Time) (Result, error) {
	if to.Before(from) {
		return Result{}, fmt.Errorf("harvest: window ends (%s) before it starts (%s)", to, from)
	}
	res := Result{RunID: d.runIDs.Generate(), From: from, To: to, Started: d.now()}
	if err := d.runs.BeginRun(ctx, res.RunID, from, to); err != nil {
		return res, fmt.Errorf("harvest: %w", err)
	}
	log := d.logger.With("run", res.RunID)
	log.Info("harvest started", "from", from, "to", to)

	walkErr := d.walk(ctx, &res, log)

	report, saveErr := d.coord.Save(ctx)
	res.Graph = report
	res.Finished = d.now()

	if err := errors.Join(walkErr, saveErr); err != nil {
		log.Error("harvest failed", "error", err)
		if ferr := d.runs.FinishRun(context.WithoutCancel(ctx), res.RunID, store.RunFailed, res); ferr != nil {
			log.Error("recording failed run", "error", ferr)
		}
		return res, fmt.Errorf("harvest %s: %w", res.RunID, err)
	}

	if err := d.runs.SetCursor(ctx, store.CursorSince, to); err != nil {
		return res, fmt.Errorf("harvest %s: advance cursor: %w", res.RunID, err)
	}
	if err := d.runs.FinishRun(ctx, res.RunID, store.RunCompleted, res); err != nil {
		return res, fmt.Errorf("harvest %s: %w", res.RunID, err)
	}
	d.metrics.SetLastRun(to)
	log.Info("harvest completed",
		"found", res.Found,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}

// walk pages the index and processes every document.
func (d *Driver) walk(ctx context.Context, res *Result, log *slog.Logger) error {
	n, err := d.index.Count(ctx, res.From, res.To)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	res.Found = n
	res.Pages = NumPages(n, d.index.PageSize())
	log.Info("index window counted", "documents", n, "pages", res.Pages)

	var mu sync.Mutex
	tally := func(status string) {
		mu.Lock()
		defer mu.Unlock()
		switch status {
		case DocProcessed:
			res.Processed++
		case DocSkipped:
			res.Skipped++
		case DocFailed:
			res.Failed++
		}
		d.metrics.RecordDocument(status)
	}

	for page := 1; page <= res.Pages; page++ {
		docs, err := d.index.Page(ctx, res.From, res.To, page)
		if err != nil {
			return fmt.Errorf("index: %w", err)
		}
		log.Debug("processing page", "page", page, "documents", len(docs))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.workers)
		for _, doc := range docs {
			g.Go(func() error {
				status, reason := d.process(gctx, doc, log)
				if status == DocFailed {
					if err := d.runs.RecordFailure(gctx, res.RunID, failureKey(doc), reason); err != nil {
						log.Warn("recording document failure", "identifier", doc.Identifier(), "error", err)
					}
				}
				tally(status)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// process runs one document through fetch, extract, validate and the
// coordinator. It returns the document status and, for failures, a reason.
func (d *Driver) process(ctx context.Context, doc IndexDocument, log *slog.Logger) (string, string) {
	id := doc.Identifier()
	if id == "" {
		return DocFailed, "index document without identifier"
	}
	log = log.With("identifier", id)

	if d.skipExisting {
		exists, err := d.coord.DatasetExists(ctx, id)
		if err != nil {
			log.Warn("dataset existence check failed", "error", err)
			return DocFailed, err.Error()
		}
		if exists {
			log.Debug("dataset already in graph; skipping")
			return DocSkipped, ""
		}
	}

	scimeta, err := d.fetcher.Fetch(ctx, id, doc.Get("formatId"))
	if err != nil {
		log.Warn("unable to get science metadata; skipping", "error", err)
		return DocFailed, err.Error()
	}

	gdoc, err := d.extractor.Extract(ctx, doc, scimeta)
	if err != nil {
		log.Warn("extraction failed", "error", err)
		return DocFailed, err.Error()
	}
	gdoc, err = d.validate(gdoc, log)
	if err != nil {
		log.Warn("dataset record rejected", "error", err)
		return DocFailed, err.Error()
	}

	out, err := d.coord.AddDocument(ctx, gdoc)
	if err != nil {
		log.Warn("document aborted", "error", err)
		return DocFailed, err.Error()
	}
	if out.Failed() {
		return DocFailed, "dataset not written"
	}
	return DocProcessed, ""
}

// validate normalizes every record of a document. Invalid people and
// organizations are dropped; an invalid dataset rejects the document.
func (d *Driver) validate(doc graph.Document, log *slog.Logger) (graph.Document, error) {
	dataset, err := d.validator.Validate(doc.Dataset)
	if err != nil {
		return graph.Document{}, err
	}
	out := graph.Document{Identifier: doc.Identifier, Dataset: dataset}
	keep := func(recs []ir.Record) []ir.Record {
		var kept []ir.Record
		for _, r := range recs {
			v, err := d.validator.Validate(r)
			if err != nil {
				log.Warn("record dropped", "type", r.Kind, "error", err)
				continue
			}
			kept = append(kept, v)
		}
		return kept
	}
	out.Organizations = keep(doc.Organizations)
	out.People = keep(doc.People)
	return out, nil
}

func failureKey(doc IndexDocument) string {
	if id := doc.Identifier(); id != "" {
		return id
	}
	return "(no identifier)"
}
