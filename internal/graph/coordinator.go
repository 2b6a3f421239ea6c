package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/metrics"
	"github.com/roach88/d1lod/internal/resolve"
	"github.com/roach88/d1lod/internal/vocab"
)

// Client is the repository capability the coordinator needs per graph.
type Client interface {
	resolve.Querier
	InsertTriples(ctx context.Context, triples []ir.Triple) error
	FlushNamespaces(ctx context.Context) error
}

// Document is everything extracted from one metadata document.
type Document struct {
	Identifier    string      `json:"identifier" yaml:"identifier"`
	Dataset       ir.Record   `json:"dataset" yaml:"dataset"`
	People        []ir.Record `json:"people,omitempty" yaml:"people,omitempty"`
	Organizations []ir.Record `json:"organizations,omitempty" yaml:"organizations,omitempty"`
}

// Coordinator owns one client per graph and upserts entities across them.
// It is safe for concurrent use.
type Coordinator struct {
	clients  map[ir.Graph]Client
	resolver *resolve.Resolver
	locks    *locker
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	report Report
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics records outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// New creates a coordinator over already provisioned clients. Every graph
// must have a client; graphs may share one.
func New(clients map[ir.Graph]Client, opts ...Option) (*Coordinator, error) {
	for _, g := range ir.Graphs {
		if clients[g] == nil {
			return nil, fmt.Errorf("graph %s: no repository client", g)
		}
	}
	c := &Coordinator{
		clients:  clients,
		resolver: resolve.New(),
		locks:    newLocker(),
		logger:   slog.Default(),
		report:   newReport(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AddOrganization upserts an organization.
func (c *Coordinator) AddOrganization(ctx context.Context, rec ir.Record) (Outcome, error) {
	if rec.Kind != ir.KindOrganization {
		return Outcome{Graph: ir.GraphOrganizations, Status: StatusFailed}, fmt.Errorf("add organization: record type %q", rec.Kind)
	}
	return c.upsert(ctx, ir.GraphOrganizations, rec, func(uri ir.IRI) []ir.Triple {
		return vocab.OrganizationTriples(uri, rec)
	})
}

// AddPerson upserts a person. A person naming an organization but carrying
// no settled affiliation has the organization upserted first; failing to
// resolve it aborts the person.
func (c *Coordinator) AddPerson(ctx context.Context, rec ir.Record) (Outcome, error) {
	if rec.Kind != ir.KindPerson {
		return Outcome{Graph: ir.GraphPeople, Status: StatusFailed}, fmt.Errorf("add person: record type %q", rec.Kind)
	}
	rec = rec.Clone()
	var warnings []string
	if !rec.Has(ir.AttrAffiliation) && rec.Has(ir.AttrOrganization) {
		org := ir.NewRecord(ir.KindOrganization)
		org.Set(ir.AttrName, rec.Get(ir.AttrOrganization))
		out, err := c.AddOrganization(ctx, org)
		if err != nil {
			return Outcome{Graph: ir.GraphPeople, Status: StatusFailed}, fmt.Errorf("add person: affiliation: %w", err)
		}
		if out.Settled() {
			rec.Set(ir.AttrAffiliation, string(out.URI))
		} else {
			warnings = append(warnings, "affiliation "+rec.Get(ir.AttrOrganization)+" not written; person stored unaffiliated")
		}
	}
	affiliation := ir.IRI(rec.Get(ir.AttrAffiliation))
	out, err := c.upsert(ctx, ir.GraphPeople, rec, func(uri ir.IRI) []ir.Triple {
		return vocab.PersonTriples(uri, rec, affiliation)
	})
	out.Warnings = append(warnings, out.Warnings...)
	return out, err
}

// AddDataset upserts a dataset. Creator and contributor values must be
// IRIs of entities that already exist; other values are dropped with a
// warning.
func (c *Coordinator) AddDataset(ctx context.Context, rec ir.Record) (Outcome, error) {
	if rec.Kind != ir.KindDataset {
		return Outcome{Graph: ir.GraphDatasets, Status: StatusFailed}, fmt.Errorf("add dataset: record type %q", rec.Kind)
	}
	var warnings []string
	iris := func(attr string) []ir.IRI {
		var out []ir.IRI
		for _, v := range rec.All(attr) {
			if !isIRI(v) {
				warnings = append(warnings, fmt.Sprintf("%s %q is not an IRI; dropped", attr, v))
				continue
			}
			out = append(out, ir.IRI(v))
		}
		return out
	}
	creators, contributors := iris(ir.AttrCreator), iris(ir.AttrContributor)
	out, err := c.upsert(ctx, ir.GraphDatasets, rec, func(uri ir.IRI) []ir.Triple {
		return vocab.DatasetTriples(uri, rec, creators, contributors)
	})
	out.Warnings = append(warnings, out.Warnings...)
	return out, err
}

// AddDocument upserts a document's organizations, then its people, then its
// dataset. People are affiliated with the URIs their organizations settled
// at and the dataset credits the URIs its people settled at. A resolution
// failure aborts the document before the dataset is written.
func (c *Coordinator) AddDocument(ctx context.Context, doc Document) (DocumentOutcome, error) {
	res := DocumentOutcome{Identifier: doc.Identifier}
	if res.Identifier == "" {
		res.Identifier = doc.Dataset.Get(ir.AttrIdentifier)
	}
	fail := func(err error) (DocumentOutcome, error) {
		c.finishDocument(true)
		return res, fmt.Errorf("document %s: %w", res.Identifier, err)
	}

	settledOrgs := make(map[string]ir.IRI)
	for _, org := range doc.Organizations {
		out, err := c.AddOrganization(ctx, org)
		res.Organizations = append(res.Organizations, out)
		if err != nil {
			return fail(err)
		}
		if out.Settled() {
			settledOrgs[org.Get(ir.AttrName)] = out.URI
		}
	}

	dataset := doc.Dataset.Clone()
	for _, person := range doc.People {
		person = person.Clone()
		if uri, ok := settledOrgs[person.Get(ir.AttrOrganization)]; ok && !person.Has(ir.AttrAffiliation) {
			person.Set(ir.AttrAffiliation, string(uri))
		}
		out, err := c.AddPerson(ctx, person)
		res.People = append(res.People, out)
		if err != nil {
			return fail(err)
		}
		if !out.Settled() {
			continue
		}
		if person.Get(ir.AttrRole) == "contributor" {
			dataset.Add(ir.AttrContributor, string(out.URI))
		} else {
			dataset.Add(ir.AttrCreator, string(out.URI))
		}
	}

	out, err := c.AddDataset(ctx, dataset)
	res.Dataset = &out
	if err != nil {
		return fail(err)
	}
	if !out.Settled() {
		c.finishDocument(true)
		return res, nil
	}
	c.finishDocument(false)
	return res, nil
}

// DatasetExists reports whether a dataset with the identifier is in the
// datasets graph.
func (c *Coordinator) DatasetExists(ctx context.Context, identifier string) (bool, error) {
	rec := ir.NewRecord(ir.KindDataset)
	rec.Set(ir.AttrIdentifier, identifier)
	res, err := c.resolver.Resolve(ctx, rec, c.clients[ir.GraphDatasets])
	if err != nil {
		return false, err
	}
	return res.Found, nil
}

// Save registers namespace prefixes bound since startup with every
// repository and returns the aggregate report. It is bookkeeping, not a
// commit: every write has already been sent. Registration failures are
// returned joined but do not invalidate the report.
func (c *Coordinator) Save(ctx context.Context) (Report, error) {
	var errs []error
	seen := make(map[Client]bool)
	for _, g := range ir.Graphs {
		client := c.clients[g]
		if seen[client] {
			continue
		}
		seen[client] = true
		if err := client.FlushNamespaces(ctx); err != nil {
			c.logger.Warn("namespace registration failed", "graph", g, "error", err)
			errs = append(errs, fmt.Errorf("graph %s: %w", g, err))
		}
	}

	c.mu.Lock()
	report := c.report.clone()
	c.mu.Unlock()
	return report, errors.Join(errs...)
}

// Report returns a snapshot of the aggregate counts.
func (c *Coordinator) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report.clone()
}

func (c *Coordinator) addConflicts(n int) {
	c.mu.Lock()
	c.report.NamespaceConflicts += n
	c.mu.Unlock()
	c.metrics.RecordConflicts(n)
}

// upsert is resolve, then skip or write, under the lock of the minted URI.
func (c *Coordinator) upsert(ctx context.Context, g ir.Graph, rec ir.Record, build func(ir.IRI) []ir.Triple) (Outcome, error) {
	out := Outcome{Graph: g, Status: StatusFailed}
	uri, err := vocab.EntityURI(rec)
	if err != nil {
		c.record(out, err.Error())
		return out, err
	}

	unlock := c.locks.lock(uri)
	defer unlock()

	client := c.clients[g]
	res, err := c.resolver.Resolve(ctx, rec, client)
	if err != nil {
		c.logger.Error("resolution failed", "graph", g, "uri", uri, "error", err)
		c.record(out, err.Error())
		return out, err
	}
	if res.Found {
		out.URI, out.Status, out.Ambiguous = res.URI, StatusExisting, res.Ambiguous
		if res.Ambiguous {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%d entities match; chose %s", len(res.Candidates), string(res.URI)))
		}
		c.logger.Debug("entity exists", "graph", g, "uri", res.URI)
		c.record(out, "")
		return out, nil
	}

	if err := client.InsertTriples(ctx, build(uri)); err != nil {
		c.logger.Warn("entity write failed", "graph", g, "uri", uri, "error", err)
		out.URI = uri
		out.Warnings = append(out.Warnings, err.Error())
		c.record(out, fmt.Sprintf("write %s: %v", string(uri), err))
		return out, nil
	}
	out.URI, out.Status = uri, StatusCreated
	c.logger.Info("entity created", "graph", g, "uri", uri)
	c.record(out, "")
	return out, nil
}

func (c *Coordinator) record(out Outcome, failure string) {
	c.mu.Lock()
	c.report.add(out)
	if failure != "" {
		c.report.Failures = append(c.report.Failures, failure)
	}
	c.mu.Unlock()
	c.metrics.RecordEntity(string(out.Graph), string(out.Status), out.Ambiguous)
}

// finishDocument counts a document. The entity-level failure that sank it
// has already been recorded by upsert.
func (c *Coordinator) finishDocument(failed bool) {
	c.mu.Lock()
	c.report.Documents++
	if failed {
		c.report.DocumentsFailed++
	}
	c.mu.Unlock()
	status := "processed"
	if failed {
		status = "failed"
	}
	c.metrics.RecordDocument(status)
}

func isIRI(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "urn:") || strings.HasPrefix(s, "mailto:")
}
