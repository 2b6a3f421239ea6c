package sesame

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/metrics"
	"github.com/roach88/d1lod/internal/namespace"
	"github.com/roach88/d1lod/internal/sparql"
)

// Default deployment paths and limits.
const (
	DefaultSesamePath    = "/openrdf-sesame"
	DefaultWorkbenchPath = "/openrdf-workbench"
	DefaultTimeout       = 30 * time.Second
)

// Options configures a Server. Zero values select the defaults.
type Options struct {
	SesamePath    string
	WorkbenchPath string

	// Timeout bounds every round trip.
	Timeout time.Duration

	// Rate limits requests per second across all repositories of the
	// server. Zero means unlimited.
	Rate  float64
	Burst int

	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Server is a Sesame deployment reachable over HTTP.
type Server struct {
	host      string
	port      int
	sesame    string
	workbench string
	timeout   time.Duration
	client    *http.Client
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
}

// NewServer creates a client for the server at host:port.
func NewServer(host string, port int, opts Options) *Server {
	s := &Server{
		host:      host,
		port:      port,
		sesame:    opts.SesamePath,
		workbench: opts.WorkbenchPath,
		timeout:   opts.Timeout,
		client:    opts.HTTPClient,
		limiter:   rate.NewLimiter(rate.Inf, 0),
		metrics:   opts.Metrics,
	}
	if s.sesame == "" {
		s.sesame = DefaultSesamePath
	}
	if s.workbench == "" {
		s.workbench = DefaultWorkbenchPath
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return s
}

// Host returns the server host.
func (s *Server) Host() string { return s.host }

// Port returns the server port.
func (s *Server) Port() int { return s.port }

func (s *Server) base() string {
	return "http://" + s.host + ":" + strconv.Itoa(s.port)
}

func (s *Server) sesameURL(path ...string) string {
	return s.base() + s.sesame + "/" + joinPath(path)
}

func (s *Server) workbenchURL(path ...string) string {
	return s.base() + s.workbench + "/" + joinPath(path)
}

func joinPath(parts []string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.Join(escaped, "/")
}

// Repository returns a client bound to the named repository. ns is the
// namespace table used to render its queries; nil creates a fresh one.
func (s *Server) Repository(name string, ns *namespace.Registry) *Repository {
	if ns == nil {
		ns = namespace.New()
	}
	return &Repository{srv: s, name: name, ns: ns, builder: sparql.NewBuilder(ns)}
}

// Repositories lists the repository IDs on the server.
func (s *Server) Repositories(ctx context.Context) ([]string, error) {
	resp, err := s.do(ctx, "list repositories", http.MethodGet, s.sesameURL("repositories"),
		sparql.ResultsMediaType, nil, "")
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, resp.statusError()
	}
	rows, err := sparql.ParseResults(resp.body)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"]; ok {
			ids = append(ids, id.Value())
		}
	}
	return ids, nil
}

// CreateRepository provisions a native store through the workbench.
func (s *Server) CreateRepository(ctx context.Context, name string) error {
	form := url.Values{
		"type":             {"native"},
		"Repository ID":    {name},
		"Repository title": {name},
		"Triple indexes":   {"spoc,posc"},
	}
	resp, err := s.do(ctx, "create repository", http.MethodPost, s.workbenchURL("repositories", "NONE", "create"),
		"", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	// The workbench answers with a redirect to the new repository's summary.
	if resp.code >= 400 {
		return resp.statusError()
	}
	slog.Info("repository created", "host", s.host, "repository", name)
	return nil
}

type response struct {
	op   string
	code int
	body []byte
}

func (r *response) statusError() *StatusError {
	return &StatusError{Op: r.op, Code: r.code, Body: string(r.body)}
}

func (r *response) unknownRepository() bool {
	return strings.HasPrefix(strings.TrimSpace(string(r.body)), unknownRepository)
}

// do performs one rate-limited round trip bounded by the server timeout.
// Transport failures are errors; HTTP statuses are left to the caller.
func (s *Server) do(ctx context.Context, op, method, u, accept string, body io.Reader, contentType string) (*response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("sesame %s: %w", op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("sesame %s: %w", op, err)
	}
	req.Header.Set("User-Agent", "d1lod/"+ir.Version)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.RecordRequest(op, 0, time.Since(start))
		return nil, fmt.Errorf("sesame %s: %w", op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	s.metrics.RecordRequest(op, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("sesame %s: read body: %w", op, err)
	}

	slog.Debug("sesame request",
		"op", op,
		"method", method,
		"url", u,
		"status", resp.StatusCode,
		"duration", time.Since(start))
	return &response{op: op, code: resp.StatusCode, body: data}, nil
}
