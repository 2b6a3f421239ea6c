// Package config loads d1lod configuration files.
//
// Configuration is written in CUE. A file is unified with the embedded
// schema, which supplies defaults for every field and rejects out-of-range
// values, and is then decoded into a Config. An empty file yields the
// default configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/d1lod/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Error code constants.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeInvalid     = "E010" // Schema constraint violated
	ErrCodeDecode      = "E011" // Decoding into Config failed
)

// LoadError represents an error that occurred while loading configuration.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Config is the full d1lod configuration.
type Config struct {
	Server     Server            `json:"server"`
	Graphs     Graphs            `json:"graphs"`
	Namespaces map[string]string `json:"namespaces"`
	Harvest    Harvest           `json:"harvest"`
}

// Server locates the Sesame deployment.
type Server struct {
	Host          string  `json:"host"`
	Port          int     `json:"port"`
	SesamePath    string  `json:"sesame_path"`
	WorkbenchPath string  `json:"workbench_path"`
	Timeout       string  `json:"timeout"`
	Rate          float64 `json:"rate"`
	Burst         int     `json:"burst"`
}

// TimeoutDuration parses Timeout. The schema only admits parseable values.
func (s Server) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Graphs names the repository backing each graph. Graphs may share a
// repository.
type Graphs struct {
	Datasets      string `json:"datasets"`
	People        string `json:"people"`
	Organizations string `json:"organizations"`
}

// Repositories returns the graph to repository mapping.
func (g Graphs) Repositories() map[ir.Graph]string {
	return map[ir.Graph]string{
		ir.GraphDatasets:      g.Datasets,
		ir.GraphPeople:        g.People,
		ir.GraphOrganizations: g.Organizations,
	}
}

// Harvest configures the DataONE harvest.
type Harvest struct {
	IndexURL     string `json:"index_url"`
	ObjectURL    string `json:"object_url"`
	PageSize     int    `json:"page_size"`
	Workers      int    `json:"workers"`
	StateDB      string `json:"state_db"`
	SkipExisting bool   `json:"skip_existing"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading config: %v", err)}
	}
	return Parse(path, data)
}

// Default returns the configuration an empty file produces.
func Default() *Config {
	cfg, err := Parse("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Parse validates CUE source against the schema and decodes it.
// The filename is used only for error positions.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building schema: %v", err)}
	}

	file := ctx.CompileBytes(src, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(file)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(ErrCodeInvalid, err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("decoding config: %v", err)}
	}
	if cfg.Namespaces == nil {
		cfg.Namespaces = map[string]string{}
	}
	return &cfg, nil
}

// NamespaceTable returns a copy of the configured namespace table.
func (c *Config) NamespaceTable() map[string]string {
	return maps.Clone(c.Namespaces)
}

// cueLoadError converts the first CUE error into a LoadError with position.
func cueLoadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: err.Error()}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		first := errs[0]
		format, args := first.Msg()
		le.Message = fmt.Sprintf(format, args...)
		if path := first.Path(); len(path) > 0 {
			le.Message = fmt.Sprintf("%s: %s", strings.Join(path, "."), le.Message)
		}
		le.Pos = first.Position()
	}
	return le
}
