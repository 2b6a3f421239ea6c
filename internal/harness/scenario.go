package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/d1lod/internal/graph"
	"github.com/roach88/d1lod/internal/ir"
)

// Scenario defines a conformance test scenario: a flow of coordinator
// operations followed by assertions on the repositories.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graphs maps graph names to repository names. Missing graphs use
	// DefaultRepository.
	Graphs map[string]string `yaml:"graphs,omitempty"`

	// Namespaces overrides or extends the default namespace table the
	// coordinator is opened with.
	Namespaces map[string]string `yaml:"namespaces,omitempty"`

	// Setup establishes remote state before the flow. It is not traced.
	Setup *Setup `yaml:"setup,omitempty"`

	// Flow contains the traced operations.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final repositories and report.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup establishes remote state before the coordinator is opened.
type Setup struct {
	// Namespaces binds prefixes remotely, per repository, before the
	// coordinator syncs its namespace tables.
	Namespaces map[string]map[string]string `yaml:"namespaces,omitempty"`

	// Flow runs after the coordinator is opened and before the traced flow.
	Flow []Step `yaml:"flow,omitempty"`
}

// Step is one coordinator operation.
type Step struct {
	// Invoke is the operation name (see the Op constants).
	Invoke string `yaml:"invoke"`

	// Record is the entity for add_organization, add_person and
	// add_dataset.
	Record *ir.Record `yaml:"record,omitempty"`

	// Document is the document for add_document.
	Document *graph.Document `yaml:"document,omitempty"`

	// Identifier is the dataset identifier for dataset_exists.
	Identifier string `yaml:"identifier,omitempty"`

	// Expect specifies the expected outcome. If nil, nothing is checked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies expected step behavior. Unset fields are not checked.
type Expect struct {
	Status    string `yaml:"status,omitempty"`
	URI       string `yaml:"uri,omitempty"`
	Ambiguous *bool  `yaml:"ambiguous,omitempty"`
	Exists    *bool  `yaml:"exists,omitempty"`
	Error     bool   `yaml:"error,omitempty"`
}

// Assertion validates the final repositories or report.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Repository names the repository (size, contains, absent, namespace).
	Repository string `yaml:"repository,omitempty"`

	// Triple is subject, predicate, object for contains and absent.
	// Terms are written "<iri>", "prefix:local", "?var" or a plain literal.
	Triple []string `yaml:"triple,omitempty"`

	// Prefix and URI are the expected remote binding (namespace).
	Prefix string `yaml:"prefix,omitempty"`
	URI    string `yaml:"uri,omitempty"`

	// Field names a report counter: documents, documents_failed,
	// ambiguous, namespace_conflicts or <graph>.<created|existing|failed>.
	Field string `yaml:"field,omitempty"`

	// Count is the expected size or counter value.
	Count int `yaml:"count"`
}

// Operation names.
const (
	OpAddOrganization = "add_organization"
	OpAddPerson       = "add_person"
	OpAddDataset      = "add_dataset"
	OpAddDocument     = "add_document"
	OpDatasetExists   = "dataset_exists"
	OpSave            = "save"
)

// Assertion type constants.
const (
	AssertSize      = "size"
	AssertContains  = "contains"
	AssertAbsent    = "absent"
	AssertNamespace = "namespace"
	AssertReport    = "report"
)

// DefaultRepository backs graphs a scenario does not map.
const DefaultRepository = "geolink"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Repositories returns the graph to repository mapping of the scenario.
func (s *Scenario) Repositories() map[ir.Graph]string {
	out := make(map[ir.Graph]string, len(ir.Graphs))
	for _, g := range ir.Graphs {
		out[g] = DefaultRepository
		if name := s.Graphs[string(g)]; name != "" {
			out[g] = name
		}
	}
	return out
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for g := range s.Graphs {
		if g != string(ir.GraphDatasets) && g != string(ir.GraphPeople) && g != string(ir.GraphOrganizations) {
			return fmt.Errorf("graphs: unknown graph %q", g)
		}
	}

	if s.Setup != nil {
		for i, step := range s.Setup.Flow {
			if err := validateStep(step); err != nil {
				return fmt.Errorf("setup.flow[%d]: %w", i, err)
			}
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Invoke {
	case "":
		return fmt.Errorf("invoke is required")
	case OpAddOrganization, OpAddPerson, OpAddDataset:
		if step.Record == nil {
			return fmt.Errorf("record is required for %s", step.Invoke)
		}
	case OpAddDocument:
		if step.Document == nil {
			return fmt.Errorf("document is required for %s", step.Invoke)
		}
	case OpDatasetExists:
		if step.Identifier == "" {
			return fmt.Errorf("identifier is required for %s", step.Invoke)
		}
	case OpSave:
	default:
		return fmt.Errorf("unknown operation %q", step.Invoke)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSize:
		if a.Repository == "" {
			return fmt.Errorf("assertions[%d]: repository is required for size", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for size", index)
		}
	case AssertContains, AssertAbsent:
		if a.Repository == "" {
			return fmt.Errorf("assertions[%d]: repository is required for %s", index, a.Type)
		}
		if len(a.Triple) != 3 {
			return fmt.Errorf("assertions[%d]: triple must have 3 terms for %s", index, a.Type)
		}
	case AssertNamespace:
		if a.Repository == "" || a.Prefix == "" || a.URI == "" {
			return fmt.Errorf("assertions[%d]: repository, prefix and uri are required for namespace", index)
		}
	case AssertReport:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for report", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
