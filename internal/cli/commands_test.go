package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/testutil"
)

const kelpDocuments = `
- identifier: "doi:10.5063/F1K0"
  organizations:
    - { type: organization, attrs: { name: [NCEAS] } }
  people:
    - type: person
      attrs:
        name: [Josiah Carberry]
        orcid: ["0000-0002-1825-0097"]
        organization: [NCEAS]
  dataset:
    type: dataset
    attrs:
      identifier: ["doi:10.5063/F1K0"]
      title: [Kelp forest survey]
`

// dataONE serves a one-document Solr index and its science metadata.
func dataONE(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cn/v1/query/solr/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<response>
<result name="response" numFound="1" start="0">
<doc><str name="identifier">knb.1.1</str><str name="title">Stream chemistry</str><str name="formatId">FGDC-STD-001-1998</str><arr name="origin"><str>A. Smith</str></arr></doc>
</result>
</response>`)
	})
	mux.HandleFunc("/cn/v1/object/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<metadata/>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type cliEnv struct {
	fake   *testutil.FakeSesame
	dir    string
	config string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	fake := testutil.NewFakeSesame(t)
	d1 := dataONE(t)
	dir := t.TempDir()

	cfg := fmt.Sprintf(`server: {
	host:    %q
	port:    %d
	timeout: "2s"
}
harvest: {
	index_url:  %q
	object_url: %q
	page_size:  10
	state_db:   %q
}
`, fake.Host(), fake.Port(), d1.URL+"/cn/v1/query/solr/", d1.URL+"/cn/v1/object/", filepath.Join(dir, "state.db"))
	path := filepath.Join(dir, "d1lod.cue")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return &cliEnv{fake: fake, dir: dir, config: path}
}

// run executes the root command and returns stdout.
func (e *cliEnv) run(args ...string) (string, error) {
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(logs)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) runJSON(t *testing.T, args ...string) (CLIResponse, error) {
	t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

func (e *cliEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	env := newCLIEnv(t)
	docs := env.writeFile(t, "kelp.yaml", kelpDocuments)

	out, err := env.run("load", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "Documents: 1 (0 failed)")
	assert.Equal(t, 11, env.fake.Size("geolink"))

	// Loading again resolves everything.
	resp, err := env.runJSON(t, "load", docs)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	graphs := data["graphs"].(map[string]any)
	assert.Equal(t, float64(1), graphs["datasets"].(map[string]any)["existing"])
	assert.Equal(t, 11, env.fake.Size("geolink"))
}

func TestLoad_FailedDocumentExitsWithFailure(t *testing.T) {
	env := newCLIEnv(t)
	env.fake.Fail(testutil.OpUpdate, http.StatusInternalServerError, "disk full", -1)
	docs := env.writeFile(t, "kelp.yaml", kelpDocuments)

	_, err := env.run("load", docs)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestLoad_InvalidFile(t *testing.T) {
	env := newCLIEnv(t)
	docs := env.writeFile(t, "bad.yaml", "- identifier: a\n  dataset: {type: dataset}\n  extra: 1\n")

	_, err := env.run("load", docs)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSizeNamespacesFindExport(t *testing.T) {
	env := newCLIEnv(t)
	docs := env.writeFile(t, "kelp.yaml", kelpDocuments)
	_, err := env.run("load", docs)
	require.NoError(t, err)

	out, err := env.run("size")
	require.NoError(t, err)
	assert.Equal(t, "geolink\t11\n", out)

	out, err = env.run("size", "missing")
	require.NoError(t, err)
	assert.Equal(t, "missing\t(missing)\n", out)

	out, err = env.run("namespaces", "geolink")
	require.NoError(t, err)
	assert.Contains(t, out, "glview\thttp://schema.geolink.org/dev/view/\n")
	assert.Contains(t, out, "d1org\thttps://dataone.org/organization/\n")

	out, err = env.run("find", "geolink", "?s", "rdf:type", "glview:Organization")
	require.NoError(t, err)
	assert.Equal(t, "<https://dataone.org/organization/NCEAS>\n(1 rows)\n", out)

	resp, err := env.runJSON(t, "find", "geolink", "d1people:0000-0002-1825-0097", "glview:nameFull", "?name")
	require.NoError(t, err)
	rows := resp.Data.(map[string]any)["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Josiah Carberry", rows[0].(map[string]any)["name"])

	exportPath := filepath.Join(env.dir, "geolink.ttl")
	_, err = env.run("export", "geolink", "--output", exportPath)
	require.NoError(t, err)
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://dataone.org/organization/NCEAS")
}

func TestFind_InvalidTerm(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("find", "geolink", "?", "?p", "?o")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestClear(t *testing.T) {
	env := newCLIEnv(t)
	docs := env.writeFile(t, "kelp.yaml", kelpDocuments)
	_, err := env.run("load", docs)
	require.NoError(t, err)

	_, err = env.run("clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
	assert.Equal(t, 11, env.fake.Size("geolink"))

	out, err := env.run("clear", "--yes", "--namespaces")
	require.NoError(t, err)
	assert.Equal(t, "Cleared geolink\n", out)
	assert.Equal(t, 0, env.fake.Size("geolink"))
	assert.Empty(t, env.fake.Namespaces("geolink"))
}

func TestCursor(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("cursor")
	require.NoError(t, err)
	assert.Equal(t, "since: not set\n", out)

	out, err = env.run("cursor", "set", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "since: 2024-03-01T00:00:00Z\n", out)

	out, err = env.run("cursor")
	require.NoError(t, err)
	assert.Equal(t, "since: 2024-03-01T00:00:00Z\n", out)

	_, err = env.run("cursor", "clear")
	require.NoError(t, err)
	out, err = env.run("cursor")
	require.NoError(t, err)
	assert.Equal(t, "since: not set\n", out)

	_, err = env.run("cursor", "set", "soon")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHarvest_RequiresFromWithoutCursor(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("harvest")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid harvest window")
	assert.Zero(t, env.fake.Count(testutil.OpUpdate))
}

func TestHarvest_ThenResumeFromCursor(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.runJSON(t, "harvest", "--from", "2024-01-01", "--to", "2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["found"])
	assert.Equal(t, float64(1), data["processed"])

	people := env.fake.Subjects("geolink",
		ir.IRI("http://schema.geolink.org/dev/view/nameFull"), ir.NewLiteral("A. Smith"))
	assert.Len(t, people, 1)

	out, err := env.run("cursor")
	require.NoError(t, err)
	assert.Equal(t, "since: 2024-02-01T00:00:00Z\n", out)

	// The second harvest starts at the cursor and skips the known dataset.
	resp, err = env.runJSON(t, "harvest")
	require.NoError(t, err)
	data = resp.Data.(map[string]any)
	assert.Equal(t, "2024-02-01T00:00:00Z", data["from"])
	assert.Equal(t, float64(1), data["skipped"])

	out, err = env.run("runs")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, "completed")
	}

	runID := strings.Fields(lines[1])[0]
	out, err = env.run("runs", runID)
	require.NoError(t, err)
	assert.Contains(t, out, `"processed":1`)
}

func TestHarvest_ResetClearsRepositories(t *testing.T) {
	env := newCLIEnv(t)
	docs := env.writeFile(t, "kelp.yaml", kelpDocuments)
	_, err := env.run("load", docs)
	require.NoError(t, err)
	_, err = env.run("cursor", "set", "2024-01-01")
	require.NoError(t, err)

	_, err = env.run("harvest", "--reset", "--from", "2024-01-01", "--to", "2024-02-01")
	require.NoError(t, err)

	datasets := env.fake.Subjects("geolink",
		ir.IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type"), ir.IRI("http://schema.geolink.org/dev/view/Dataset"))
	assert.Equal(t, []ir.Term{ir.IRI("https://cn.dataone.org/cn/v1/resolve/knb.1.1")}, datasets)
}

func TestRuns_Unknown(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("runs")
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded\n", out)

	_, err = env.run("runs", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_Scenarios(t *testing.T) {
	env := newCLIEnv(t)
	scenario := filepath.Join("..", "harness", "testdata", "scenarios", "nceas_affiliation.yaml")

	out, err := env.run("test", scenario)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS nceas_affiliation")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	// The repository now holds the scenario's entities, so the person
	// resolves instead of being created.
	resp, err := env.runJSON(t, "test", scenario)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeFailed, resp.Error.Code)

	out, err = env.run("test", "--reset", scenario)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS nceas_affiliation")
	assert.Equal(t, 5, env.fake.Size("geolink"))
}

func TestTest_Directory(t *testing.T) {
	env := newCLIEnv(t)
	env.writeFile(t, "broken.yaml", "name: broken\nflow: []\nassertions: [{type: size}]\n")
	env.writeFile(t, "notes.txt", "not a scenario")

	resp, err := env.runJSON(t, "test", env.dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	details := resp.Error.Details.(map[string]any)
	assert.Equal(t, float64(1), details["total"])
	assert.Equal(t, float64(1), details["failed"])

	out, err := env.run("test", "--filter", "nothing*", env.dir)
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)

	_, err = env.run("test", filepath.Join(env.dir, "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfig_Missing(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.cue"), "size"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
