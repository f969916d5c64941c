package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ohler55/ojg/oj"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juristools/stjsearch/internal/catalog"
	"github.com/juristools/stjsearch/internal/store"
)

// fakeCatalog serves canned resources and payloads. ZIP payloads are
// materialized as real files in the destination directory so the
// engine's cleanup behavior is observable.
type fakeCatalog struct {
	resources map[string][]catalog.Resource
	listErr   map[string]error
	payloads  map[string][]map[string]any // url → records
	fetchErr  map[string]error
	zips      map[string]map[string]string // url → member name → body

	fetches []string // urls fetched, in order
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		resources: make(map[string][]catalog.Resource),
		listErr:   make(map[string]error),
		payloads:  make(map[string][]map[string]any),
		fetchErr:  make(map[string]error),
		zips:      make(map[string]map[string]string),
	}
}

func (f *fakeCatalog) ListResources(_ context.Context, dataset string) ([]catalog.Resource, error) {
	if err := f.listErr[dataset]; err != nil {
		return nil, err
	}
	return f.resources[dataset], nil
}

func (f *fakeCatalog) FetchJSON(_ context.Context, url string) ([]map[string]any, error) {
	f.fetches = append(f.fetches, url)
	if err := f.fetchErr[url]; err != nil {
		return nil, err
	}
	return f.payloads[url], nil
}

func (f *fakeCatalog) FetchZip(_ context.Context, url, destDir string) ([]string, error) {
	f.fetches = append(f.fetches, url)
	if err := f.fetchErr[url]; err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for name, body := range f.zips[url] {
		p := filepath.Join(destDir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func rawRecord(id, ementa string) map[string]any {
	return map[string]any{"id": id, "ementa": ementa, "dataDecisao": "20200115"}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "stj.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Init(context.Background()))
	return s
}

func newTestEngine(t *testing.T, c Catalog, s *store.Store, datasets ...string) *Engine {
	t.Helper()
	return New(c, s, Options{
		Datasets: datasets,
		WorkDir:  t.TempDir(),
		Logger:   zerolog.Nop(),
	})
}

func TestRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.resources["ds"] = []catalog.Resource{
		{ID: "r1", Name: "acordaos.json", Format: "JSON", URL: "http://x/r1"},
	}
	fc.payloads["http://x/r1"] = []map[string]any{
		{"id": "1", "ementa": "indenização por dano moral", "dataDecisao": "20200115"},
		{"id": "2", "ementa": "revisão de contrato", "dataDecisao": "20190601"},
	}

	s := newTestStore(t)
	e := newTestEngine(t, fc, s, "ds")

	total, err := e.Run(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	results, err := s.Search(ctx, "dano", store.Filters{}, 20, store.OrderRecency)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ID)

	results, err = s.Search(ctx, "dano OR contrato", store.Filters{}, 20, store.OrderRecency)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, "2", results[1].ID)
}

func TestRun_SecondSyncSkipsSyncedResources(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.resources["ds"] = []catalog.Resource{
		{ID: "r1", Name: "acordaos.json", Format: "JSON", URL: "http://x/r1"},
	}
	fc.payloads["http://x/r1"] = []map[string]any{rawRecord("1", "dano moral")}

	s := newTestStore(t)
	e := newTestEngine(t, fc, s, "ds")

	total, err := e.Run(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	total, err = e.Run(ctx, "", false)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Len(t, fc.fetches, 1, "synced resource must not be re-fetched")

	stats, err := s.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total, "no duplication across runs")
}

func TestRun_ForceRefetchesAndOverwrites(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.resources["ds"] = []catalog.Resource{
		{ID: "r1", Name: "acordaos.json", Format: "JSON", URL: "http://x/r1"},
	}
	fc.payloads["http://x/r1"] = []map[string]any{rawRecord("1", "primeira versão")}

	s := newTestStore(t)
	e := newTestEngine(t, fc, s, "ds")

	_, err := e.Run(ctx, "", false)
	require.NoError(t, err)

	// Upstream content changes; a plain sync would skip it.
	fc.payloads["http://x/r1"] = []map[string]any{rawRecord("1", "segunda versão")}

	total, err := e.Run(ctx, "ds", true)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, fc.fetches, 2)

	a, ok, err := s.GetByID(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "segunda versão", a.Ementa)

	stats, err := s.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total, "force overwrites, it does not duplicate")
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.resources["ds1"] = []catalog.Resource{
		{ID: "bad", Name: "quebrado.json", Format: "JSON", URL: "http://x/bad"},
		{ID: "good", Name: "bom.json", Format: "JSON", URL: "http://x/good"},
	}
	fc.resources["ds2"] = []catalog.Resource{
		{ID: "later", Name: "depois.json", Format: "JSON", URL: "http://x/later"},
	}
	fc.fetchErr["http://x/bad"] = &catalog.UpstreamError{Op: "GET", URL: "http://x/bad", Err: fmt.Errorf("boom")}
	fc.payloads["http://x/good"] = []map[string]any{rawRecord("g1", "sobreviveu")}
	fc.payloads["http://x/later"] = []map[string]any{rawRecord("l1", "também sobreviveu")}

	s := newTestStore(t)
	e := newTestEngine(t, fc, s, "ds1", "ds2")

	total, err := e.Run(ctx, "", false)
	require.NoError(t, err, "a resource failure must not surface as a run failure")
	assert.Equal(t, 2, total)

	// The failed resource got no marker: the next run retries it while
	// still skipping its healthy sibling.
	synced, err := s.IsSynced(ctx, "ds1", "bad")
	require.NoError(t, err)
	assert.False(t, synced)
	synced, err = s.IsSynced(ctx, "ds1", "good")
	require.NoError(t, err)
	assert.True(t, synced)
	synced, err = s.IsSynced(ctx, "ds2", "later")
	require.NoError(t, err)
	assert.True(t, synced)
}

func TestRun_ListFailureScopedToDataset(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.listErr["ds1"] = &catalog.UpstreamError{Op: "GET", URL: "http://x/package_show", Err: fmt.Errorf("offline")}
	fc.resources["ds2"] = []catalog.Resource{
		{ID: "r", Name: "ok.json", Format: "JSON", URL: "http://x/ok"},
	}
	fc.payloads["http://x/ok"] = []map[string]any{rawRecord("1", "chegou")}

	s := newTestStore(t)
	e := newTestEngine(t, fc, s, "ds1", "ds2")

	total, err := e.Run(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRun_UnknownDataset(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, newFakeCatalog(), s, "ds")

	_, err := e.Run(context.Background(), "nope", false)
	require.ErrorIs(t, err, ErrUnknownDataset)
}

func TestRun_DatasetFilterProcessesOnlyThatDataset(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.resources["ds1"] = []catalog.Resource{
		{ID: "r1", Name: "um.json", Format: "JSON", URL: "http://x/r1"},
	}
	fc.resources["ds2"] = []catalog.Resource{
		{ID: "r2", Name: "dois.json", Format: "JSON", URL: "http://x/r2"},
	}
	fc.payloads["http://x/r1"] = []map[string]any{rawRecord("1", "alvo")}
	fc.payloads["http://x/r2"] = []map[string]any{rawRecord("2", "fora do alvo")}

	s := newTestStore(t)
	e := newTestEngine(t, fc, s, "ds1", "ds2")

	total, err := e.Run(ctx, "ds2", false)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"http://x/r2"}, fc.fetches)
}

func TestRun_NonIngestibleResourcesSkipped(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.resources["ds"] = []catalog.Resource{
		{ID: "d", Name: "dicionario-de-dados", Format: "JSON", URL: "http://x/dict"},
		{ID: "x", Name: "planilha", Format: "XLSX", URL: "http://x/xlsx"},
	}

	s := newTestStore(t)
	e := newTestEngine(t, fc, s, "ds")

	total, err := e.Run(ctx, "", false)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, fc.fetches)
}

func TestRun_ZipResource(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.resources["ds"] = []catalog.Resource{
		{ID: "z1", Name: "arquivo-2020", Format: "ZIP", URL: "http://x/z1"},
	}
	fc.zips["http://x/z1"] = map[string]string{
		"a.json": oj.JSON([]any{rawRecord("1", "membro um")}),
		"b.json": oj.JSON([]any{rawRecord("2", "membro dois")}),
	}

	s := newTestStore(t)
	workDir := t.TempDir()
	e := New(fc, s, Options{Datasets: []string{"ds"}, WorkDir: workDir, Logger: zerolog.Nop()})

	total, err := e.Run(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// Extracted members were consumed and released.
	entries, err := os.ReadDir(filepath.Join(workDir, "ds"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_ZipMemberFailureCleansUp(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.resources["ds"] = []catalog.Resource{
		{ID: "z1", Name: "arquivo-2020", Format: "ZIP", URL: "http://x/z1"},
	}
	fc.zips["http://x/z1"] = map[string]string{
		"a.json": "isto não é JSON",
	}

	s := newTestStore(t)
	workDir := t.TempDir()
	e := New(fc, s, Options{Datasets: []string{"ds"}, WorkDir: workDir, Logger: zerolog.Nop()})

	total, err := e.Run(ctx, "", false)
	require.NoError(t, err)
	assert.Zero(t, total)

	// No marker for the failed resource, and no temp files left behind.
	synced, err := s.IsSynced(ctx, "ds", "z1")
	require.NoError(t, err)
	assert.False(t, synced)
	entries, err := os.ReadDir(filepath.Join(workDir, "ds"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_MalformedRecordsSkippedWithinResource(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.resources["ds"] = []catalog.Resource{
		{ID: "r1", Name: "mistura.json", Format: "JSON", URL: "http://x/r1"},
	}
	fc.payloads["http://x/r1"] = []map[string]any{
		rawRecord("1", "válido"),
		{"ementa": "sem id"},
		rawRecord("2", "também válido"),
	}

	s := newTestStore(t)
	e := newTestEngine(t, fc, s, "ds")

	total, err := e.Run(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// The resource still completes and gets its marker.
	synced, err := s.IsSynced(ctx, "ds", "r1")
	require.NoError(t, err)
	assert.True(t, synced)
}

// recordingReporter captures feedback for assertions.
type recordingReporter struct {
	lines    []string
	advances int
}

func (r *recordingReporter) Line(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Advance() { r.advances++ }

func TestRun_ReporterSeesProgress(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCatalog()
	fc.resources["ds"] = []catalog.Resource{
		{ID: "r1", Name: "um.json", Format: "JSON", URL: "http://x/r1"},
		{ID: "r2", Name: "dois.json", Format: "JSON", URL: "http://x/r2"},
	}
	fc.payloads["http://x/r1"] = []map[string]any{rawRecord("1", "a")}
	fc.fetchErr["http://x/r2"] = fmt.Errorf("boom")

	rep := &recordingReporter{}
	s := newTestStore(t)
	e := New(fc, s, Options{Datasets: []string{"ds"}, WorkDir: t.TempDir(), Reporter: rep, Logger: zerolog.Nop()})

	_, err := e.Run(ctx, "", false)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.advances, "every resource advances, pass or fail")
	assert.Contains(t, rep.lines[0], "Dataset: ds")
	assert.Contains(t, rep.lines[len(rep.lines)-1], "Sync complete")
}
