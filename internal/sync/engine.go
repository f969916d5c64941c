// Package sync orchestrates incremental ingestion: for each requested
// dataset it fetches the unsynced (or forced) resources, normalizes
// their records and upserts them, isolating failures to the resource
// that caused them.
package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/juristools/stjsearch/internal/catalog"
	"github.com/juristools/stjsearch/internal/record"
)

// ErrUnknownDataset is returned when an explicit dataset filter names a
// dataset outside the configured catalog.
var ErrUnknownDataset = errors.New("unknown dataset")

// Catalog is the upstream surface the engine needs. *catalog.Client
// satisfies it; tests substitute fakes.
type Catalog interface {
	ListResources(ctx context.Context, dataset string) ([]catalog.Resource, error)
	FetchJSON(ctx context.Context, url string) ([]map[string]any, error)
	FetchZip(ctx context.Context, url, destDir string) ([]string, error)
}

// Storage is the store surface the engine writes through.
type Storage interface {
	UpsertBatch(ctx context.Context, records []record.Acordao) (int, error)
	MarkSynced(ctx context.Context, dataset, resourceID, resourceName string) error
	IsSynced(ctx context.Context, dataset, resourceID string) (bool, error)
	ClearSyncMarkers(ctx context.Context, dataset string) error
}

// Reporter receives user-facing progress feedback. Injected so the
// engine stays decoupled from presentation and tests run silently.
type Reporter interface {
	// Line emits one line of feedback.
	Line(format string, args ...any)
	// Advance signals that one resource finished (any outcome).
	Advance()
}

// NopReporter discards all feedback.
type NopReporter struct{}

func (NopReporter) Line(string, ...any) {}
func (NopReporter) Advance()            {}

// Options configure an Engine. Datasets is the full ordered catalog;
// WorkDir holds per-dataset scratch space for extracted archives.
type Options struct {
	Datasets []string
	WorkDir  string
	Reporter Reporter
	Logger   zerolog.Logger
}

// Engine drives Catalog → normalizer → Storage for each resource,
// strictly sequentially. The only concurrency it tolerates is an
// independent read-only query process; the store's transactional writes
// make that safe.
type Engine struct {
	catalog  Catalog
	store    Storage
	datasets []string
	workDir  string
	rep      Reporter
	log      zerolog.Logger
}

// New builds an Engine. A nil Reporter defaults to NopReporter.
func New(c Catalog, st Storage, opts Options) *Engine {
	rep := opts.Reporter
	if rep == nil {
		rep = NopReporter{}
	}
	return &Engine{
		catalog:  c,
		store:    st,
		datasets: opts.Datasets,
		workDir:  opts.WorkDir,
		rep:      rep,
		log:      opts.Logger,
	}
}

// Run syncs one named dataset, or the whole configured catalog in order
// when datasetFilter is empty. With force, markers for the targeted
// scope are cleared first so every resource is re-fetched and
// re-upserted. Returns the grand total of records upserted.
//
// Failures while processing a resource are logged and isolated: they
// never abort sibling resources or datasets. Only an unknown dataset
// name or a marker-clearing store failure aborts the run up front.
func (e *Engine) Run(ctx context.Context, datasetFilter string, force bool) (int, error) {
	datasets := e.datasets
	if datasetFilter != "" {
		if !e.knownDataset(datasetFilter) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownDataset, datasetFilter)
		}
		datasets = []string{datasetFilter}
	}

	if force {
		if err := e.store.ClearSyncMarkers(ctx, datasetFilter); err != nil {
			return 0, err
		}
	}

	total := 0
	for _, ds := range datasets {
		total += e.syncDataset(ctx, ds, force)
	}
	e.rep.Line("Sync complete. %d total records upserted.", total)
	return total, nil
}

func (e *Engine) knownDataset(name string) bool {
	for _, ds := range e.datasets {
		if ds == name {
			return true
		}
	}
	return false
}

// syncDataset processes one dataset and returns its upserted count. A
// failure to even list the dataset's resources is reported and scoped to
// this dataset; later datasets still run.
func (e *Engine) syncDataset(ctx context.Context, dataset string, force bool) int {
	e.rep.Line("Dataset: %s", dataset)

	resources, err := e.catalog.ListResources(ctx, dataset)
	if err != nil {
		e.log.Error().Err(err).Str("dataset", dataset).Msg("listing resources failed")
		e.rep.Line("  Error listing %s: %v", dataset, err)
		return 0
	}
	ingestible := catalog.FilterIngestible(resources)
	if len(ingestible) == 0 {
		e.rep.Line("  No data resources found.")
		return 0
	}

	total := 0
	for _, res := range ingestible {
		if !force {
			synced, err := e.store.IsSynced(ctx, dataset, res.ID)
			if err != nil {
				e.log.Error().Err(err).Str("resource", res.ID).Msg("marker check failed")
				e.rep.Advance()
				continue
			}
			if synced {
				e.rep.Advance()
				continue
			}
		}

		e.rep.Line("  Downloading %s...", res.Name)
		count, err := e.syncResource(ctx, dataset, res)
		total += count
		if err != nil {
			// Terminal failure for this resource in this run. No marker is
			// written, so the next run treats it as unseen and retries.
			e.log.Error().Err(err).Str("dataset", dataset).Str("resource", res.Name).Msg("resource failed")
			e.rep.Line("  Error processing %s: %v", res.Name, err)
			e.rep.Advance()
			continue
		}

		if err := e.store.MarkSynced(ctx, dataset, res.ID, res.Name); err != nil {
			e.log.Error().Err(err).Str("resource", res.ID).Msg("marking synced failed")
			e.rep.Line("  Error marking %s synced: %v", res.Name, err)
		}
		e.rep.Advance()
	}

	e.rep.Line("  %d records upserted.", total)
	return total
}

// syncResource fetches, normalizes and upserts one resource. It may
// return a non-zero count alongside an error when some archive members
// landed before a later one failed.
func (e *Engine) syncResource(ctx context.Context, dataset string, res catalog.Resource) (int, error) {
	if strings.ToUpper(res.Format) == "ZIP" {
		return e.syncZipResource(ctx, dataset, res)
	}

	raw, err := e.catalog.FetchJSON(ctx, res.URL)
	if err != nil {
		return 0, err
	}
	return e.upsertRaw(ctx, raw)
}

func (e *Engine) syncZipResource(ctx context.Context, dataset string, res catalog.Resource) (int, error) {
	paths, err := e.catalog.FetchZip(ctx, res.URL, filepath.Join(e.workDir, dataset))
	if err != nil {
		return 0, err
	}
	// Extracted members are scoped to this resource's processing and must
	// not outlive it, success or failure.
	defer func() {
		for _, p := range paths {
			_ = os.Remove(p)
		}
	}()

	total := 0
	for _, p := range paths {
		raw, err := catalog.ParseJSONFile(p)
		if err != nil {
			return total, err
		}
		count, err := e.upsertRaw(ctx, raw)
		if err != nil {
			return total, err
		}
		total += count
		// Release disk before the next member; large archives add up.
		_ = os.Remove(p)
	}
	return total, nil
}

// upsertRaw normalizes raw records and writes them in one batch. Records
// missing their id are skipped and counted, not fatal: a bad record must
// not sink its resource. A resource where most records are malformed
// simply degrades to a small (or empty) upsert.
func (e *Engine) upsertRaw(ctx context.Context, raw []map[string]any) (int, error) {
	records := make([]record.Acordao, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		a, err := record.Normalize(r)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, a)
	}
	if skipped > 0 {
		e.log.Warn().Int("skipped", skipped).Int("kept", len(records)).Msg("skipped malformed records")
	}
	return e.store.UpsertBatch(ctx, records)
}
