// Package catalog is the CKAN open-data client: it lists a dataset's
// resources and downloads resource payloads (JSON arrays, or ZIP archives
// of JSON arrays) with bounded retry.
package catalog

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ohler55/ojg/oj"
	"github.com/rs/zerolog"
)

const (
	// maxAttempts bounds retries per HTTP call: the first try plus two
	// retries. Exhaustion surfaces as an UpstreamError, which callers
	// treat as scoped to the one resource, never fatal to a whole sync.
	maxAttempts = 3

	// retryStep is the linear backoff unit: attempt 1 waits 1×step,
	// attempt 2 waits 2×step.
	retryStep = 5 * time.Second
)

// Resource is one downloadable unit within a dataset, as described by the
// catalog's package_show endpoint.
type Resource struct {
	ID     string
	Name   string
	Format string
	URL    string
}

// UpstreamError wraps a network or HTTP failure that survived retry.
type UpstreamError struct {
	Op  string
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client talks to a CKAN action API. Safe for sequential use; the sync
// engine never fetches concurrently.
type Client struct {
	base  string
	httpc *http.Client
	log   zerolog.Logger
	step  time.Duration
}

// NewClient builds a client for the given action API root. The timeout
// applies per request; redirects are followed by default.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{Timeout: timeout},
		log:   log,
		step:  retryStep,
	}
}

// linearBackOff waits attempt×step between tries.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.WithMaxRetries(&linearBackOff{step: c.step}, maxAttempts-1)
	return backoff.WithContext(b, ctx)
}

// get fetches url into memory, retrying transport errors and non-2xx
// statuses.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			c.log.Debug().Err(err).Str("url", rawURL).Msg("request failed, will retry")
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, resp.Body)
			err := fmt.Errorf("unexpected status %s", resp.Status)
			c.log.Debug().Err(err).Str("url", rawURL).Msg("request failed, will retry")
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		return nil, &UpstreamError{Op: "GET", URL: rawURL, Err: err}
	}
	return body, nil
}

// ListResources queries package_show for a dataset and returns its
// resource descriptors.
func (c *Client) ListResources(ctx context.Context, dataset string) ([]Resource, error) {
	u := c.base + "/package_show?id=" + url.QueryEscape(dataset)
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	parsed, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse package_show response for %s: %w", dataset, err)
	}
	top, _ := parsed.(map[string]any)
	result, _ := top["result"].(map[string]any)
	raw, _ := result["resources"].([]any)

	resources := make([]Resource, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		resources = append(resources, Resource{
			ID:     str(m["id"]),
			Name:   str(m["name"]),
			Format: str(m["format"]),
			URL:    str(m["url"]),
		})
	}
	return resources, nil
}

// dictionaryPrefix marks schema/glossary resources that carry no case
// data.
const dictionaryPrefix = "dicionario"

// FilterIngestible keeps only the resources worth downloading: JSON or
// ZIP payloads that are not data dictionaries.
func FilterIngestible(resources []Resource) []Resource {
	var out []Resource
	for _, r := range resources {
		format := strings.ToUpper(r.Format)
		if format != "JSON" && format != "ZIP" {
			continue
		}
		if strings.HasPrefix(r.Name, dictionaryPrefix) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FetchJSON downloads and parses a resource that is a raw JSON array of
// records.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) ([]map[string]any, error) {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return parseRecords(body, rawURL)
}

// FetchZip streams a ZIP resource to disk, extracts its .json members
// into destDir and deletes the archive. The caller owns the extracted
// files and must remove them once consumed.
func (c *Client) FetchZip(ctx context.Context, rawURL, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir %s: %w", destDir, err)
	}
	archive := filepath.Join(destDir, "archive.zip")

	op := func() error { return c.downloadFile(ctx, rawURL, archive) }
	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		return nil, &UpstreamError{Op: "GET", URL: rawURL, Err: err}
	}
	defer func() { _ = os.Remove(archive) }()

	return extractJSONMembers(archive, destDir)
}

// downloadFile streams one GET response to path. A partial file from a
// failed attempt is simply overwritten by the next one.
func (c *Client) downloadFile(ctx context.Context, rawURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	f, err := os.Create(path)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create %s: %w", path, err))
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// extractJSONMembers pulls .json entries out of the archive into destDir.
// Member paths are flattened to their base name; archive entries that try
// to escape the destination are rejected.
func extractJSONMembers(archive, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archive, err)
	}
	defer func() { _ = zr.Close() }()

	var extracted []string
	for _, member := range zr.File {
		if member.FileInfo().IsDir() || !strings.HasSuffix(member.Name, ".json") {
			continue
		}
		name := filepath.Base(member.Name)
		if name == "." || name == ".." {
			continue
		}
		dest := filepath.Join(destDir, name)

		if err := extractMember(member, dest); err != nil {
			// Clean up what was already extracted before bailing.
			for _, p := range extracted {
				_ = os.Remove(p)
			}
			return nil, err
		}
		extracted = append(extracted, dest)
	}
	return extracted, nil
}

func extractMember(member *zip.File, dest string) error {
	rc, err := member.Open()
	if err != nil {
		return fmt.Errorf("open member %s: %w", member.Name, err)
	}
	defer func() { _ = rc.Close() }()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return fmt.Errorf("extract %s: %w", member.Name, err)
	}
	return f.Close()
}

// ParseJSONFile reads one extracted archive member, itself a JSON array
// of raw records.
func ParseJSONFile(path string) ([]map[string]any, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parseRecords(body, path)
}

func parseRecords(body []byte, source string) ([]map[string]any, error) {
	parsed, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	list, ok := parsed.([]any)
	if !ok {
		return nil, fmt.Errorf("parse %s: expected a JSON array, got %T", source, parsed)
	}
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	return records, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
