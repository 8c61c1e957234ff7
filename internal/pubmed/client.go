package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anesthub/research-digest-service/internal/cache"
	"github.com/anesthub/research-digest-service/internal/domain"
	"github.com/anesthub/research-digest-service/internal/observability"
	"github.com/anesthub/research-digest-service/internal/sourceclient"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxResults is the default result cap per search.
	DefaultMaxResults = 30

	// DefaultRawTTL is how long raw esearch/efetch responses are reused
	// before the source is queried again.
	DefaultRawTTL = time.Hour

	// MaxFetchBatch is the largest identifier batch efetch accepts from
	// callers. Keeps request URLs and response documents bounded.
	MaxFetchBatch = 50

	// maxResponseBytes bounds how much of an upstream response is read.
	maxResponseBytes = 10 << 20
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Timeout is the request timeout. Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxResults is the default result cap per search.
	// Defaults to DefaultMaxResults if zero.
	MaxResults int

	// Retry governs retries on network errors, 429 and 5xx responses.
	Retry sourceclient.RetryPolicy

	// RawTTL is how long raw responses are served from the in-process cache
	// before hitting the source again. Defaults to DefaultRawTTL if zero.
	RawTTL time.Duration

	// Clock supplies the current time for cache freshness checks.
	// Nil means time.Now; tests inject a fake.
	Clock cache.Clock

	// Metrics receives per-request counters and durations. Optional.
	Metrics *observability.Metrics
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.RawTTL == 0 {
		c.RawTTL = DefaultRawTTL
	}
}

// SearchParams describe one research search.
type SearchParams struct {
	// Journal restricts the search to one canonical journal label.
	// Empty means the whole configured journal set.
	Journal string

	// From and To bound the publication date range, inclusive.
	From time.Time
	To   time.Time

	// MaxResults caps the number of identifiers returned.
	// Zero means the client default.
	MaxResults int
}

// Client queries the PubMed E-utilities endpoints. Raw response bodies are
// cached in-process for Config.RawTTL keyed by request URL, so repeated runs
// inside the window reuse the same esearch/efetch payloads.
type Client struct {
	config     Config
	httpClient *sourceclient.Client
	raw        *cache.Store[[]byte]
}

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sourceclient.New(sourceclient.Config{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
			Retry:     cfg.Retry,
			UserAgent: "AnesthubResearchDigest/1.0 (mailto:ops@anesthub.io)",
			Metrics:   cfg.Metrics,
		}),
		raw: cache.New[[]byte](cfg.Clock),
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sourceclient.Client) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient, raw: cache.New[[]byte](cfg.Clock)}
}

// SearchIDs queries esearch.fcgi for PMIDs matching the research query:
// journal membership, publication date within [From, To], letters excluded.
// The identifier list preserves the source's publication-date ordering.
//
// An empty result means the source affirmatively reported zero matches;
// request failures are returned as errors, never as an empty list.
func (c *Client) SearchIDs(ctx context.Context, params SearchParams) ([]string, error) {
	term := BuildResearchQuery(params.Journal, params.From, params.To)
	return c.esearch(ctx, term, params.MaxResults)
}

// SearchGuidelineIDs queries esearch.fcgi for guideline and consensus
// statement PMIDs across the whole journal set in the given window.
func (c *Client) SearchGuidelineIDs(ctx context.Context, from, to time.Time, maxResults int) ([]string, error) {
	term := BuildGuidelineQuery(from, to)
	return c.esearch(ctx, term, maxResults)
}

// FetchArticles retrieves full article metadata for the given PMIDs via
// efetch.fcgi and flattens each article into a domain.RawRecord.
//
// An empty identifier list is invalid: searches that produced zero matches
// must short-circuit before fetching. Batches larger than MaxFetchBatch are
// rejected rather than split.
//
// Articles that cannot be attributed a PMID are skipped; malformed optional
// fields (authors, abstract, dates) degrade per field without aborting the
// batch.
func (c *Client) FetchArticles(ctx context.Context, pmids []string) ([]domain.RawRecord, error) {
	if len(pmids) == 0 {
		return nil, fmt.Errorf("%w: fetch requires at least one id", domain.ErrInvalidInput)
	}
	if len(pmids) > MaxFetchBatch {
		return nil, fmt.Errorf("%w: fetch batch of %d exceeds cap of %d", domain.ErrInvalidInput, len(pmids), MaxFetchBatch)
	}

	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, "efetch", u.String())
	if err != nil {
		return nil, err
	}

	var set PubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, domain.NewSourceError("efetch", 0, fmt.Errorf("failed to parse XML response: %w", err))
	}

	records := make([]domain.RawRecord, 0, len(set.Articles))
	for _, article := range set.Articles {
		rec := flattenArticle(article)
		if rec.PMID == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// esearch issues one esearch.fcgi call and returns the identifier list.
func (c *Client) esearch(ctx context.Context, term string, maxResults int) ([]string, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmode", "json")
	q.Set("retmax", fmt.Sprintf("%d", maxResults))
	q.Set("sort", "pub date")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, "esearch", u.String())
	if err != nil {
		return nil, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewSourceError("esearch", 0, fmt.Errorf("failed to parse JSON response: %w", err))
	}

	// Phrases not found mean zero matches, not a failed request.
	ids := resp.ESearchResult.IDList
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// get returns the raw response body for the given URL, serving it from the
// raw cache while the entry is younger than Config.RawTTL. Failed requests
// are never cached, and concurrent callers for the same URL share one fetch.
func (c *Client) get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	body, _, err := c.raw.GetOrFill(ctx, rawURL, c.config.RawTTL, func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, endpoint, rawURL)
	})
	return body, err
}

// fetch executes a GET and returns the response body, translating failures
// into the domain error taxonomy.
func (c *Client) fetch(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Rate-limit errors already carry their own type; keep them
		// distinguishable from generic source failures.
		var rle *domain.RateLimitError
		if errors.As(err, &rle) {
			return nil, err
		}
		return nil, domain.NewSourceError(endpoint, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return nil, domain.NewSourceError(endpoint, resp.StatusCode,
			fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(msg))))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewSourceError(endpoint, 0, fmt.Errorf("failed to read response: %w", err))
	}
	return body, nil
}

// flattenArticle converts one PubmedArticle into the flat RawRecord shape.
func flattenArticle(article PubmedArticle) domain.RawRecord {
	citation := article.MedlineCitation

	pmid := strings.TrimSpace(citation.PMID.Value)

	abbrev := ""
	if citation.MedlineJournalInfo != nil {
		abbrev = strings.TrimSpace(citation.MedlineJournalInfo.MedlineTA)
	}
	if abbrev == "" {
		abbrev = strings.TrimSpace(citation.Article.Journal.ISOAbbreviation)
	}

	return domain.RawRecord{
		PMID:          pmid,
		Title:         strings.TrimSpace(citation.Article.ArticleTitle),
		Abstract:      extractAbstract(citation.Article.Abstract),
		JournalTitle:  strings.TrimSpace(citation.Article.Journal.Title),
		JournalAbbrev: abbrev,
		Authors:       extractAuthors(citation.Article.AuthorList),
		Date:          formatPubDate(citation.Article.Journal.JournalIssue.PubDate),
		URL:           fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", pmid),
	}
}

// extractAbstract concatenates abstract sections with line breaks.
// Returns empty string when the article has no abstract.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, section := range abstract.AbstractTexts {
		text := strings.TrimSpace(section.Value)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

// extractAuthors builds display names: "LastName Initials" for persons,
// the collective name for group authors. Entries with no usable name are
// skipped rather than failing the record.
func extractAuthors(list *AuthorList) []string {
	if list == nil {
		return nil
	}
	names := make([]string, 0, len(list.Authors))
	for _, a := range list.Authors {
		name := ""
		switch {
		case a.LastName != "" && a.Initials != "":
			name = a.LastName + " " + a.Initials
		case a.LastName != "":
			name = a.LastName
		case a.CollectiveName != "":
			name = strings.TrimSpace(a.CollectiveName)
		}
		if name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return names
}

// formatPubDate joins the present date components with spaces
// (e.g. "2025 Mar 14", "2025 Mar", "2025"). MedlineDate range strings pass
// through as-is.
func formatPubDate(d PubDate) string {
	if d.MedlineDate != "" {
		return strings.TrimSpace(d.MedlineDate)
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Year, d.Month, d.Day} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
