package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anesthub/research-digest-service/internal/domain"
	"github.com/anesthub/research-digest-service/internal/sourceclient"
)

const efetchFixture = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">40000001</PMID>
      <Article>
        <Journal>
          <Title>British journal of anaesthesia</Title>
          <ISOAbbreviation>Br J Anaesth</ISOAbbreviation>
          <JournalIssue>
            <PubDate><Year>2026</Year><Month>Aug</Month><Day>14</Day></PubDate>
          </JournalIssue>
        </Journal>
        <ArticleTitle>Opioid-sparing analgesia after major abdominal surgery</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Multimodal regimens are common.</AbstractText>
          <AbstractText Label="METHODS">A randomised trial.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author><LastName>Nguyen</LastName><ForeName>Linh</ForeName><Initials>L</Initials></Author>
          <Author><CollectiveName>PROSPECT Working Group</CollectiveName></Author>
          <Author><ForeName>Orphan</ForeName></Author>
        </AuthorList>
      </Article>
      <MedlineJournalInfo>
        <MedlineTA>Br J Anaesth</MedlineTA>
      </MedlineJournalInfo>
    </MedlineCitation>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID></PMID>
      <Article>
        <Journal>
          <JournalIssue><PubDate><MedlineDate>2026 Jul-Aug</MedlineDate></PubDate></JournalIssue>
        </Journal>
        <ArticleTitle>Record without an identifier</ArticleTitle>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		BaseURL:   server.URL,
		RateLimit: 1000, // avoid throttling in tests
		BurstSize: 100,
	})
}

func TestSearchIDs(t *testing.T) {
	t.Run("returns identifiers in source order", func(t *testing.T) {
		var gotQuery string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/esearch.fcgi", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "pubmed", q.Get("db"))
			assert.Equal(t, "json", q.Get("retmode"))
			assert.Equal(t, "pub date", q.Get("sort"))
			assert.Equal(t, "5", q.Get("retmax"))
			gotQuery = q.Get("term")
			fmt.Fprint(w, `{"esearchresult":{"count":"3","retmax":"5","idlist":["39000003","39000002","39000001"]}}`)
		})

		ids, err := client.SearchIDs(context.Background(), SearchParams{
			Journal:    "Anaesthesia",
			From:       date(2026, 8, 1),
			To:         date(2026, 8, 8),
			MaxResults: 5,
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"39000003", "39000002", "39000001"}, ids)
		assert.Contains(t, gotQuery, `"Anaesthesia"[Journal]`)
		assert.Contains(t, gotQuery, `NOT "Letter"[pt]`)
	})

	t.Run("zero matches yield an empty non-nil list", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"esearchresult":{"count":"0","retmax":"30","idlist":[],"errorlist":{"phrasesnotfound":["nonexistent"]}}}`)
		})

		ids, err := client.SearchIDs(context.Background(), SearchParams{From: date(2026, 1, 1), To: date(2026, 1, 7)})

		require.NoError(t, err)
		require.NotNil(t, ids)
		assert.Empty(t, ids)
	})

	t.Run("defaults retmax to the client cap", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "30", r.URL.Query().Get("retmax"))
			fmt.Fprint(w, `{"esearchresult":{"idlist":[]}}`)
		})

		_, err := client.SearchIDs(context.Background(), SearchParams{From: date(2026, 1, 1), To: date(2026, 1, 7)})
		require.NoError(t, err)
	})

	t.Run("malformed JSON is a source error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html>not json</html>`)
		})

		_, err := client.SearchIDs(context.Background(), SearchParams{From: date(2026, 1, 1), To: date(2026, 1, 7)})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	})
}

func TestSearchGuidelineIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		term := r.URL.Query().Get("term")
		assert.Contains(t, term, `"Practice Guideline"[pt]`)
		assert.NotContains(t, term, `NOT "Letter"`)
		fmt.Fprint(w, `{"esearchresult":{"idlist":["38000001"]}}`)
	})

	ids, err := client.SearchGuidelineIDs(context.Background(), date(2025, 8, 31), date(2026, 8, 31), 10)

	require.NoError(t, err)
	assert.Equal(t, []string{"38000001"}, ids)
}

func TestFetchArticles(t *testing.T) {
	t.Run("flattens articles and skips records without a PMID", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/efetch.fcgi", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "pubmed", q.Get("db"))
			assert.Equal(t, "xml", q.Get("retmode"))
			assert.Equal(t, "40000001,40000002", q.Get("id"))
			fmt.Fprint(w, efetchFixture)
		})

		records, err := client.FetchArticles(context.Background(), []string{"40000001", "40000002"})

		require.NoError(t, err)
		require.Len(t, records, 1)

		rec := records[0]
		assert.Equal(t, "40000001", rec.PMID)
		assert.Equal(t, "Opioid-sparing analgesia after major abdominal surgery", rec.Title)
		assert.Equal(t, "Multimodal regimens are common.\nA randomised trial.", rec.Abstract)
		assert.Equal(t, "British journal of anaesthesia", rec.JournalTitle)
		assert.Equal(t, "Br J Anaesth", rec.JournalAbbrev)
		assert.Equal(t, []string{"Nguyen L", "PROSPECT Working Group"}, rec.Authors)
		assert.Equal(t, "2026 Aug 14", rec.Date)
		assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/40000001/", rec.URL)
	})

	t.Run("rejects an empty id list", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})

		_, err := client.FetchArticles(context.Background(), nil)

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("rejects oversized batches", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})

		ids := make([]string, MaxFetchBatch+1)
		for i := range ids {
			ids[i] = fmt.Sprintf("%d", i)
		}

		_, err := client.FetchArticles(context.Background(), ids)

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("non-200 responses map to source errors", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad request", http.StatusBadRequest)
		})

		_, err := client.FetchArticles(context.Background(), []string{"1"})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)

		var srcErr *domain.SourceError
		require.ErrorAs(t, err, &srcErr)
		assert.Equal(t, http.StatusBadRequest, srcErr.StatusCode)
	})

	t.Run("malformed XML is a source error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"unexpected":"json"}`)
		})

		_, err := client.FetchArticles(context.Background(), []string{"1"})

		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	})
}

func TestRawResponseCache(t *testing.T) {
	params := SearchParams{Journal: "Anaesthesia", From: date(2026, 8, 1), To: date(2026, 8, 8)}

	t.Run("identical requests reuse the cached body until the TTL lapses", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			fmt.Fprint(w, `{"esearchresult":{"idlist":["39000001"]}}`)
		}))
		t.Cleanup(server.Close)

		clk := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
		client := New(Config{
			BaseURL:   server.URL,
			RateLimit: 1000,
			BurstSize: 100,
			RawTTL:    time.Hour,
			Clock:     clk.Now,
		})

		for i := 0; i < 3; i++ {
			ids, err := client.SearchIDs(context.Background(), params)
			require.NoError(t, err)
			assert.Equal(t, []string{"39000001"}, ids)
		}
		assert.Equal(t, int32(1), calls.Load(), "repeats inside the TTL stay in-process")

		clk.Advance(61 * time.Minute)
		_, err := client.SearchIDs(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load(), "an expired entry is fetched again")
	})

	t.Run("distinct requests get distinct entries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			fmt.Fprint(w, `{"esearchresult":{"idlist":[]}}`)
		}))
		t.Cleanup(server.Close)

		client := New(Config{BaseURL: server.URL, RateLimit: 1000, BurstSize: 100, RawTTL: time.Hour})

		_, err := client.SearchIDs(context.Background(), params)
		require.NoError(t, err)

		other := params
		other.Journal = "Pain"
		_, err = client.SearchIDs(context.Background(), other)
		require.NoError(t, err)

		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("failures are not cached", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, `{"esearchresult":{"idlist":["39000001"]}}`)
		}))
		t.Cleanup(server.Close)

		client := New(Config{
			BaseURL:   server.URL,
			RateLimit: 1000,
			BurstSize: 100,
			RawTTL:    time.Hour,
			Retry:     sourceclient.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 1},
		})

		_, err := client.SearchIDs(context.Background(), params)
		require.Error(t, err)

		ids, err := client.SearchIDs(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, []string{"39000001"}, ids)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestFormatPubDate(t *testing.T) {
	tests := []struct {
		name string
		in   PubDate
		want string
	}{
		{"full date", PubDate{Year: "2026", Month: "Aug", Day: "14"}, "2026 Aug 14"},
		{"year and month", PubDate{Year: "2026", Month: "Aug"}, "2026 Aug"},
		{"year only", PubDate{Year: "2026"}, "2026"},
		{"medline range passes through", PubDate{MedlineDate: "2026 Jul-Aug"}, "2026 Jul-Aug"},
		{"empty", PubDate{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatPubDate(tt.in))
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimit)
	assert.Equal(t, DefaultBurstSize, cfg.BurstSize)
	assert.Equal(t, DefaultMaxResults, cfg.MaxResults)
	assert.Equal(t, DefaultRawTTL, cfg.RawTTL)
}
