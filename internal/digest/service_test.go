package digest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anesthub/research-digest-service/internal/domain"
)

type fakePipeline struct {
	mu            sync.Mutex
	papers        []domain.Paper
	err           error
	researchCalls int
	lastJournal   string
	lastFrom      time.Time
	lastTo        time.Time
	block         chan struct{}
}

func (f *fakePipeline) Research(ctx context.Context, journal string, from, to time.Time, maxResults int) ([]domain.Paper, error) {
	f.mu.Lock()
	f.researchCalls++
	f.lastJournal, f.lastFrom, f.lastTo = journal, from, to
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.papers, f.err
}

func (f *fakePipeline) Guidelines(ctx context.Context, from, to time.Time, maxResults int) ([]domain.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrom, f.lastTo = from, to
	return f.papers, f.err
}

func (f *fakePipeline) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.researchCalls
}

type fakeSummarizer struct {
	summary     string
	report      string
	err         error
	reportCalls atomic.Int32
}

func (f *fakeSummarizer) DeepSummary(ctx context.Context, paper domain.Paper) (string, error) {
	return f.summary, f.err
}

func (f *fakeSummarizer) WeeklyReport(ctx context.Context, papers []domain.Paper, from, to time.Time) (string, error) {
	f.reportCalls.Add(1)
	return f.report, f.err
}

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

func testConfig() Config {
	return Config{
		ResearchTTL:   24 * time.Hour,
		GuidelineTTL:  7 * 24 * time.Hour,
		ResearchDays:  7,
		GuidelineDays: 365,
		MaxResults:    30,
	}
}

func newTestService(p Pipeline, s Summarizer, clock *fakeClock) *Service {
	return New(testConfig(), p, s, zerolog.Nop(), nil, clock.Now)
}

func samplePapers() []domain.Paper {
	return []domain.Paper{
		{ID: "1", Title: "First", Journal: domain.Journal{Label: "Anaesthesia", Canonical: true}},
	}
}

func TestResearch(t *testing.T) {
	ctx := context.Background()

	t.Run("caches by filter key", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
		p := &fakePipeline{papers: samplePapers()}
		svc := newTestService(p, &fakeSummarizer{}, clock)

		first, err := svc.Research(ctx, "", time.Time{}, time.Time{})
		require.NoError(t, err)
		second, err := svc.Research(ctx, "", time.Time{}, time.Time{})
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, p.calls(), "second read is a cache hit")
	})

	t.Run("default window is derived from the clock", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
		p := &fakePipeline{papers: samplePapers()}
		svc := newTestService(p, &fakeSummarizer{}, clock)

		_, err := svc.Research(ctx, "", time.Time{}, time.Time{})
		require.NoError(t, err)

		assert.Equal(t, clock.Now(), p.lastTo)
		assert.Equal(t, clock.Now().AddDate(0, 0, -7), p.lastFrom)
	})

	t.Run("distinct filters get distinct entries", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
		p := &fakePipeline{papers: samplePapers()}
		svc := newTestService(p, &fakeSummarizer{}, clock)

		_, err := svc.Research(ctx, "", time.Time{}, time.Time{})
		require.NoError(t, err)
		_, err = svc.Research(ctx, "Anaesthesia", time.Time{}, time.Time{})
		require.NoError(t, err)
		_, err = svc.Research(ctx, "Anaesthesia",
			time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		assert.Equal(t, 3, p.calls())
	})

	t.Run("expired entry refills", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
		p := &fakePipeline{papers: samplePapers()}
		svc := newTestService(p, &fakeSummarizer{}, clock)

		_, err := svc.Research(ctx, "", time.Time{}, time.Time{})
		require.NoError(t, err)

		clock.Advance(25 * time.Hour)
		_, err = svc.Research(ctx, "", time.Time{}, time.Time{})
		require.NoError(t, err)

		assert.Equal(t, 2, p.calls())
	})

	t.Run("pipeline failure propagates and caches nothing", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
		p := &fakePipeline{err: domain.NewSourceError("esearch", 503, errors.New("down"))}
		svc := newTestService(p, &fakeSummarizer{}, clock)

		_, err := svc.Research(ctx, "", time.Time{}, time.Time{})
		require.ErrorIs(t, err, domain.ErrSourceUnavailable)

		// A later read retries rather than serving a cached failure.
		_, err = svc.Research(ctx, "", time.Time{}, time.Time{})
		require.Error(t, err)
		assert.Equal(t, 2, p.calls())
	})
}

func TestGuidelines(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
	p := &fakePipeline{papers: samplePapers()}
	svc := newTestService(p, &fakeSummarizer{}, clock)

	papers, err := svc.Guidelines(ctx)
	require.NoError(t, err)
	assert.Len(t, papers, 1)

	assert.Equal(t, clock.Now().AddDate(0, 0, -365), p.lastFrom)
	assert.Equal(t, clock.Now(), p.lastTo)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("bypasses the cached entry", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
		p := &fakePipeline{papers: samplePapers()}
		svc := newTestService(p, &fakeSummarizer{}, clock)

		_, err := svc.Research(ctx, "", time.Time{}, time.Time{})
		require.NoError(t, err)

		_, err = svc.Refresh(ctx, "", time.Time{}, time.Time{})
		require.NoError(t, err)

		assert.Equal(t, 2, p.calls(), "refresh re-runs the pipeline despite a fresh entry")
	})

	t.Run("colliding with a running refresh is rejected", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
		block := make(chan struct{})
		p := &fakePipeline{papers: samplePapers(), block: block}
		svc := newTestService(p, &fakeSummarizer{}, clock)

		done := make(chan error, 1)
		go func() {
			_, err := svc.Refresh(ctx, "", time.Time{}, time.Time{})
			done <- err
		}()

		// Wait for the first refresh to be in flight.
		require.Eventually(t, func() bool {
			return p.calls() == 1
		}, time.Second, 5*time.Millisecond)

		_, err := svc.Refresh(ctx, "", time.Time{}, time.Time{})
		assert.ErrorIs(t, err, domain.ErrRefreshInProgress)

		close(block)
		require.NoError(t, <-done)
	})
}

func TestDeepSummary(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
	s := &fakeSummarizer{summary: "Deep dive."}
	svc := newTestService(&fakePipeline{}, s, clock)

	got, err := svc.DeepSummary(context.Background(), domain.Paper{ID: "1", Title: "T"})

	require.NoError(t, err)
	assert.Equal(t, "Deep dive.", got)
}

func TestWeeklyReport(t *testing.T) {
	ctx := context.Background()

	t.Run("renders over the cached research set and caches the report", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
		p := &fakePipeline{papers: samplePapers()}
		s := &fakeSummarizer{report: "## Briefing"}
		svc := newTestService(p, s, clock)

		first, err := svc.WeeklyReport(ctx)
		require.NoError(t, err)
		second, err := svc.WeeklyReport(ctx)
		require.NoError(t, err)

		assert.Equal(t, "## Briefing", first)
		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), s.reportCalls.Load())
		assert.Equal(t, 1, p.calls(), "paper set reused through the research cache")
	})

	t.Run("summarizer failure propagates", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
		p := &fakePipeline{papers: samplePapers()}
		s := &fakeSummarizer{err: domain.NewEnrichmentError("request", errors.New("down"))}
		svc := newTestService(p, s, clock)

		_, err := svc.WeeklyReport(ctx)
		assert.ErrorIs(t, err, domain.ErrEnrichmentUnavailable)
	})
}

func TestJournals(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	svc := newTestService(&fakePipeline{}, &fakeSummarizer{}, clock)

	specs := svc.Journals()
	assert.Len(t, specs, 17)
}
