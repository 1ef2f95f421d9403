package crawler

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/jwdsh/second-hand-book/config"
	"github.com/jwdsh/second-hand-book/models"
	"github.com/jwdsh/second-hand-book/pipeline"
)

type memoryRawWriter struct {
	listings []models.Listing
	err      error
}

func (w *memoryRawWriter) Write(listings []models.Listing) error {
	if w.err != nil {
		return w.err
	}
	w.listings = append(w.listings, listings...)
	return nil
}

func (w *memoryRawWriter) Close() error    { return nil }
func (w *memoryRawWriter) Validate() error { return nil }

type memoryResultWriter struct {
	agg *models.AggregatedPrice
	err error
}

func (w *memoryResultWriter) WriteResult(agg *models.AggregatedPrice) error {
	if w.err != nil {
		return w.err
	}
	w.agg = agg
	return nil
}

func (w *memoryResultWriter) Close() error { return nil }

func searchPage(entries ...string) string {
	page := `<html><body><ul class="bigimg">`
	for _, entry := range entries {
		page += entry
	}
	return page + `</ul></body></html>`
}

func listingItem(title string, price string) string {
	return `<li><a dd_name="单品标题" title="` + title + `"></a>` +
		`<p class="price"><span class="search_now_price">¥` + price + `</span></p></li>`
}

func testSession(t *testing.T, transport *httpmock.MockTransport, raw *memoryRawWriter, processed *memoryResultWriter) (*Session, *[]time.Duration) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.SearchBaseURL = "http://books.test"
	cfg.MaxRetries = 1

	gate := NewGate(cfg, nil)
	gate.Transport(transport)
	gate.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	var artifacts *pipeline.Artifacts
	if raw != nil || processed != nil {
		var rawW pipeline.ListingWriter
		var procW pipeline.ResultWriter
		if raw != nil {
			rawW = raw
		}
		if processed != nil {
			procW = processed
		}
		artifacts = pipeline.NewArtifacts(rawW, procW)
	}

	session := NewSession(cfg, gate, nil, artifacts, nil)

	var cooldowns []time.Duration
	session.sleep = func(ctx context.Context, d time.Duration) error {
		cooldowns = append(cooldowns, d)
		return nil
	}
	return session, &cooldowns
}

func TestSessionRunEndToEnd(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://books.test/?key=kw1&act=input",
		httpmock.NewStringResponder(200, searchPage(
			listingItem("第一本", "20.00"),
			listingItem("第二本", "22.00"),
		)))
	transport.RegisterResponder("GET", "http://books.test/?key=kw2&act=input",
		httpmock.NewStringResponder(200, searchPage(
			listingItem("第三本", "21.00"),
		)))

	raw := &memoryRawWriter{}
	processed := &memoryResultWriter{}
	session, cooldowns := testSession(t, transport, raw, processed)

	result, agg, err := session.Run(context.Background(), []string{"kw1", "kw2"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.Listings) != 3 {
		t.Fatalf("got %d listings, want 3", len(result.Listings))
	}
	// Keyword submission order, then document order.
	wantTitles := []string{"第一本", "第二本", "第三本"}
	for i, want := range wantTitles {
		if result.Listings[i].Title != want {
			t.Errorf("listing %d title = %q, want %q", i, result.Listings[i].Title, want)
		}
	}

	if agg == nil {
		t.Fatal("expected an aggregated price")
	}
	if math.Abs(agg.AveragePrice-21.0) > 1e-9 {
		t.Errorf("average price = %v, want 21.0", agg.AveragePrice)
	}
	if agg.SampleCount != 3 {
		t.Errorf("sample count = %d, want 3", agg.SampleCount)
	}
	if agg.Title != "第一本" {
		t.Errorf("representative title = %q", agg.Title)
	}

	// Both artifacts persisted.
	if len(raw.listings) != 3 {
		t.Errorf("raw artifact has %d listings, want 3", len(raw.listings))
	}
	if processed.agg == nil || processed.agg.AveragePrice != agg.AveragePrice {
		t.Errorf("processed artifact = %+v", processed.agg)
	}

	// One cooldown between the two keywords, none after the last.
	if len(*cooldowns) != 1 {
		t.Fatalf("cooldown count = %d, want 1", len(*cooldowns))
	}
	if (*cooldowns)[0] != 2*time.Second {
		t.Errorf("cooldown = %v, want the configured 2s throttle", (*cooldowns)[0])
	}
}

func TestSessionRunEmptyKeywordsFailsFast(t *testing.T) {
	transport := httpmock.NewMockTransport()
	session, _ := testSession(t, transport, nil, nil)

	if _, _, err := session.Run(context.Background(), nil); !errors.Is(err, ErrNoKeywords) {
		t.Fatalf("error = %v, want ErrNoKeywords", err)
	}
	if calls := transport.GetTotalCallCount(); calls != 0 {
		t.Fatalf("no network activity expected, got %d calls", calls)
	}
}

func TestSessionRunKeywordFailureContinues(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://books.test/?key=bad&act=input",
		httpmock.NewStringResponder(500, ""))
	transport.RegisterResponder("GET", "http://books.test/?key=good&act=input",
		httpmock.NewStringResponder(200, searchPage(listingItem("幸存条目", "30.00"))))

	session, _ := testSession(t, transport, nil, nil)

	result, agg, err := session.Run(context.Background(), []string{"bad", "good"})
	if err != nil {
		t.Fatalf("one failed keyword must not fail the batch: %v", err)
	}
	if len(result.FailedKeywords) != 1 || result.FailedKeywords[0] != "bad" {
		t.Fatalf("failed keywords = %v", result.FailedKeywords)
	}
	if result.ErrorsByType["http_status"] != 1 {
		t.Errorf("errors by type = %v", result.ErrorsByType)
	}
	if len(result.Listings) != 1 {
		t.Fatalf("got %d listings, want 1 from the surviving keyword", len(result.Listings))
	}
	if agg == nil || agg.AveragePrice != 30 {
		t.Fatalf("aggregate = %+v", agg)
	}
}

func TestSessionRunNoResultsIsSuccess(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://books.test/?key=nothing&act=input",
		httpmock.NewStringResponder(200, "<html><body>no results</body></html>"))

	raw := &memoryRawWriter{}
	session, _ := testSession(t, transport, raw, nil)

	result, agg, err := session.Run(context.Background(), []string{"nothing"})
	if err != nil {
		t.Fatalf("zero results is success, got %v", err)
	}
	if len(result.Listings) != 0 {
		t.Fatalf("listings = %v, want none", result.Listings)
	}
	if agg != nil {
		t.Fatalf("aggregate = %+v, want nil", agg)
	}
}

func TestSessionRunPersistenceFailureReported(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://books.test/?key=kw&act=input",
		httpmock.NewStringResponder(200, searchPage(listingItem("书", "15.00"))))

	raw := &memoryRawWriter{err: errors.New("disk full")}
	processed := &memoryResultWriter{}
	session, _ := testSession(t, transport, raw, processed)

	result, agg, err := session.Run(context.Background(), []string{"kw"})
	if err == nil {
		t.Fatal("expected persistence error")
	}
	// In-memory results survive, and the other artifact still lands.
	if result == nil || len(result.Listings) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if agg == nil || agg.AveragePrice != 15 {
		t.Fatalf("aggregate = %+v", agg)
	}
	if processed.agg == nil {
		t.Fatal("processed artifact should persist despite raw failure")
	}
}

func TestSessionRunCancellationFlushesPartialResult(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://books.test/?key=kw1&act=input",
		httpmock.NewStringResponder(200, searchPage(listingItem("已抓到", "40.00"))))
	transport.RegisterResponder("GET", "http://books.test/?key=kw2&act=input",
		httpmock.NewStringResponder(200, searchPage(listingItem("不应出现", "99.00"))))

	raw := &memoryRawWriter{}
	session, _ := testSession(t, transport, raw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	session.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	result, agg, err := session.Run(ctx, []string{"kw1", "kw2"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled reported", err)
	}
	if len(result.Listings) != 1 || result.Listings[0].Title != "已抓到" {
		t.Fatalf("partial result = %+v", result.Listings)
	}
	if agg == nil || agg.AveragePrice != 40 {
		t.Fatalf("aggregate = %+v", agg)
	}
	if len(raw.listings) != 1 {
		t.Fatalf("partial result must be flushed, raw artifact has %d listings", len(raw.listings))
	}
}
