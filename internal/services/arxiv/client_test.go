package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/models"
)

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title type="html">ArXiv Query Results</title>
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <updated>2024-01-02T01:00:00Z</updated>
    <published>2024-01-01T18:30:00Z</published>
    <title>Sliding  Window
  Ranking for Large Batches</title>
    <summary>We propose a windowed
  relative ranking scheme for agent evaluation.</summary>
    <author><name>Alice Example</name></author>
    <author><name>Bob Example</name></author>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00001v1" rel="related" type="application/pdf"/>
    <category term="cs.AI" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.00002v2</id>
    <published>2024-01-01T12:00:00Z</published>
    <title>A Study of Protein Folding</title>
    <summary>Biology things.</summary>
    <author><name>Carol Example</name></author>
    <link href="http://arxiv.org/abs/2401.00002v2" rel="alternate" type="text/html"/>
    <category term="q-bio.BM" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
</feed>`

func newTestClient(t *testing.T, handler http.HandlerFunc, keywords []string) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &common.ArxivConfig{
		BaseURL:        server.URL,
		RequestTimeout: "5s",
		Keywords:       keywords,
	}
	return NewClient(cfg, common.GetLogger()), server
}

func TestFetchRecentParsesFeed(t *testing.T) {
	var gotQuery string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomFixture))
	}, nil)

	papers, err := client.FetchRecent(context.Background(), []string{"cs.AI", "cs.LG"}, 50, 2)
	require.NoError(t, err)
	require.Len(t, papers, 2)

	assert.Contains(t, gotQuery, "cat:cs.AI OR cat:cs.LG")
	assert.Contains(t, gotQuery, "submittedDate:")

	first := papers[0]
	assert.Equal(t, "2401.00001v1", first.ID)
	assert.Equal(t, "Sliding Window Ranking for Large Batches", first.Title)
	assert.Equal(t, "We propose a windowed relative ranking scheme for agent evaluation.", first.Abstract)
	assert.Equal(t, []string{"Alice Example", "Bob Example"}, first.Authors)
	assert.Equal(t, []string{"cs.AI", "cs.LG"}, first.Categories)
	assert.Equal(t, "http://arxiv.org/pdf/2401.00001v1", first.PDFURL)
	assert.Equal(t, "http://arxiv.org/abs/2401.00001v1", first.EntryURL)
	assert.Equal(t, 2024, first.Published.Year())

	assert.Equal(t, "2401.00002v2", papers[1].ID)
	assert.Empty(t, papers[1].PDFURL)
}

func TestFetchRecentAppliesKeywordFilter(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(atomFixture))
	}, []string{"ranking"})

	papers, err := client.FetchRecent(context.Background(), []string{"cs.AI"}, 50, 2)
	require.NoError(t, err)

	require.Len(t, papers, 1)
	assert.Equal(t, "2401.00001v1", papers[0].ID)
}

func TestFetchRecentServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusServiceUnavailable)
	}, nil)

	_, err := client.FetchRecent(context.Background(), []string{"cs.AI"}, 50, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestFetchRecentMalformedFeed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not a feed"))
	}, nil)

	_, err := client.FetchRecent(context.Background(), []string{"cs.AI"}, 50, 2)
	require.Error(t, err)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "2401.00001v1", shortID("http://arxiv.org/abs/2401.00001v1"))
	assert.Equal(t, "cond-mat/9901001v1", shortID("http://arxiv.org/abs/cond-mat/9901001v1"))
	assert.Equal(t, "", shortID("http://example.com/nothing"))
}

func TestFilterByKeywords(t *testing.T) {
	papers := []*models.Paper{
		{ID: "1", Title: "Agent Planning", Abstract: "about agents"},
		{ID: "2", Title: "Protein Folding", Abstract: "biology"},
		{ID: "3", Title: "Misc", Abstract: "large language AGENT systems"},
	}

	assert.Len(t, filterByKeywords(papers, nil), 3, "empty keyword list keeps everything")

	filtered := filterByKeywords(papers, []string{"agent"})
	require.Len(t, filtered, 2)
	assert.Equal(t, "1", filtered[0].ID)
	assert.Equal(t, "3", filtered[1].ID, "matching is case-insensitive")
}
