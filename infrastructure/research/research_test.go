package research

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"north-backend/domain/tree"
)

type fakeBrowser struct {
	pages map[string]string
	err   error
	urls  []string
}

func (b *fakeBrowser) HTML(_ context.Context, u string) (string, error) {
	b.urls = append(b.urls, u)
	if b.err != nil {
		return "", b.err
	}
	for prefix, page := range b.pages {
		if strings.HasPrefix(u, prefix) {
			return page, nil
		}
	}
	return "", errors.New("not found")
}

func (b *fakeBrowser) Close() error { return nil }

type recordingCompleter struct {
	prompt string
	reply  string
}

func (c *recordingCompleter) CompleteJSON(context.Context, string) (any, error) { return nil, nil }

func (c *recordingCompleter) CompleteText(_ context.Context, prompt string) (string, error) {
	c.prompt = prompt
	return c.reply, nil
}

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <published>2024-01-02T00:00:00Z</published>
    <title>Solar
  Cells</title>
    <summary>%s</summary>
    <author><name>A. Author</name></author>
  </entry>
</feed>`

func newAPIServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/works", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "solar cells", r.URL.Query().Get("search"))
		assert.Equal(t, "5", r.URL.Query().Get("per-page"))
		fmt.Fprint(w, `{"results":[
			{"id":"https://openalex.org/W1","doi":"https://doi.org/10.1/x","display_name":"Paper","publication_date":"2023-05-01",
			 "abstract_inverted_index":{"a":[0]},"authorships":[{"author":{"display_name":"Ada"}}]},
			{"id":"https://openalex.org/W2","display_name":"No DOI","abstract_inverted_index":null}]}`)
	})
	mux.HandleFunc("/graph/v1/paper/search", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"data":[{"title":"S2","url":"https://s2/1","abstract":"","year":2021,"authors":[{"name":"B"}]}]}`)
	})
	mux.HandleFunc("/w/api.php", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "search", r.URL.Query().Get("list"))
		fmt.Fprint(w, `{"query":{"search":[{"title":"Solar cell","snippet":"A <span class=\"searchmatch\">solar</span>cell is"}]}}`)
	})
	mux.HandleFunc("/api/query", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "all:solar cells", r.URL.Query().Get("search_query"))
		fmt.Fprintf(w, arxivFeedXML, strings.Repeat("x", 150)+"\n"+strings.Repeat("y", 150))
	})
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"esearchresult":{"idlist":["111","222"]}}`)
	})
	mux.HandleFunc("/esummary.fcgi", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "111,222", r.URL.Query().Get("id"))
		fmt.Fprint(w, `{"result":{"uids":["111","222"],
			"111":{"title":"PM one","pubdate":"2020 Jan","source":"Nature","authors":[{"name":"C"}]},
			"222":{"title":"PM two","pubdate":"2019","source":"Cell"}}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAggregator(t *testing.T, browser Browser, completer *recordingCompleter) (*Aggregator, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	srv := newAPIServer(t, hits)
	cfg := DefaultConfig()
	cfg.Endpoints = Endpoints{
		OpenAlex:        srv.URL,
		SemanticScholar: srv.URL,
		Wikipedia:       srv.URL,
		Arxiv:           srv.URL,
		PubMed:          srv.URL,
		DuckDuckGo:      "https://ddg.test",
	}
	if completer == nil {
		completer = &recordingCompleter{}
	}
	return NewAggregator(cfg, browser, completer, nil, zap.NewNop()), hits
}

func spec(source tree.Source) tree.ResearchSpec {
	return tree.ResearchSpec{Source: source, Keywords: []string{"solar", "cells"}}
}

func TestCandidates_OpenAlex(t *testing.T) {
	// Arrange
	agg, _ := newTestAggregator(t, nil, nil)

	// Act
	got := agg.Candidates(context.Background(), spec(tree.SourceOpenAlex))

	// Assert
	require.Len(t, got, 2)
	assert.Equal(t, tree.SearchResultItem{
		Title:         "Paper",
		URL:           "https://doi.org/10.1/x",
		Snippet:       "Abstract available via API",
		Authors:       []string{"Ada"},
		PublishedDate: "2023-05-01",
	}, got[0])
	assert.Equal(t, "https://openalex.org/W2", got[1].URL)
	assert.Equal(t, "No abstract", got[1].Snippet)
}

func TestCandidates_SemanticScholar(t *testing.T) {
	agg, _ := newTestAggregator(t, nil, nil)

	got := agg.Candidates(context.Background(), spec(tree.SourceSemanticScholar))

	require.Len(t, got, 1)
	assert.Equal(t, "(No abstract)", got[0].Snippet)
	assert.Equal(t, "2021", got[0].PublishedDate)
	assert.Equal(t, []string{"B"}, got[0].Authors)
}

func TestCandidates_Wikipedia(t *testing.T) {
	agg, _ := newTestAggregator(t, nil, nil)

	got := agg.Candidates(context.Background(), spec(tree.SourceWikipedia))

	require.Len(t, got, 1)
	assert.Equal(t, "A solarcell is", got[0].Snippet)
	assert.True(t, strings.HasSuffix(got[0].URL, "/wiki/Solar_cell"))
}

func TestCandidates_Arxiv(t *testing.T) {
	agg, _ := newTestAggregator(t, nil, nil)

	got := agg.Candidates(context.Background(), spec(tree.SourceArxiv))

	require.Len(t, got, 1)
	assert.Equal(t, "Solar   Cells", got[0].Title)
	assert.Equal(t, "http://arxiv.org/abs/2401.00001v1", got[0].URL)
	assert.Equal(t, strings.Repeat("x", 150)+" "+strings.Repeat("y", 49)+"...", got[0].Snippet)
	assert.Equal(t, "2024-01-02", got[0].PublishedDate)
}

func TestCandidates_PubMed(t *testing.T) {
	agg, _ := newTestAggregator(t, nil, nil)

	got := agg.Candidates(context.Background(), spec(tree.SourcePubMed))

	require.Len(t, got, 2)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/111/", got[0].URL)
	assert.Equal(t, "Nature", got[0].Snippet)
	assert.Equal(t, "PM two", got[1].Title)
}

func TestCandidates_SiteSearchThroughBrowser(t *testing.T) {
	// Arrange
	page := `<html><body>
		<div class="result results_links">
		  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fhackaday.com%2Fpost&rut=1">Solar <b>hack</b></a>
		  <a class="result__snippet">Build a <b>solar</b> cell</a>
		</div>
		<div class="result"><a class="result__a" href="https://hackaday.com/two">Two</a></div>
	</body></html>`
	browser := &fakeBrowser{pages: map[string]string{"https://ddg.test/html/": page}}
	agg, _ := newTestAggregator(t, browser, nil)

	// Act
	got := agg.Candidates(context.Background(), spec(tree.SourceHackaday))

	// Assert
	require.Len(t, got, 2)
	assert.Equal(t, "Solar hack", got[0].Title)
	assert.Equal(t, "https://hackaday.com/post", got[0].URL)
	assert.Equal(t, "Build a solar cell", got[0].Snippet)
	require.Len(t, browser.urls, 1)
	u, err := url.Parse(browser.urls[0])
	require.NoError(t, err)
	assert.Equal(t, "site:hackaday.com solar cells", u.Query().Get("q"))
}

func TestCandidates_FailureYieldsEmpty(t *testing.T) {
	agg, _ := newTestAggregator(t, &fakeBrowser{err: errors.New("crashed")}, nil)

	got := agg.Candidates(context.Background(), spec(tree.SourceReddit))

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCandidates_SiteSearchWithoutBrowser(t *testing.T) {
	agg, _ := newTestAggregator(t, nil, nil)

	got := agg.Candidates(context.Background(), spec(tree.SourceFrontiers))

	assert.Empty(t, got)
}

func TestCandidates_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	// Arrange
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	cfg := DefaultConfig()
	cfg.Endpoints.OpenAlex = srv.URL
	cfg.BreakerFailures = 2
	agg := NewAggregator(cfg, nil, &recordingCompleter{}, nil, zap.NewNop())

	// Act
	for i := 0; i < 4; i++ {
		assert.Empty(t, agg.Candidates(context.Background(), spec(tree.SourceOpenAlex)))
	}

	// Assert
	assert.Equal(t, int32(2), hits.Load())
}

func TestExecute_SummarizesExtractedText(t *testing.T) {
	// Arrange
	page := `<html><head><script>var x=1;</script></head><body>
		<nav>Menu</nav><h1>Title</h1><p>Body <em>text</em> here.</p><footer>Footer</footer>
	</body></html>`
	completer := &recordingCompleter{reply: "summary"}
	agg, _ := newTestAggregator(t, &fakeBrowser{pages: map[string]string{"https://example.com": page}}, completer)
	agg.cfg.Language = "English"

	// Act
	got, err := agg.Execute(context.Background(), "https://example.com/a")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "summary", got)
	assert.Equal(t, SummaryPrompt("Title Body text here.", "English"), completer.prompt)
	assert.NotContains(t, completer.prompt, "Menu")
}

func TestExecute_TruncatesLongPages(t *testing.T) {
	completer := &recordingCompleter{}
	long := "<p>" + strings.Repeat("é", DefaultMaxTextChars+100) + "</p>"
	agg, _ := newTestAggregator(t, &fakeBrowser{pages: map[string]string{"https://long": long}}, completer)

	_, err := agg.Execute(context.Background(), "https://long")

	require.NoError(t, err)
	assert.Contains(t, completer.prompt, strings.Repeat("é", DefaultMaxTextChars)+"\n\nSummary:")
	assert.NotContains(t, completer.prompt, strings.Repeat("é", DefaultMaxTextChars+1))
}

func TestExecute_LoadFailure(t *testing.T) {
	agg, _ := newTestAggregator(t, &fakeBrowser{err: errors.New("timeout")}, nil)

	_, err := agg.Execute(context.Background(), "https://x")

	assert.Error(t, err)
}

func TestSiteFor(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"reddit", "reddit.com"},
		{"mit_tech_review", "technologyreview.com"},
		{"ieee_spectrum", "spectrum.ieee.org"},
		{"example.org", "example.org"},
		{"nature_news", "nature.news.com"},
		{"a_b_c", "a.b_c.com"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, SiteFor(tt.source))
		})
	}
}

func TestExtractText_InlineKeepsWords(t *testing.T) {
	got := ExtractText(`<body><div>Hel<b>lo</b></div><div>World</div><!-- note --><style>p{}</style></body>`)

	assert.Equal(t, "Hello World", got)
}
