package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testOptions(srv *httptest.Server) Options {
	return Options{BaseURL: srv.URL, Timeout: 5 * time.Second, RateLimit: rate.Inf}
}

func serve(t *testing.T, path, contentType, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWikipediaSearch(t *testing.T) {
	body := `{"batchcomplete":true,"query":{"pages":[
		{"pageid":2,"title":"Second","index":2,"extract":"Second extract.","fullurl":"https://en.wikipedia.org/wiki/Second","touched":"2024-01-02T00:00:00Z"},
		{"pageid":1,"title":"First","index":1,"extract":"First extract.","fullurl":"https://en.wikipedia.org/wiki/First","touched":"2023-05-01T00:00:00Z"}
	]}}`
	srv := serve(t, "/w/api.php", "application/json", body, func(r *http.Request) {
		assert.Equal(t, "quantum computing", r.URL.Query().Get("gsrsearch"))
		assert.Equal(t, "3", r.URL.Query().Get("gsrlimit"))
	})

	pages, err := NewWikipedia(testOptions(srv)).Search(context.Background(), "quantum computing", 3)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "First", pages[0].Title)
	assert.Equal(t, "First extract.", pages[0].Extract)
	assert.Equal(t, "https://en.wikipedia.org/wiki/First", pages[0].URL)
	assert.Equal(t, "Second", pages[1].Title)
}

func TestWikipediaNoResults(t *testing.T) {
	srv := serve(t, "/w/api.php", "application/json", `{"batchcomplete":true}`, nil)
	pages, err := NewWikipedia(testOptions(srv)).Search(context.Background(), "zzzz", 3)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestStatusErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	_, err := NewWikipedia(testOptions(srv)).Search(context.Background(), "x", 3)
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.HTTPStatusCode())
	assert.Equal(t, "wikipedia", se.Backend)
	assert.Contains(t, se.Error(), "slow down")
}

const ddgPage = `<html><body>
<div class="result results_links results_links_deep web-result">
  <div class="links_main links_deep result__body">
    <h2 class="result__title"><a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fbtc&amp;rut=abc">Bitcoin <b>price</b> today</a></h2>
    <a class="result__snippet" href="#">The latest BTC price is   $60,000.</a>
  </div>
</div>
<div class="result result--ad results_links">
  <h2><a class="result__a" href="https://ads.example.com">Ad</a></h2>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="https://example.org/eth">Ethereum</a></h2>
  <a class="result__snippet" href="#">ETH overview.</a>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="https://example.org/third">Third</a></h2>
</div>
</body></html>`

func TestDuckDuckGoSearch(t *testing.T) {
	srv := serve(t, "/html/", "text/html", ddgPage, func(r *http.Request) {
		assert.Equal(t, "bitcoin price", r.URL.Query().Get("q"))
	})

	hits, err := NewDuckDuckGo(testOptions(srv)).Search(context.Background(), "bitcoin price", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Bitcoin price today", hits[0].Title)
	assert.Equal(t, "https://example.com/btc", hits[0].URL)
	assert.Equal(t, "The latest BTC price is $60,000.", hits[0].Snippet)
	assert.Equal(t, "Ethereum", hits[1].Title)
}

func TestDuckDuckGoThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	_, err := NewDuckDuckGo(testOptions(srv)).Search(context.Background(), "x", 3)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestScholarSearch(t *testing.T) {
	body := `{"total":2,"data":[
		{"paperId":"a","title":"Attention Is All You Need","authors":[{"name":"Ashish Vaswani"},{"name":"Noam Shazeer"}],"year":2017,"citationCount":100000,"venue":"NeurIPS","abstract":"The dominant models...","url":"https://www.semanticscholar.org/paper/a"},
		{"paperId":"b","title":"Untitled","authors":[],"year":null,"citationCount":0,"venue":"","abstract":null,"url":""}
	]}`
	srv := serve(t, "/graph/v1/paper/search", "application/json", body, func(r *http.Request) {
		assert.Equal(t, "transformers", r.URL.Query().Get("query"))
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
	})

	opts := testOptions(srv)
	opts.APIKey = "secret"
	papers, err := NewScholar(opts).Search(context.Background(), "transformers", 3)
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, "Attention Is All You Need", papers[0].Title)
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, papers[0].Authors)
	assert.Equal(t, 2017, papers[0].Year)
	assert.EqualValues(t, 100000, papers[0].Citations)
	assert.Equal(t, 0, papers[1].Year)
	assert.Empty(t, papers[1].Abstract)
}

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <published>2024-01-01T10:00:00Z</published>
    <title>Large Language
      Models as Agents</title>
    <summary>  We study agents
      built on LLMs.  </summary>
    <author><name>Jane Doe</name></author>
    <author><name>John Roe</name></author>
  </entry>
</feed>`

func TestArXivSearch(t *testing.T) {
	srv := serve(t, "/api/query", "application/atom+xml", arxivFeedXML, func(r *http.Request) {
		assert.Equal(t, "all:llm agents", r.URL.Query().Get("search_query"))
	})

	entries, err := NewArXiv(testOptions(srv)).Search(context.Background(), "llm agents", 3)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "Large Language Models as Agents", e.Title)
	assert.Equal(t, "We study agents built on LLMs.", e.Summary)
	assert.Equal(t, []string{"Jane Doe", "John Roe"}, e.Authors)
	assert.Equal(t, 2024, e.Published.Year())
	assert.Equal(t, "http://arxiv.org/abs/2401.00001v1", e.URL)
}

func TestArXivErrorEntry(t *testing.T) {
	feed := `<feed xmlns="http://www.w3.org/2005/Atom"><entry><title>Error</title><summary>incorrect id format</summary></entry></feed>`
	srv := serve(t, "/api/query", "application/atom+xml", feed, nil)
	_, err := NewArXiv(testOptions(srv)).Search(context.Background(), "x", 3)
	require.ErrorContains(t, err, "incorrect id format")
}

const pubmedXML = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">12345</PMID>
      <Article>
        <Journal>
          <JournalIssue><PubDate><MedlineDate>2019 Nov-Dec</MedlineDate></PubDate></JournalIssue>
          <Title>Journal of Tests</Title>
        </Journal>
        <ArticleTitle>CRISPR screening in vivo.</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Gene editing matters.</AbstractText>
          <AbstractText Label="RESULTS">It works.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author><LastName>Smith</LastName><ForeName>Ann</ForeName></Author>
          <Author><CollectiveName>Test Consortium</CollectiveName></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func TestPubMedSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/entrez/eutils/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "crispr", r.URL.Query().Get("term"))
		assert.Equal(t, "me@example.com", r.URL.Query().Get("email"))
		_, _ = w.Write([]byte(`{"esearchresult":{"count":"1","idlist":["12345"]}}`))
	})
	mux.HandleFunc("/entrez/eutils/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "12345", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(pubmedXML))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	opts := testOptions(srv)
	opts.Email = "me@example.com"
	pm, err := NewPubMed(opts)
	require.NoError(t, err)

	arts, err := pm.Search(context.Background(), "crispr", 3)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	a := arts[0]
	assert.Equal(t, "CRISPR screening in vivo.", a.Title)
	assert.Equal(t, "Journal of Tests", a.Journal)
	assert.Equal(t, "2019", a.Year)
	assert.Equal(t, []string{"Ann Smith", "Test Consortium"}, a.Authors)
	assert.Equal(t, "BACKGROUND: Gene editing matters. RESULTS: It works.", a.Abstract)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/12345/", a.URL())
}

func TestPubMedNoIDsSkipsFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/entrez/eutils/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"esearchresult":{"count":"0","idlist":[]}}`))
	})
	mux.HandleFunc("/entrez/eutils/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		t.Error("efetch should not be called")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	opts := testOptions(srv)
	opts.Email = "me@example.com"
	pm, err := NewPubMed(opts)
	require.NoError(t, err)
	arts, err := pm.Search(context.Background(), "nothing", 3)
	require.NoError(t, err)
	assert.Empty(t, arts)
}

func TestPubMedRequiresEmail(t *testing.T) {
	_, err := NewPubMed(Options{})
	require.ErrorIs(t, err, ErrMissingEmail)
}

func TestParsePubMedInlineMarkup(t *testing.T) {
	const body = `<PubmedArticleSet><PubmedArticle><MedlineCitation>
  <PMID>7</PMID>
  <Article>
    <ArticleTitle>CRISPR editing in <i>E. coli</i> cells</ArticleTitle>
    <Abstract>
      <AbstractText Label="METHODS">Growth of <i>E. coli</i> was measured at 10<sup>6</sup> cells.</AbstractText>
    </Abstract>
  </Article>
</MedlineCitation></PubmedArticle></PubmedArticleSet>`

	arts, err := parsePubMed([]byte(body))
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "CRISPR editing in E. coli cells", arts[0].Title)
	assert.Equal(t, "METHODS: Growth of E. coli was measured at 106 cells.", arts[0].Abstract)
}

func TestStatusErrorBodyKeepsRunesWhole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		// 199 ASCII bytes then multi byte runes straddling the cut.
		_, _ = w.Write([]byte(strings.Repeat("a", 199) + strings.Repeat("é", 10)))
	}))
	t.Cleanup(srv.Close)

	_, err := NewWikipedia(testOptions(srv)).Search(context.Background(), "x", 3)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, utf8.ValidString(se.Body))
	assert.Equal(t, 200, utf8.RuneCountInString(se.Body))
	assert.True(t, strings.HasSuffix(se.Body, "é"))
}
