package research

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"north-backend/domain/tree"
)

// Fetcher returns search results for a keyword query from one source.
type Fetcher interface {
	Search(ctx context.Context, query string) ([]tree.SearchResultItem, error)
}

// Endpoints are the base URLs of the remote sources. Tests point them at
// local servers.
type Endpoints struct {
	OpenAlex        string
	SemanticScholar string
	Wikipedia       string
	Arxiv           string
	PubMed          string
	DuckDuckGo      string
}

// DefaultEndpoints returns the public endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		OpenAlex:        "https://api.openalex.org",
		SemanticScholar: "https://api.semanticscholar.org",
		Wikipedia:       "https://en.wikipedia.org",
		Arxiv:           "http://export.arxiv.org",
		PubMed:          "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		DuckDuckGo:      "https://html.duckduckgo.com",
	}
}

func getBody(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", req.URL.Path, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	body, err := getBody(ctx, client, rawURL)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// OpenAlex searches scholarly works.
type OpenAlex struct {
	BaseURL string
	Client  *http.Client
}

func (f *OpenAlex) Search(ctx context.Context, query string) ([]tree.SearchResultItem, error) {
	var resp struct {
		Results []struct {
			ID              string          `json:"id"`
			DOI             string          `json:"doi"`
			DisplayName     string          `json:"display_name"`
			PublicationDate string          `json:"publication_date"`
			Abstract        json.RawMessage `json:"abstract_inverted_index"`
			Authorships     []struct {
				Author struct {
					DisplayName string `json:"display_name"`
				} `json:"author"`
			} `json:"authorships"`
		} `json:"results"`
	}
	u := fmt.Sprintf("%s/works?search=%s&per-page=%d", f.BaseURL, url.QueryEscape(query), MaxCandidates)
	if err := getJSON(ctx, f.Client, u, &resp); err != nil {
		return nil, fmt.Errorf("openalex: %w", err)
	}

	items := make([]tree.SearchResultItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		link := r.DOI
		if link == "" {
			link = r.ID
		}
		snippet := "No abstract"
		if len(r.Abstract) > 0 && string(r.Abstract) != "null" {
			snippet = "Abstract available via API"
		}
		var authors []string
		for _, a := range r.Authorships {
			if a.Author.DisplayName != "" {
				authors = append(authors, a.Author.DisplayName)
			}
		}
		items = append(items, tree.SearchResultItem{
			Title:         r.DisplayName,
			URL:           link,
			Snippet:       snippet,
			Authors:       authors,
			PublishedDate: r.PublicationDate,
		})
	}
	return items, nil
}

// SemanticScholar searches the Semantic Scholar graph API.
type SemanticScholar struct {
	BaseURL string
	Client  *http.Client
}

func (f *SemanticScholar) Search(ctx context.Context, query string) ([]tree.SearchResultItem, error) {
	var resp struct {
		Data []struct {
			Title    string `json:"title"`
			URL      string `json:"url"`
			Abstract string `json:"abstract"`
			Year     int    `json:"year"`
			Authors  []struct {
				Name string `json:"name"`
			} `json:"authors"`
		} `json:"data"`
	}
	u := fmt.Sprintf("%s/graph/v1/paper/search?query=%s&limit=%d&fields=title,url,abstract,year,authors",
		f.BaseURL, url.QueryEscape(query), MaxCandidates)
	if err := getJSON(ctx, f.Client, u, &resp); err != nil {
		return nil, fmt.Errorf("semantic scholar: %w", err)
	}

	items := make([]tree.SearchResultItem, 0, len(resp.Data))
	for _, d := range resp.Data {
		item := tree.SearchResultItem{
			Title:   d.Title,
			URL:     d.URL,
			Snippet: d.Abstract,
		}
		if item.Snippet == "" {
			item.Snippet = "(No abstract)"
		}
		if d.Year > 0 {
			item.PublishedDate = strconv.Itoa(d.Year)
		}
		for _, a := range d.Authors {
			item.Authors = append(item.Authors, a.Name)
		}
		items = append(items, item)
	}
	return items, nil
}

// Wikipedia uses the MediaWiki search API.
type Wikipedia struct {
	BaseURL string
	Client  *http.Client
}

func (f *Wikipedia) Search(ctx context.Context, query string) ([]tree.SearchResultItem, error) {
	var resp struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
			} `json:"search"`
		} `json:"query"`
	}
	u := fmt.Sprintf("%s/w/api.php?action=query&list=search&srsearch=%s&format=json&utf8=&srlimit=%d",
		f.BaseURL, url.QueryEscape(query), MaxCandidates)
	if err := getJSON(ctx, f.Client, u, &resp); err != nil {
		return nil, fmt.Errorf("wikipedia: %w", err)
	}

	items := make([]tree.SearchResultItem, 0, len(resp.Query.Search))
	for _, s := range resp.Query.Search {
		items = append(items, tree.SearchResultItem{
			Title:   s.Title,
			URL:     f.BaseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(s.Title, " ", "_")),
			Snippet: stripTags(s.Snippet),
		})
	}
	return items, nil
}

// Arxiv queries the arXiv Atom API.
type Arxiv struct {
	BaseURL string
	Client  *http.Client
}

type arxivFeed struct {
	Entries []struct {
		ID        string `xml:"id"`
		Title     string `xml:"title"`
		Summary   string `xml:"summary"`
		Published string `xml:"published"`
		Authors   []struct {
			Name string `xml:"name"`
		} `xml:"author"`
	} `xml:"entry"`
}

// arxivSnippetLen is how much of an abstract is kept.
const arxivSnippetLen = 200

func (f *Arxiv) Search(ctx context.Context, query string) ([]tree.SearchResultItem, error) {
	u := fmt.Sprintf("%s/api/query?search_query=all:%s&start=0&max_results=%d",
		f.BaseURL, url.QueryEscape(query), MaxCandidates)
	body, err := getBody(ctx, f.Client, u)
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w", err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv: decode feed: %w", err)
	}

	items := make([]tree.SearchResultItem, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if e.Title == "" || e.ID == "" {
			continue
		}
		item := tree.SearchResultItem{
			Title: strings.TrimSpace(strings.ReplaceAll(e.Title, "\n", " ")),
			URL:   strings.TrimSpace(e.ID),
		}
		if e.Summary != "" {
			item.Snippet = truncateRunes(strings.ReplaceAll(e.Summary, "\n", " "), arxivSnippetLen) + "..."
		}
		if len(e.Published) >= 10 {
			item.PublishedDate = e.Published[:10]
		}
		for _, a := range e.Authors {
			item.Authors = append(item.Authors, a.Name)
		}
		items = append(items, item)
	}
	return items, nil
}

// PubMed resolves ids with ESearch, then details with ESummary.
type PubMed struct {
	BaseURL string
	Client  *http.Client
}

func (f *PubMed) Search(ctx context.Context, query string) ([]tree.SearchResultItem, error) {
	var search struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	u := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&term=%s&retmode=json&retmax=%d",
		f.BaseURL, url.QueryEscape(query), MaxCandidates)
	if err := getJSON(ctx, f.Client, u, &search); err != nil {
		return nil, fmt.Errorf("pubmed esearch: %w", err)
	}
	ids := search.ESearchResult.IDList
	if len(ids) == 0 {
		return []tree.SearchResultItem{}, nil
	}

	var summary struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	u = fmt.Sprintf("%s/esummary.fcgi?db=pubmed&id=%s&retmode=json", f.BaseURL, strings.Join(ids, ","))
	if err := getJSON(ctx, f.Client, u, &summary); err != nil {
		return nil, fmt.Errorf("pubmed esummary: %w", err)
	}

	items := make([]tree.SearchResultItem, 0, len(ids))
	for _, id := range ids {
		var doc struct {
			Title   string `json:"title"`
			PubDate string `json:"pubdate"`
			Source  string `json:"source"`
			Authors []struct {
				Name string `json:"name"`
			} `json:"authors"`
		}
		raw, ok := summary.Result[id]
		if !ok || json.Unmarshal(raw, &doc) != nil {
			continue
		}
		item := tree.SearchResultItem{
			Title:         doc.Title,
			URL:           fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", id),
			Snippet:       doc.Source,
			PublishedDate: doc.PubDate,
		}
		for _, a := range doc.Authors {
			item.Authors = append(item.Authors, a.Name)
		}
		items = append(items, item)
	}
	return items, nil
}

var siteDomains = map[string]string{
	"frontiers":       "frontiersin.org",
	"hackaday":        "hackaday.com",
	"ieee_spectrum":   "spectrum.ieee.org",
	"mit_tech_review": "technologyreview.com",
	"phys_org":        "phys.org",
	"reddit":          "reddit.com",
	"sciencedaily":    "sciencedaily.com",
}

// SiteFor maps a source name to the domain a site: search is restricted to.
func SiteFor(source string) string {
	if site, ok := siteDomains[source]; ok {
		return site
	}
	if strings.Contains(source, ".") {
		return source
	}
	return strings.Replace(source, "_", ".", 1) + ".com"
}

// SiteSearch runs a DuckDuckGo site: query through the headless browser.
type SiteSearch struct {
	BaseURL string
	Site    string
	Browser Browser
}

func (f *SiteSearch) Search(ctx context.Context, query string) ([]tree.SearchResultItem, error) {
	q := fmt.Sprintf("site:%s %s", f.Site, query)
	doc, err := f.Browser.HTML(ctx, f.BaseURL+"/html/?q="+url.QueryEscape(q))
	if err != nil {
		return nil, fmt.Errorf("site search %s: %w", f.Site, err)
	}
	return ParseDuckDuckGo(doc), nil
}
