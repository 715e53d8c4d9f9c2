package backend

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrMissingEmail is returned by NewPubMed when no contact address is set.
// NCBI requires one for E-utilities callers.
var ErrMissingEmail = errors.New("pubmed: contact email is required")

// PubMedArticle is a PubMed search hit.
type PubMedArticle struct {
	PMID     string
	Title    string
	Authors  []string
	Journal  string
	Year     string
	Abstract string
}

// PubMed searches NCBI E-utilities.
type PubMed struct {
	client  *resty.Client
	limiter *rate.Limiter
	email   string
	apiKey  string
}

// NewPubMed creates a PubMed client. Without an API key NCBI allows three
// requests per second, with one ten.
func NewPubMed(opts Options) (*PubMed, error) {
	if strings.TrimSpace(opts.Email) == "" {
		return nil, ErrMissingEmail
	}
	def := rate.Limit(3)
	if opts.APIKey != "" {
		def = 10
	}
	return &PubMed{
		client:  newRestClient(opts.baseURL("https://eutils.ncbi.nlm.nih.gov"), opts),
		limiter: opts.limiter(def),
		email:   opts.Email,
		apiKey:  opts.APIKey,
	}, nil
}

func (p *PubMed) params(extra map[string]string) map[string]string {
	m := map[string]string{
		"db":    "pubmed",
		"tool":  "triangulum",
		"email": p.email,
	}
	if p.apiKey != "" {
		m["api_key"] = p.apiKey
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

// Search returns up to limit articles for query, by relevance.
func (p *PubMed) Search(ctx context.Context, query string, limit int) ([]PubMedArticle, error) {
	ids, err := p.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return p.fetch(ctx, ids)
}

func (p *PubMed) search(ctx context.Context, query string, limit int) ([]string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(p.params(map[string]string{
			"term":    query,
			"retmax":  strconv.Itoa(limit),
			"retmode": "json",
			"sort":    "relevance",
		})).
		Get("/entrez/eutils/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("pubmed esearch: %w", err)
	}
	if err := handleResponse("pubmed", resp); err != nil {
		return nil, err
	}
	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("pubmed esearch: invalid JSON response")
	}
	if e := gjson.GetBytes(body, "error"); e.Exists() {
		return nil, fmt.Errorf("pubmed esearch: %s", e.String())
	}
	var ids []string
	for _, id := range gjson.GetBytes(body, "esearchresult.idlist").Array() {
		ids = append(ids, id.String())
	}
	return ids, nil
}

func (p *PubMed) fetch(ctx context.Context, ids []string) ([]PubMedArticle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(p.params(map[string]string{
			"id":      strings.Join(ids, ","),
			"retmode": "xml",
		})).
		Get("/entrez/eutils/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("pubmed efetch: %w", err)
	}
	if err := handleResponse("pubmed", resp); err != nil {
		return nil, err
	}
	return parsePubMed(resp.Body())
}

type pubmedArticleSet struct {
	Articles []struct {
		Citation struct {
			PMID    string `xml:"PMID"`
			Article struct {
				Title   markupText `xml:"ArticleTitle"`
				Journal struct {
					Title string `xml:"Title"`
					Issue struct {
						PubDate struct {
							Year        string `xml:"Year"`
							MedlineDate string `xml:"MedlineDate"`
						} `xml:"PubDate"`
					} `xml:"JournalIssue"`
				} `xml:"Journal"`
				Abstract struct {
					Texts []abstractText `xml:"AbstractText"`
				} `xml:"Abstract"`
				Authors []struct {
					LastName       string `xml:"LastName"`
					ForeName       string `xml:"ForeName"`
					CollectiveName string `xml:"CollectiveName"`
				} `xml:"AuthorList>Author"`
			} `xml:"Article"`
		} `xml:"MedlineCitation"`
	} `xml:"PubmedArticle"`
}

// markupText is element text with inline markup such as <i> or <sup>
// flattened into it.
type markupText string

func (m *markupText) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	s, err := readText(d)
	*m = markupText(s)
	return err
}

type abstractText struct {
	Label string
	Text  markupText
}

func (a *abstractText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = attr.Value
		}
	}
	return a.Text.UnmarshalXML(d, start)
}

// readText collects all character data up to the end of the current
// element, descending into children.
func readText(d *xml.Decoder) (string, error) {
	var sb strings.Builder
	for depth := 1; depth > 0; {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return sb.String(), nil
}

func parsePubMed(body []byte) ([]PubMedArticle, error) {
	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("pubmed: parse articles: %w", err)
	}
	out := make([]PubMedArticle, 0, len(set.Articles))
	for _, a := range set.Articles {
		c := a.Citation
		art := PubMedArticle{
			PMID:    strings.TrimSpace(c.PMID),
			Title:   collapse(string(c.Article.Title)),
			Journal: collapse(c.Article.Journal.Title),
			Year:    strings.TrimSpace(c.Article.Journal.Issue.PubDate.Year),
		}
		if art.Year == "" {
			// MedlineDate looks like "2019 Nov-Dec".
			if f := strings.Fields(c.Article.Journal.Issue.PubDate.MedlineDate); len(f) > 0 {
				art.Year = f[0]
			}
		}
		var parts []string
		for _, t := range c.Article.Abstract.Texts {
			txt := collapse(string(t.Text))
			if t.Label != "" {
				txt = t.Label + ": " + txt
			}
			parts = append(parts, txt)
		}
		art.Abstract = strings.Join(parts, " ")
		for _, au := range c.Article.Authors {
			switch {
			case au.CollectiveName != "":
				art.Authors = append(art.Authors, au.CollectiveName)
			case au.LastName != "":
				art.Authors = append(art.Authors, strings.TrimSpace(au.ForeName+" "+au.LastName))
			}
		}
		out = append(out, art)
	}
	return out, nil
}

// URL returns the PubMed page of the article.
func (a PubMedArticle) URL() string {
	if a.PMID == "" {
		return ""
	}
	return "https://pubmed.ncbi.nlm.nih.gov/" + a.PMID + "/"
}
