package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/citeguard/citeguard/internal/model"
)

// academicEngines is the SearXNG engine set queried for citation evidence.
var academicEngines = []string{"google_scholar", "arxiv", "pubmed", "crossref", "doaj", "semanticscholar"}

// academicDomains boost result confidence when present in the URL.
var academicDomains = []string{".edu", ".ac.", ".gov", "arxiv.org", "pubmed.ncbi.nlm.nih.gov", "doi.org"}

const (
	maxContentLen       = 1000
	maxScrapeContentLen = 2000
)

// SearxClient searches a SearXNG instance with academic engine focus.
type SearxClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *limiter
	robots     *robotsChecker
	logger     *zap.Logger
}

// SearxOptions configures a SearxClient.
type SearxOptions struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Logger            *zap.Logger
}

// NewSearxClient creates a client for the SearXNG instance at baseURL.
func NewSearxClient(baseURL string, opts SearxOptions) (*SearxClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("SearXNG base URL is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "citeguard/0.1"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SearxClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  opts.UserAgent,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    newLimiter(opts.RequestsPerSecond, opts.Burst),
		robots:     newRobotsChecker(opts.UserAgent, opts.Timeout),
		logger:     logger,
	}, nil
}

// Name returns the backend identifier
func (c *SearxClient) Name() string { return "searxng" }

// searxJSON mirrors SearXNG's JSON response format.
type searxJSON struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		Engine        string `json:"engine"`
		PublishedDate string `json:"publishedDate"`
	} `json:"results"`
}

// Search queries the SearXNG academic engines and returns scored records.
// JSON output is requested first; instances that refuse the JSON format
// fall back to parsing the HTML result page.
func (c *SearxClient) Search(ctx context.Context, query string, limit int) ([]model.EvidenceRecord, error) {
	if limit <= 0 {
		limit = 5
	}

	if err := c.limiter.wait(ctx, c.baseURL); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	body, status, err := c.fetchResults(ctx, query, true)
	if err != nil {
		return nil, err
	}

	if status == http.StatusOK {
		var parsed searxJSON
		if jsonErr := json.Unmarshal(body, &parsed); jsonErr == nil {
			return c.recordsFromJSON(parsed, limit), nil
		}
	}

	// JSON refused or unparseable; retry as HTML.
	c.logger.Debug("searxng JSON response unusable, retrying as HTML",
		zap.Int("status", status), zap.String("query", truncateStr(query, 50)))

	body, status, err = c.fetchResults(ctx, query, false)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("searxng returned HTTP %d", status)
	}
	return c.recordsFromHTML(body, limit)
}

func (c *SearxClient) fetchResults(ctx context.Context, query string, asJSON bool) ([]byte, int, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("engines", strings.Join(academicEngines, ","))
	params.Set("language", "en")
	params.Set("safesearch", "0")
	params.Set("pageno", "1")
	if asJSON {
		params.Set("format", "json")
	}

	reqURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *SearxClient) recordsFromJSON(parsed searxJSON, limit int) []model.EvidenceRecord {
	var records []model.EvidenceRecord
	for _, r := range parsed.Results {
		if len(records) == limit {
			break
		}
		if r.URL == "" {
			continue
		}
		record := model.EvidenceRecord{
			Title:      r.Title,
			URL:        r.URL,
			Content:    truncateStr(r.Content, maxContentLen),
			Source:     "searxng",
			Confidence: c.resultConfidence(r.Engine, r.Content, r.PublishedDate, r.URL),
			Metadata:   map[string]string{"engine": r.Engine, "type": "academic"},
		}
		if r.PublishedDate != "" {
			record.Metadata["published"] = r.PublishedDate
		}
		records = append(records, record)
	}
	return records
}

// recordsFromHTML extracts results from a SearXNG HTML result page:
// div.result blocks with an h3>a link and a .content snippet.
func (c *SearxClient) recordsFromHTML(body []byte, limit int) ([]model.EvidenceRecord, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}

	var records []model.EvidenceRecord
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(records) == limit {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result") {
			title, href := resultLink(n)
			content := classText(n, "content")
			if href != "" {
				records = append(records, model.EvidenceRecord{
					Title:      title,
					URL:        href,
					Content:    truncateStr(content, maxContentLen),
					Source:     "searxng_html",
					Confidence: c.resultConfidence("", content, "", href),
					Metadata:   map[string]string{"engine": "html_parser", "type": "general"},
				})
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return records, nil
}

// resultConfidence scores a raw search hit by its provenance: academic
// engines, substantial snippets, publication dates and academic domains
// each add to a 0.5 base.
func (c *SearxClient) resultConfidence(engine, content, publishedDate, resultURL string) float64 {
	confidence := 0.5

	for _, e := range academicEngines {
		if engine == e {
			confidence += 0.3
			break
		}
	}
	if len(content) > 100 {
		confidence += 0.1
	}
	if publishedDate != "" {
		confidence += 0.1
	}
	for _, domain := range academicDomains {
		if strings.Contains(resultURL, domain) {
			confidence += 0.2
			break
		}
	}

	return model.Clamp01(confidence)
}

// Scrape fetches a page directly and extracts its visible text, for
// evidence URLs whose search snippet was too thin. Hosts disallowing the
// path via robots.txt are skipped.
func (c *SearxClient) Scrape(ctx context.Context, pageURL string) (*model.EvidenceRecord, error) {
	if !c.robots.allowed(ctx, pageURL) {
		return nil, fmt.Errorf("robots.txt disallows %s", pageURL)
	}

	if err := c.limiter.wait(ctx, pageURL); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page: HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	title := pageTitle(doc)
	if title == "" {
		title = pageURL
	}

	return &model.EvidenceRecord{
		Title:      title,
		URL:        pageURL,
		Content:    truncateStr(visibleText(doc), maxScrapeContentLen),
		Source:     "scrape",
		Confidence: 0.6,
		Metadata:   map[string]string{"type": "scrape"},
	}, nil
}

// HTML helpers.

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

// resultLink finds the first anchor inside an h3 under the result node.
func resultLink(n *html.Node) (title, href string) {
	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if node.Type == html.ElementNode && node.Data == "h3" {
			for child := node.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == html.ElementNode && child.Data == "a" {
					for _, attr := range child.Attr {
						if attr.Key == "href" {
							href = attr.Val
						}
					}
					title = strings.TrimSpace(nodeText(child))
					return true
				}
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return true
			}
		}
		return false
	}
	walk(n)
	return title, href
}

// classText returns the text content of the first descendant with the
// given class.
func classText(n *html.Node, class string) string {
	var found string
	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if node.Type == html.ElementNode && hasClass(node, class) {
			found = strings.TrimSpace(nodeText(node))
			return true
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return true
			}
		}
		return false
	}
	walk(n)
	return found
}

func nodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			buf.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return buf.String()
}

// visibleText extracts text nodes, skipping scripts and styles.
func visibleText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			switch node.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}
		if node.Type == html.TextNode {
			text := strings.TrimSpace(node.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}

func pageTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if node.Type == html.ElementNode && node.Data == "title" {
			title = strings.TrimSpace(nodeText(node))
			return true
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
