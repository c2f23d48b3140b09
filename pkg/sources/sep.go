package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/cogitoproject/cogito/pkg/config"
	"github.com/cogitoproject/cogito/pkg/httpclient"
	"github.com/cogitoproject/cogito/pkg/llms"
	"github.com/cogitoproject/cogito/pkg/research"
)

// Encyclopedia retrieves article sections from the Stanford Encyclopedia of
// Philosophy: search, fetch the top article, split it into sections, and let
// the LLM pick the sections relevant to the conversation.
type Encyclopedia struct {
	cfg    *config.EncyclopediaConfig
	llm    llms.Provider
	client *httpclient.Client
}

func NewEncyclopediaFromConfig(cfg *config.EncyclopediaConfig, llm llms.Provider) *Encyclopedia {
	return &Encyclopedia{
		cfg: cfg,
		llm: llm,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Timeout) * time.Second,
			}),
			httpclient.WithMaxRetries(2),
		),
	}
}

// article is one fetched and split SEP entry.
type article struct {
	title     string
	authors   []string
	published string
	url       string
	sections  []section
}

type section struct {
	header string
	body   string
}

// Query runs every search concurrently and flattens results in query order.
// A query that fails at any stage contributes a diagnostic result, never an
// error.
func (e *Encyclopedia) Query(ctx context.Context, queries []string, conversation []llms.Message) ([]research.QueryResult, error) {
	batches := make([][]research.QueryResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			batches[i] = e.runQuery(gctx, q, conversation)
			return nil
		})
	}
	_ = g.Wait()

	var results []research.QueryResult
	for _, batch := range batches {
		results = append(results, batch...)
	}
	return results, ctx.Err()
}

func (e *Encyclopedia) runQuery(ctx context.Context, query string, conversation []llms.Message) []research.QueryResult {
	notice := func(message string) []research.QueryResult {
		return []research.QueryResult{{
			ID:     research.NewID(),
			Query:  research.TextQuery(query),
			Source: research.SourceSEP,
			Result: research.Notice(message),
		}}
	}

	articleURLs, err := e.search(ctx, query)
	if err != nil {
		slog.Warn("encyclopedia search failed", "query", query, "error", err)
		return notice(fmt.Sprintf("Failed to search the Stanford Encyclopedia of Philosophy for '%s'.", query))
	}
	if len(articleURLs) == 0 {
		return notice(fmt.Sprintf("No results found in the Stanford Encyclopedia of Philosophy for '%s'.", query))
	}

	var results []research.QueryResult
	for _, articleURL := range articleURLs {
		art, err := e.fetchArticle(ctx, articleURL)
		if err != nil {
			slog.Warn("encyclopedia article fetch failed",
				"query", query, "url", articleURL, "error", err)
			results = append(results, notice(fmt.Sprintf(
				"Failed to retrieve the Stanford Encyclopedia article at %s.", articleURL))...)
			continue
		}

		selected := e.selectSections(ctx, art, conversation)
		for _, idx := range selected {
			sec := art.sections[idx]
			results = append(results, research.QueryResult{
				ID:     research.NewID(),
				Query:  research.TextQuery(query),
				Source: research.SourceSEP,
				Result: research.Evidence(sec.body, research.Citation{
					Source:    research.SourceSEPFull,
					Authors:   art.authors,
					Title:     art.title,
					Section:   sec.header,
					Published: art.published,
					URL:       art.url,
				}),
			})
		}
	}

	if len(results) == 0 {
		return notice(fmt.Sprintf(
			"The Stanford Encyclopedia articles found for '%s' contained no usable sections.", query))
	}
	return results
}

// search returns up to SearchLimit article URLs for the query.
func (e *Encyclopedia) search(ctx context.Context, query string) ([]string, error) {
	searchURL := fmt.Sprintf("%s/search/searcher.py?query=%s", e.cfg.BaseURL, url.QueryEscape(query))

	doc, err := e.fetchDocument(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(searchURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search url: %w", err)
	}

	var urls []string
	doc.Find("div.result_listing").EachWithBreak(func(_ int, listing *goquery.Selection) bool {
		href, ok := listing.Find("div.result_title a").First().Attr("href")
		if !ok {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		urls = append(urls, base.ResolveReference(ref).String())
		return len(urls) < e.cfg.SearchLimit
	})

	return urls, nil
}

// fetchArticle downloads an entry and splits it into citation metadata and
// sections.
func (e *Encyclopedia) fetchArticle(ctx context.Context, articleURL string) (*article, error) {
	doc, err := e.fetchDocument(ctx, articleURL)
	if err != nil {
		return nil, err
	}

	art := &article{
		title:     metaContent(doc, "citation_title"),
		published: metaContent(doc, "citation_publication_date"),
		url:       articleURL,
	}
	doc.Find(`meta[name="citation_author"]`).Each(func(_ int, s *goquery.Selection) {
		if author, ok := s.Attr("content"); ok && author != "" {
			art.authors = append(art.authors, author)
		}
	})
	if art.title == "" {
		art.title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	art.sections = splitSections(doc, art.title)
	if len(art.sections) == 0 {
		return nil, fmt.Errorf("no sections found in %s", articleURL)
	}
	return art, nil
}

func (e *Encyclopedia) fetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func metaContent(doc *goquery.Document, name string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).First().Attr("content")
	return strings.TrimSpace(content)
}

// headerLevel returns 1-6 for h1-h6 nodes, 0 otherwise.
func headerLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// splitSections walks the article body in document order. A header opens a
// new section only when it sits at the same or a higher level than the one
// that opened the current section; deeper headers are folded into the body
// as "### <text>" markers. Text before the first header lands in a section
// named after the article.
func splitSections(doc *goquery.Document, articleTitle string) []section {
	body := doc.Find("div#main-text")
	if body.Length() == 0 {
		body = doc.Find("body")
	}

	var sections []section
	current := section{header: articleTitle}
	currentLevel := 0

	flush := func() {
		current.body = strings.TrimSpace(current.body)
		if current.body != "" {
			sections = append(sections, current)
		}
	}

	body.Children().Each(func(_ int, node *goquery.Selection) {
		tag := goquery.NodeName(node)
		text := strings.TrimSpace(node.Text())
		if text == "" {
			return
		}

		level := headerLevel(tag)
		switch {
		case level == 0:
			current.body += text + "\n\n"
		case currentLevel == 0 || level <= currentLevel:
			flush()
			current = section{header: text}
			currentLevel = level
		default:
			current.body += "### " + text + "\n\n"
		}
	})
	flush()

	return sections
}

// selectSections asks the LLM which sections answer the conversation. The
// model replies with a JSON array of section numbers; after the attempt
// budget the leading three sections are used.
func (e *Encyclopedia) selectSections(ctx context.Context, art *article, conversation []llms.Message) []int {
	var headers strings.Builder
	for i, sec := range art.sections {
		fmt.Fprintf(&headers, "%d: %s\n", i, sec.header)
	}

	prompt := fmt.Sprintf("You are selecting sections of the Stanford Encyclopedia of Philosophy article "+
		"%q to use as research for the conversation so far. Here are the sections:\n%s\n"+
		"Respond ONLY with a JSON array of the section numbers most relevant to the user's question, "+
		"most relevant first, at most 3. Example: [0, 2]", art.title, headers.String())

	messages := make([]llms.Message, 0, len(conversation)+1)
	messages = append(messages, llms.System(prompt))
	messages = append(messages, conversation...)

	for attempt := 1; attempt <= e.cfg.SectionMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		reply, _, err := e.llm.Generate(ctx, messages, llms.ReasoningEffortLow)
		if err != nil {
			slog.Warn("section selection attempt failed",
				"article", art.title, "attempt", attempt, "error", err)
			continue
		}

		indices, err := parseSectionIndices(reply, len(art.sections))
		if err != nil {
			slog.Warn("section selection reply did not parse",
				"article", art.title, "attempt", attempt, "error", err)
			continue
		}
		return indices
	}

	slog.Warn("section selection exhausted, using leading sections", "article", art.title)
	n := len(art.sections)
	if n > 3 {
		n = 3
	}
	fallback := make([]int, n)
	for i := range fallback {
		fallback[i] = i
	}
	return fallback
}

// parseSectionIndices extracts the bracketed array from the reply and keeps
// in-range, first-seen indices.
func parseSectionIndices(reply string, sectionCount int) ([]int, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in reply")
	}

	var raw []int
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("section index array: %w", err)
	}

	seen := make(map[int]struct{}, len(raw))
	var indices []int
	for _, idx := range raw {
		if idx < 0 || idx >= sectionCount {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		indices = append(indices, idx)
	}

	if len(indices) == 0 {
		return nil, fmt.Errorf("no valid section indices in reply")
	}
	return indices, nil
}
