package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/llm"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/prompt"
	"github.com/loreforge/loreforge/internal/scraper"
	"github.com/loreforge/loreforge/internal/worker"
)

var selectorSchema = &llm.ResponseSchema{
	Name: "page_selectors",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content_selectors": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"category_selectors": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"pagination_selector": map[string]any{"type": "string"},
		},
		"required": []any{"content_selectors", "category_selectors", "pagination_selector"},
	},
}

type selectorResponse struct {
	ContentSelectors   []string `json:"content_selectors"`
	CategorySelectors  []string `json:"category_selectors"`
	PaginationSelector string   `json:"pagination_selector"`
}

// crawlItem is one BFS queue entry.
type crawlItem struct {
	sourceID string
	depth    int
}

// HandleDiscoverAndCrawl walks the root sources breadth-first, derives CSS
// selectors for each with one LLM call, and collects candidate content URLs
// without persisting any Link rows.
func (p *Pipeline) HandleDiscoverAndCrawl(ctx context.Context, job *models.BackgroundJob, cancelled *worker.Flag) (any, error) {
	return p.crawlSources(ctx, job, cancelled, true)
}

// HandleRescanLinks repeats the crawl with the selectors already stored on
// each source. No LLM calls, no new child sources.
func (p *Pipeline) HandleRescanLinks(ctx context.Context, job *models.BackgroundJob, cancelled *worker.Flag) (any, error) {
	return p.crawlSources(ctx, job, cancelled, false)
}

func (p *Pipeline) crawlSources(ctx context.Context, job *models.BackgroundJob, cancelled *worker.Flag, discover bool) (any, error) {
	var payload models.CrawlPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}

	project, err := p.loadProject(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	if discover && project.SearchParams == nil {
		return nil, fmt.Errorf("project %s has no search params", project.ID)
	}

	roots := payload.SourceIDs
	if len(roots) == 0 {
		sources, lerr := p.repos.Source.ListByProject(ctx, project.ID)
		if lerr != nil {
			return nil, lerr
		}
		for _, s := range sources {
			if s.Kind == models.SourceKindWebURL {
				roots = append(roots, s.ID)
			}
		}
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("project %s has no crawlable sources", project.ID)
	}

	var provider llm.Provider
	if discover {
		provider, err = p.buildProvider(ctx, project)
		if err != nil {
			return nil, err
		}
	}

	known, err := p.repos.Link.URLSet(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	queue := make([]crawlItem, 0, len(roots))
	queued := make(map[string]bool, len(roots))
	for _, id := range roots {
		queue = append(queue, crawlItem{sourceID: id})
		queued[id] = true
	}

	newLinks := make(map[string]bool)
	existingLinks := make(map[string]bool)
	result := models.CrawlResult{}

	for len(queue) > 0 {
		if cancelled.IsSet() {
			return nil, worker.ErrCanceled
		}
		item := queue[0]
		queue = queue[1:]

		source, gerr := p.repos.Source.GetByID(ctx, item.sourceID)
		if gerr != nil {
			return nil, gerr
		}
		if source == nil {
			return nil, fmt.Errorf("source %s not found", item.sourceID)
		}

		children, cerr := p.crawlOneSource(ctx, job, project, provider, source, item.depth, discover, known, newLinks, existingLinks, &result)
		if cerr != nil {
			return nil, fmt.Errorf("crawl source %s: %w", source.URL, cerr)
		}
		for _, childID := range children {
			if !queued[childID] {
				queued[childID] = true
				queue = append(queue, crawlItem{sourceID: childID, depth: item.depth + 1})
			}
		}
	}

	result.NewLinks = sortedKeys(newLinks)
	result.ExistingLinks = sortedKeys(existingLinks)

	if discover {
		if err := p.setProjectStatus(ctx, project.ID, models.ProjectStatusSelectorGenerated); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// crawlOneSource paginates through one source, bucketing content URLs and
// returning the IDs of child sources to enqueue.
func (p *Pipeline) crawlOneSource(
	ctx context.Context,
	job *models.BackgroundJob,
	project *models.Project,
	provider llm.Provider,
	source *models.ProjectSource,
	depth int,
	discover bool,
	known map[string]bool,
	newLinks, existingLinks map[string]bool,
	result *models.CrawlResult,
) ([]string, error) {
	base, err := url.Parse(source.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url %q: %w", source.URL, err)
	}

	html, err := p.fetcher.Fetch(ctx, source.URL, scraper.FetchOptions{})
	if err != nil {
		return nil, err
	}

	if discover {
		if err := p.generateSelectors(ctx, job.ID, project, provider, source, html); err != nil {
			return nil, err
		}
		result.SelectorsGenerated++
	}
	if len(source.ContentSelectors) == 0 && len(source.CategorySelectors) == 0 {
		return nil, fmt.Errorf("source %s has no selectors", source.URL)
	}

	maxPages := source.MaxPagesToCrawl
	if maxPages <= 0 {
		maxPages = 1
	}

	var childIDs []string
	visited := map[string]bool{source.URL: true}
	pageURL := source.URL

	for page := 0; page < maxPages; page++ {
		if page > 0 {
			html, err = p.fetcher.Fetch(ctx, pageURL, scraper.FetchOptions{})
			if err != nil {
				return nil, err
			}
			base, err = url.Parse(pageURL)
			if err != nil {
				return nil, err
			}
		}

		contentURLs, err := scraper.ExtractLinks(html, base, source.ContentSelectors)
		if err != nil {
			return nil, err
		}
		contentSet := make(map[string]bool, len(contentURLs))
		for _, u := range contentURLs {
			if excluded(u, source.URLExclusionPatterns) {
				continue
			}
			contentSet[u] = true
			if known[u] {
				existingLinks[u] = true
			} else {
				newLinks[u] = true
			}
		}

		// Category expansion happens on the first page only so it does
		// not multiply with pagination.
		if page == 0 && discover && depth < source.MaxCrawlDepth {
			categoryURLs, err := scraper.ExtractLinks(html, base, source.CategorySelectors)
			if err != nil {
				return nil, err
			}
			for _, u := range categoryURLs {
				// A URL matched by both selector families is content.
				if contentSet[u] || u == source.URL || excluded(u, source.URLExclusionPatterns) {
					continue
				}
				childID, created, cerr := p.ensureChildSource(ctx, project, source, u)
				if cerr != nil {
					return nil, cerr
				}
				if created {
					result.NewSourcesCreated++
				}
				childIDs = append(childIDs, childID)
			}
		}

		if source.PaginationSelector == "" {
			break
		}
		next, ok := scraper.FirstLink(html, base, source.PaginationSelector)
		if !ok || next == pageURL || visited[next] {
			break
		}
		visited[next] = true
		pageURL = next
	}

	if err := p.repos.Source.TouchLastCrawled(ctx, source.ID); err != nil {
		return nil, err
	}
	return childIDs, nil
}

// generateSelectors runs the selector LLM call for one source and persists
// the result onto the source row.
func (p *Pipeline) generateSelectors(ctx context.Context, jobID string, project *models.Project, provider llm.Provider, source *models.ProjectSource, html string) error {
	messages, err := prompt.Render(resolveTemplate(project, templateSelectors), map[string]any{
		"search_params": map[string]any{
			"purpose":  project.SearchParams.Purpose,
			"criteria": project.SearchParams.Criteria,
		},
		"url":  source.URL,
		"html": html,
	})
	if err != nil {
		return fmt.Errorf("failed to render selector template: %w", err)
	}

	if err := p.waitSlot(ctx, project); err != nil {
		return err
	}
	resp, err := p.generateAndLog(ctx, provider, project, jobID, p.buildRequest(project, messages, selectorSchema))
	if err != nil {
		return err
	}

	var sel selectorResponse
	if err := json.Unmarshal(resp.Parsed, &sel); err != nil {
		return fmt.Errorf("failed to decode selectors: %w", err)
	}
	if err := p.repos.Source.SetSelectors(ctx, source.ID, sel.ContentSelectors, sel.CategorySelectors, sel.PaginationSelector); err != nil {
		return err
	}
	source.ContentSelectors = sel.ContentSelectors
	source.CategorySelectors = sel.CategorySelectors
	source.PaginationSelector = sel.PaginationSelector
	return nil
}

// ensureChildSource reuses the source at childURL or creates one inheriting
// the parent's crawl bounds, then records the hierarchy edge.
func (p *Pipeline) ensureChildSource(ctx context.Context, project *models.Project, parent *models.ProjectSource, childURL string) (string, bool, error) {
	existing, err := p.repos.Source.GetByURL(ctx, project.ID, childURL)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		if err := p.repos.Source.AddHierarchyEdge(ctx, parent.ID, existing.ID); err != nil {
			return "", false, err
		}
		return existing.ID, false, nil
	}

	child := &models.ProjectSource{
		ID:                   ulid.Make().String(),
		ProjectID:            project.ID,
		Kind:                 models.SourceKindWebURL,
		URL:                  childURL,
		URLExclusionPatterns: parent.URLExclusionPatterns,
		MaxPagesToCrawl:      parent.MaxPagesToCrawl,
		MaxCrawlDepth:        parent.MaxCrawlDepth,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}
	if err := p.repos.Source.Create(ctx, child); err != nil {
		return "", false, err
	}
	if err := p.repos.Source.AddHierarchyEdge(ctx, parent.ID, child.ID); err != nil {
		return "", false, err
	}
	return child.ID, true, nil
}

// excluded reports whether the URL matches any exclusion pattern.
// Patterns are plain substrings.
func excluded(u string, patterns []string) bool {
	for _, pat := range patterns {
		if pat != "" && strings.Contains(u, pat) {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
