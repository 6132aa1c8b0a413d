package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/search"
	"ragchat/internal/vectorstore"
)

// NoRelevantResults is the context placeholder when every enabled source
// came back empty, so prompt assembly always has deterministic input.
const NoRelevantResults = "no relevant results found"

const (
	CitationTypeWeb    = "web"
	CitationTypeVector = "vector"
)

// WebSearcher is the external web-search capability.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// RetrievalSources selects which sources a retrieval fans out to.
type RetrievalSources struct {
	Web             bool   `json:"web"`
	KnowledgeBaseID string `json:"knowledge_base_id"`
	SessionTempDocs bool   `json:"session_temp_docs"`
}

func (s RetrievalSources) any() bool {
	return s.Web || s.KnowledgeBaseID != "" || s.SessionTempDocs
}

type Citation struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

type RetrievalResult struct {
	ContextText string     `json:"context_text"`
	Citations   []Citation `json:"citations"`
}

// RetrievalService fans out a query to the enabled sources concurrently and
// composes a single source-tagged context string. A failing source degrades
// to an empty contribution instead of failing the retrieval.
type RetrievalService struct {
	registry      *vectorstore.Registry
	webSearcher   WebSearcher
	topK          int
	sourceTimeout time.Duration
	logger        *zap.Logger
}

func NewRetrievalService(
	registry *vectorstore.Registry,
	webSearcher WebSearcher,
	topK int,
	sourceTimeout time.Duration,
	logger *zap.Logger,
) *RetrievalService {
	if topK <= 0 {
		topK = 5
	}
	if sourceTimeout <= 0 {
		sourceTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalService{
		registry:      registry,
		webSearcher:   webSearcher,
		topK:          topK,
		sourceTimeout: sourceTimeout,
		logger:        logger,
	}
}

// Retrieve queries the enabled sources concurrently and concatenates their
// blocks in the fixed order web, knowledge base, session temp docs.
// Citations follow the same order; duplicates are kept.
func (s *RetrievalService) Retrieve(
	ctx context.Context,
	query, tenantID, sessionID string,
	sources RetrievalSources,
) RetrievalResult {
	if !sources.any() || strings.TrimSpace(query) == "" {
		return RetrievalResult{ContextText: NoRelevantResults}
	}

	var (
		wg       sync.WaitGroup
		webHits  []search.Result
		kbHits   []vectorstore.SearchResult
		tempHits []vectorstore.SearchResult
	)

	if sources.Web && s.webSearcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			searchCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
			defer cancel()
			hits, err := s.webSearcher.Search(searchCtx, query)
			if err != nil {
				s.logger.Warn("web search failed, degrading to empty result", zap.Error(err))
				return
			}
			webHits = hits
		}()
	}
	if sources.KnowledgeBaseID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kbHits = s.searchScope(ctx, tenantID, sources.KnowledgeBaseID, query)
		}()
	}
	if sources.SessionTempDocs && sessionID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tempHits = s.searchScope(ctx, tenantID, sessionID, query)
		}()
	}
	wg.Wait()

	var sb strings.Builder
	var citations []Citation

	if len(webHits) > 0 {
		sb.WriteString("[web search results]\n")
		for _, hit := range webHits {
			writeBlock(&sb, hit.URL, hit.Passage)
			citations = append(citations, Citation{Type: CitationTypeWeb, Ref: hit.URL})
		}
	}
	appendVectorSection(&sb, &citations, "[knowledge base]", kbHits)
	appendVectorSection(&sb, &citations, "[session documents]", tempHits)

	contextText := strings.TrimRight(sb.String(), "\n")
	if contextText == "" {
		return RetrievalResult{ContextText: NoRelevantResults}
	}
	return RetrievalResult{ContextText: contextText, Citations: citations}
}

func (s *RetrievalService) searchScope(ctx context.Context, tenantID, scope, query string) []vectorstore.SearchResult {
	searchCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
	defer cancel()

	handle, err := s.registry.GetOrCreate(searchCtx, tenantID, scope)
	if err != nil {
		s.logger.Warn("open vector scope failed, degrading to empty result",
			zap.String("scope", scope), zap.Error(err))
		return nil
	}
	hits, err := s.registry.Search(searchCtx, handle, query, s.topK)
	if err != nil {
		s.logger.Warn("vector search failed, degrading to empty result",
			zap.String("scope", scope), zap.Error(err))
		return nil
	}
	return hits
}

func appendVectorSection(sb *strings.Builder, citations *[]Citation, header string, hits []vectorstore.SearchResult) {
	if len(hits) == 0 {
		return
	}
	sb.WriteString(header + "\n")
	for _, hit := range hits {
		ref := hit.Metadata["original_name"]
		writeBlock(sb, ref, hit.Text)
		*citations = append(*citations, Citation{Type: CitationTypeVector, Ref: ref})
	}
}

func writeBlock(sb *strings.Builder, ref, passage string) {
	sb.WriteString("source: ")
	sb.WriteString(ref)
	sb.WriteString("\ncontent: ")
	sb.WriteString(passage)
	sb.WriteString("\n\n")
}
