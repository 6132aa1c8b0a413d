package ai

import "context"

// EmbeddingProvider binds a Client to one embedding model config, exposing
// the query/document embedding surface the vector store registry consumes.
type EmbeddingProvider struct {
	client *Client
	cfg    EmbeddingConfig
}

func NewEmbeddingProvider(client *Client, cfg EmbeddingConfig) *EmbeddingProvider {
	return &EmbeddingProvider{client: client, cfg: cfg}
}

func (p *EmbeddingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.client.Embed(ctx, p.cfg, text)
}

func (p *EmbeddingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.client.EmbedBatch(ctx, p.cfg, texts)
}
