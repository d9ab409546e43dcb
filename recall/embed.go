package recall

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Vectorizer turns text into embedding vectors. The HTTP embedder is
// the production implementation; tests substitute a deterministic one.
type Vectorizer interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder calls an OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	http  *resty.Client
	base  string
	model string
}

// NewEmbedder creates an embedder for the given endpoint. apiKey may be
// empty for local servers.
func NewEmbedder(baseURL, apiKey, model string) *Embedder {
	hc := resty.New()
	hc.SetTimeout(30 * time.Second)
	if apiKey != "" {
		hc.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &Embedder{http: hc, base: baseURL, model: model}
}

type embedRequest struct {
	Input any    `json:"input"` // string or []string
	Model string `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.request(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.request(ctx, texts, len(texts))
}

func (e *Embedder) request(ctx context.Context, input any, want int) ([][]float32, error) {
	var out embedResponse
	resp, err := e.http.R().
		SetContext(ctx).
		SetBody(embedRequest{Input: input, Model: e.model}).
		SetResult(&out).
		Post(e.base + "/embeddings")
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("embedding API status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Data) < want {
		return nil, fmt.Errorf("embedding response has %d vectors, want %d", len(out.Data), want)
	}
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
