package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/llm"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/retrieval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
)

// #region client-struct
// CodecClient wraps the gRPC connection to the model-serving sidecar. It is a
// chat provider, an embedder, a vector searcher, a reranker and a judge.
type CodecClient struct {
	conn   *grpc.ClientConn
	client CodecServiceClient
}

var _ llm.Provider = (*CodecClient)(nil)

// #endregion client-struct

// #region constructor
// NewCodecClient connects to the sidecar at addr.
func NewCodecClient(addr string, opts ...grpc.DialOption) (*CodecClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &CodecClient{
		conn:   conn,
		client: NewCodecServiceClient(conn),
	}, nil
}

// NewCodecClientWithService creates a CodecClient with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewCodecClientWithService(svc CodecServiceClient) *CodecClient {
	return &CodecClient{client: svc}
}

// Close shuts down the gRPC connection.
func (c *CodecClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region generate
// Chat sends a chat history to the sidecar model.
func (c *CodecClient) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.ApplyOptions(llm.Options{}, opts...)
	msgs := make([]any, len(history))
	for i, m := range history {
		msgs[i] = map[string]any{"role": m.Role, "content": m.Content}
	}
	req, err := structpb.NewStruct(map[string]any{
		"messages":    msgs,
		"model":       options.Model,
		"temperature": options.Temperature,
		"max_tokens":  options.MaxTokens,
		"json":        options.JSON,
	})
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}

	resp, err := c.client.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate rpc: %w", err)
	}
	return stringField(resp, "text"), nil
}

// Generate sends a single user prompt.
func (c *CodecClient) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return c.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

// #endregion generate

// #region embed
// Embed sends text to the sidecar for embedding.
func (c *CodecClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req, err := structpb.NewStruct(map[string]any{"text": text})
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	resp, err := c.client.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embed rpc: %w", err)
	}
	values := listField(resp, "embedding")
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.GetNumberValue())
	}
	return vec, nil
}

// #endregion embed

// #region search
// Search queries the sidecar's vector store. The similarity threshold is
// enforced server-side.
func (c *CodecClient) Search(ctx context.Context, queryText string, topK int, similarityThreshold float32) ([]retrieval.Result, error) {
	req, err := structpb.NewStruct(map[string]any{
		"query_text":           queryText,
		"top_k":                topK,
		"similarity_threshold": float64(similarityThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	resp, err := c.client.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search rpc: %w", err)
	}

	items := listField(resp, "results")
	results := make([]retrieval.Result, 0, len(items))
	for _, item := range items {
		s := item.GetStructValue()
		if s == nil {
			continue
		}
		md := map[string]any{}
		if m := s.GetFields()["metadata"].GetStructValue(); m != nil {
			md = m.AsMap()
		}
		if id := stringField(s, "id"); id != "" {
			md["id"] = id
		}
		results = append(results, retrieval.Result{
			Content:  stringField(s, "text"),
			Metadata: md,
			Score:    s.GetFields()["score"].GetNumberValue(),
		})
	}
	return results, nil
}

// #endregion search

// #region rerank
// Rerank asks the sidecar for an order over the chunks. The response carries
// zero-based indices; omitted chunks keep their relative order at the end.
func (c *CodecClient) Rerank(ctx context.Context, question string, chunks []session.Chunk) ([]session.Chunk, error) {
	if len(chunks) < 2 {
		return append([]session.Chunk(nil), chunks...), nil
	}
	passages := make([]any, len(chunks))
	for i, ch := range chunks {
		passages[i] = ch.Content
	}
	req, err := structpb.NewStruct(map[string]any{"question": question, "passages": passages})
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	resp, err := c.client.Rerank(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rerank rpc: %w", err)
	}
	values := listField(resp, "order")
	order := make([]int, len(values))
	for i, v := range values {
		order[i] = int(v.GetNumberValue())
	}
	return llm.ApplyOrder(chunks, order), nil
}

// #endregion rerank

// #region judge
// Score asks the sidecar's judge model to grade an answer.
func (c *CodecClient) Score(ctx context.Context, question, answer, reference string) (eval.Feedback, error) {
	req, err := structpb.NewStruct(map[string]any{
		"question":  question,
		"answer":    answer,
		"reference": reference,
	})
	if err != nil {
		return eval.Feedback{}, fmt.Errorf("judge request: %w", err)
	}
	resp, err := c.client.Judge(ctx, req)
	if err != nil {
		return eval.Feedback{}, fmt.Errorf("judge rpc: %w", err)
	}
	fb := eval.Feedback{
		Accuracy:     intField(resp, "accuracy"),
		Relevance:    intField(resp, "relevance"),
		Completeness: intField(resp, "completeness"),
		Feedback:     stringField(resp, "feedback"),
	}
	if err := fb.Validate(); err != nil {
		return eval.Feedback{}, fmt.Errorf("judge response: %w", err)
	}
	return fb, nil
}

// #endregion judge

// #region fields
func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func intField(s *structpb.Struct, key string) int {
	return int(s.GetFields()[key].GetNumberValue())
}

func listField(s *structpb.Struct, key string) []*structpb.Value {
	return s.GetFields()[key].GetListValue().GetValues()
}

// #endregion fields
