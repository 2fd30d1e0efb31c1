package codec

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/llm"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
)

// #region fake-server
type fakeServer struct {
	lastGenerate *structpb.Struct
	lastSearch   *structpb.Struct
	judgeResp    map[string]any
	fail         bool
}

func (f *fakeServer) reply(m map[string]any) (*structpb.Struct, error) {
	if f.fail {
		return nil, status.Error(codes.Unavailable, "sidecar down")
	}
	return structpb.NewStruct(m)
}

func (f *fakeServer) Generate(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.lastGenerate = in
	msgs := in.GetFields()["messages"].GetListValue().GetValues()
	last := msgs[len(msgs)-1].GetStructValue().GetFields()["content"].GetStringValue()
	return f.reply(map[string]any{"text": "echo: " + last})
}

func (f *fakeServer) Embed(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	n := float64(len(in.GetFields()["text"].GetStringValue()))
	return f.reply(map[string]any{"embedding": []any{n, 0.5, -1}})
}

func (f *fakeServer) Search(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.lastSearch = in
	return f.reply(map[string]any{"results": []any{
		map[string]any{"id": "ev-1", "text": "first passage", "score": 0.9, "metadata": map[string]any{"source": "a.md"}},
		map[string]any{"id": "ev-2", "text": "second passage", "score": 0.7},
	}})
}

func (f *fakeServer) Rerank(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	n := len(in.GetFields()["passages"].GetListValue().GetValues())
	order := make([]any, 0, n)
	for i := n - 1; i >= 0; i-- {
		order = append(order, float64(i))
	}
	return f.reply(map[string]any{"order": order[:n-1]}) // omit the first passage
}

func (f *fakeServer) Judge(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return f.reply(f.judgeResp)
}

// #endregion fake-server

// #region helpers
func startServer(t *testing.T, srv CodecServiceServer) *CodecClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterCodecServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	client, err := NewCodecClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// #endregion helpers

// #region tests
func TestChatRoundTrip(t *testing.T) {
	srv := &fakeServer{}
	c := startServer(t, srv)

	out, err := c.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	}, llm.WithTemperature(0.1), llm.WithModel("qwen"))
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out != "echo: hello" {
		t.Fatalf("unexpected output %q", out)
	}
	if got := srv.lastGenerate.GetFields()["model"].GetStringValue(); got != "qwen" {
		t.Fatalf("model not forwarded: %q", got)
	}
}

func TestGenerateUsesSingleUserMessage(t *testing.T) {
	c := startServer(t, &fakeServer{})
	out, err := c.Generate(context.Background(), "ping")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "echo: ping" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestEmbed(t *testing.T) {
	c := startServer(t, &fakeServer{})
	vec, err := c.Embed(context.Background(), "abcd")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 4 || vec[2] != -1 {
		t.Fatalf("unexpected embedding %v", vec)
	}
}

func TestSearch(t *testing.T) {
	srv := &fakeServer{}
	c := startServer(t, srv)

	results, err := c.Search(context.Background(), "security", 5, 0.3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "first passage" || results[0].Metadata["id"] != "ev-1" || results[0].Source() != "a.md" {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if results[1].Score != 0.7 {
		t.Fatalf("unexpected score %v", results[1].Score)
	}
	if k := srv.lastSearch.GetFields()["top_k"].GetNumberValue(); k != 5 {
		t.Fatalf("top_k = %v", k)
	}
}

func TestRerankCompletesPermutation(t *testing.T) {
	c := startServer(t, &fakeServer{})
	chunks := []session.Chunk{{Content: "a"}, {Content: "b"}, {Content: "c"}}

	out, err := c.Rerank(context.Background(), "q", chunks)
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	got := []string{out[0].Content, out[1].Content, out[2].Content}
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestScore(t *testing.T) {
	c := startServer(t, &fakeServer{judgeResp: map[string]any{
		"accuracy": 5, "relevance": 4, "completeness": 3, "feedback": "add detail",
	}})
	fb, err := c.Score(context.Background(), "q", "a", "ref")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if fb.Accuracy != 5 || fb.Relevance != 4 || fb.Completeness != 3 || fb.Feedback != "add detail" {
		t.Fatalf("unexpected feedback %+v", fb)
	}
}

func TestScoreRejectsMissingScores(t *testing.T) {
	c := startServer(t, &fakeServer{judgeResp: map[string]any{"feedback": "?"}})
	_, err := c.Score(context.Background(), "q", "a", "ref")
	if !errors.Is(err, eval.ErrScoreOutOfRange) {
		t.Fatalf("expected ErrScoreOutOfRange, got %v", err)
	}
}

func TestServerErrorPropagates(t *testing.T) {
	c := startServer(t, &fakeServer{fail: true})
	_, err := c.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestNewCodecClientWithService(t *testing.T) {
	c := NewCodecClientWithService(NewCodecServiceClient(nil))
	if c == nil || c.client == nil {
		t.Fatal("expected client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close without conn: %v", err)
	}
}

// #endregion tests
