package codec

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The sidecar speaks google.protobuf.Struct in both directions, so no
// generated stubs are needed on either side.

const serviceName = "ragcodec.CodecService"

const (
	methodGenerate = "Generate"
	methodEmbed    = "Embed"
	methodSearch   = "Search"
	methodRerank   = "Rerank"
	methodJudge    = "Judge"
)

func fullMethod(m string) string { return "/" + serviceName + "/" + m }

// #region client
// CodecServiceClient is the client API for ragcodec.CodecService.
type CodecServiceClient interface {
	Generate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Embed(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Search(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Rerank(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Judge(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type codecServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCodecServiceClient wraps a connection.
func NewCodecServiceClient(cc grpc.ClientConnInterface) CodecServiceClient {
	return &codecServiceClient{cc: cc}
}

func (c *codecServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *codecServiceClient) Generate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGenerate, in, opts...)
}

func (c *codecServiceClient) Embed(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodEmbed, in, opts...)
}

func (c *codecServiceClient) Search(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodSearch, in, opts...)
}

func (c *codecServiceClient) Rerank(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodRerank, in, opts...)
}

func (c *codecServiceClient) Judge(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodJudge, in, opts...)
}

// #endregion client

// #region server
// CodecServiceServer is the server API for ragcodec.CodecService.
type CodecServiceServer interface {
	Generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Embed(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Rerank(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Judge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// RegisterCodecServer registers srv on s.
func RegisterCodecServer(s grpc.ServiceRegistrar, srv CodecServiceServer) {
	s.RegisterService(&codecServiceDesc, srv)
}

type unaryCall func(srv CodecServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CodecServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CodecServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var codecServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CodecServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(methodGenerate, CodecServiceServer.Generate),
		unaryHandler(methodEmbed, CodecServiceServer.Embed),
		unaryHandler(methodSearch, CodecServiceServer.Search),
		unaryHandler(methodRerank, CodecServiceServer.Rerank),
		unaryHandler(methodJudge, CodecServiceServer.Judge),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ragcodec.proto",
}

// #endregion server
