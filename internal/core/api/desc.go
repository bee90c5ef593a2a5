package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "policysmith.engine.v1.PolicyEngine"

// Full method names.
const (
	MethodEvaluateRules    = "/" + ServiceName + "/EvaluateRules"
	MethodAssemble         = "/" + ServiceName + "/Assemble"
	MethodGenerateDocument = "/" + ServiceName + "/GenerateDocument"
	MethodExtractVariables = "/" + ServiceName + "/ExtractVariables"
)

// PolicyEngineServer is the server API for the PolicyEngine service.
type PolicyEngineServer interface {
	EvaluateRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Assemble(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExtractVariables(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// PolicyEngineServiceDesc describes the PolicyEngine service. Every method
// is unary with Struct request and response messages.
var PolicyEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PolicyEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "EvaluateRules", Handler: unaryHandler(MethodEvaluateRules, PolicyEngineServer.EvaluateRules)},
		{MethodName: "Assemble", Handler: unaryHandler(MethodAssemble, PolicyEngineServer.Assemble)},
		{MethodName: "GenerateDocument", Handler: unaryHandler(MethodGenerateDocument, PolicyEngineServer.GenerateDocument)},
		{MethodName: "ExtractVariables", Handler: unaryHandler(MethodExtractVariables, PolicyEngineServer.ExtractVariables)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "policysmith/engine/v1/engine.proto",
}

// RegisterPolicyEngineServer registers srv on s.
func RegisterPolicyEngineServer(s grpc.ServiceRegistrar, srv PolicyEngineServer) {
	s.RegisterService(&PolicyEngineServiceDesc, srv)
}

type unaryMethod func(PolicyEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PolicyEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PolicyEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client is a PolicyEngine client over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a PolicyEngine client.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes fullMethod with req encoded as a Struct and decodes the
// response into resp.
func (c *Client) Call(ctx context.Context, fullMethod string, req, resp any, opts ...grpc.CallOption) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod, in, out, opts...); err != nil {
		return err
	}
	return decode(out, resp)
}
