package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// InsightsServiceName is the fully qualified gRPC service name.
const InsightsServiceName = "mirador.insights.v1.InsightsService"

const (
	listInsightsMethod  = "/" + InsightsServiceName + "/ListInsights"
	analyzeMetricMethod = "/" + InsightsServiceName + "/AnalyzeMetric"
)

// InsightsServer is the server API for the insights query service. Requests and
// responses are google.protobuf.Struct documents.
type InsightsServer interface {
	ListInsights(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AnalyzeMetric(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterInsightsServer attaches srv to a gRPC server.
func RegisterInsightsServer(s grpc.ServiceRegistrar, srv InsightsServer) {
	s.RegisterService(&InsightsServiceDesc, srv)
}

func listInsightsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InsightsServer).ListInsights(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listInsightsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InsightsServer).ListInsights(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func analyzeMetricHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InsightsServer).AnalyzeMetric(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMetricMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InsightsServer).AnalyzeMetric(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// InsightsServiceDesc describes the insights query service.
var InsightsServiceDesc = grpc.ServiceDesc{
	ServiceName: InsightsServiceName,
	HandlerType: (*InsightsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListInsights", Handler: listInsightsHandler},
		{MethodName: "AnalyzeMetric", Handler: analyzeMetricHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/insights/v1/insights.proto",
}

// InsightsClient calls the insights query service.
type InsightsClient struct {
	cc grpc.ClientConnInterface
}

// NewInsightsClient wraps a client connection.
func NewInsightsClient(cc grpc.ClientConnInterface) *InsightsClient {
	return &InsightsClient{cc: cc}
}

// ListInsights returns the latest ranked insights.
func (c *InsightsClient) ListInsights(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listInsightsMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalyzeMetric runs an on-demand analysis of one series.
func (c *InsightsClient) AnalyzeMetric(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeMetricMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
