package envserver

import (
	"github.com/signalsfoundry/supplier-sim/internal/logging"
	"github.com/signalsfoundry/supplier-sim/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// NewGRPCServer returns a grpc.Server serving srv with request IDs, tracing
// and, when rpc is non-nil, Prometheus RPC metrics.
func NewGRPCServer(srv EnvServiceServer, log logging.Logger, rpc *observability.RPCCollector, opts ...grpc.ServerOption) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if rpc != nil {
		interceptors = append(interceptors, rpc.UnaryServerInterceptor())
	}
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}, opts...)

	server := grpc.NewServer(opts...)
	RegisterEnvServiceServer(server, srv)
	return server
}
