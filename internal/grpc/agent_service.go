package grpc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/shardfleet/shardfleet/internal/logging"
)

// Agent wire contract. Requests and responses are google.protobuf.Struct
// values; the request carries the shard command fields by their JSON names and
// the response carries {"accepted": bool, "message": string}.
const (
	AgentServiceName   = "shardfleet.agent.v1.ShardAgent"
	AgentExecuteMethod = "/" + AgentServiceName + "/Execute"
)

// ShardAgentServer is implemented by node agents that execute shard commands
type ShardAgentServer interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShardAgentServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: AgentExecuteMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ShardAgentServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ShardAgentServiceDesc describes the agent service for registration
var ShardAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: AgentServiceName,
	HandlerType: (*ShardAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler:    executeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shardfleet/agent/v1/agent.proto",
}

// RegisterShardAgentServer registers srv on s
func RegisterShardAgentServer(s grpc.ServiceRegistrar, srv ShardAgentServer) {
	s.RegisterService(&ShardAgentServiceDesc, srv)
}

// InvokeExecute calls Execute on the agent behind conn
func InvokeExecute(ctx context.Context, conn grpc.ClientConnInterface, req *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, AgentExecuteMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// AgentServer hosts a ShardAgentServer, used by local agents and tests
type AgentServer struct {
	grpcServer *grpc.Server
	listener   net.Listener
	logger     *logging.Logger
}

// NewAgentServer listens on address and registers handler
func NewAgentServer(address string, handler ShardAgentServer, logger *logging.Logger) (*AgentServer, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s := grpc.NewServer()
	RegisterShardAgentServer(s, handler)

	// Register reflection service (for debugging with grpcurl)
	reflection.Register(s)

	return &AgentServer{
		grpcServer: s,
		listener:   listener,
		logger:     logger,
	}, nil
}

// Addr returns the listening address
func (s *AgentServer) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until the server stops
func (s *AgentServer) Serve() error {
	s.logger.Info("Agent gRPC server starting", "address", s.Addr())
	return s.grpcServer.Serve(s.listener)
}

// Stop stops the gRPC server gracefully
func (s *AgentServer) Stop() {
	s.logger.Info("Stopping agent gRPC server")
	s.grpcServer.GracefulStop()
}
