package proximity

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "nearby.v1.Proximity"
	// GetProximityFullMethod is the full method name of GetProximity.
	GetProximityFullMethod = "/nearby.v1.Proximity/GetProximity"
)

// Service abstracts the coordinator the transport layer depends on.
type Service interface {
	Snapshot() *domain.Snapshot
}

// proximityServer is the handler type of the Proximity service.
type proximityServer interface {
	GetProximity(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

//nolint:gochecknoglobals // gRPC service descriptors are package-level by convention.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*proximityServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetProximity",
			Handler:    getProximityHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nearby/v1/proximity.proto",
}

// Server implements the Proximity gRPC API.
type Server struct {
	// service provides the published snapshot.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// Register adds the Proximity service to a gRPC server.
func Register(server grpc.ServiceRegistrar, srv *Server) {
	server.RegisterService(&serviceDesc, srv)
}

// GetProximity returns the latest published snapshot.
func (s *Server) GetProximity(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snapshot := s.service.Snapshot()
	if snapshot == nil {
		return nil, status.Error(codes.Unavailable, "no snapshot published yet")
	}

	out, err := ToStruct(snapshot)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode snapshot")
	}

	return out, nil
}

func getProximityHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(proximityServer).GetProximity(ctx, in) //nolint:forcetypeassert // Guaranteed by HandlerType.
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetProximityFullMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(proximityServer).GetProximity(ctx, req.(*emptypb.Empty)) //nolint:forcetypeassert // Same as above.
	}

	return interceptor(ctx, in, info, handler)
}
