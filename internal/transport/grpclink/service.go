package grpclink

import (
	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "nearby.v1.PeerLink"
	// ExchangeFullMethod is the full method name of the Exchange stream.
	ExchangeFullMethod = "/nearby.v1.PeerLink/Exchange"

	// peerIDMetadataKey carries the sender's peer identifier.
	peerIDMetadataKey = "x-nearby-peer-id"
)

// exchangeServer is the handler type of the PeerLink service.
type exchangeServer interface {
	Exchange(stream grpc.ServerStream) error
}

// serviceDesc describes the PeerLink service. Messages on the stream are
// google.protobuf.BytesValue values carrying opaque payloads.
//
//nolint:gochecknoglobals // gRPC service descriptors are package-level by convention.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*exchangeServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "nearby/v1/link.proto",
}

func exchangeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(exchangeServer).Exchange(stream) //nolint:forcetypeassert // Guaranteed by HandlerType.
}
