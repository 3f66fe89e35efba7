package grpc

import (
	"context"

	grpclib "google.golang.org/grpc"

	syncpkg "github.com/cuemby/warren-ledger/pkg/sync"
)

const serviceName = "warrenledger.sync.Sync"
const exchangeMethod = "/" + serviceName + "/Exchange"

// exchangeServer is the single-method RPC surface this transport
// exposes; *Transport in transport.go implements it. Hand-written in the
// shape protoc-gen-go-grpc would otherwise generate, since the wire
// payload is a plain JSON Envelope rather than a protobuf message
// (see codec.go).
type exchangeServer interface {
	exchange(ctx context.Context, req syncpkg.Envelope) (syncpkg.Envelope, error)
}

func exchangeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpclib.UnaryServerInterceptor) (interface{}, error) {
	in := new(syncpkg.Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		resp, err := srv.(exchangeServer).exchange(ctx, *in)
		return &resp, err
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: exchangeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		resp, err := srv.(exchangeServer).exchange(ctx, *req.(*syncpkg.Envelope))
		return &resp, err
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpclib.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*exchangeServer)(nil),
	Methods: []grpclib.MethodDesc{
		{
			MethodName: "Exchange",
			Handler:    exchangeHandler,
		},
	},
	Streams:  []grpclib.StreamDesc{},
	Metadata: "warren-ledger/sync",
}

func invokeExchange(ctx context.Context, cc *grpclib.ClientConn, req syncpkg.Envelope) (syncpkg.Envelope, error) {
	out := new(syncpkg.Envelope)
	if err := cc.Invoke(ctx, exchangeMethod, &req, out, grpclib.CallContentSubtype(codecName)); err != nil {
		return syncpkg.Envelope{}, err
	}
	return *out, nil
}
