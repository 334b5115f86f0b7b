package peersync

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	syncServiceName = "dicecrawl.sync.v1.SyncService"
	publishMethod   = "/" + syncServiceName + "/Publish"
	streamMethod    = "/" + syncServiceName + "/Stream"
)

type syncServer interface {
	Publish(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	stream(stream grpc.ServerStream) error
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(syncServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: publishMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(syncServer).Publish(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	if err := stream.RecvMsg(new(emptypb.Empty)); err != nil {
		return err
	}
	return srv.(syncServer).stream(stream)
}

var syncServiceDesc = grpc.ServiceDesc{
	ServiceName: syncServiceName,
	HandlerType: (*syncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Stream", Handler: streamHandler, ServerStreams: true},
	},
	Metadata: "dicecrawl/sync/v1/sync.proto",
}

// Service is the gRPC side of snapshot sync. Peers call Publish to push a
// snapshot here and open Stream to receive snapshots published by this node.
// Service is also a Transport for the local Hub: Publish broadcasts to
// streaming peers and Subscribe yields snapshots peers pushed in.
type Service struct {
	logger  *zap.Logger
	peers   *fanout
	inbound *fanout
}

// NewService creates a Service.
//
// Precondition: logger must be non-nil.
func NewService(logger *zap.Logger) *Service {
	return &Service{logger: logger, peers: newFanout(), inbound: newFanout()}
}

// Register attaches the service to s.
func (s *Service) Register(srv *grpc.Server) {
	srv.RegisterService(&syncServiceDesc, s)
}

// Peers returns the number of currently streaming peers.
func (s *Service) Peers() int { return s.peers.len() }

// Publish handles the Publish RPC. The snapshot is delivered to local
// subscribers and relayed to every streaming peer.
func (s *Service) Publish(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	snap, err := FromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.inbound.send(snap)
	s.peers.send(snap)
	return &emptypb.Empty{}, nil
}

func (s *Service) stream(stream grpc.ServerStream) error {
	id, ch := s.peers.add(64)
	defer s.peers.remove(id)
	s.logger.Info("sync peer connected", zap.Int("peer", id))
	defer s.logger.Info("sync peer disconnected", zap.Int("peer", id))
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			st, err := ToStruct(snap)
			if err != nil {
				s.logger.Warn("encoding snapshot for peer", zap.Error(err))
				continue
			}
			if err := stream.SendMsg(st); err != nil {
				return err
			}
		}
	}
}

// PublishLocal broadcasts snap to every streaming peer.
func (s *Service) PublishLocal(snap Snapshot) {
	s.peers.send(snap)
}

// Transport returns the Service's Transport face.
func (s *Service) Transport() Transport { return serviceTransport{s} }

type serviceTransport struct{ s *Service }

func (t serviceTransport) Publish(_ context.Context, snap Snapshot) error {
	t.s.PublishLocal(snap)
	return nil
}

func (t serviceTransport) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	id, ch := t.s.inbound.add(64)
	go func() {
		<-ctx.Done()
		t.s.inbound.remove(id)
	}()
	return ch, nil
}

func (t serviceTransport) Close() error {
	t.s.peers.closeAll()
	t.s.inbound.closeAll()
	return nil
}

// GRPCTransport talks to a remote Service.
type GRPCTransport struct {
	conn   *grpc.ClientConn
	logger *zap.Logger
}

// DialGRPC creates a GRPCTransport for the peer at addr.
func DialGRPC(addr string, logger *zap.Logger) (*GRPCTransport, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing sync peer %s: %w", addr, err)
	}
	return NewGRPCTransport(conn, logger), nil
}

// NewGRPCTransport wraps an existing connection.
func NewGRPCTransport(conn *grpc.ClientConn, logger *zap.Logger) *GRPCTransport {
	return &GRPCTransport{conn: conn, logger: logger}
}

// Publish implements Transport.
func (t *GRPCTransport) Publish(ctx context.Context, snap Snapshot) error {
	st, err := ToStruct(snap)
	if err != nil {
		return err
	}
	if err := t.conn.Invoke(ctx, publishMethod, st, new(emptypb.Empty)); err != nil {
		return fmt.Errorf("sync publish: %w", err)
	}
	return nil
}

// Subscribe implements Transport by opening the peer's Stream RPC.
func (t *GRPCTransport) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	desc := &syncServiceDesc.Streams[0]
	cs, err := t.conn.NewStream(ctx, desc, streamMethod)
	if err != nil {
		return nil, fmt.Errorf("opening sync stream: %w", err)
	}
	if err := cs.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, fmt.Errorf("opening sync stream: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, fmt.Errorf("opening sync stream: %w", err)
	}
	out := make(chan Snapshot, 64)
	go func() {
		defer close(out)
		for {
			st := new(structpb.Struct)
			if err := cs.RecvMsg(st); err != nil {
				if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
					t.logger.Warn("sync stream ended", zap.Error(err))
				}
				return
			}
			snap, err := FromStruct(st)
			if err != nil {
				t.logger.Warn("dropping malformed snapshot", zap.Error(err))
				continue
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close implements Transport.
func (t *GRPCTransport) Close() error {
	return t.conn.Close()
}
