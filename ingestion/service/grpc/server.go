package grpc

import (
	"context"
	"errors"
	"io"
	"log"

	core "cdctrl/ingestion/service/core"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server implements the LogServer interface on top of the ingestion sink
type Server struct {
	sink   core.Sink
	logger *log.Logger
}

// NewServer creates a new gRPC Server instance
func NewServer(sink core.Sink, l *log.Logger) *Server {
	return &Server{sink: sink, logger: l}
}

// Register attaches the server to a grpc.Server.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// SendLog decodes one record, queues it for ingestion and returns its identity
func (s *Server) SendLog(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	rec, err := DecodeRecord(req)
	if err != nil {
		s.logger.Printf("gRPC Server: Rejected record: %v", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.sink.Send(ctx, rec); err != nil {
		s.logger.Printf("gRPC Server: Failed to queue record %s: %v", rec.UUID, err)
		return nil, sinkStatus(err)
	}
	return wrapperspb.String(rec.UUID), nil
}

// StreamLogs queues every record of a client stream in arrival order
func (s *Server) StreamLogs(stream LogServer_StreamLogsServer) error {
	var received int
	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			s.logger.Printf("gRPC Server: Stream closed after %d records", received)
			return stream.SendAndClose(&emptypb.Empty{})
		}
		if err != nil {
			return err
		}

		rec, err := DecodeRecord(req)
		if err != nil {
			s.logger.Printf("gRPC Server: Rejected streamed record #%d: %v", received+1, err)
			return status.Error(codes.InvalidArgument, err.Error())
		}
		if err := s.sink.Send(stream.Context(), rec); err != nil {
			s.logger.Printf("gRPC Server: Failed to queue streamed record %s: %v", rec.UUID, err)
			return sinkStatus(err)
		}
		received++
	}
}

func sinkStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}

// Ensure Server implements the interface (compile-time check)
var _ LogServer = (*Server)(nil)
