package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"PayRunway/internal/query"
)

const fundingServiceName = "payrunway.v1.FundingService"

// RunwayRequest is the GetRunway request.
type RunwayRequest struct {
	Address string `json:"address"`
}

// PlanRequest is the PlanFunding request.
type PlanRequest struct {
	Address string `json:"address"`
	query.FundingRequest
}

// FundingServiceServer is the gRPC surface of the query service.
type FundingServiceServer interface {
	GetRunway(context.Context, *RunwayRequest) (*query.RunwayResponse, error)
	PlanFunding(context.Context, *PlanRequest) (*query.PlanResponse, error)
}

// fundingServiceDesc is written by hand: messages are plain structs carried
// by the JSON codec.
var fundingServiceDesc = grpc.ServiceDesc{
	ServiceName: fundingServiceName,
	HandlerType: (*FundingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetRunway",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(RunwayRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(FundingServiceServer).GetRunway(ctx, req.(*RunwayRequest))
				}
				if interceptor == nil {
					return handler(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + fundingServiceName + "/GetRunway"}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "PlanFunding",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(PlanRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(FundingServiceServer).PlanFunding(ctx, req.(*PlanRequest))
				}
				if interceptor == nil {
					return handler(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + fundingServiceName + "/PlanFunding"}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	// No Metadata: the messages are JSON and there is no .proto descriptor,
	// so reflection lists the service but cannot describe it.
	Streams: []grpc.StreamDesc{},
}

// RegisterFundingServiceServer registers srv on s.
func RegisterFundingServiceServer(s grpc.ServiceRegistrar, srv FundingServiceServer) {
	s.RegisterService(&fundingServiceDesc, srv)
}

// GRPCServer serves the funding service, gRPC health and reflection.
type GRPCServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	addr       string
	logger     zerolog.Logger
}

func NewGRPCServer(addr string, qs *query.QueryService, logger zerolog.Logger) *GRPCServer {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))

	RegisterFundingServiceServer(grpcServer, &fundingServiceImpl{qs: qs})

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(fundingServiceName, healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{grpcServer: grpcServer, health: healthServer, addr: addr, logger: logger}
}

// Serve serves on lis until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// Start listens on the configured address and serves (blocking).
func (s *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

func loggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		evt := logger.Debug()
		if err != nil {
			evt = logger.Warn().Err(err)
		}
		evt.Str("method", info.FullMethod).Dur("took", time.Since(start)).Msg("grpc call")
		return resp, err
	}
}

// ============================================================================
// FundingService implementation
// ============================================================================

type fundingServiceImpl struct {
	qs *query.QueryService
}

func (s *fundingServiceImpl) GetRunway(ctx context.Context, req *RunwayRequest) (*query.RunwayResponse, error) {
	var resp *query.RunwayResponse
	err := s.qs.Timed("grpc.GetRunway", func() error {
		addr, err := query.ParseAddress(req.Address)
		if err != nil {
			return err
		}
		resp, err = s.qs.GetRunway(ctx, addr)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *fundingServiceImpl) PlanFunding(ctx context.Context, req *PlanRequest) (*query.PlanResponse, error) {
	var resp *query.PlanResponse
	err := s.qs.Timed("grpc.PlanFunding", func() error {
		addr, err := query.ParseAddress(req.Address)
		if err != nil {
			return err
		}
		opts, err := req.FundingRequest.ToOptions()
		if err != nil {
			return err
		}
		resp, err = s.qs.PlanFunding(ctx, addr, opts)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}
