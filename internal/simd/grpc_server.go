package simd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/habituation-core/internal/store"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

// ExperimentServiceName is the fully qualified gRPC service name.
const ExperimentServiceName = "habituation.v1.ExperimentService"

// ExperimentServiceServer is the server API. Requests and responses are
// JSON-shaped structs: CreateRun takes {run_id, protocol_yaml,
// skip_recovery, callback_url}; GetRun and StopRun take {run_id}; ListRuns
// takes {limit, status}. Responses carry {run} or {runs}.
type ExperimentServiceServer interface {
	CreateRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ExperimentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(ExperimentServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ExperimentServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ExperimentServiceDesc describes the service for grpc.Server.RegisterService.
var ExperimentServiceDesc = grpc.ServiceDesc{
	ServiceName: ExperimentServiceName,
	HandlerType: (*ExperimentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateRun", ExperimentServiceServer.CreateRun),
		unaryMethod("GetRun", ExperimentServiceServer.GetRun),
		unaryMethod("ListRuns", ExperimentServiceServer.ListRuns),
		unaryMethod("StopRun", ExperimentServiceServer.StopRun),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "habituation/v1/experiment.proto",
}

// ExperimentServiceClient calls the service over a client connection.
type ExperimentServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewExperimentServiceClient(cc grpc.ClientConnInterface) *ExperimentServiceClient {
	return &ExperimentServiceClient{cc: cc}
}

func (c *ExperimentServiceClient) call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ExperimentServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ExperimentServiceClient) CreateRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "CreateRun", in, opts...)
}

func (c *ExperimentServiceClient) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "GetRun", in, opts...)
}

func (c *ExperimentServiceClient) ListRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "ListRuns", in, opts...)
}

func (c *ExperimentServiceClient) StopRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "StopRun", in, opts...)
}

// ExperimentGRPCServer implements ExperimentServiceServer on a RunStore.
type ExperimentGRPCServer struct {
	store    *RunStore
	Executor *RunExecutor
	log      *slog.Logger
}

func NewExperimentGRPCServer(store *RunStore, executor *RunExecutor) *ExperimentGRPCServer {
	return &ExperimentGRPCServer{
		store:    store,
		Executor: executor,
		log:      logger.Component("grpc"),
	}
}

// Register adds the experiment and health services to gs.
func (s *ExperimentGRPCServer) Register(gs *grpc.Server) *health.Server {
	gs.RegisterService(&ExperimentServiceDesc, s)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ExperimentServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

func (s *ExperimentGRPCServer) CreateRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	input := RunInput{
		ProtocolYAML: stringField(req, "protocol_yaml"),
		SkipRecovery: req.GetFields()["skip_recovery"].GetBoolValue(),
		CallbackURL:  stringField(req, "callback_url"),
	}
	if input.ProtocolYAML == "" {
		return nil, status.Error(codes.InvalidArgument, "protocol_yaml is required")
	}
	rec, err := s.Executor.Submit(stringField(req, "run_id"), input)
	if err != nil {
		return nil, grpcError(err)
	}
	s.log.Info("run created", "run_id", rec.Run.ID)
	return toStruct(map[string]any{"run": runJSON(rec.Run)})
}

func (s *ExperimentGRPCServer) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "run_id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id is required")
	}
	var run *models.Run
	if rec, ok := s.store.Get(id); ok {
		run = rec.Run
	} else if archive := s.Executor.Archive(); archive != nil {
		archived, err := archive.Get(ctx, id)
		if err != nil {
			return nil, grpcError(err)
		}
		run = archived
	} else {
		return nil, status.Error(codes.NotFound, "run not found")
	}
	return toStruct(map[string]any{"run": runJSON(run)})
}

func (s *ExperimentGRPCServer) ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := int(req.GetFields()["limit"].GetNumberValue())
	recs := s.store.List(limit, models.RunStatus(stringField(req, "status")))
	runs := make([]any, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, runJSON(rec.Run))
	}
	return toStruct(map[string]any{"runs": runs})
}

func (s *ExperimentGRPCServer) StopRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "run_id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id is required")
	}
	updated, err := s.Executor.Stop(id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"run": runJSON(updated.Run)})
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrRunNotFound), errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrRunExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrRunTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, ErrInvalidRunID), errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// toStruct converts a JSON-encodable value to a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// jsonFloat maps NaN and infinities to null.
func jsonFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
