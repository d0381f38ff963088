package guardrail

import (
	"context"
	"math"
	"strings"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName   = "guardrail.v1.Guardrail"
	ProposeMethod = "/" + ServiceName + "/Propose"
)

// GuardrailServer takes a proposal as a Struct
// {entity, current_value, new_value, reason} and answers
// {request_id, accepted, executed, reason, error_code}.
type GuardrailServer interface {
	Propose(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var GuardrailServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GuardrailServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Propose", Handler: proposeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "guardrail/v1/guardrail.proto",
}

func RegisterGuardrailServer(s grpc.ServiceRegistrar, srv GuardrailServer) {
	s.RegisterService(&GuardrailServiceDesc, srv)
}

func proposeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GuardrailServer).Propose(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ProposeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GuardrailServer).Propose(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GrpcHandler serves Propose on top of Service.
type GrpcHandler struct {
	svc *Service
}

var _ GuardrailServer = (*GrpcHandler)(nil)

func NewGrpcHandler(svc *Service) *GrpcHandler { return &GrpcHandler{svc: svc} }

func (h *GrpcHandler) Propose(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := RequestFromStruct(in)
	if err != nil {
		return nil, err
	}
	out := h.svc.Apply(ctx, req)
	return structpb.NewStruct(map[string]any{
		"request_id": out.RequestID,
		"accepted":   out.Decision.Accepted,
		"executed":   out.Executed,
		"reason":     out.Reason,
		"error_code": out.ErrorCode,
	})
}

// RequestFromStruct reads a proposal. Missing or non-numeric values become NaN so that
// Validate rejects them as invalid values.
func RequestFromStruct(in *structpb.Struct) (entities.AutonomousActionRequest, error) {
	f := in.GetFields()
	entity := strings.TrimSpace(f["entity"].GetStringValue())
	if entity == "" {
		return entities.AutonomousActionRequest{}, status.Error(codes.InvalidArgument, "entity is required")
	}
	return entities.AutonomousActionRequest{
		Entity:       entity,
		CurrentValue: number(f["current_value"]),
		NewValue:     number(f["new_value"]),
		Reason:       f["reason"].GetStringValue(),
	}, nil
}

func number(v *structpb.Value) float64 {
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return n.NumberValue
	}
	return math.NaN()
}

// GuardrailClient calls Propose on a remote guardrail.
type GuardrailClient struct {
	cc grpc.ClientConnInterface
}

func NewGuardrailClient(cc grpc.ClientConnInterface) *GuardrailClient {
	return &GuardrailClient{cc: cc}
}

func (c *GuardrailClient) Propose(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ProposeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
