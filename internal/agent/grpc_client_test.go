package agent

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/ashureev/mindx/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type structHandler func(ctx context.Context, in map[string]any) map[string]any

// startGateway serves the agent gateway methods over an in-memory listener.
func startGateway(t *testing.T, invoke, upload structHandler) *GrpcClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()

	unary := func(h structHandler) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
		return func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			return structpb.NewStruct(h(ctx, in.AsMap()))
		}
	}
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "mindx.agent.v1.AgentGateway",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Invoke", Handler: unary(invoke)},
			{MethodName: "UploadEvidence", Handler: unary(upload)},
		},
	}, struct{}{})

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient failed: %v", err)
	}
	c := newGrpcClientWithConn(conn, "bufnet", "secret", nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGrpcClientInvoke(t *testing.T) {
	c := startGateway(t,
		func(ctx context.Context, in map[string]any) map[string]any {
			md, _ := metadata.FromIncomingContext(ctx)
			if got := md.Get("x-api-key"); len(got) != 1 || got[0] != "secret" {
				return map[string]any{"success": false, "error": "unauthorized"}
			}
			if in["agent_id"] != "mod" {
				return map[string]any{"success": false, "error": "unknown agent"}
			}
			return map[string]any{
				"success": true,
				"result":  map[string]any{"severity_level": "critical", "message": in["message"]},
			}
		},
		nil,
	)

	v, err := c.Invoke(context.Background(), Request{AgentID: "mod", Message: "Pod message: 'hi'"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !v.Is("severity_level", "critical") {
		t.Fatalf("unexpected verdict: %v", v)
	}
	if s, _ := v.Text("message"); s != "Pod message: 'hi'" {
		t.Fatalf("message not forwarded: %v", v)
	}

	if _, err := c.Invoke(context.Background(), Request{AgentID: "other"}); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestGrpcClientUploadEvidence(t *testing.T) {
	c := startGateway(t, nil,
		func(_ context.Context, in map[string]any) map[string]any {
			if in["data_base64"] == "" || in["file_name"] != "proof.jpg" {
				return map[string]any{"success": false}
			}
			return map[string]any{"success": true, "asset_ids": []any{"asset-7"}}
		},
	)

	ids, err := c.UploadEvidence(context.Background(), domain.Evidence{FileName: "proof.jpg", Data: []byte{0xff, 0xd8, 0xff}})
	if err != nil {
		t.Fatalf("UploadEvidence failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "asset-7" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
