package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/mindx/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Unary methods of the agent gateway service. Payloads are google.protobuf.Struct
// because verdicts are free-form JSON objects.
const (
	invokeMethod = "/mindx.agent.v1.AgentGateway/Invoke"
	uploadMethod = "/mindx.agent.v1.AgentGateway/UploadEvidence"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GrpcClient reaches the agent platform over gRPC.
type GrpcClient struct {
	conn   *grpc.ClientConn
	addr   string
	apiKey string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	APIKey           string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient creates a new gRPC client to the agent gateway service.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultGrpcClientConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = def.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = def.KeepaliveTimeout
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent gateway at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("agent gateway at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to agent gateway", "address", cfg.Address)

	return newGrpcClientWithConn(conn, cfg.Address, cfg.APIKey, logger), nil
}

func newGrpcClientWithConn(conn *grpc.ClientConn, addr, apiKey string, logger *slog.Logger) *GrpcClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrpcClient{conn: conn, addr: addr, apiKey: apiKey, logger: logger}
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Invoke implements Gateway.
func (c *GrpcClient) Invoke(ctx context.Context, req Request) (Verdict, error) {
	assets := make([]any, 0, len(req.Assets))
	for _, a := range req.Assets {
		assets = append(assets, a)
	}
	in, err := structpb.NewStruct(map[string]any{
		"agent_id": req.AgentID,
		"message":  req.Message,
		"assets":   assets,
	})
	if err != nil {
		return nil, fmt.Errorf("encode invoke request: %w", err)
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(c.withAuth(ctx), invokeMethod, in, out); err != nil {
		c.logger.Debug("Invoke RPC failed", "agent_id", req.AgentID, "error", err)
		return nil, fmt.Errorf("invoke request failed: %w", err)
	}

	resp := out.AsMap()
	if ok, _ := resp["success"].(bool); !ok {
		if msg, _ := resp["error"].(string); msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
		}
		return nil, ErrRejected
	}
	return ParseVerdict(resp["result"])
}

// UploadEvidence implements Gateway.
func (c *GrpcClient) UploadEvidence(ctx context.Context, ev domain.Evidence) ([]string, error) {
	if len(ev.Data) == 0 {
		return nil, errors.New("evidence is empty")
	}
	in, err := structpb.NewStruct(map[string]any{
		"file_name":    sanitizeFileName(ev.FileName),
		"content_type": ev.ContentTypeOrSniff(),
		"data_base64":  base64.StdEncoding.EncodeToString(ev.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("encode upload request: %w", err)
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(c.withAuth(ctx), uploadMethod, in, out); err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}

	resp := out.AsMap()
	if ok, _ := resp["success"].(bool); !ok {
		if msg, _ := resp["error"].(string); msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
		}
		return nil, ErrRejected
	}
	raw, _ := resp["asset_ids"].([]any)
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

func (c *GrpcClient) withAuth(ctx context.Context) context.Context {
	if c.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "x-api-key", c.apiKey)
}

// Name implements Gateway.
func (c *GrpcClient) Name() string { return "grpc" }

// Close closes the gRPC connection.
func (c *GrpcClient) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close gRPC connection to %s: %w", c.addr, err)
	}
	return nil
}
