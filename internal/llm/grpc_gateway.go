package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// llmServiceMethod is the fully-qualified gRPC method the sidecar LLM
// service exposes. Request/response are google.protobuf.Struct so this
// client needs no generated stubs beyond the well-known protobuf types.
const llmServiceMethod = "/caseflow.llm.v1.LLMGateway/Complete"

// GRPCGateway implements Gateway by calling a sidecar LLM service over
// gRPC, wrapped in a circuit breaker so a flapping vendor dependency fails
// fast into the job queue's retry/dead-letter path instead of blocking a
// worker on a long timeout.
type GRPCGateway struct {
	conn    *grpc.ClientConn
	breaker *gobreaker.CircuitBreaker
}

// NewGRPCGateway dials addr using insecure (plaintext) transport, suitable
// for a sidecar reachable on localhost or within the same pod network.
func NewGRPCGateway(addr string) (*GRPCGateway, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM gateway client for %s: %w", addr, err)
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &GRPCGateway{conn: conn, breaker: breaker}, nil
}

// Complete invokes the sidecar LLM service through the circuit breaker.
func (g *GRPCGateway) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		protoReq, err := structpb.NewStruct(map[string]any{
			"system_prompt": req.SystemPrompt,
			"user_prompt":   req.UserPrompt,
		})
		if err != nil {
			return nil, fmt.Errorf("build llm gateway request: %w", err)
		}

		protoResp := &structpb.Struct{}
		if err := g.conn.Invoke(ctx, llmServiceMethod, protoReq, protoResp); err != nil {
			return nil, fmt.Errorf("llm gateway call failed: %w", err)
		}
		return protoResp, nil
	})
	if err != nil {
		return CompletionResponse{}, err
	}

	protoResp := result.(*structpb.Struct)
	fields := protoResp.GetFields()
	return CompletionResponse{
		RawText:   fields["raw_text"].GetStringValue(),
		ModelName: fields["model_name"].GetStringValue(),
	}, nil
}

// Close releases the underlying gRPC connection.
func (g *GRPCGateway) Close() error {
	return g.conn.Close()
}
