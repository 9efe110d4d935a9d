package llm

import "context"

// CompletionRequest is a single LLM1/LLM2 call: a system prompt and a
// rendered user prompt. Prompt rendering itself, and the vendor HTTP
// transport underneath, are out of scope for this engine — Gateway is the
// seam across which that work is delegated.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
}

// CompletionResponse is the raw (pre schema-validation) text returned by
// the vendor model.
type CompletionResponse struct {
	RawText   string
	ModelName string
}

// Gateway fronts the vendor LLM call. Production wiring talks to a
// sidecar LLM service over gRPC (GRPCGateway); deterministic test/offline
// wiring uses DeterministicGateway.
type Gateway interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
