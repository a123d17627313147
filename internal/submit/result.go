package submit

import (
	"context"
	"errors"
	"fmt"

	"github.com/Benny93/dnnmodeler-go/internal/graph"
)

// Builder submits a payload to the Model Builder service.
type Builder interface {
	Build(ctx context.Context, p Payload) (Response, error)
}

// Response is the Model Builder's reply body.
type Response struct {
	Status       string `json:"status"`
	Detail       string `json:"detail,omitempty"`
	ModelSummary string `json:"model_summary,omitempty"`
}

// StatusError is the builder's reported status for a failed build.
const StatusError = "error"

// BuildError is a build the service refused or could not complete.
type BuildError struct {
	Detail string
}

func (e *BuildError) Error() string {
	if e.Detail == "" {
		return "build failed"
	}
	return "build failed: " + e.Detail
}

// Result is the user-visible outcome of a successful build.
type Result struct {
	Summary string
}

// Submit assembles the payload and sends it to b.
//
// A local rejection (ErrMissingInputShape) never reaches the network. A reply
// with status "error" becomes a *BuildError carrying the service detail.
func Submit(ctx context.Context, b Builder, nodes []graph.Node, edges []graph.Edge, r Resolver) (Result, error) {
	p, err := BuildPayload(nodes, edges, r)
	if err != nil {
		return Result{}, err
	}

	resp, err := b.Build(ctx, p)
	if err != nil {
		var be *BuildError
		if errors.As(err, &be) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("submitting model: %w", err)
	}
	if resp.Status == StatusError {
		return Result{}, &BuildError{Detail: resp.Detail}
	}
	return Result{Summary: resp.ModelSummary}, nil
}
