package engine

import "context"

// Input is what a session permission decision may depend on.
type Input struct {
	DID           string
	MethodType    string
	TrustedDevice bool
}

// Evaluator decides the permissions granted to a session.
type Evaluator interface {
	// Permissions returns the sorted permission list for in.
	Permissions(ctx context.Context, in Input) ([]string, error)
}
