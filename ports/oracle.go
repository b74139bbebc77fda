package ports

import (
	"context"

	"fairnb/domain/bayes"
	"fairnb/domain/pattern"
)

// SearchRequest is the input of one pattern search.
type SearchRequest struct {
	Params       bayes.DistributionParams
	TargetValue  int
	SensitiveIDs []int
	Threshold    float64
	K            int
}

// SearchResult carries up to K candidates and the number of search nodes
// visited (a cost metric only).
type SearchResult struct {
	Candidates   []pattern.Candidate
	NodesVisited int
}

// PatternOracle finds discrimination patterns in a naive-Bayes model.
// Implementations must honour ctx cancellation at node boundaries and return
// no candidates when cancelled.
type PatternOracle interface {
	FindDivergent(ctx context.Context, req SearchRequest) (*SearchResult, error)
	FindDiscriminating(ctx context.Context, req SearchRequest) (*SearchResult, error)
}
