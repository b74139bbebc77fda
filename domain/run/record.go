package run

import (
	"time"

	"fairnb/domain/pattern"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusRunning          Status = "running"
	StatusConverged        Status = "converged"
	StatusEarlyTermination Status = "early_termination"
	StatusTimeout          Status = "timeout"
	StatusInfeasible       Status = "infeasible"
	StatusFailed           Status = "failed"
)

// Baseline holds the reference likelihoods logged before the first refit.
type Baseline struct {
	// Independent is the log-likelihood with every sensitive leaf made
	// independent of the target.
	Independent float64 `json:"independent"`
	// Unconstrained is the log-likelihood of the unconstrained fit.
	Unconstrained float64 `json:"unconstrained"`
}

// IterationRecord is one refit of the fairness loop.
type IterationRecord struct {
	Iteration     int     `json:"iteration" db:"iteration"`
	LogLikelihood float64 `json:"log_likelihood" db:"log_likelihood"`
	Valid         bool    `json:"valid" db:"valid"`
	NodesVisited  int     `json:"nodes_visited" db:"nodes_visited"`
	Accepted      int     `json:"accepted" db:"accepted"`
	// Satisfaction is the fraction of the new candidates' inequalities that
	// the pre-refit estimate already met.
	Satisfaction float64 `json:"satisfaction" db:"satisfaction"`
	// TotalPatterns is the size of the accumulated set after this iteration.
	TotalPatterns int `json:"total_patterns" db:"total_patterns"`

	Patterns []pattern.Pattern `json:"-" db:"-"`
}

// Summary closes a run.
type Summary struct {
	Status        Status        `json:"status"`
	Iterations    int           `json:"iterations"`
	LogLikelihood float64       `json:"log_likelihood"`
	TotalPatterns int           `json:"total_patterns"`
	Elapsed       time.Duration `json:"elapsed"`
	Err           error         `json:"-"`
}
