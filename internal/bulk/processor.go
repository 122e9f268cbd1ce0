package bulk

import (
	"context"
	"time"

	"github.com/taskcore/taskcore/internal/coreerr"
	"github.com/taskcore/taskcore/internal/types"
	"github.com/taskcore/taskcore/internal/validation"
)

// Bounds from spec §4.7.
const (
	MaxCreatesPerBatch  = 100
	MaxIndexOpsPerBatch = 1000
)

// OpKind is the kind of a single batch operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one entry in a bulk batch: `{type, key, data?}` per spec §4.7.
type Op struct {
	Kind OpKind
	Key  string
	Task *types.Task
}

// OutcomeStatus classifies how a single Op ended up.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is the per-item result of executing one Op.
type Outcome struct {
	Key    string
	Status OutcomeStatus
	Err    error
}

// Summary is the batch's aggregate result per spec §4.7.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Result bundles per-item outcomes with the aggregate summary.
type Result struct {
	Outcomes []Outcome
	Summary  Summary
}

// Applier performs the actual write for one Op (validate, store,
// index, cache-invalidate, emit — the C11 orchestration contract).
// The processor only sequences and bounds the work; it never touches
// storage itself.
type Applier interface {
	Apply(ctx context.Context, op Op) error
}

// Processor executes an ordered batch of create/update/delete
// operations within dependency order, honoring STRICT/LENIENT
// semantics (spec §4.7).
type Processor struct{}

// New creates a Processor. It is stateless; every call to Execute is
// independent.
func New() *Processor { return &Processor{} }

// Execute computes a dependency-respecting order over ops (by each
// create op's Task.Dependencies that reference another op's Key within
// the same batch), enforces the batch-size bounds, then applies each
// op via apply in that order inside the caller's transaction scope.
//
// In STRICT mode the first failing item aborts the whole batch: Execute
// returns immediately with the error, leaving it to the caller's C4
// scope to roll back. In LENIENT mode a failing item is recorded and
// the batch continues. If ctx is cancelled mid-batch, all untouched
// items are reported as cancelled rather than attempted.
func (p *Processor) Execute(ctx context.Context, ops []Op, mode validation.Mode, apply Applier) (Result, error) {
	start := time.Now()

	creates := 0
	for _, op := range ops {
		if op.Kind == OpCreate {
			creates++
		}
	}
	if creates > MaxCreatesPerBatch {
		return Result{}, coreerr.New(coreerr.KindLimitExceeded, "batch exceeds max create count")
	}
	if len(ops) > MaxIndexOpsPerBatch {
		return Result{}, coreerr.New(coreerr.KindLimitExceeded, "batch exceeds max index operation count")
	}

	keys := make([]string, len(ops))
	byKey := make(map[string]Op, len(ops))
	for i, op := range ops {
		keys[i] = op.Key
		byKey[op.Key] = op
	}

	ordered, err := topoSortKeys(keys, func(key string) []string {
		op := byKey[key]
		if op.Kind != OpCreate || op.Task == nil {
			return nil
		}
		return op.Task.Dependencies
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{Outcomes: make([]Outcome, 0, len(ops))}
	cancelled := false

	for _, key := range ordered {
		op := byKey[key]

		if cancelled || ctx.Err() != nil {
			cancelled = true
			result.Outcomes = append(result.Outcomes, Outcome{Key: key, Status: OutcomeCancelled})
			continue
		}

		if err := apply.Apply(ctx, op); err != nil {
			result.Summary.Failed++
			if mode == validation.Strict {
				result.Outcomes = append(result.Outcomes, Outcome{Key: key, Status: OutcomeFailed, Err: err})
				result.Summary.Total = len(ops)
				result.Summary.Duration = time.Since(start)
				return result, err
			}
			result.Outcomes = append(result.Outcomes, Outcome{Key: key, Status: OutcomeSkipped, Err: err})
			continue
		}

		result.Summary.Succeeded++
		result.Outcomes = append(result.Outcomes, Outcome{Key: key, Status: OutcomeSucceeded})
	}

	result.Summary.Total = len(ops)
	result.Summary.Duration = time.Since(start)
	return result, nil
}
