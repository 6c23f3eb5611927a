package chore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/chorechart/internal/model"
)

// Creator persists a single assignment. Implementations must treat a
// repeated DedupKey as the same assignment.
type Creator interface {
	CreateAssignment(ctx context.Context, req Request) (*model.Assignment, error)
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// Failure is one request that could not be written.
type Failure struct {
	Request Request `json:"request"`
	Err     error   `json:"-"`
}

func (f Failure) Message() string {
	if f.Err == nil {
		return "unknown error"
	}
	return f.Err.Error()
}

type BatchResult struct {
	Total        int                `json:"total"`
	SuccessCount int                `json:"success_count"`
	Created      []model.Assignment `json:"created"`
	Failures     []Failure          `json:"failures"`
}

func (r BatchResult) Outcome() Outcome {
	switch {
	case r.Total > 0 && r.SuccessCount == r.Total:
		return OutcomeSuccess
	case r.SuccessCount > 0:
		return OutcomePartial
	default:
		return OutcomeFailure
	}
}

// Summary is the text shown to whoever triggered the batch.
type Summary struct {
	Message string `json:"message,omitempty"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r BatchResult) Summary() Summary {
	switch r.Outcome() {
	case OutcomeSuccess:
		return Summary{Message: fmt.Sprintf("%d chore(s) assigned successfully!", r.SuccessCount)}
	case OutcomePartial:
		return Summary{
			Message: fmt.Sprintf("%d chore(s) assigned successfully!", r.SuccessCount),
			Warning: fmt.Sprintf("Some chores could not be assigned. %d failed.", len(r.Failures)),
		}
	}
	if r.Total == 0 {
		return Summary{Error: "No assignments to create. Please select kids and chores."}
	}
	msgs := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		msgs = append(msgs, f.Message())
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown errors occurred")
	}
	return Summary{Error: "Failed to assign chores. Errors: " + strings.Join(msgs, ", ")}
}

// BatchWriter writes assignment requests independently. One write failing
// never cancels or undoes another.
type BatchWriter struct {
	creator Creator
	limit   int
	logger  *slog.Logger
}

func NewBatchWriter(creator Creator, limit int, logger *slog.Logger) *BatchWriter {
	if limit <= 0 {
		limit = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchWriter{creator: creator, limit: limit, logger: logger}
}

// WriteAll submits every request and waits for all of them. Requests without
// a dedup key are given one first, so failures can be passed to Retry.
// Cancelling ctx does not stop the writes; a started batch always finishes.
func (w *BatchWriter) WriteAll(ctx context.Context, reqs []Request) BatchResult {
	ctx = context.WithoutCancel(ctx)
	keyed := make([]Request, len(reqs))
	for i, req := range reqs {
		if req.DedupKey == "" {
			req.DedupKey = uuid.NewString()
		}
		keyed[i] = req
	}

	created := make([]*model.Assignment, len(keyed))
	errs := make([]error, len(keyed))

	var g errgroup.Group
	g.SetLimit(w.limit)
	for i, req := range keyed {
		g.Go(func() error {
			created[i], errs[i] = w.writeOne(ctx, req)
			return nil
		})
	}
	g.Wait()

	result := BatchResult{Total: len(keyed)}
	for i, req := range keyed {
		if errs[i] != nil {
			w.logger.Warn("assignment write failed", "kid_id", req.KidID, "chore_id", req.ChoreID, "error", errs[i])
			result.Failures = append(result.Failures, Failure{Request: req, Err: errs[i]})
			continue
		}
		result.SuccessCount++
		if created[i] != nil {
			result.Created = append(result.Created, *created[i])
		}
	}

	w.logger.Info("assignment batch written",
		"total", result.Total,
		"succeeded", result.SuccessCount,
		"failed", len(result.Failures),
		"outcome", result.Outcome(),
	)
	return result
}

// Retry resubmits failed requests with the dedup keys they were first sent with.
func (w *BatchWriter) Retry(ctx context.Context, failures []Failure) BatchResult {
	reqs := make([]Request, len(failures))
	for i, f := range failures {
		reqs[i] = f.Request
	}
	return w.WriteAll(ctx, reqs)
}

func (w *BatchWriter) writeOne(ctx context.Context, req Request) (a *model.Assignment, err error) {
	defer func() {
		if r := recover(); r != nil {
			a = nil
			err = &RemoteWriteError{Op: "create", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	a, err = w.creator.CreateAssignment(ctx, req)
	if err != nil {
		return nil, &RemoteWriteError{Op: "create", Err: err}
	}
	return a, nil
}
