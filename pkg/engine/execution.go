package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/fanflow/pkg/conditions"
	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// haltError ends a run because an action whose failure is fatal failed.
type haltError struct {
	nodeID  string
	message string
}

func (e *haltError) Error() string {
	return fmt.Sprintf("node %s failed: %s", e.nodeID, e.message)
}

// execution is one start or resume of a run. Sibling branches share it, so everything
// mutable is guarded by mu or lives in the runContext.
type execution struct {
	runner   *Runner
	logger   *slog.Logger
	workflow *models.Workflow
	run      *models.WorkflowRun
	edges    map[string][]*models.Edge
	context  *runContext

	mu          sync.Mutex
	steps       []models.StepRecord
	suspensions []models.Suspension
	visits      int
}

func (r *Runner) newExecution(workflow *models.Workflow, run *models.WorkflowRun) *execution {
	edges := make(map[string][]*models.Edge, len(workflow.Nodes))
	for _, edge := range workflow.Edges {
		edges[edge.Source] = append(edges[edge.Source], edge)
	}

	return &execution{
		runner:   r,
		logger:   r.logger.With("workflow_id", workflow.ID, "run_id", run.ID),
		workflow: workflow,
		run:      run,
		edges:    edges,
		context:  newRunContext(run.Context),
	}
}

// next returns the targets reached from node. Out of a condition node, a "false" edge is
// taken only when the condition failed and any other edge only when it passed.
func (e *execution) next(node *models.Node, passed bool) []*models.Node {
	var targets []*models.Node

	for _, edge := range e.edges[node.ID] {
		if node.IsCondition() && !branchTaken(edge.Branch, passed) {
			continue
		}

		target := e.workflow.NodeByID(edge.Target)
		if target == nil {
			e.logger.Warn("Edge target not found", "edge_id", edge.ID, "target", edge.Target)

			continue
		}

		targets = append(targets, target)
	}

	return targets
}

func branchTaken(branch string, passed bool) bool {
	if branch == models.BranchFalse {
		return !passed
	}

	return passed
}

// walk visits targets depth first, siblings concurrently. The first halting failure
// cancels the remaining siblings.
func (e *execution) walk(ctx context.Context, targets []*models.Node) error {
	switch len(targets) {
	case 0:
		return nil
	case 1:
		return e.visit(ctx, targets[0])
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, target := range targets {
		g.Go(func() error {
			return e.visit(gctx, target)
		})
	}

	return g.Wait()
}

func (e *execution) visit(ctx context.Context, node *models.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.countVisit(); err != nil {
		return err
	}

	targets, err := e.step(ctx, node)
	if err != nil {
		return err
	}

	return e.walk(ctx, targets)
}

// step runs a single node and returns the nodes its branch continues with.
func (e *execution) step(ctx context.Context, node *models.Node) ([]*models.Node, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.runner.tracer, "workflow.node",
		attribute.String(otelhelper.RunIDKey, e.run.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.String(otelhelper.NodeSubtypeKey, node.Subtype),
	)
	defer span.End()

	switch {
	case node.IsCondition():
		passed := conditions.EvaluateNode(node, e.context.snapshot())

		e.record(models.StepRecord{NodeID: node.ID, Subtype: node.Subtype, Passed: &passed})
		span.SetAttributes(attribute.Bool("fanflow.condition.passed", passed))

		return e.next(node, passed), nil
	case node.IsAction():
		result := e.runner.dispatcher.Dispatch(ctx, node, e.context.snapshot())

		e.context.merge(result.ContextAdditions)
		e.context.setStep(node.ID, result.Outcome)
		e.record(models.StepRecord{NodeID: node.ID, Subtype: node.Subtype, Outcome: result.Outcome})

		if result.Halt {
			err := &haltError{nodeID: node.ID, message: result.Outcome.Err()}
			otelhelper.SetError(span, err)

			return nil, err
		}

		// a zero delay wait continues its branch right away
		if result.Suspend && result.Delay > 0 {
			e.suspend(node.ID, result.Delay)

			return nil, nil
		}

		return e.next(node, true), nil
	default:
		// a trigger reached through an edge passes through
		e.record(models.StepRecord{NodeID: node.ID, Subtype: node.Subtype})

		return e.next(node, true), nil
	}
}

func (e *execution) countVisit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.visits++
	if e.visits > e.runner.maxNodeVisits {
		return fmt.Errorf("%w (%d)", ErrNodeVisitLimit, e.runner.maxNodeVisits)
	}

	return nil
}

func (e *execution) record(step models.StepRecord) {
	step.Timestamp = e.runner.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.steps = append(e.steps, step)
}

func (e *execution) suspend(nodeID string, delay time.Duration) {
	resumeAt := e.runner.now().Add(delay)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.suspensions = append(e.suspensions, models.Suspension{NodeID: nodeID, ResumeAt: resumeAt})
}
