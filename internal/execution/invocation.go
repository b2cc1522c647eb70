package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/telemetry"
)

// Stage is a step of the per-invocation pipeline.
type Stage string

const (
	StageStart      Stage = "start"
	StageValidating Stage = "validating"
	StageReading    Stage = "reading"
	StageApproving  Stage = "approving"
	StageBuilding   Stage = "building"
	StageSubmitting Stage = "submitting"
	StageFormatting Stage = "formatting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

var stageRank = map[Stage]int{
	StageStart:      0,
	StageValidating: 1,
	StageReading:    2,
	StageApproving:  3,
	StageBuilding:   4,
	StageSubmitting: 5,
	StageFormatting: 6,
	StageDone:       7,
	StageFailed:     7,
}

// Invocation tracks one adapter function call through the pipeline. Stages only move
// forward and may be skipped; done and failed are terminal.
type Invocation struct {
	ID       string
	Adapter  string
	Function string

	stage   Stage
	history []Stage
	entered time.Time
	reason  string

	opts adapter.FunctionOptions
	log  *logrus.Entry
	span trace.Span
}

func Begin(ctx context.Context, adapterName, function string, opts adapter.FunctionOptions) (context.Context, *Invocation) {
	invID := uuid.NewString()
	ctx, span := telemetry.Tracer().Start(ctx, adapterName+"."+function,
		trace.WithAttributes(
			attribute.String("adapter", adapterName),
			attribute.String("function", function),
			attribute.String("invocation_id", invID),
		),
	)
	inv := &Invocation{
		ID:       invID,
		Adapter:  adapterName,
		Function: function,
		stage:    StageStart,
		history:  []Stage{StageStart},
		entered:  time.Now(),
		opts:     opts,
		span:     span,
		log: logrus.WithFields(logrus.Fields{
			"adapter":       adapterName,
			"function":      function,
			"invocation_id": invID,
		}),
	}
	adapter.OnAbort(ctx, inv.abort)
	return ctx, inv
}

// abort closes an invocation whose function panicked.
func (inv *Invocation) abort(reason string) {
	if inv.terminal() {
		return
	}
	inv.reason = reason
	inv.transition(StageFailed)
	inv.span.RecordError(errors.New(reason))
	inv.span.SetStatus(codes.Error, reason)
	inv.span.End()
	telemetry.ObserveInvocation(inv.Adapter, inv.Function, "failure")
}

// Enter moves the invocation to stage. A backwards move is a programming error.
func (inv *Invocation) Enter(stage Stage) {
	if inv.terminal() {
		panic(fmt.Sprintf("invocation %s already %s", inv.ID, inv.stage))
	}
	if stageRank[stage] <= stageRank[inv.stage] {
		panic(fmt.Sprintf("invalid stage transition %s -> %s", inv.stage, stage))
	}
	inv.transition(stage)
}

func (inv *Invocation) transition(stage Stage) {
	now := time.Now()
	telemetry.ObserveStage(string(inv.stage), now.Sub(inv.entered))
	inv.stage = stage
	inv.entered = now
	inv.history = append(inv.history, stage)
	inv.span.AddEvent(string(stage))
	inv.log.WithField("stage", stage).Debug("stage entered")
}

func (inv *Invocation) Stage() Stage { return inv.stage }

func (inv *Invocation) History() []Stage {
	out := make([]Stage, len(inv.history))
	copy(out, inv.history)
	return out
}

// Reason is the failure message of a failed invocation.
func (inv *Invocation) Reason() string { return inv.reason }

func (inv *Invocation) terminal() bool {
	return inv.stage == StageDone || inv.stage == StageFailed
}

// Notify forwards a progress message to the host. Host notification errors never fail the call.
func (inv *Invocation) Notify(ctx context.Context, message string) {
	inv.log.WithField("stage", inv.stage).Info(message)
	if inv.opts == nil {
		return
	}
	if err := inv.opts.Notify(ctx, message); err != nil {
		inv.log.WithError(err).Warn("notify failed")
	}
}

// Fail ends the invocation with err.
func (inv *Invocation) Fail(err error) adapter.Result {
	res := adapter.FromError(err)
	if inv.terminal() {
		return res
	}
	inv.reason = res.Message()
	inv.log.WithField("stage", inv.stage).WithError(err).Warn("invocation failed")
	inv.transition(StageFailed)
	inv.span.RecordError(err)
	inv.span.SetStatus(codes.Error, inv.reason)
	inv.span.End()
	telemetry.ObserveInvocation(inv.Adapter, inv.Function, "failure")
	return res
}

// Done ends the invocation successfully with data.
func (inv *Invocation) Done(data any) adapter.Result {
	if !inv.terminal() {
		inv.transition(StageDone)
		inv.span.SetStatus(codes.Ok, "")
		inv.span.End()
		telemetry.ObserveInvocation(inv.Adapter, inv.Function, "success")
	}
	return adapter.OK(data)
}
