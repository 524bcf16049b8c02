package taskstore

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
)

// ゲートウェイ操作のメトリクスラベル。
const (
	OpFetch         = "fetch"
	OpCreate        = "create"
	OpUpdate        = "update"
	OpDelete        = "delete"
	OpDeleteByOwner = "delete_by_owner"
)

// CallRecorder はゲートウェイ呼び出しの結果を記録する。
type CallRecorder interface {
	RecordGatewayCall(op, outcome string, duration time.Duration)
}

// InstrumentedGateway は呼び出しごとに結果とレイテンシを記録するデコレータ。
type InstrumentedGateway struct {
	next     Gateway
	recorder CallRecorder
	now      func() time.Time
}

// NewInstrumentedGateway はnextをラップしたInstrumentedGatewayを生成する。
func NewInstrumentedGateway(next Gateway, recorder CallRecorder) *InstrumentedGateway {
	return &InstrumentedGateway{next: next, recorder: recorder, now: time.Now}
}

func (g *InstrumentedGateway) FetchByOwner(ctx context.Context, ownerID string) ([]model.Task, error) {
	start := g.now()
	tasks, err := g.next.FetchByOwner(ctx, ownerID)
	g.record(OpFetch, start, err)
	return tasks, err
}

func (g *InstrumentedGateway) Create(ctx context.Context, task model.Task) (model.Task, error) {
	start := g.now()
	created, err := g.next.Create(ctx, task)
	g.record(OpCreate, start, err)
	return created, err
}

func (g *InstrumentedGateway) UpdateFields(ctx context.Context, ownerID, id string, update model.TaskUpdate) error {
	start := g.now()
	err := g.next.UpdateFields(ctx, ownerID, id, update)
	g.record(OpUpdate, start, err)
	return err
}

func (g *InstrumentedGateway) Delete(ctx context.Context, ownerID, id string) error {
	start := g.now()
	err := g.next.Delete(ctx, ownerID, id)
	g.record(OpDelete, start, err)
	return err
}

func (g *InstrumentedGateway) DeleteByOwner(ctx context.Context, ownerID string) error {
	start := g.now()
	err := g.next.DeleteByOwner(ctx, ownerID)
	g.record(OpDeleteByOwner, start, err)
	return err
}

func (g *InstrumentedGateway) record(op string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = metrics.OutcomeNotFound
	case err != nil:
		outcome = metrics.OutcomeError
	}
	g.recorder.RecordGatewayCall(op, outcome, g.now().Sub(start))
}

// compile-time interface check
var _ Gateway = (*InstrumentedGateway)(nil)
