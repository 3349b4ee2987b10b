package application

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

type txMarker struct{}

type fakeOperationRepo struct {
	ops           []domain.Operation
	nextSeq       uint64
	seqCalledInTx bool
}

func (f *fakeOperationRepo) Save(_ context.Context, op *domain.Operation) error {
	f.ops = append(f.ops, *op)
	return nil
}

func (f *fakeOperationRepo) Update(context.Context, *domain.Operation) error { return nil }
func (f *fakeOperationRepo) Delete(context.Context, string) error            { return nil }

func (f *fakeOperationRepo) GetByOperationID(context.Context, string) (*domain.Operation, error) {
	return nil, nil
}

func (f *fakeOperationRepo) ListByAccount(context.Context, string) ([]domain.Operation, error) {
	return f.ops, nil
}

func (f *fakeOperationRepo) ListByKey(context.Context, string, string) ([]domain.Operation, error) {
	return f.ops, nil
}

func (f *fakeOperationRepo) ListAll(context.Context) ([]domain.Operation, error) {
	return f.ops, nil
}

func (f *fakeOperationRepo) NextSequence(ctx context.Context) (uint64, error) {
	f.seqCalledInTx = ctx.Value(txMarker{}) != nil
	f.nextSeq++
	return f.nextSeq, nil
}

func (f *fakeOperationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, txMarker{}, true))
}

type fakeLedgerPositionRepo struct {
	upserted []*domain.Position
}

func (f *fakeLedgerPositionRepo) Upsert(_ context.Context, pos *domain.Position) error {
	f.upserted = append(f.upserted, pos)
	return nil
}

func (f *fakeLedgerPositionRepo) GetByKey(context.Context, string, string) (*domain.Position, error) {
	return nil, nil
}

func (f *fakeLedgerPositionRepo) ListByAccount(context.Context, string) ([]*domain.Position, error) {
	return nil, nil
}

func (f *fakeLedgerPositionRepo) ListByInstrument(context.Context, string) ([]*domain.Position, error) {
	return nil, nil
}

func buyCmd() RecordOperationCmd {
	return RecordOperationCmd{
		AccountID:    "ACC1",
		InstrumentID: "PETR4",
		Kind:         domain.OperationBuy,
		Quantity:     decimal.RequireFromString("100"),
		UnitPrice:    decimal.RequireFromString("30"),
		Fees:         decimal.RequireFromString("10"),
		ExecutedAt:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Actor:        "ops",
	}
}

func TestRecordOperation_AllocatesSequenceInsideTransaction(t *testing.T) {
	t.Parallel()

	opRepo := &fakeOperationRepo{}
	posRepo := &fakeLedgerPositionRepo{}
	svc := NewLedgerService(opRepo, posRepo, nil, nil, slog.Default())

	op, _, err := svc.RecordOperation(context.Background(), buyCmd())

	require.NoError(t, err)
	assert.True(t, opRepo.seqCalledInTx,
		"sequence must be allocated in the same transaction as the insert")
	assert.Equal(t, uint64(1), op.Sequence)
	require.Len(t, posRepo.upserted, 1)
	assert.True(t, posRepo.upserted[0].Quantity.Equal(decimal.RequireFromString("100")))
}

func TestRecordOperation_SequencesAreMonotonic(t *testing.T) {
	t.Parallel()

	opRepo := &fakeOperationRepo{}
	svc := NewLedgerService(opRepo, &fakeLedgerPositionRepo{}, nil, nil, slog.Default())

	first, _, err := svc.RecordOperation(context.Background(), buyCmd())
	require.NoError(t, err)
	second, _, err := svc.RecordOperation(context.Background(), buyCmd())
	require.NoError(t, err)

	assert.Less(t, first.Sequence, second.Sequence)
}

func TestRecordOperation_InvalidOperationRejected(t *testing.T) {
	t.Parallel()

	opRepo := &fakeOperationRepo{}
	svc := NewLedgerService(opRepo, &fakeLedgerPositionRepo{}, nil, nil, slog.Default())

	cmd := buyCmd()
	cmd.Quantity = decimal.Zero
	_, _, err := svc.RecordOperation(context.Background(), cmd)

	require.ErrorIs(t, err, ErrOperationInvalid)
	assert.Empty(t, opRepo.ops)
}
