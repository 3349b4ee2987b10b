package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/portfolioaccounting/internal/income/domain"
	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

type fakeIncomeRepo struct {
	saved []*domain.IncomeEvent
}

func (f *fakeIncomeRepo) Save(_ context.Context, event *domain.IncomeEvent) error {
	f.saved = append(f.saved, event)
	return nil
}

func (f *fakeIncomeRepo) GetByIncomeID(context.Context, string) (*domain.IncomeEvent, error) {
	return nil, nil
}

func (f *fakeIncomeRepo) ListByInstrument(context.Context, string) ([]*domain.IncomeEvent, error) {
	return nil, nil
}

func (f *fakeIncomeRepo) ListByAccount(context.Context, string) ([]*domain.IncomeEvent, error) {
	return nil, nil
}

func (f *fakeIncomeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakePositionRepo struct {
	position  *ledgerdomain.Position
	getErr    error
	upserted  []*ledgerdomain.Position
	upsertErr error
}

func (f *fakePositionRepo) Upsert(_ context.Context, pos *ledgerdomain.Position) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, pos)
	return nil
}

func (f *fakePositionRepo) GetByKey(context.Context, string, string) (*ledgerdomain.Position, error) {
	return f.position, f.getErr
}

func (f *fakePositionRepo) ListByAccount(context.Context, string) ([]*ledgerdomain.Position, error) {
	return nil, nil
}

func (f *fakePositionRepo) ListByInstrument(context.Context, string) ([]*ledgerdomain.Position, error) {
	return nil, nil
}

func dividendCmd() RegisterIncomeCmd {
	return RegisterIncomeCmd{
		AccountID:        "ACC1",
		InstrumentID:     "PETR4",
		Type:             domain.IncomeDividend,
		ValuePerUnit:     decimal.RequireFromString("1.5"),
		AffectedQuantity: decimal.RequireFromString("100"),
		TotalValue:       decimal.RequireFromString("150"),
		PaymentDate:      time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Actor:            "ops",
	}
}

func TestRegisterIncome_PositionLookupErrorAborts(t *testing.T) {
	t.Parallel()

	incomeRepo := &fakeIncomeRepo{}
	positionRepo := &fakePositionRepo{getErr: errors.New("connection reset")}
	svc := NewIncomeService(incomeRepo, positionRepo, nil, slog.Default())

	event, _, err := svc.RegisterIncome(context.Background(), dividendCmd())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Nil(t, event)
	assert.Empty(t, positionRepo.upserted)
}

func TestRegisterIncome_UntrackedHoldingStoresEventOnly(t *testing.T) {
	t.Parallel()

	incomeRepo := &fakeIncomeRepo{}
	positionRepo := &fakePositionRepo{}
	svc := NewIncomeService(incomeRepo, positionRepo, nil, slog.Default())

	event, _, err := svc.RegisterIncome(context.Background(), dividendCmd())

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Len(t, incomeRepo.saved, 1)
	assert.Empty(t, positionRepo.upserted)
}

func TestRegisterIncome_FoldsIntoTrackedPosition(t *testing.T) {
	t.Parallel()

	pos := ledgerdomain.NewPosition("ACC1", "PETR4")
	pos.Quantity = decimal.RequireFromString("100")
	pos.AverageCost = decimal.RequireFromString("30")
	pos.TotalInvested = decimal.RequireFromString("3000")

	incomeRepo := &fakeIncomeRepo{}
	positionRepo := &fakePositionRepo{position: pos}
	svc := NewIncomeService(incomeRepo, positionRepo, nil, slog.Default())

	_, _, err := svc.RegisterIncome(context.Background(), dividendCmd())

	require.NoError(t, err)
	require.Len(t, positionRepo.upserted, 1)
	assert.True(t, positionRepo.upserted[0].TotalIncome.Equal(decimal.RequireFromString("150")),
		"got %s", positionRepo.upserted[0].TotalIncome)
}
