package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/portfolioaccounting/internal/audit/domain"
)

type fakeAuditRepo struct {
	saved   []*domain.AuditEntry
	saveErr error
}

func (f *fakeAuditRepo) Save(_ context.Context, entry *domain.AuditEntry) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, entry)
	return nil
}

func (f *fakeAuditRepo) Update(context.Context, *domain.AuditEntry) error { return nil }

func (f *fakeAuditRepo) GetByEntryID(context.Context, string) (*domain.AuditEntry, error) {
	return nil, nil
}

func (f *fakeAuditRepo) ListByEntity(context.Context, domain.EntityType, string) ([]*domain.AuditEntry, error) {
	return nil, nil
}

func (f *fakeAuditRepo) ListAll(context.Context) ([]*domain.AuditEntry, error) {
	return nil, nil
}

func (f *fakeAuditRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestRecordChange_MandatoryPairPropagatesStorageFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeAuditRepo{saveErr: errors.New("disk full")}
	svc := NewAuditService(repo, nil, slog.Default())

	err := svc.RecordChange(context.Background(),
		"TRANSACTION", "OP1", "CREATE", "ops", nil, map[string]any{"quantity": "10"}, true)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRecordChange_AdvisoryPairSwallowsStorageFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeAuditRepo{saveErr: errors.New("disk full")}
	svc := NewAuditService(repo, nil, slog.Default())

	err := svc.RecordChange(context.Background(),
		"TRANSFER", "TRF1", "VALIDATE", "system", nil, map[string]any{"valid": true}, false)

	assert.NoError(t, err)
}

func TestRecordChange_StoresEntryWithSystemSource(t *testing.T) {
	t.Parallel()

	repo := &fakeAuditRepo{}
	svc := NewAuditService(repo, nil, slog.Default())

	err := svc.RecordChange(context.Background(),
		"TRANSACTION", "OP1", "CREATE", "ops", nil, map[string]any{"quantity": "10"}, true)

	require.NoError(t, err)
	require.Len(t, repo.saved, 1)
	entry := repo.saved[0]
	assert.Equal(t, domain.EntityTransaction, entry.EntityType)
	assert.Equal(t, domain.ActionCreate, entry.Action)
	assert.Equal(t, domain.SourceSystem, entry.Source)
	assert.True(t, entry.Reversible)
}
