package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  string
	args []any
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerDefaultsActor(t *testing.T) {
	exec := &recordingExecer{}
	logger := NewAuditLogger(exec)

	err := logger.Record(context.Background(), AuditLog{Action: "sales:create", Entity: "sale", EntityID: "abc", Meta: map[string]any{"total": "180"}})
	require.NoError(t, err)
	require.Len(t, exec.args, 6)
	assert.Equal(t, "system", exec.args[0])
	assert.Equal(t, "sales:create", exec.args[1])
	assert.JSONEq(t, `{"total":"180"}`, string(exec.args[4].([]byte)))
}

func TestAuditLoggerRequiresEntity(t *testing.T) {
	logger := NewAuditLogger(&recordingExecer{})
	err := logger.Record(context.Background(), AuditLog{Action: "sales:create"})
	require.Error(t, err)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{}))
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 500, 1000)
	assert.Equal(t, MaxPerPage, p.PerPage)
	assert.Equal(t, 400, p.Offset())
}

func TestIsDomainError(t *testing.T) {
	assert.True(t, IsDomainError(fmt.Errorf("product: %w", ErrNotFound)))
	assert.True(t, IsDomainError(ErrInsufficientStock))
	assert.False(t, IsDomainError(errors.New("boom")))
	assert.False(t, IsDomainError(ErrInternal))
}
