package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
)

func TestTranslate_MapsDriverErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"lock not available", &pgconn.PgError{Code: "55P03"}, domain.ErrLockTimeout},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, domain.ErrLockTimeout},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, domain.ErrLockTimeout},
		{"statement canceled", &pgconn.PgError{Code: "57014"}, domain.ErrLockTimeout},
		{"wrapped lock error", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "55P03"}), domain.ErrLockTimeout},
		{"tx deadline", fmt.Errorf("commit: %w", context.DeadlineExceeded), domain.ErrLockTimeout},
		{"unique violation", &pgconn.PgError{Code: "23505"}, domain.ErrConflict},
		{"gorm duplicate key", gorm.ErrDuplicatedKey, domain.ErrConflict},
		{"record not found", gorm.ErrRecordNotFound, domain.ErrNotFound},
		{"domain kind kept", fmt.Errorf("apply: %w", domain.ErrInsufficientStock), domain.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.err), tt.want)
		})
	}
}

func TestTranslate_LeavesUnknownErrors(t *testing.T) {
	boom := errors.New("boom")
	got := translate(boom)

	assert.Same(t, boom, got)
	assert.NotErrorIs(t, got, domain.ErrLockTimeout)
	assert.NotErrorIs(t, translate(&pgconn.PgError{Code: "22003"}), domain.ErrLockTimeout)
}

func TestTxOptions_IsolationPerMode(t *testing.T) {
	serializable := &GormStore{opts: Options{Serializable: true}}
	plain := &GormStore{opts: Options{}}

	assert.Nil(t, serializable.txOptions(domain.TxDefault))
	assert.Equal(t, sql.LevelReadCommitted, serializable.txOptions(domain.TxLocked)[0].Isolation)
	assert.Equal(t, sql.LevelSerializable, serializable.txOptions(domain.TxStrict)[0].Isolation)
	assert.Equal(t, sql.LevelReadCommitted, plain.txOptions(domain.TxStrict)[0].Isolation)
}

func TestLockTimeoutStmt(t *testing.T) {
	s := &GormStore{opts: Options{LockTimeout: 1500 * time.Millisecond}}

	assert.Empty(t, s.lockTimeoutStmt(domain.TxDefault))
	assert.Equal(t, "SET LOCAL lock_timeout = '1500ms'", s.lockTimeoutStmt(domain.TxLocked))
	assert.Equal(t, "SET LOCAL lock_timeout = '1500ms'", s.lockTimeoutStmt(domain.TxStrict))
	assert.Empty(t, (&GormStore{}).lockTimeoutStmt(domain.TxStrict))
}
