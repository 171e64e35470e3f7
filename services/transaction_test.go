package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upb/tenant-rules-admin/repositories"
)

// MockTransactionManager runs the callback inline and records the outcome
type MockTransactionManager struct {
	mock.Mock
	committed  bool
	rolledback bool
}

func (m *MockTransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repositories.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	if err := fn(ctx, nil); err != nil {
		m.rolledback = true
		return err
	}
	m.committed = true
	return nil
}

func TestWithTransaction_Success(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(nil)

	called := false
	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	assert.True(t, mockTxMgr.committed)
	assert.False(t, mockTxMgr.rolledback)
	mockTxMgr.AssertExpectations(t)
}

func TestWithTransaction_ErrorInFunction(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(nil)
	expectedErr := errors.New("operation failed")

	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		return expectedErr
	})

	assert.ErrorIs(t, err, expectedErr)
	assert.False(t, mockTxMgr.committed)
	assert.True(t, mockTxMgr.rolledback)
}

func TestWithTransaction_BeginFails(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	beginErr := errors.New("store closed")
	mockTxMgr.On("InTransaction", ctx).Return(beginErr)

	called := false
	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, beginErr)
	assert.False(t, called)
}

func TestWithTransactionResult(t *testing.T) {
	ctx := context.Background()

	t.Run("returns value", func(t *testing.T) {
		mockTxMgr := new(MockTransactionManager)
		mockTxMgr.On("InTransaction", ctx).Return(nil)

		got, err := WithTransactionResult(ctx, mockTxMgr, func(ctx context.Context) (int, error) {
			return 42, nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.True(t, mockTxMgr.committed)
	})

	t.Run("zero value on error", func(t *testing.T) {
		mockTxMgr := new(MockTransactionManager)
		mockTxMgr.On("InTransaction", ctx).Return(nil)

		got, err := WithTransactionResult(ctx, mockTxMgr, func(ctx context.Context) (*string, error) {
			s := "partial"
			return &s, errors.New("failed")
		})

		assert.Error(t, err)
		assert.Nil(t, got)
		assert.True(t, mockTxMgr.rolledback)
	})
}
