package repository

import (
	"testing"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func seedReturn(t *testing.T, repo ReturnRepository, orderID uint) *model.ReturnRequest {
	t.Helper()
	req := &model.ReturnRequest{
		OrderID:        orderID,
		Reason:         "Damaged",
		Photos:         datatypes.JSONSlice[string]{"https://cdn.example.com/a.jpg"},
		ResolutionType: model.ResolutionRefund,
		Status:         model.ReturnStatusPending,
	}
	require.NoError(t, repo.Create(req))
	return req
}

func TestReturnRepository_FindActiveByOrderID(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewReturnRepository(testDB)
	order := seedOrder(t, testDB, nil, model.OrderStatusDelivered)

	_, err := repo.FindActiveByOrderID(order.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	req := seedReturn(t, repo, order.ID)
	found, err := repo.FindActiveByOrderID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, found.ID)

	ok, err := repo.TransitionStatus(req.ID, model.ReturnStatusPending, model.ReturnStatusRejected,
		map[string]interface{}{"rejection_reason": "worn"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.FindActiveByOrderID(order.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReturnRepository_TransitionStatus(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewReturnRepository(testDB)
	order := seedOrder(t, testDB, nil, model.OrderStatusDelivered)
	req := seedReturn(t, repo, order.ID)

	ok, err := repo.TransitionStatus(req.ID, model.ReturnStatusPending, model.ReturnStatusApproved, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionStatus(req.ID, model.ReturnStatusPending, model.ReturnStatusRejected, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.UpdateFields(req.ID, map[string]interface{}{"pickup_waybill": "RWB-1"}))
	found, err := repo.FindByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReturnStatusApproved, found.Status)
	assert.Equal(t, "RWB-1", found.PickupWaybill)
}

func TestReturnRepository_Logs(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewReturnRepository(testDB)
	order := seedOrder(t, testDB, nil, model.OrderStatusDelivered)
	req := seedReturn(t, repo, order.ID)

	require.NoError(t, repo.AppendLog(&model.ReturnLog{ReturnRequestID: req.ID, Status: model.ReturnStatusPending, Note: "Return requested"}))
	require.NoError(t, repo.AppendLog(&model.ReturnLog{ReturnRequestID: req.ID, Status: model.ReturnStatusApproved, Note: "Approved"}))

	found, err := repo.FindByID(req.ID)
	require.NoError(t, err)
	require.Len(t, found.Logs, 2)
	assert.Equal(t, "Return requested", found.Logs[0].Note)
	require.NotNil(t, found.Order)
	assert.Equal(t, order.OrderNumber, found.Order.OrderNumber)

	reqs, total, err := repo.List(ReturnFilter{Status: model.ReturnStatusPending})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, reqs, 1)
}
