package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseOrderReceiveStatus(t *testing.T) {
	lines := []PurchaseOrderLine{
		{ItemID: "A", OrderedQty: 10},
		{ItemID: "B", OrderedQty: 5},
	}

	next, err := POStatusPending.Next(PurchaseOrderReceive, lines)
	require.NoError(t, err)
	assert.Equal(t, POStatusPending, next, "nothing received keeps the current status")

	lines[0].ReceivedQty = 4
	next, err = POStatusPending.Next(PurchaseOrderReceive, lines)
	require.NoError(t, err)
	assert.Equal(t, POStatusPartiallyDelivered, next)

	lines[0].ReceivedQty = 10
	lines[1].ReceivedQty = 5
	next, err = next.Next(PurchaseOrderReceive, lines)
	require.NoError(t, err)
	assert.Equal(t, POStatusCompleted, next)
}

func TestPurchaseOrderCancelTransitions(t *testing.T) {
	for _, from := range []PurchaseOrderStatus{POStatusPending, POStatusPartiallyDelivered, POStatusCompleted} {
		next, err := from.Next(PurchaseOrderCancel, nil)
		require.NoError(t, err, from)
		assert.Equal(t, POStatusCancelled, next)
	}

	_, err := POStatusCancelled.Next(PurchaseOrderCancel, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStateConflict))

	_, err = POStatusCancelled.Next(PurchaseOrderReceive, nil)
	assert.True(t, errors.Is(err, ErrStateConflict))
}

func TestPurchaseOrderLineAcceptCapsAtOrdered(t *testing.T) {
	line := PurchaseOrderLine{OrderedQty: 10, ReceivedQty: 4}

	assert.Equal(t, 0, line.Accept(0))
	assert.Equal(t, 0, line.Accept(-3))
	assert.Equal(t, 6, line.Accept(9))
	assert.Equal(t, 10, line.ReceivedQty)
	assert.Equal(t, 0, line.Accept(1))
	assert.Equal(t, 0, line.Remaining())
}

func TestAcquisitionTransitions(t *testing.T) {
	next, err := AcquisitionPending.Next(AcquisitionConfirm)
	require.NoError(t, err)
	assert.Equal(t, AcquisitionReceived, next)

	next, err = AcquisitionPending.Next(AcquisitionCancel)
	require.NoError(t, err)
	assert.Equal(t, AcquisitionCancelled, next)

	for _, from := range []AcquisitionStatus{AcquisitionReceived, AcquisitionCancelled} {
		for _, event := range []AcquisitionEvent{AcquisitionConfirm, AcquisitionCancel} {
			_, err := from.Next(event)
			var transitionErr *TransitionError
			require.True(t, errors.As(err, &transitionErr), "%s/%s", from, event)
			assert.Equal(t, string(from), transitionErr.From)
		}
	}
}

func TestAudienceIncludes(t *testing.T) {
	manager := Actor{ID: "u-1", Role: RoleManager}
	assert.True(t, Audience{Roles: ApproverRoles}.Includes(manager))
	assert.True(t, Audience{UserID: "u-1"}.Includes(manager))
	assert.True(t, Audience{Global: true}.Includes(manager))
	assert.False(t, Audience{Roles: []string{RoleStaff}}.Includes(manager))
}
