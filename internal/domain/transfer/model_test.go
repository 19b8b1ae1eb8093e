package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

func newTransfer(t *testing.T, qty ...int64) *Transfer {
	t.Helper()
	var lines []LineInput
	for _, q := range qty {
		lines = append(lines, LineInput{ProductID: id.New(), Quantity: types.NewQuantity(q)})
	}
	tr, err := New(id.New(), id.New(), id.New(), lines, "requester", time.Now())
	require.NoError(t, err)
	return tr
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusRequested, StatusApproved, true},
		{StatusRequested, StatusRejected, true},
		{StatusRequested, StatusCancelled, true},
		{StatusRequested, StatusInTransit, false},
		{StatusApproved, StatusInTransit, true},
		{StatusApproved, StatusCancelled, true},
		{StatusApproved, StatusRejected, true},
		{StatusInTransit, StatusReceived, true},
		{StatusInTransit, StatusCancelled, false},
		{StatusReceived, StatusCompleted, true},
		{StatusReceived, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusApproved, false},
		{StatusRejected, StatusApproved, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusInTransit.IsTerminal())
}

func TestNewValidates(t *testing.T) {
	loc := id.New()
	product := id.New()
	batch := "L1"

	_, err := New(id.New(), loc, loc, []LineInput{{ProductID: product, Quantity: types.NewQuantity(1)}}, "u", time.Now())
	assert.True(t, apperror.IsValidation(err))

	_, err = New(id.New(), loc, id.New(), nil, "u", time.Now())
	assert.True(t, apperror.IsValidation(err))

	_, err = New(id.New(), loc, id.New(), []LineInput{{ProductID: product, Quantity: 0}}, "u", time.Now())
	assert.True(t, apperror.IsValidation(err))

	_, err = New(id.New(), loc, id.New(), []LineInput{
		{ProductID: product, Quantity: types.NewQuantity(1)},
		{ProductID: product, Quantity: types.NewQuantity(2)},
	}, "u", time.Now())
	assert.True(t, apperror.IsValidation(err))

	// Same product in different lots is fine.
	tr, err := New(id.New(), loc, id.New(), []LineInput{
		{ProductID: product, Quantity: types.NewQuantity(1)},
		{ProductID: product, Quantity: types.NewQuantity(2), BatchNumber: &batch},
	}, "u", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, tr.Status)
	assert.Equal(t, 2, tr.Lines[1].LineNo)
}

func TestShipDefaultsAndBounds(t *testing.T) {
	tr := newTransfer(t, 50, 10)
	now := time.Now()

	_, err := tr.Ship(nil, "u", now)
	assert.True(t, apperror.IsTransferState(err), "cannot ship before approval")

	changed, err := tr.Approve("boss", now)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = tr.Ship([]LineQuantity{{LineNo: 1, Quantity: types.NewQuantity(51)}}, "u", now)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, StatusApproved, tr.Status)

	_, err = tr.Ship([]LineQuantity{{LineNo: 3, Quantity: types.NewQuantity(1)}}, "u", now)
	assert.True(t, apperror.IsValidation(err))

	_, err = tr.Ship([]LineQuantity{{LineNo: 1}, {LineNo: 2}}, "u", now)
	assert.True(t, apperror.IsValidation(err), "nothing to ship")

	changed, err = tr.Ship([]LineQuantity{{LineNo: 1, Quantity: types.NewQuantity(45)}}, "u", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusInTransit, tr.Status)
	assert.Equal(t, types.NewQuantity(45), tr.Lines[0].QuantityShipped)
	assert.Equal(t, types.NewQuantity(10), tr.Lines[1].QuantityShipped)
	assert.Equal(t, types.NewQuantity(55), tr.TotalShipped())

	changed, err = tr.Ship(nil, "u", now)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReceiveRecordsDiscrepancy(t *testing.T) {
	tr := newTransfer(t, 50)
	now := time.Now()
	_, err := tr.Approve("boss", now)
	require.NoError(t, err)
	_, err = tr.Ship(nil, "u", now)
	require.NoError(t, err)

	_, err = tr.Receive([]LineQuantity{{LineNo: 1, Quantity: types.NewQuantity(51)}}, "u", now)
	assert.True(t, apperror.IsValidation(err))

	changed, err := tr.Receive([]LineQuantity{{LineNo: 1, Quantity: types.NewQuantity(48)}}, "u", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.NewQuantity(2), tr.Lines[0].Discrepancy())
	assert.Equal(t, types.NewQuantity(48), tr.TotalReceived())

	_, err = tr.Cancel("u", "too late", now)
	assert.True(t, apperror.IsTransferState(err))
}

func TestMovementsSkipZeroLines(t *testing.T) {
	tr := newTransfer(t, 5, 3)
	now := time.Now()
	_, err := tr.Approve("boss", now)
	require.NoError(t, err)
	_, err = tr.Ship([]LineQuantity{{LineNo: 2, Quantity: 0}}, "u", now)
	require.NoError(t, err)

	out := tr.ShipmentMovements("u")
	require.Len(t, out, 1)
	assert.Equal(t, entity.MovementTransferOut, out[0].MovementType)
	assert.Equal(t, types.NewQuantity(-5), out[0].SignedQuantity)
	assert.Equal(t, tr.FromLocationID, out[0].LocationID)
	assert.Equal(t, entity.ReferenceTransfer, out[0].ReferenceType)
	assert.Equal(t, tr.ID.String(), out[0].ReferenceID)

	_, err = tr.Receive(nil, "u", now)
	require.NoError(t, err)
	in := tr.ReceiptMovements("u")
	require.Len(t, in, 1)
	assert.Equal(t, types.NewQuantity(5), in[0].SignedQuantity)
	assert.Equal(t, tr.ToLocationID, in[0].LocationID)
}

func TestCloneIsDeep(t *testing.T) {
	tr := newTransfer(t, 1)
	c := tr.Clone()
	c.Lines[0].QuantityShipped = types.NewQuantity(1)
	assert.True(t, tr.Lines[0].QuantityShipped.IsZero())
}
