package transfer_repo

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/transfer"
)

func TestListQuery(t *testing.T) {
	repo := NewRepo(nil)
	cols := strings.Join(headerColumns, ", ")
	location := id.New()

	sql, args, err := repo.listQuery(transfer.ListFilter{
		TenantID:   id.New(),
		Statuses:   []transfer.Status{transfer.StatusInTransit, transfer.StatusApproved},
		LocationID: &location,
		Limit:      20,
	}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT "+cols+" FROM stock_transfers WHERE tenant_id = $1 AND status IN ($2,$3)"+
		" AND (from_location_id = $4 OR to_location_id = $5) ORDER BY requested_at DESC, id DESC LIMIT 20", sql)
	require.Len(t, args, 5)
	assert.Equal(t, "approved", args[1])
	assert.Equal(t, "in_transit", args[2])
}

func TestGetQueryForUpdate(t *testing.T) {
	repo := NewRepo(nil)

	sql, _, err := repo.getQuery(id.New(), id.New(), true).ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "WHERE id = $1 AND tenant_id = $2 FOR UPDATE"), sql)

	sql, _, err = repo.getQuery(id.New(), id.New(), false).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "FOR UPDATE")
}

func TestUpdateQueryKeepsIdentityColumns(t *testing.T) {
	repo := NewRepo(nil)
	tr, err := transfer.New(id.New(), id.New(), id.New(),
		[]transfer.LineInput{{ProductID: id.New(), Quantity: types.NewQuantity(10)}}, "alice", time.Now().UTC())
	require.NoError(t, err)
	tr.Version = 3

	sql, args, err := repo.updateQuery(tr).ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "UPDATE stock_transfers SET "))
	assert.True(t, strings.HasSuffix(sql, "WHERE id = $"+strconv.Itoa(len(args)-2)+" AND tenant_id = $"+strconv.Itoa(len(args)-1)+" AND version = $"+strconv.Itoa(len(args))), sql)
	set := sql[:strings.Index(sql, " WHERE ")]
	for _, col := range []string{"requested_by", "from_location_id", "tenant_id", "requested_at", "number"} {
		assert.NotContains(t, set, col+" =")
	}
	assert.Contains(t, set, "status =")
	assert.Contains(t, set, "version =")
	assert.Equal(t, int64(3), args[len(args)-1])
}
