package ledger_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

func TestMovementListQuery(t *testing.T) {
	repo := NewMovementRepo(nil)
	cols := strings.Join(movementColumns, ", ")

	location := id.New()
	ref := entity.ReferenceSale
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	tests := []struct {
		name     string
		filter   ledger.MovementFilter
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "tenant only",
			filter:   ledger.MovementFilter{TenantID: id.New()},
			wantSQL:  "SELECT " + cols + " FROM stock_movements WHERE tenant_id = $1 ORDER BY id",
			wantArgs: 1,
		},
		{
			name: "location, reference and window",
			filter: ledger.MovementFilter{
				TenantID: id.New(), LocationID: &location, ReferenceType: &ref,
				From: &from, To: &to, Limit: 50, Offset: 10,
			},
			wantSQL: "SELECT " + cols + " FROM stock_movements WHERE tenant_id = $1 AND location_id = $2" +
				" AND reference_type = $3 AND created_at >= $4 AND created_at < $5 ORDER BY id LIMIT 50 OFFSET 10",
			wantArgs: 5,
		},
		{
			name: "movement types",
			filter: ledger.MovementFilter{
				TenantID:      id.New(),
				MovementTypes: []entity.MovementType{entity.MovementTransferOut, entity.MovementTransferIn},
			},
			wantSQL:  "SELECT " + cols + " FROM stock_movements WHERE tenant_id = $1 AND movement_type IN ($2,$3) ORDER BY id",
			wantArgs: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.listQuery(tt.filter).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestMovementOutboundQuery(t *testing.T) {
	repo := NewMovementRepo(nil)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := repo.outboundQuery(ledger.OutboundFilter{
		TenantID:      id.New(),
		LocationID:    id.New(),
		ReferenceType: entity.ReferenceSale,
		From:          from,
		To:            from.AddDate(0, 0, 1),
	}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT product_id, (-SUM(signed_quantity))::BIGINT AS quantity FROM stock_movements"+
		" WHERE location_id = $1 AND reference_type = $2 AND tenant_id = $3"+
		" AND signed_quantity < $4 AND created_at >= $5 AND created_at < $6 GROUP BY product_id", sql)
	require.Len(t, args, 6)
	assert.Equal(t, entity.ReferenceSale, args[1])
	assert.Equal(t, 0, args[3])
	assert.Equal(t, from, args[4])
}

func TestMovementSumByKeyQuery(t *testing.T) {
	repo := NewMovementRepo(nil)
	location := id.New()

	sql, args, err := repo.sumByKeyQuery(id.New(), &location).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT tenant_id, product_id, location_id, SUM(signed_quantity)::BIGINT AS sum, COUNT(*) AS count"+
		" FROM stock_movements WHERE tenant_id = $1 AND location_id = $2"+
		" GROUP BY tenant_id, product_id, location_id ORDER BY location_id, product_id", sql)
	assert.Len(t, args, 2)
}

func TestMovementInsertQuery(t *testing.T) {
	repo := NewMovementRepo(nil)
	m := &entity.StockMovement{
		TenantID: id.New(), ProductID: id.New(), LocationID: id.New(),
		MovementType: entity.MovementOut, SignedQuantity: types.NewQuantity(-30),
		ReferenceType: entity.ReferenceSale, ReferenceID: "sale-1",
		CreatedBy: "pos", CreatedAt: time.Now().UTC(),
	}

	sql, args, err := repo.insertQuery(m).ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "INSERT INTO stock_movements (tenant_id,product_id,location_id,movement_type,signed_quantity,"))
	assert.True(t, strings.HasSuffix(sql, "RETURNING id"))
	require.Len(t, args, 14)
	assert.Equal(t, types.NewQuantity(-30), args[4])
}

func TestBalanceSaveQuery(t *testing.T) {
	repo := NewBalanceRepo(nil)
	b := &entity.InventoryBalance{
		BalanceKey: entity.BalanceKey{TenantID: id.New(), ProductID: id.New(), LocationID: id.New()},
		Quantity:   types.NewQuantity(70),
		Version:    4,
		UpdatedAt:  time.Now().UTC(),
	}

	sql, args, err := repo.saveQuery(b).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE inventory_balances SET quantity = $1, last_movement_id = $2, last_movement_at = $3,"+
		" version = $4, updated_at = $5 WHERE location_id = $6 AND product_id = $7 AND tenant_id = $8 AND version = $9", sql)
	require.Len(t, args, 9)
	assert.Equal(t, int64(5), args[3])
	assert.Equal(t, int64(4), args[8])
}

func TestBalanceListByLocationQuery(t *testing.T) {
	repo := NewBalanceRepo(nil)
	cols := strings.Join(balanceColumns, ", ")

	sql, args, err := repo.listByLocationQuery(id.New(), id.New(), ledger.BalanceFilter{
		ExcludeZero: true,
		ProductIDs:  []id.ID{id.New(), id.New()},
	}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT "+cols+" FROM inventory_balances WHERE location_id = $1 AND tenant_id = $2"+
		" AND quantity <> $3 AND product_id IN ($4,$5) ORDER BY product_id", sql)
	assert.Len(t, args, 5)
}
