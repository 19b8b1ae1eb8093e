package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/transfer"
)

func TestExtractDBColumns_FlattensEmbeddedKey(t *testing.T) {
	cols := ExtractDBColumns[entity.InventoryBalance]()

	assert.Equal(t, []string{
		"tenant_id", "product_id", "location_id",
		"quantity", "last_movement_id", "last_movement_at", "version", "updated_at",
	}, cols)
}

func TestExtractDBColumns_SkipsIgnoredFields(t *testing.T) {
	cols := ExtractDBColumns[transfer.Transfer]()

	assert.Contains(t, cols, "from_location_id")
	assert.Contains(t, cols, "cancel_reason")
	assert.NotContains(t, cols, "-")
	assert.NotContains(t, cols, "lines")
}

func TestStructToMap(t *testing.T) {
	key := entity.BalanceKey{TenantID: id.New(), ProductID: id.New(), LocationID: id.New()}
	b := entity.InventoryBalance{BalanceKey: key, Quantity: types.NewQuantity(7), Version: 3}

	m := StructToMap(&b)

	assert.Equal(t, key.TenantID, m["tenant_id"])
	assert.Equal(t, key.LocationID, m["location_id"])
	assert.Equal(t, types.NewQuantity(7), m["quantity"])
	assert.Equal(t, int64(3), m["version"])
	assert.Nil(t, StructToMap(42))
}
