package storage

import (
	"testing"

	"github.com/cuemby/stockroom/pkg/types"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestIndexFilterDoc(t *testing.T) {
	no := false

	assert.Equal(t, bson.M{}, indexFilterDoc(types.IndexFilter{}))
	assert.Equal(t, bson.M{
		"tenantId":             "acme",
		"warehouseCountryCode": "AR",
		"inFpWarehouse":        false,
	}, indexFilterDoc(types.IndexFilter{Tenant: "acme", CountryCode: "AR", InFPWarehouse: &no}))
}

func TestShipmentStatusFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, shipmentStatusFilter(nil))
	assert.Equal(t,
		bson.M{"status": bson.M{"$in": bson.A{"In Preparation", "On Hold - Missing Data"}}},
		shipmentStatusFilter([]types.ShipmentStatus{types.ShipmentInPreparation, types.ShipmentOnHold}),
	)
}

func TestRewriteWarehouseFilter(t *testing.T) {
	f := rewriteWarehouseFilter("AR", "wh-new", "Nuevo")

	assert.Equal(t, true, f["inFpWarehouse"])
	assert.Equal(t, "AR", f["warehouseCountryCode"])
	assert.Len(t, f["$or"], 2)
}

func TestTenantDatabase(t *testing.T) {
	assert.Equal(t, "tenant_acme", TenantDatabase("acme"))
}
