package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/dbtest"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(client.DB(), nil)
	require.NoError(t, err)
	return svc, client.DB()
}

func seedLot(t *testing.T, db *gorm.DB, qty int, status enums.LotStatus) models.Lot {
	t.Helper()
	lot := models.Lot{CardID: "sv2-5", Condition: enums.ConditionNearMint, Variation: "standard", SKU: "SV2-5-NM", Quantity: qty, Status: status}
	require.NoError(t, db.Create(&lot).Error)
	return lot
}

func byName(report *Report) map[string]CheckResult {
	out := map[string]CheckResult{}
	for _, c := range report.Checks {
		out[c.Name] = c
	}
	return out
}

func TestRunHealthyOnConsistentData(t *testing.T) {
	svc, db := newService(t)
	acq := models.Acquisition{PurchaseSKU: "PUR-001", SourceName: "shop", PurchasedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&acq).Error)
	lot := seedLot(t, db, 4, enums.LotStatusListed)
	require.NoError(t, db.Create(&models.LotPurchaseHistory{LotID: lot.ID, AcquisitionID: acq.ID, Quantity: 4}).Error)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Zero(t, report.TotalIssues)
	assert.Len(t, report.Checks, len(orphanChecks)+len(quantityChecks))
}

func TestRunFlagsOrphansAndQuantityDrift(t *testing.T) {
	svc, db := newService(t)
	lot := seedLot(t, db, 2, enums.LotStatusListed)

	order := models.SalesOrder{BuyerID: uuid.New(), Platform: "ebay", SoldAt: time.Now().UTC()}
	require.NoError(t, db.Create(&order).Error)
	require.NoError(t, db.Create(&models.SalesItem{SalesOrderID: order.ID, LotID: lot.ID, Qty: 3, SoldPricePence: 100}).Error)
	require.NoError(t, db.Create(&models.SalesItem{SalesOrderID: order.ID, LotID: uuid.New(), Qty: 1, SoldPricePence: 100}).Error)
	require.NoError(t, db.Create(&models.LotPhoto{LotID: uuid.New(), Kind: enums.PhotoKindFront, ObjectKey: "x.jpg"}).Error)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, report.Status)

	checks := byName(report)
	assert.Equal(t, CheckFail, checks["sales_item_lot"].Status)
	assert.Equal(t, 1, checks["sales_item_lot"].Count)
	assert.Equal(t, CheckWarning, checks["photo_lot"].Status)
	assert.Equal(t, CheckFail, checks["sold_exceeds_quantity"].Status)
	assert.Equal(t, []string{lot.ID.String()}, checks["sold_exceeds_quantity"].SampleIDs)
	assert.Equal(t, CheckFail, checks["negative_availability"].Status)
	assert.Equal(t, CheckWarning, checks["sold_out_not_marked"].Status)
	assert.Equal(t, CheckPass, checks["bundle_item_lot"].Status)
}

func TestRunDegradedOnWarningsOnly(t *testing.T) {
	svc, db := newService(t)
	lot := seedLot(t, db, 5, enums.LotStatusReady)
	require.NoError(t, db.Create(&models.LotPurchaseHistory{LotID: lot.ID, AcquisitionID: uuid.New(), Quantity: 3}).Error)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, CheckWarning, byName(report)["history_quantity_mismatch"].Status)
}

func TestOverall(t *testing.T) {
	assert.Equal(t, StatusHealthy, Overall(nil))
	assert.Equal(t, StatusDegraded, Overall([]CheckResult{{Status: CheckPass}, {Status: CheckWarning}}))
	assert.Equal(t, StatusUnhealthy, Overall([]CheckResult{{Status: CheckWarning}, {Status: CheckFail}}))
}
