package sales

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/internal/ledger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/dbtest"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/sku"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	client := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	recorder := audit.NewService(client.DB(), nil)
	ledgerSvc, err := ledger.NewService(ledger.NewGormStore(client.DB()), client, emitter, recorder, nil, nil)
	require.NoError(t, err)
	m := metrics.NewLedgerMetrics(prometheus.NewRegistry())
	svc, err := NewService(NewRepository(client.DB()), ledgerSvc, client, emitter, recorder, m, nil)
	require.NoError(t, err)
	return svc, client.DB()
}

func seedLot(t *testing.T, db *gorm.DB, qty int, acqID *uuid.UUID) models.Lot {
	t.Helper()
	lot := models.Lot{
		CardID:        "sv3-88",
		Condition:     enums.ConditionNearMint,
		Variation:     "standard",
		Quantity:      qty,
		Status:        enums.LotStatusListed,
		ForSale:       true,
		AcquisitionID: acqID,
	}
	lot.SKU = sku.Generate(lot.CardID, lot.Condition, lot.Variation)
	require.NoError(t, db.Create(&lot).Error)
	return lot
}

func seedAcquisition(t *testing.T, db *gorm.DB, purchaseSKU string) models.Acquisition {
	t.Helper()
	acq := models.Acquisition{PurchaseSKU: purchaseSKU, SourceName: "shop", PurchasedAt: time.Now().UTC(), Status: enums.AcquisitionStatusOpen}
	require.NoError(t, db.Create(&acq).Error)
	return acq
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestRecordWritesOrderItemsAndAllocations(t *testing.T) {
	svc, db := newTestService(t)
	a := seedAcquisition(t, db, "PUR-001")
	b := seedAcquisition(t, db, "PUR-002")
	lot := seedLot(t, db, 10, nil)
	require.NoError(t, db.Create(&models.LotPurchaseHistory{LotID: lot.ID, AcquisitionID: a.ID, Quantity: 6}).Error)
	require.NoError(t, db.Create(&models.LotPurchaseHistory{LotID: lot.ID, AcquisitionID: b.ID, Quantity: 4}).Error)
	legacy := seedLot(t, db, 2, &a.ID)

	ctx := audit.WithActor(context.Background(), "greg")
	order, err := svc.Record(ctx, RecordInput{
		Lines:          []ledger.SaleLine{{LotID: lot.ID, Qty: 5}, {LotID: legacy.ID, Qty: 1}},
		SoldPricePence: 1000,
		Buyer:          BuyerInput{Handle: " collector99 "},
		FeesPence:      120,
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultPlatform, order.Platform)
	assert.Equal(t, "collector99", order.BuyerHandle)
	assert.Equal(t, int64(120), order.FeesPence)
	require.Len(t, order.Items, 2)

	byLot := map[uuid.UUID]ItemDTO{}
	for _, item := range order.Items {
		byLot[item.LotID] = item
	}
	assert.Equal(t, int64(167), byLot[lot.ID].SoldPricePence)

	shares := map[uuid.UUID]int{}
	for _, alloc := range byLot[lot.ID].Allocations {
		shares[alloc.AcquisitionID] = alloc.Qty
	}
	assert.Equal(t, map[uuid.UUID]int{a.ID: 3, b.ID: 2}, shares)
	assert.Equal(t, []AllocationDTO{{AcquisitionID: a.ID, Qty: 1}}, byLot[legacy.ID].Allocations)

	var buyers int64
	require.NoError(t, db.Model(&models.Buyer{}).Count(&buyers).Error)
	assert.Equal(t, int64(1), buyers)

	var entries []models.AuditLog
	require.NoError(t, db.Where("action = ?", enums.AuditSaleRecorded).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "greg", entries[0].Actor)
}

func TestRecordReusesBuyerAndMarksSoldOutLots(t *testing.T) {
	svc, db := newTestService(t)
	lot := seedLot(t, db, 3, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordInput{Lines: []ledger.SaleLine{{LotID: lot.ID, Qty: 1}}, SoldPricePence: 300, Buyer: BuyerInput{Handle: "ash"}})
	require.NoError(t, err)

	var current models.Lot
	require.NoError(t, db.First(&current, "id = ?", lot.ID).Error)
	assert.Equal(t, enums.LotStatusListed, current.Status)

	_, err = svc.Record(ctx, RecordInput{Lines: []ledger.SaleLine{{LotID: lot.ID, Qty: 2}}, SoldPricePence: 600, Buyer: BuyerInput{Handle: "ash"}})
	require.NoError(t, err)

	require.NoError(t, db.First(&current, "id = ?", lot.ID).Error)
	assert.Equal(t, enums.LotStatusSold, current.Status)

	var buyers int64
	require.NoError(t, db.Model(&models.Buyer{}).Count(&buyers).Error)
	assert.Equal(t, int64(1), buyers)

	var statusEvents int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventLotStatusChanged).Count(&statusEvents).Error)
	assert.Equal(t, int64(1), statusEvents)

	_, err = svc.Record(ctx, RecordInput{Lines: []ledger.SaleLine{{LotID: lot.ID, Qty: 1}}, Buyer: BuyerInput{Handle: "ash"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRecordRejectsOverselling(t *testing.T) {
	svc, db := newTestService(t)
	lot := seedLot(t, db, 4, nil)
	bundle := models.Bundle{Name: "starter", PricePence: 500, Quantity: 1, Status: enums.BundleStatusActive}
	require.NoError(t, db.Create(&bundle).Error)
	require.NoError(t, db.Create(&models.BundleItem{BundleID: bundle.ID, LotID: lot.ID, Quantity: 2}).Error)

	_, err := svc.Record(context.Background(), RecordInput{
		Lines:  []ledger.SaleLine{{LotID: lot.ID, Qty: 2}, {LotID: lot.ID, Qty: 1}},
		Buyer:  BuyerInput{Handle: "misty"},
		SoldAt: nil,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientQuantity, typed.Code())
	assert.Contains(t, err.Error(), "Available: 2, Needed: 3")

	var orders int64
	require.NoError(t, db.Model(&models.SalesOrder{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestRecordValidation(t *testing.T) {
	svc, db := newTestService(t)
	lot := seedLot(t, db, 4, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordInput{Lines: []ledger.SaleLine{{LotID: lot.ID, Qty: 1}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Record(ctx, RecordInput{Lines: []ledger.SaleLine{{LotID: lot.ID, Qty: 0}}, Buyer: BuyerInput{Handle: "x"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Record(ctx, RecordInput{Lines: []ledger.SaleLine{{LotID: uuid.New(), Qty: 1}}, Buyer: BuyerInput{Handle: "x"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRecordRejectsLotsNotForSale(t *testing.T) {
	svc, db := newTestService(t)
	offered := seedLot(t, db, 5, nil)
	held := seedLot(t, db, 5, nil)
	require.NoError(t, db.Model(&models.Lot{}).Where("id = ?", held.ID).Update("for_sale", false).Error)

	_, err := svc.Record(context.Background(), RecordInput{
		Lines: []ledger.SaleLine{{LotID: offered.ID, Qty: 1}, {LotID: held.ID, Qty: 2}},
		Buyer: BuyerInput{Handle: "brock"},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "not for sale")

	var orders, items int64
	require.NoError(t, db.Model(&models.SalesOrder{}).Count(&orders).Error)
	require.NoError(t, db.Model(&models.SalesItem{}).Count(&items).Error)
	assert.Zero(t, orders)
	assert.Zero(t, items)
}
