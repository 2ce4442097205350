package ledger

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
	"github.com/GregHandsley/pokeflip-sub002/pkg/db"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/dbtest"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/sku"
)

type fixture struct {
	client *db.Client
	db     *gorm.DB
	svc    Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	recorder := audit.NewService(client.DB(), nil)
	svc, err := NewService(
		NewGormStore(client.DB()),
		client,
		emitter,
		recorder,
		metrics.NewLedgerMetrics(prometheus.NewRegistry()),
		nil,
	)
	require.NoError(t, err)
	return &fixture{client: client, db: client.DB(), svc: svc}
}

func (f *fixture) lot(t *testing.T, qty int, status enums.LotStatus, opts ...func(*models.Lot)) models.Lot {
	t.Helper()
	lot := models.Lot{
		CardID:    "sv4-1",
		Condition: enums.ConditionNearMint,
		Variation: "standard",
		Quantity:  qty,
		Status:    status,
		ForSale:   true,
	}
	for _, opt := range opts {
		opt(&lot)
	}
	lot.SKU = sku.Generate(lot.CardID, lot.Condition, lot.Variation)
	require.NoError(t, f.db.Create(&lot).Error)
	return lot
}

func (f *fixture) acquisition(t *testing.T, purchaseSKU string) models.Acquisition {
	t.Helper()
	acq := models.Acquisition{
		PurchaseSKU: purchaseSKU,
		SourceName:  "car boot",
		PurchasedAt: time.Now().UTC(),
		Status:      enums.AcquisitionStatusOpen,
	}
	require.NoError(t, f.db.Create(&acq).Error)
	return acq
}

func (f *fixture) history(t *testing.T, lotID, acqID uuid.UUID, qty int) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.LotPurchaseHistory{LotID: lotID, AcquisitionID: acqID, Quantity: qty}).Error)
}

func (f *fixture) sell(t *testing.T, lotID uuid.UUID, qty int) {
	t.Helper()
	buyer := models.Buyer{Platform: "ebay", Handle: uuid.NewString()}
	require.NoError(t, f.db.Create(&buyer).Error)
	order := models.SalesOrder{BuyerID: buyer.ID, Platform: "ebay", SoldAt: time.Now().UTC()}
	require.NoError(t, f.db.Create(&order).Error)
	require.NoError(t, f.db.Create(&models.SalesItem{SalesOrderID: order.ID, LotID: lotID, Qty: qty, SoldPricePence: 100}).Error)
}

func (f *fixture) bundle(t *testing.T, qty int, status enums.BundleStatus, items map[uuid.UUID]int) models.Bundle {
	t.Helper()
	bundle := models.Bundle{Name: "starter", PricePence: 1000, Quantity: qty, Status: status}
	require.NoError(t, f.db.Create(&bundle).Error)
	for lotID, cards := range items {
		require.NoError(t, f.db.Create(&models.BundleItem{BundleID: bundle.ID, LotID: lotID, Quantity: cards}).Error)
	}
	return bundle
}

func intPtr(v int) *int { return &v }

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Lot {
	t.Helper()
	var lot models.Lot
	require.NoError(t, f.db.First(&lot, "id = ?", id).Error)
	return lot
}

func TestAvailabilityCountsSalesAndActiveBundles(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, 100, enums.LotStatusListed)
	f.sell(t, lot.ID, 20)
	f.bundle(t, 3, enums.BundleStatusActive, map[uuid.UUID]int{lot.ID: 10})
	f.bundle(t, 5, enums.BundleStatusSold, map[uuid.UUID]int{lot.ID: 10})

	av, err := f.svc.GetAvailableQuantity(context.Background(), lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, av.Quantity)
	assert.Equal(t, 20, av.Sold)
	assert.Equal(t, 30, av.Reserved)
	assert.Equal(t, 50, av.Available)

	_, err = f.svc.GetAvailableQuantity(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestValidateBundleChangeRejectsShortfall(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, 20, enums.LotStatusReady)

	rej, err := f.svc.ValidateBundleChange(context.Background(), BundleChange{
		Quantity: intPtr(5),
		Items:    []BundleItemChange{{LotID: lot.ID, CardsNeeded: 5}},
	})
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, "Insufficient quantity. Available: 20, Needed: 25", rej.Error())

	rej, err = f.svc.ValidateBundleChange(context.Background(), BundleChange{
		Quantity: intPtr(4),
		Items:    []BundleItemChange{{LotID: lot.ID, CardsNeeded: 5}},
	})
	require.NoError(t, err)
	assert.Nil(t, rej)
}

func TestValidateBundleChangeExcludesOwnReservation(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, 10, enums.LotStatusReady)
	bundle := f.bundle(t, 2, enums.BundleStatusActive, map[uuid.UUID]int{lot.ID: 4})

	// growing the bundle from 2 to 3 needs 12 > 10 even though 8 are already ours
	rej, err := f.svc.ValidateBundleChange(context.Background(), BundleChange{
		BundleID: &bundle.ID,
		Quantity: intPtr(3),
		Items:    []BundleItemChange{{LotID: lot.ID, CardsNeeded: 4}},
	})
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, 10, rej.Available)
	assert.Equal(t, 12, rej.Needed)

	rej, err = f.svc.ValidateBundleChange(context.Background(), BundleChange{
		BundleID: &bundle.ID,
		Quantity: intPtr(2),
		Items:    []BundleItemChange{{LotID: lot.ID, CardsNeeded: 5}},
	})
	require.NoError(t, err)
	assert.Nil(t, rej)
}

func TestValidateBundleChangeGatesLotStatus(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, 10, enums.LotStatusArchived)

	_, err := f.svc.ValidateBundleChange(context.Background(), BundleChange{
		Quantity: intPtr(1),
		Items:    []BundleItemChange{{LotID: lot.ID, CardsNeeded: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestValidateBundleChangeFallsBackToBundleQuantity(t *testing.T) {
	f := newFixture(t)
	held := f.lot(t, 30, enums.LotStatusReady)
	added := f.lot(t, 20, enums.LotStatusReady)
	bundle := f.bundle(t, 5, enums.BundleStatusActive, map[uuid.UUID]int{held.ID: 1})

	rej, err := f.svc.ValidateBundleChange(context.Background(), BundleChange{
		BundleID: &bundle.ID,
		Items:    []BundleItemChange{{LotID: added.ID, CardsNeeded: 5}},
	})
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, 20, rej.Available)
	assert.Equal(t, 25, rej.Needed)

	_, err = f.svc.ValidateBundleChange(context.Background(), BundleChange{
		Items: []BundleItemChange{{LotID: added.ID, CardsNeeded: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestValidateBundleChangeGatesOnlyGrowingLots(t *testing.T) {
	f := newFixture(t)
	sold := f.lot(t, 10, enums.LotStatusSold)
	other := f.lot(t, 10, enums.LotStatusReady)
	bundle := f.bundle(t, 2, enums.BundleStatusActive, map[uuid.UUID]int{sold.ID: 2, other.ID: 1})

	rej, err := f.svc.ValidateBundleChange(context.Background(), BundleChange{
		BundleID: &bundle.ID,
		Items:    []BundleItemChange{{LotID: sold.ID, CardsNeeded: 2}, {LotID: other.ID, CardsNeeded: 3}},
	})
	require.NoError(t, err)
	assert.Nil(t, rej)

	_, err = f.svc.ValidateBundleChange(context.Background(), BundleChange{
		BundleID: &bundle.ID,
		Items:    []BundleItemChange{{LotID: sold.ID, CardsNeeded: 3}, {LotID: other.ID, CardsNeeded: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestValidateSale(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, 10, enums.LotStatusListed)
	f.bundle(t, 1, enums.BundleStatusActive, map[uuid.UUID]int{lot.ID: 4})

	rej, err := f.svc.ValidateSale(context.Background(), lot.ID, 6)
	require.NoError(t, err)
	assert.Nil(t, rej)

	rej, err = f.svc.ValidateSale(context.Background(), lot.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, 6, rej.Available)

	sold := f.lot(t, 1, enums.LotStatusSold)
	_, err = f.svc.ValidateSale(context.Background(), sold.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestSplitRejectsWholeLot(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, 10, enums.LotStatusReady)

	_, err := f.svc.SplitLot(context.Background(), lot.ID, SplitInput{Quantity: 10})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 10, f.reload(t, lot.ID).Quantity)

	var count int64
	require.NoError(t, f.db.Model(&models.Lot{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSplitMovesHistoryAndCopiesPhotos(t *testing.T) {
	f := newFixture(t)
	acqA := f.acquisition(t, "PUR-001")
	acqB := f.acquisition(t, "PUR-002")
	lot := f.lot(t, 10, enums.LotStatusListed)
	f.history(t, lot.ID, acqA.ID, 6)
	f.history(t, lot.ID, acqB.ID, 4)
	require.NoError(t, f.db.Create(&models.LotPhoto{LotID: lot.ID, Kind: enums.PhotoKindFront, ObjectKey: "front.jpg"}).Error)

	ctx := audit.WithActor(context.Background(), "greg")
	res, err := f.svc.SplitLot(ctx, lot.ID, SplitInput{Quantity: 5})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Source.Quantity)
	assert.Equal(t, 5, res.Created.Quantity)
	assert.Equal(t, enums.LotStatusReady, res.Created.Status)
	assert.Equal(t, lot.SKU, res.Created.SKU)
	assert.Equal(t, 5, f.reload(t, lot.ID).Quantity)

	sums := func(lotID uuid.UUID) map[uuid.UUID]int {
		var rows []models.LotPurchaseHistory
		require.NoError(t, f.db.Where("lot_id = ?", lotID).Find(&rows).Error)
		out := map[uuid.UUID]int{}
		for _, r := range rows {
			out[r.AcquisitionID] = r.Quantity
		}
		return out
	}
	assert.Equal(t, map[uuid.UUID]int{acqA.ID: 3, acqB.ID: 2}, sums(lot.ID))
	assert.Equal(t, map[uuid.UUID]int{acqA.ID: 3, acqB.ID: 2}, sums(res.Created.ID))

	var photos int64
	require.NoError(t, f.db.Model(&models.LotPhoto{}).Where("lot_id = ?", res.Created.ID).Count(&photos).Error)
	assert.EqualValues(t, 1, photos)

	var event models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", enums.EventLotSplit).First(&event).Error)
	assert.Equal(t, lot.ID, event.AggregateID)

	var entry models.AuditLog
	require.NoError(t, f.db.Where("action = ?", enums.AuditLotSplit).First(&entry).Error)
	assert.Equal(t, "greg", entry.Actor)
}

func TestSplitLegacyLotWritesHistoryOnBothSides(t *testing.T) {
	f := newFixture(t)
	acq := f.acquisition(t, "PUR-001")
	lot := f.lot(t, 4, enums.LotStatusDraft, func(l *models.Lot) { l.AcquisitionID = &acq.ID })
	forSale := false

	res, err := f.svc.SplitLot(context.Background(), lot.ID, SplitInput{Quantity: 1, ForSale: &forSale})
	require.NoError(t, err)
	assert.Equal(t, enums.LotStatusDraft, res.Created.Status)
	require.NotNil(t, res.Created.AcquisitionID)

	var rows []models.LotPurchaseHistory
	require.NoError(t, f.db.Where("acquisition_id = ?", acq.ID).Find(&rows).Error)
	require.Len(t, rows, 2)
	got := map[uuid.UUID]int{}
	for _, r := range rows {
		got[r.LotID] = r.Quantity
	}
	assert.Equal(t, 3, got[lot.ID])
	assert.Equal(t, 1, got[res.Created.ID])
}

func TestSplitHonoursReservations(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, 10, enums.LotStatusReady)
	f.bundle(t, 2, enums.BundleStatusActive, map[uuid.UUID]int{lot.ID: 3})

	_, err := f.svc.SplitLot(context.Background(), lot.ID, SplitInput{Quantity: 4})
	require.Error(t, err)

	_, err = f.svc.SplitLot(context.Background(), lot.ID, SplitInput{Quantity: 3})
	require.NoError(t, err)
}

func TestSplitRejectsSoldLot(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, 10, enums.LotStatusSold)

	_, err := f.svc.SplitLot(context.Background(), lot.ID, SplitInput{Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestMergeSumsQuantitiesAndDeletesOthers(t *testing.T) {
	f := newFixture(t)
	acq := f.acquisition(t, "PUR-001")
	target := f.lot(t, 3, enums.LotStatusReady)
	other := f.lot(t, 7, enums.LotStatusReady, func(l *models.Lot) { l.AcquisitionID = &acq.ID })
	f.history(t, target.ID, acq.ID, 3)
	require.Equal(t, "PKM-sv4-1-NM-STANDARD", target.SKU)

	merged, err := f.svc.MergeLots(context.Background(), []uuid.UUID{other.ID, target.ID}, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, merged.Quantity)
	require.NotNil(t, merged.AcquisitionID)
	assert.Equal(t, acq.ID, *merged.AcquisitionID)

	assert.Equal(t, 10, f.reload(t, target.ID).Quantity)
	err = f.db.First(&models.Lot{}, "id = ?", other.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var rows []models.LotPurchaseHistory
	require.NoError(t, f.db.Where("lot_id = ?", target.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 10, rows[0].Quantity)
}

func TestMergeRejectsLotsWithSales(t *testing.T) {
	f := newFixture(t)
	target := f.lot(t, 3, enums.LotStatusReady)
	other := f.lot(t, 7, enums.LotStatusListed)
	f.sell(t, other.ID, 1)

	_, err := f.svc.MergeLots(context.Background(), []uuid.UUID{target.ID, other.ID}, target.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "cannot merge lots with sold items")
	assert.Equal(t, 3, f.reload(t, target.ID).Quantity)
}

func TestMergeInputValidation(t *testing.T) {
	f := newFixture(t)
	a := f.lot(t, 1, enums.LotStatusReady)
	b := f.lot(t, 1, enums.LotStatusReady, func(l *models.Lot) { l.Condition = enums.ConditionDamaged })
	c := f.lot(t, 1, enums.LotStatusArchived)

	_, err := f.svc.MergeLots(context.Background(), []uuid.UUID{a.ID, a.ID}, a.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.MergeLots(context.Background(), []uuid.UUID{a.ID, b.ID}, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.MergeLots(context.Background(), []uuid.UUID{a.ID, b.ID}, a.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.MergeLots(context.Background(), []uuid.UUID{a.ID, c.ID}, a.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.MergeLots(context.Background(), []uuid.UUID{a.ID, uuid.New()}, a.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMergeFoldsBundleItemsAndPhotos(t *testing.T) {
	f := newFixture(t)
	target := f.lot(t, 5, enums.LotStatusReady)
	other := f.lot(t, 5, enums.LotStatusReady)
	shared := f.bundle(t, 1, enums.BundleStatusActive, map[uuid.UUID]int{target.ID: 1, other.ID: 2})
	solo := f.bundle(t, 1, enums.BundleStatusActive, map[uuid.UUID]int{other.ID: 4})
	require.NoError(t, f.db.Create(&models.LotPhoto{LotID: target.ID, Kind: enums.PhotoKindFront, ObjectKey: "t.jpg"}).Error)
	require.NoError(t, f.db.Create(&models.LotPhoto{LotID: other.ID, Kind: enums.PhotoKindFront, ObjectKey: "o.jpg"}).Error)
	require.NoError(t, f.db.Create(&models.LotPhoto{LotID: other.ID, Kind: enums.PhotoKindBack, ObjectKey: "ob.jpg"}).Error)

	_, err := f.svc.MergeLots(context.Background(), []uuid.UUID{target.ID, other.ID}, target.ID)
	require.NoError(t, err)

	var items []models.BundleItem
	require.NoError(t, f.db.Order("quantity ASC").Find(&items).Error)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, target.ID, item.LotID)
	}
	assert.Equal(t, shared.ID, items[0].BundleID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, solo.ID, items[1].BundleID)

	av, err := f.svc.GetAvailableQuantity(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, av.Available)

	var photos []models.LotPhoto
	require.NoError(t, f.db.Where("lot_id = ?", target.ID).Find(&photos).Error)
	keys := []string{}
	for _, p := range photos {
		keys = append(keys, p.ObjectKey)
	}
	assert.ElementsMatch(t, []string{"t.jpg", "ob.jpg"}, keys)
}

func TestGuardSettleSoldOut(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, 2, enums.LotStatusListed)
	partial := f.lot(t, 5, enums.LotStatusListed)
	f.sell(t, lot.ID, 2)
	f.sell(t, partial.ID, 1)

	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		guard := f.svc.Guard(tx)
		locked, err := guard.LockLots(context.Background(), []uuid.UUID{lot.ID, partial.ID})
		if err != nil {
			return err
		}
		changed, err := guard.SettleSoldOut(context.Background(), locked)
		if err != nil {
			return err
		}
		require.Len(t, changed, 1)
		assert.Equal(t, lot.ID, changed[0].ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, enums.LotStatusSold, f.reload(t, lot.ID).Status)
	assert.Equal(t, enums.LotStatusListed, f.reload(t, partial.ID).Status)
}

func TestGuardCheckSaleSumsLinesPerLot(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, 5, enums.LotStatusListed)

	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, rej, err := f.svc.Guard(tx).CheckSale(context.Background(), []SaleLine{
			{LotID: lot.ID, Qty: 3},
			{LotID: lot.ID, Qty: 3},
		}, nil)
		require.NoError(t, err)
		require.NotNil(t, rej)
		assert.Equal(t, 6, rej.Needed)
		return nil
	})
	require.NoError(t, err)
}
