package lots

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/internal/ledger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/dbtest"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/pagination"
	"github.com/GregHandsley/pokeflip-sub002/pkg/sku"
	"github.com/GregHandsley/pokeflip-sub002/pkg/types"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	client := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	recorder := audit.NewService(client.DB(), nil)
	store := ledger.NewGormStore(client.DB())
	ledgerSvc, err := ledger.NewService(store, client, emitter, recorder, nil, nil)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(client.DB()), store, ledgerSvc, client, emitter, recorder)
	require.NoError(t, err)
	return svc, client.DB()
}

func seedLot(t *testing.T, db *gorm.DB, qty int, status enums.LotStatus) models.Lot {
	t.Helper()
	price := int64(250)
	lot := models.Lot{
		CardID:         "sv4-1",
		Condition:      enums.ConditionNearMint,
		Variation:      "standard",
		Quantity:       qty,
		Status:         status,
		ForSale:        true,
		ListPricePence: &price,
	}
	lot.SKU = sku.Generate(lot.CardID, lot.Condition, lot.Variation)
	require.NoError(t, db.Create(&lot).Error)
	return lot
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestGetIncludesAvailabilityPhotosAndHistory(t *testing.T) {
	svc, db := newTestService(t)
	lot := seedLot(t, db, 5, enums.LotStatusReady)
	acqID := uuid.New()
	require.NoError(t, db.Create(&models.LotPurchaseHistory{LotID: lot.ID, AcquisitionID: acqID, Quantity: 5}).Error)

	photo, err := svc.AddPhoto(context.Background(), lot.ID, AddPhotoInput{Kind: enums.PhotoKindFront, ObjectKey: " lots/front.jpg "})
	require.NoError(t, err)
	assert.Equal(t, "lots/front.jpg", photo.ObjectKey)

	detail, err := svc.Get(context.Background(), lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, detail.Available)
	require.Len(t, detail.Photos, 1)
	require.Len(t, detail.History, 1)
	assert.Equal(t, acqID, detail.History[0].AcquisitionID)

	_, err = svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListPagesNewestFirstWithFilters(t *testing.T) {
	svc, db := newTestService(t)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		lot := seedLot(t, db, 1, enums.LotStatusReady)
		ids = append(ids, lot.ID)
		time.Sleep(2 * time.Millisecond)
	}
	seedLot(t, db, 1, enums.LotStatusDraft)

	ready := enums.LotStatusReady
	first, err := svc.List(context.Background(), ListFilters{Status: &ready}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, ids[2], first.Items[0].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.List(context.Background(), ListFilters{Status: &ready}, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, ids[0], second.Items[0].ID)
	assert.Empty(t, second.NextCursor)

	_, err = svc.List(context.Background(), ListFilters{}, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateStatusFollowsTransitions(t *testing.T) {
	svc, db := newTestService(t)
	lot := seedLot(t, db, 2, enums.LotStatusDraft)

	dto, err := svc.UpdateStatus(context.Background(), lot.ID, enums.LotStatusReady)
	require.NoError(t, err)
	assert.Equal(t, enums.LotStatusReady, dto.Status)

	_, err = svc.UpdateStatus(context.Background(), lot.ID, enums.LotStatusSold)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	var events int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventLotStatusChanged).Count(&events).Error)
	assert.EqualValues(t, 1, events)

	// same-state is a no-op and emits nothing
	_, err = svc.UpdateStatus(context.Background(), lot.ID, enums.LotStatusReady)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventLotStatusChanged).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestUpdateForSaleRequiresPrice(t *testing.T) {
	svc, db := newTestService(t)
	lot := models.Lot{CardID: "x", Condition: enums.ConditionLightPlayed, Variation: "standard", SKU: "PKM-x-LP-STANDARD", Quantity: 1, Status: enums.LotStatusDraft}
	require.NoError(t, db.Create(&lot).Error)

	_, err := svc.UpdateForSale(context.Background(), lot.ID, UpdateForSaleInput{ForSale: true})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	price := int64(199)
	note := "binder page 4"
	dto, err := svc.UpdateForSale(context.Background(), lot.ID, UpdateForSaleInput{
		ForSale:        true,
		ListPricePence: types.Set(price),
		Note:           types.Set(note),
	})
	require.NoError(t, err)
	assert.True(t, dto.ForSale)
	require.NotNil(t, dto.ListPricePence)
	assert.EqualValues(t, 199, *dto.ListPricePence)
	require.NotNil(t, dto.Note)

	// absent price keeps the stored one, explicit null note clears it
	dto, err = svc.UpdateForSale(context.Background(), lot.ID, UpdateForSaleInput{
		ForSale: true,
		Note:    types.Null[string](),
	})
	require.NoError(t, err)
	require.NotNil(t, dto.ListPricePence)
	assert.EqualValues(t, 199, *dto.ListPricePence)
	assert.Nil(t, dto.Note)

	_, err = svc.UpdateForSale(context.Background(), lot.ID, UpdateForSaleInput{ForSale: true, ListPricePence: types.Null[int64]()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	sold := seedLot(t, db, 1, enums.LotStatusSold)
	_, err = svc.UpdateForSale(context.Background(), sold.ID, UpdateForSaleInput{ForSale: false})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestDeleteRules(t *testing.T) {
	svc, db := newTestService(t)

	draft := seedLot(t, db, 1, enums.LotStatusDraft)
	require.NoError(t, db.Create(&models.LotPhoto{LotID: draft.ID, Kind: enums.PhotoKindFront, ObjectKey: "a"}).Error)
	require.NoError(t, db.Create(&models.Listing{LotID: draft.ID, Platform: "ebay"}).Error)
	require.NoError(t, svc.Delete(context.Background(), draft.ID))
	var remaining int64
	require.NoError(t, db.Model(&models.LotPhoto{}).Where("lot_id = ?", draft.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
	require.NoError(t, db.Model(&models.Listing{}).Where("lot_id = ?", draft.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	sold := seedLot(t, db, 1, enums.LotStatusSold)
	assert.True(t, pkgerrors.IsCode(svc.Delete(context.Background(), sold.ID), pkgerrors.CodeStateConflict))

	withSale := seedLot(t, db, 3, enums.LotStatusListed)
	require.NoError(t, db.Create(&models.SalesItem{SalesOrderID: uuid.New(), LotID: withSale.ID, Qty: 1, SoldPricePence: 100}).Error)
	assert.True(t, pkgerrors.IsCode(svc.Delete(context.Background(), withSale.ID), pkgerrors.CodeConflict))

	bundled := seedLot(t, db, 3, enums.LotStatusReady)
	require.NoError(t, db.Create(&models.BundleItem{BundleID: uuid.New(), LotID: bundled.ID, Quantity: 1}).Error)
	assert.True(t, pkgerrors.IsCode(svc.Delete(context.Background(), bundled.ID), pkgerrors.CodeConflict))

	archived := seedLot(t, db, 3, enums.LotStatusArchived)
	require.NoError(t, svc.Delete(context.Background(), archived.ID))

	var events int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventLotDeleted).Count(&events).Error)
	assert.EqualValues(t, 2, events)
}

func TestDeleteDraftDropsItsBundleItems(t *testing.T) {
	svc, db := newTestService(t)
	draft := seedLot(t, db, 4, enums.LotStatusDraft)
	keeper := seedLot(t, db, 4, enums.LotStatusReady)
	bundle := models.Bundle{Name: "starter", PricePence: 800, Quantity: 1, Status: enums.BundleStatusActive}
	require.NoError(t, db.Create(&bundle).Error)
	require.NoError(t, db.Create(&models.BundleItem{BundleID: bundle.ID, LotID: draft.ID, Quantity: 2}).Error)
	require.NoError(t, db.Create(&models.BundleItem{BundleID: bundle.ID, LotID: keeper.ID, Quantity: 1}).Error)

	require.NoError(t, svc.Delete(context.Background(), draft.ID))

	var items []models.BundleItem
	require.NoError(t, db.Where("bundle_id = ?", bundle.ID).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, keeper.ID, items[0].LotID)

	var lots int64
	require.NoError(t, db.Model(&models.Lot{}).Where("id = ?", draft.ID).Count(&lots).Error)
	assert.Zero(t, lots)
	require.NoError(t, db.Model(&models.Bundle{}).Where("id = ?", bundle.ID).Count(&lots).Error)
	assert.EqualValues(t, 1, lots, "the bundle itself stays")
}

func TestAddPhotoValidation(t *testing.T) {
	svc, db := newTestService(t)
	lot := seedLot(t, db, 1, enums.LotStatusReady)

	_, err := svc.AddPhoto(context.Background(), lot.ID, AddPhotoInput{Kind: "side", ObjectKey: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.AddPhoto(context.Background(), lot.ID, AddPhotoInput{Kind: enums.PhotoKindBack, ObjectKey: "  "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.AddPhoto(context.Background(), uuid.New(), AddPhotoInput{Kind: enums.PhotoKindBack, ObjectKey: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSplitAndMergeRoundTrip(t *testing.T) {
	svc, db := newTestService(t)
	lot := seedLot(t, db, 10, enums.LotStatusReady)

	split, err := svc.Split(context.Background(), lot.ID, ledger.SplitInput{Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, split.Source.Available)
	assert.Equal(t, 4, split.Created.Available)

	merged, err := svc.Merge(context.Background(), MergeInput{
		LotIDs:      []uuid.UUID{lot.ID, split.Created.ID},
		TargetLotID: lot.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, merged.Quantity)
	assert.Equal(t, 10, merged.Available)
}
