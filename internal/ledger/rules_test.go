package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
)

func TestResolveIsUnclamped(t *testing.T) {
	assert.Equal(t, 50, Resolve(100, 20, 30))
	assert.Equal(t, -5, Resolve(10, 10, 5))

	av := NewAvailability(uuid.New(), 10, 10, 5)
	assert.Equal(t, -5, av.Available)
	assert.Equal(t, 0, av.Display())
	assert.True(t, av.SoldOut())
}

func TestReservedByLot(t *testing.T) {
	lot := uuid.New()
	other := uuid.New()
	b1, b2, b3 := uuid.New(), uuid.New(), uuid.New()
	rows := []BundleReservation{
		{BundleID: b1, LotID: lot, BundleStatus: enums.BundleStatusActive, BundleQuantity: 3, CardsNeeded: 10},
		{BundleID: b2, LotID: lot, BundleStatus: enums.BundleStatusActive, BundleQuantity: 2, CardsNeeded: 1},
		{BundleID: b3, LotID: lot, BundleStatus: enums.BundleStatusSold, BundleQuantity: 4, CardsNeeded: 4},
		{BundleID: b1, LotID: other, BundleStatus: enums.BundleStatusActive, BundleQuantity: 3, CardsNeeded: 2},
	}

	all := ReservedByLot(rows, nil)
	assert.Equal(t, 32, all[lot])
	assert.Equal(t, 6, all[other])

	withoutB1 := ReservedByLot(rows, &b1)
	assert.Equal(t, 2, withoutB1[lot])
	_, ok := withoutB1[other]
	assert.False(t, ok)
}

func TestRejectionMessageAndError(t *testing.T) {
	rej := &Rejection{LotID: uuid.New(), Available: 20, Needed: 25}
	assert.Equal(t, "Insufficient quantity. Available: 20, Needed: 25", rej.Error())

	err := rej.AsError()
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientQuantity))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 20, details["available"])
	assert.Equal(t, 25, details["needed"])

	var none *Rejection
	assert.NoError(t, none.AsError())
}

func TestCheckSale(t *testing.T) {
	av := NewAvailability(uuid.New(), 10, 2, 3)
	assert.Nil(t, CheckSale(av, 5))
	rej := CheckSale(av, 6)
	require.NotNil(t, rej)
	assert.Equal(t, 5, rej.Available)
	assert.Equal(t, 6, rej.Needed)
}

func TestCheckBundleChangeReportsFirstFailingItem(t *testing.T) {
	ok := uuid.New()
	short := uuid.New()
	avail := map[uuid.UUID]Availability{
		ok:    NewAvailability(ok, 100, 0, 0),
		short: NewAvailability(short, 20, 0, 0),
	}
	items := []BundleItemChange{{LotID: ok, CardsNeeded: 5}, {LotID: short, CardsNeeded: 5}}

	assert.Nil(t, CheckBundleChange(4, items, avail))

	rej := CheckBundleChange(5, items, avail)
	require.NotNil(t, rej)
	assert.Equal(t, short, rej.LotID)
	assert.Equal(t, 20, rej.Available)
	assert.Equal(t, 25, rej.Needed)
}

func TestCheckSplitBounds(t *testing.T) {
	av := NewAvailability(uuid.New(), 10, 0, 0)
	assert.True(t, pkgerrors.IsCode(CheckSplit(av, 0), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(CheckSplit(av, 10), pkgerrors.CodeValidation))
	assert.NoError(t, CheckSplit(av, 9))

	reserved := NewAvailability(uuid.New(), 10, 0, 6)
	assert.Error(t, CheckSplit(reserved, 4))
	assert.NoError(t, CheckSplit(reserved, 3))
}

func TestCheckMerge(t *testing.T) {
	a := models.Lot{ID: uuid.New(), CardID: "sv4-1", Condition: enums.ConditionNearMint, Variation: "standard"}
	b := models.Lot{ID: uuid.New(), CardID: "sv4-1", Condition: enums.ConditionNearMint, Variation: ""}
	c := models.Lot{ID: uuid.New(), CardID: "sv4-1", Condition: enums.ConditionLightPlayed, Variation: "standard"}

	assert.NoError(t, CheckMerge([]models.Lot{a, b}, nil))
	assert.True(t, pkgerrors.IsCode(CheckMerge([]models.Lot{a, c}, nil), pkgerrors.CodeValidation))
	assert.Error(t, CheckMerge([]models.Lot{a}, nil))

	err := CheckMerge([]models.Lot{a, b}, map[uuid.UUID]int{b.ID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot merge lots with sold items")
}

func TestLifecycleTransitions(t *testing.T) {
	cases := []struct {
		from, to enums.LotStatus
		allowed  bool
	}{
		{enums.LotStatusDraft, enums.LotStatusReady, true},
		{enums.LotStatusDraft, enums.LotStatusListed, false},
		{enums.LotStatusReady, enums.LotStatusListed, true},
		{enums.LotStatusReady, enums.LotStatusDraft, true},
		{enums.LotStatusListed, enums.LotStatusSold, true},
		{enums.LotStatusListed, enums.LotStatusArchived, true},
		{enums.LotStatusArchived, enums.LotStatusReady, true},
		{enums.LotStatusArchived, enums.LotStatusListed, false},
		{enums.LotStatusSold, enums.LotStatusReady, false},
		{enums.LotStatusSold, enums.LotStatusSold, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	changed, err := Transition(enums.LotStatusReady, enums.LotStatusReady)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = Transition(enums.LotStatusSold, enums.LotStatusListed)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = Transition(enums.LotStatusReady, enums.LotStatus("gone"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCheckOperationGates(t *testing.T) {
	for _, op := range []Operation{OpEdit, OpDelete, OpSplit, OpMerge, OpBundleItem, OpSale} {
		assert.True(t, pkgerrors.IsCode(CheckOperation(enums.LotStatusSold, op), pkgerrors.CodeStateConflict), op)
	}
	for _, op := range []Operation{OpEdit, OpSplit, OpMerge, OpBundleItem, OpSale} {
		assert.Error(t, CheckOperation(enums.LotStatusArchived, op), op)
	}
	assert.NoError(t, CheckOperation(enums.LotStatusArchived, OpDelete))
	assert.NoError(t, CheckOperation(enums.LotStatusListed, OpSale))
	assert.NoError(t, CheckOperation(enums.LotStatusDraft, OpSplit))
}

func TestStatusAfterSale(t *testing.T) {
	assert.Equal(t, enums.LotStatusSold, StatusAfterSale(enums.LotStatusListed, 3, 3))
	assert.Equal(t, enums.LotStatusListed, StatusAfterSale(enums.LotStatusListed, 3, 2))
	assert.Equal(t, enums.LotStatusDraft, StatusAfterSale(enums.LotStatusDraft, 0, 0))
}

func TestDistributeSplitKeepsTotals(t *testing.T) {
	// 10 units from three purchases, split 5 off: exact halves of 5 and 3
	// leave remainders of .5 on the first two entries.
	moved := DistributeSplit([]int{5, 3, 2}, 10, 5)
	assert.Equal(t, []int{3, 1, 1}, moved)

	moved = DistributeSplit([]int{1, 1, 1}, 3, 1)
	assert.Equal(t, []int{1, 0, 0}, moved)

	moved = DistributeSplit([]int{7}, 7, 6)
	assert.Equal(t, []int{6}, moved)

	total := 0
	for _, m := range DistributeSplit([]int{13, 29, 58}, 100, 37) {
		total += m
	}
	assert.Equal(t, 37, total)
}

func TestAggregateHistoryIncludesLegacyLots(t *testing.T) {
	acqA, acqB := uuid.New(), uuid.New()
	target := models.Lot{ID: uuid.New(), Quantity: 3}
	legacy := models.Lot{ID: uuid.New(), Quantity: 7, AcquisitionID: &acqA}
	history := []models.LotPurchaseHistory{
		{LotID: target.ID, AcquisitionID: acqB, Quantity: 1},
		{LotID: target.ID, AcquisitionID: acqA, Quantity: 2},
	}

	got := AggregateHistory([]models.Lot{target, legacy}, history)
	require.Len(t, got, 2)
	assert.Equal(t, acqB, got[0].AcquisitionID)
	assert.Equal(t, 1, got[0].Quantity)
	assert.Equal(t, acqA, got[1].AcquisitionID)
	assert.Equal(t, 9, got[1].Quantity)
}

func TestFoldPhotosPrefersTarget(t *testing.T) {
	target, other := uuid.New(), uuid.New()
	photos := []models.LotPhoto{
		{ID: uuid.New(), LotID: other, Kind: enums.PhotoKindFront, ObjectKey: "o-front"},
		{ID: uuid.New(), LotID: target, Kind: enums.PhotoKindFront, ObjectKey: "t-front"},
		{ID: uuid.New(), LotID: other, Kind: enums.PhotoKindBack, ObjectKey: "o-back"},
		{ID: uuid.New(), LotID: target, Kind: enums.PhotoKindExtra, ObjectKey: "shared"},
		{ID: uuid.New(), LotID: other, Kind: enums.PhotoKindExtra, ObjectKey: "shared"},
		{ID: uuid.New(), LotID: other, Kind: enums.PhotoKindExtra, ObjectKey: "unique"},
	}

	keep, drop := FoldPhotos([]uuid.UUID{target, other}, photos)
	keys := make([]string, 0, len(keep))
	for _, p := range keep {
		keys = append(keys, p.ObjectKey)
	}
	assert.ElementsMatch(t, []string{"t-front", "shared", "o-back", "unique"}, keys)
	assert.ElementsMatch(t, []uuid.UUID{photos[0].ID, photos[4].ID}, drop)
}

func TestSplitStatus(t *testing.T) {
	listed := models.Lot{Status: enums.LotStatusListed}
	assert.Equal(t, enums.LotStatusReady, splitStatus(listed, true, nil))
	assert.Equal(t, enums.LotStatusDraft, splitStatus(listed, false, nil))
	assert.Equal(t, enums.LotStatusReady, splitStatus(models.Lot{Status: enums.LotStatusReady}, true, nil))

	archived := enums.LotStatusArchived
	assert.Equal(t, archived, splitStatus(listed, true, &archived))
}

func TestSortedIDsDedupes(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	assert.Equal(t, []uuid.UUID{a, b}, sortedIDs([]uuid.UUID{b, a, b}))
}
