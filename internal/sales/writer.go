package sales

import (
	"context"

	"github.com/google/uuid"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
)

// OrderLine is one lot's share of an order at a per-unit price.
type OrderLine struct {
	LotID          uuid.UUID
	Qty            int
	UnitPricePence int64
}

// WriteOrder persists order with one sales item per line and the purchase
// allocations of each item. It must run on a repository bound to the
// transaction that locked lots.
func WriteOrder(ctx context.Context, repo *Repository, order *models.SalesOrder, lines []OrderLine, lots map[uuid.UUID]models.Lot) ([]models.SalesItem, error) {
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sales order")
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.LotID)
	}
	history, err := repo.HistoryForLots(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase history")
	}

	items := make([]models.SalesItem, 0, len(lines))
	for _, line := range lines {
		item := models.SalesItem{
			SalesOrderID:   order.ID,
			LotID:          line.LotID,
			Qty:            line.Qty,
			SoldPricePence: line.UnitPricePence,
		}
		if err := repo.CreateItem(ctx, &item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sales item")
		}

		lot := lots[line.LotID]
		shares := Allocate(history[line.LotID], lot.AcquisitionID, line.Qty)
		rows := make([]models.PurchaseAllocation, 0, len(shares))
		for _, share := range shares {
			rows = append(rows, models.PurchaseAllocation{
				SalesItemID:   item.ID,
				AcquisitionID: share.AcquisitionID,
				Qty:           share.Qty,
			})
		}
		if err := repo.CreateAllocations(ctx, rows); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase allocations")
		}
		items = append(items, item)
	}
	return items, nil
}
