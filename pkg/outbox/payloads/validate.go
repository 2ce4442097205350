package payloads

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validator is implemented by payloads with invariants a consumer relies on.
// A payload that fails it is never published.
type Validator interface {
	Validate() error
}

func (e LotCreatedEvent) Validate() error {
	if e.LotID == uuid.Nil {
		return errors.New("lot_id missing")
	}
	if e.Quantity < 0 {
		return fmt.Errorf("quantity %d is negative", e.Quantity)
	}
	return nil
}

func (e LotSplitEvent) Validate() error {
	if e.SourceLotID == uuid.Nil || e.CreatedLotID == uuid.Nil {
		return errors.New("split lot ids missing")
	}
	if e.SplitQuantity < 1 || e.SourceQuantity < 1 {
		return fmt.Errorf("split leaves %d/%d, both sides need at least one card", e.SourceQuantity, e.SplitQuantity)
	}
	return nil
}

func (e LotsMergedEvent) Validate() error {
	if e.TargetLotID == uuid.Nil {
		return errors.New("target_lot_id missing")
	}
	if len(e.MergedLotIDs) == 0 {
		return errors.New("merged_lot_ids empty")
	}
	return nil
}

func (e SaleRecordedEvent) Validate() error {
	if e.SalesOrderID == uuid.Nil {
		return errors.New("sales_order_id missing")
	}
	if len(e.Lines) == 0 {
		return errors.New("sale has no lines")
	}
	for i, line := range e.Lines {
		if line.Qty < 1 {
			return fmt.Errorf("lines[%d].qty must be positive", i)
		}
	}
	return nil
}

func (e BundleSoldEvent) Validate() error {
	if e.BundleID == uuid.Nil || e.SalesOrderID == uuid.Nil {
		return errors.New("bundle or sales order id missing")
	}
	if e.QuantitySold < 1 || e.Remaining < 0 {
		return fmt.Errorf("bundle sold %d leaving %d", e.QuantitySold, e.Remaining)
	}
	return nil
}
