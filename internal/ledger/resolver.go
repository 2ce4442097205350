package ledger

import "github.com/google/uuid"

// Resolve returns quantity - sold - reserved. The result is not clamped:
// a negative value means the lot is over-committed and is reported as such
// by the integrity checks.
func Resolve(quantity, sold, reserved int) int {
	return quantity - sold - reserved
}

// Availability is the resolved quantity picture of one lot.
type Availability struct {
	LotID     uuid.UUID `json:"lot_id"`
	Quantity  int       `json:"quantity"`
	Sold      int       `json:"sold"`
	Reserved  int       `json:"reserved"`
	Available int       `json:"available"`
}

func NewAvailability(lotID uuid.UUID, quantity, sold, reserved int) Availability {
	return Availability{
		LotID:     lotID,
		Quantity:  quantity,
		Sold:      sold,
		Reserved:  reserved,
		Available: Resolve(quantity, sold, reserved),
	}
}

// Display clamps Available at zero for read-only views.
func (a Availability) Display() int {
	if a.Available < 0 {
		return 0
	}
	return a.Available
}

// SoldOut reports whether every unit of the lot has been sold.
func (a Availability) SoldOut() bool {
	return a.Quantity > 0 && a.Sold >= a.Quantity
}
