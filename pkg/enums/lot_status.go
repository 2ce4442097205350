package enums

import "slices"

// LotStatus maps to the lot_status column.
type LotStatus string

const (
	LotStatusDraft    LotStatus = "draft"
	LotStatusReady    LotStatus = "ready"
	LotStatusListed   LotStatus = "listed"
	LotStatusSold     LotStatus = "sold"
	LotStatusArchived LotStatus = "archived"
)

var validLotStatuses = []LotStatus{
	LotStatusDraft,
	LotStatusReady,
	LotStatusListed,
	LotStatusSold,
	LotStatusArchived,
}

// String implements fmt.Stringer.
func (s LotStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known lot status.
func (s LotStatus) IsValid() bool {
	return slices.Contains(validLotStatuses, s)
}

// ParseLotStatus converts raw input into LotStatus.
func ParseLotStatus(value string) (LotStatus, error) {
	return parse(validLotStatuses, value, "lot status")
}
