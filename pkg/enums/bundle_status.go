package enums

import "slices"

type BundleStatus string

const (
	BundleStatusActive BundleStatus = "active"
	BundleStatusSold   BundleStatus = "sold"
)

var validBundleStatuses = []BundleStatus{
	BundleStatusActive,
	BundleStatusSold,
}

func (s BundleStatus) IsValid() bool {
	return slices.Contains(validBundleStatuses, s)
}

func ParseBundleStatus(value string) (BundleStatus, error) {
	return parse(validBundleStatuses, value, "bundle status")
}
