package enums

import "fmt"

type AcquisitionStatus string

const (
	AcquisitionStatusOpen   AcquisitionStatus = "open"
	AcquisitionStatusClosed AcquisitionStatus = "closed"
)

func (s AcquisitionStatus) IsValid() bool {
	return s == AcquisitionStatusOpen || s == AcquisitionStatusClosed
}

func ParseAcquisitionStatus(value string) (AcquisitionStatus, error) {
	status := AcquisitionStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid acquisition status %q", value)
	}
	return status, nil
}
