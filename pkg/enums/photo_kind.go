package enums

import "slices"

// PhotoKind tags a lot photo reference.
type PhotoKind string

const (
	PhotoKindFront PhotoKind = "front"
	PhotoKindBack  PhotoKind = "back"
	PhotoKindExtra PhotoKind = "extra"
)

var validPhotoKinds = []PhotoKind{
	PhotoKindFront,
	PhotoKindBack,
	PhotoKindExtra,
}

func (k PhotoKind) IsValid() bool {
	return slices.Contains(validPhotoKinds, k)
}

func ParsePhotoKind(value string) (PhotoKind, error) {
	return parse(validPhotoKinds, value, "photo kind")
}
