package models

import "fmt"

// TagKey addresses a DICOM tag by its (group, element) pair, independent
// of any particular parsing library's own tag type.
type TagKey struct {
	Group   uint16
	Element uint16
}

// String renders a TagKey in the canonical "GGGG,EEEE" hex form REST
// responses carry MainDicomTags under.
func (k TagKey) String() string {
	return fmt.Sprintf("%04X,%04X", k.Group, k.Element)
}

// MainDicomTag is a single DICOM tag extracted from an instance (or rolled
// up to its parent Study/Series/Patient) and indexed for lookups and C-FIND
// style querying. Group/Element follow the DICOM (gggg,eeee) addressing used
// by github.com/suyashkumar/dicom's tag.Tag.
type MainDicomTag struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	ResourceID int64  `gorm:"not null;uniqueIndex:idx_tags_resource_tag" json:"-"`
	Group      uint16 `gorm:"not null;uniqueIndex:idx_tags_resource_tag" json:"-"`
	Element    uint16 `gorm:"not null;uniqueIndex:idx_tags_resource_tag" json:"-"`
	Value      string `gorm:"type:text" json:"-"`
}

func (MainDicomTag) TableName() string {
	return "main_dicom_tags"
}
