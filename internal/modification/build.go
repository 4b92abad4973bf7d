package modification

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// NewStringElement builds a fresh element for a tag that has no prior
// occurrence in any dataset to copy its VR from -- the case setElement
// can't handle, since it only ever overwrites a tag a real instance
// already carries. The VR comes from the tag dictionary's own entry for
// t, the same dictionary ParseTagName resolves names against.
func NewStringElement(t tag.Tag, value string) (*dicom.Element, error) {
	info, err := tag.Find(t)
	if err != nil {
		return nil, fmt.Errorf("modification: no dictionary entry for tag %v: %w", t, err)
	}

	val, err := dicom.NewValue([]string{value})
	if err != nil {
		return nil, fmt.Errorf("modification: cannot encode value for tag %v: %w", t, err)
	}

	return &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    tag.GetVRKind(t, info.VRs[0]),
		RawValueRepresentation: info.VRs[0],
		ValueLength:            uint32(len(value)),
		Value:                  val,
	}, nil
}

// NewPixelDataElement builds the native PixelData element CreateDicom
// embeds from a decoded image payload.
func NewPixelDataElement(raw []byte) (*dicom.Element, error) {
	val, err := dicom.NewValue(raw)
	if err != nil {
		return nil, fmt.Errorf("modification: cannot encode pixel data: %w", err)
	}
	return &dicom.Element{
		Tag:                    tag.PixelData,
		ValueRepresentation:    tag.GetVRKind(tag.PixelData, "OB"),
		RawValueRepresentation: "OB",
		ValueLength:            uint32(len(raw)),
		Value:                  val,
	}, nil
}

// BuildDataset assembles a fresh dataset from a tag name to string value
// map, the inverse of ExtractTags -- backing /tools/create-dicom.
func BuildDataset(tags map[string]string) (*dicom.Dataset, error) {
	elements := make([]*dicom.Element, 0, len(tags))
	for name, value := range tags {
		t, err := ParseTagName(name)
		if err != nil {
			return nil, err
		}
		elem, err := NewStringElement(t, value)
		if err != nil {
			return nil, err
		}
		elements = append(elements, elem)
	}
	return &dicom.Dataset{Elements: elements}, nil
}
