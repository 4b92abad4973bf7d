package modification

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrUnknownTagName is returned by ParseTagName when neither the
// dictionary lookup nor the literal GGGG-EEEE/GGGG,EEEE form matches.
var ErrUnknownTagName = fmt.Errorf("modification: unknown tag name")

// ParseTagName resolves a REST request's tag identifier, accepting both
// a DICOM dictionary keyword (e.g. "PatientName") and the literal
// "GGGG-EEEE" or "GGGG,EEEE" hex form, so a caller never has to know
// which one a given tag prefers.
func ParseTagName(name string) (tag.Tag, error) {
	if info, err := tag.FindByName(name); err == nil {
		return info.Tag, nil
	}

	sep := "-"
	if strings.Contains(name, ",") {
		sep = ","
	}
	parts := strings.SplitN(name, sep, 2)
	if len(parts) != 2 {
		return tag.Tag{}, ErrUnknownTagName
	}

	group, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 16)
	if err != nil {
		return tag.Tag{}, ErrUnknownTagName
	}
	element, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 16, 16)
	if err != nil {
		return tag.Tag{}, ErrUnknownTagName
	}

	return tag.Tag{Group: uint16(group), Element: uint16(element)}, nil
}
