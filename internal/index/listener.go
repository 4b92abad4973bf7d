package index

import "github.com/orthanc-go/orthanc/internal/models"

// remainingAncestor tracks the shallowest ancestor that survives a
// cascading delete. Grounded on Internals::ServerIndexListener: the real
// listener is notified once per row the SQL cascade removes and keeps
// whichever ancestor has the smallest ResourceKind value it has seen
// (Patient is shallower than Study is shallower than Series...). In this
// Go port the collapse walk only ever reports one ancestor, but the
// min-kind comparison is kept so the type still behaves correctly if a
// future caller feeds it more than one candidate.
type remainingAncestor struct {
	found    bool
	kind     models.ResourceKind
	publicID string
}

func (r *remainingAncestor) reset() {
	*r = remainingAncestor{}
}

func (r *remainingAncestor) signal(kind models.ResourceKind, publicID string) {
	if !r.found || kind < r.kind {
		r.found = true
		r.kind = kind
		r.publicID = publicID
	}
}

func (r *remainingAncestor) result() *RemainingAncestor {
	if !r.found {
		return nil
	}
	return &RemainingAncestor{Kind: r.kind, PublicID: r.publicID}
}
