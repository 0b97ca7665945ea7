package linker

// ChangeKind says what Reconcile decided for a link.
type ChangeKind int

const (
	Unchanged ChangeKind = iota
	Created
	Updated
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Link is a stored association between a paper and a repository.
type Link struct {
	PaperID    int64
	RepoID     int64
	Confidence float64
	Evidence   Evidence
}

// Reconcile decides how an incoming link affects the stored one. Confidence
// for a pair never decreases: the stored link is replaced only by a strictly
// more confident one.
func Reconcile(existing *Link, incoming Link) (Link, ChangeKind) {
	if existing == nil {
		return incoming, Created
	}
	if incoming.Confidence > existing.Confidence {
		return incoming, Updated
	}
	return *existing, Unchanged
}
