package stratum

import "github.com/stratumdb/stratum/store"

// Stat is a snapshot of database statistics, valid only for the moment the
// query ran. Backends without a page-oriented layout report zero for the
// page fields.
type Stat struct {
	// PageSize is the engine's page size in bytes.
	PageSize int

	// Depth of the B-tree holding the database.
	Depth int

	// BranchPages, LeafPages and OverflowPages count the pages in use.
	BranchPages   int
	LeafPages     int
	OverflowPages int

	// Entries is the number of key/value pairs in the database.
	Entries int
}

func statFromStore(s store.Stat) *Stat {
	return &Stat{
		PageSize:      s.PageSize,
		Depth:         s.Depth,
		BranchPages:   s.BranchPages,
		LeafPages:     s.LeafPages,
		OverflowPages: s.OverflowPages,
		Entries:       s.Entries,
	}
}
