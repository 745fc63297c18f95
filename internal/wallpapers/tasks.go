package wallpapers

// FetchKind tags the variants of a catalog fetch task.
type FetchKind int

const (
	// FetchCollections walks the (listed or all) collections of a user.
	FetchCollections FetchKind = iota
	// FetchUploads walks everything a user uploaded.
	FetchUploads
)

func (k FetchKind) String() string {
	switch k {
	case FetchCollections:
		return "collections"
	case FetchUploads:
		return "uploads"
	default:
		return "unknown"
	}
}

// FetchTask describes one catalog walk: whose wallpapers to resolve
// and where to store them. Collections is only meaningful for
// FetchCollections; an empty list means every collection of the user.
type FetchTask struct {
	Kind        FetchKind
	Username    string
	SaveDir     string
	Collections []string
}
