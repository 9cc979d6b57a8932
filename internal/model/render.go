package model

// RenderEntry names the three content hashes for one rendered locale.
type RenderEntry struct {
	E    string `json:"e"`
	R    string `json:"r"`
	Meta string `json:"meta"`
}

// RenderIndex is an immutable revision document mapping locales to their
// content-addressed artifacts.
type RenderIndex struct {
	V        int                    `json:"v"`
	PublicID string                 `json:"publicId"`
	Current  map[string]RenderEntry `json:"current"`
}

// PublishedPointer is the only mutable render document. It is replaced
// wholesale on publish, never edited in place.
type PublishedPointer struct {
	V                int    `json:"v"`
	PublicID         string `json:"publicId"`
	Revision         string `json:"revision"`
	PreviousRevision string `json:"previousRevision,omitempty"`
	UpdatedAt        string `json:"updatedAt"`
}
