package models

// Search kinds a query can be routed to.
const (
	SearchWeb    = "web"
	SearchImages = "images"
	SearchVideos = "videos"
)

// SearchQuery is one rewritten query of a user's request. A request such as
// "find recent articles about Go and a video on generics" splits into one
// query per backend, which makes it a natural collection model.
type SearchQuery struct {
	Title string `json:"title" validate:"required" jsonschema:"description=Short title of the search"`
	Query string `json:"query" validate:"required" jsonschema:"description=The search query string."`
	Type  string `json:"type" validate:"required,oneof=web images videos" jsonschema:"description=Where to run the query"`
}

// Instructions describes how the request should be split.
func (SearchQuery) Instructions() string {
	return "Split the user's request into independent searches, one call per search."
}
