package search

// ResultType identifies the kind of message in a search result.
type ResultType string

const (
	ResultChannelMessage ResultType = "channel_message"
	ResultDirectMessage  ResultType = "direct_message"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	ChannelID string     `json:"channelId,omitempty"`
	ChatID    string     `json:"chatId,omitempty"`
	AuthorID  string     `json:"authorId"`
	Snippet   string     `json:"snippet"`
	CreatedAt string     `json:"createdAt,omitempty"`
}

// Query describes a search request. ChannelIDs and ChatIDs scope results to
// conversations the caller can actually see; the app layer computes them from
// memberships before searching. Empty slices mean no hits of that kind.
type Query struct {
	Text        string
	WorkspaceID string
	ChannelIDs  []string
	ChatIDs     []string
	FilterType  ResultType // empty = both kinds
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a message search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// MessageRecord is the data indexed per message. Conversation ids are the
// visibility scope, so no workspace column is needed.
type MessageRecord struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"` // channel_message or direct_message
	ChannelID string `json:"channelId,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	AuthorID  string `json:"authorId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}
