package domain

// ActionJSON is the serialisable view of a single action.
type ActionJSON struct {
	ID        string   `json:"id"`
	Command   string   `json:"command"`
	Status    Status   `json:"status"`
	Type      string   `json:"type"`
	Payload   any      `json:"payload,omitempty"`
	Disabled  bool     `json:"disabled"`
	Children  []string `json:"children"`
	Next      string   `json:"next,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// TreeNodeJSON is an action plus its nested children.
type TreeNodeJSON struct {
	ID       string         `json:"id"`
	Command  string         `json:"command"`
	Status   Status         `json:"status"`
	Type     string         `json:"type"`
	Payload  any            `json:"payload,omitempty"`
	Disabled bool           `json:"disabled"`
	Next     string         `json:"next,omitempty"`
	Children []TreeNodeJSON `json:"children"`
}

// HistoryJSON is the serialisable view of a history tree. List holds the
// active branch ids ordered from root to head.
type HistoryJSON struct {
	Head string        `json:"head,omitempty"`
	Root string        `json:"root,omitempty"`
	List []string      `json:"list"`
	Tree *TreeNodeJSON `json:"tree,omitempty"`
	Size int           `json:"size"`
}
