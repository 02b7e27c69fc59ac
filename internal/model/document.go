package model

// IndexedDocument is the catalog row of one indexed upload, keyed by the md5
// of the file bytes.
type IndexedDocument struct {
	ContentHash string `json:"content_hash"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ChunkCount  int    `json:"chunk_count"`
	TokenUsage  int    `json:"token_usage"`
	Ctime       int64  `json:"ctime"`
	Atime       int64  `json:"atime"`
}
