package model

type ChunkRecord struct {
	Content      string `json:"content"`
	AppID        string `json:"app_id"`
	DocumentPath string `json:"document_path"`
}

// StoredObject is a chunk record as persisted by the vector store. ID is
// assigned by the store; Vector is always supplied by the caller.
type StoredObject struct {
	ID     string      `json:"id"`
	Record ChunkRecord `json:"record"`
	Vector []float32   `json:"-"`
}

type SearchResult struct {
	UUID         string  `json:"uuid"`
	Content      string  `json:"content"`
	AppID        string  `json:"app_id"`
	DocumentPath string  `json:"document_path"`
	Distance     float64 `json:"distance"`
}
