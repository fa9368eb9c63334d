package types

// Document is the unit of ingestion. It is transient: only its chunks are
// persisted.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// VectorMetadata travels with an embedding into the vector index. It never
// carries chunk text; full text lives only in the blob store.
type VectorMetadata struct {
	DocID      string
	Title      string
	ChunkIndex int
	BlobKey    string
}

// VectorRecord is one upsert unit for the vector index.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata VectorMetadata
}

// VectorMatch is one similarity-query result.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata VectorMetadata
}

// Snippet is a retrieved chunk resolved from the blob store, tagged with the
// stable reference index it carries in the generation prompt.
type Snippet struct {
	Ref        int
	Title      string
	DocID      string
	ChunkIndex int
	Text       string
}

// Source is the client-facing view of a snippet: no text, no blob key.
type Source struct {
	Ref        int    `json:"ref"`
	Title      string `json:"title"`
	DocID      string `json:"docId"`
	ChunkIndex int    `json:"chunkIndex"`
}
