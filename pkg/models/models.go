package models

import "strconv"

// Chunk is one window of a source document, in emission order.
type Chunk struct {
	Text     string `json:"text"`
	Index    int    `json:"index"`
	SourceID string `json:"source_id"`
}

// RecordID derives the stored id of a chunk: "<source_id>_<index>".
func (c Chunk) RecordID() string {
	return c.SourceID + "_" + strconv.Itoa(c.Index)
}

// Metadata keys written with every record.
const (
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
)

// Record is what gets inserted into the vector store.
type Record struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"-"`
}

// NewRecord builds the record for a chunk and its embedding.
func NewRecord(c Chunk, embedding []float32) Record {
	return Record{
		ID:   c.RecordID(),
		Text: c.Text,
		Metadata: map[string]string{
			MetaSource:     c.SourceID,
			MetaChunkIndex: strconv.Itoa(c.Index),
		},
		Embedding: embedding,
	}
}

type SearchResult struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

type ChatRequest struct {
	Question string `json:"question"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}
