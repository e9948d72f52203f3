package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	MimeType      string         `json:"mime_type"`
	StoragePath   string         `json:"storage_path"`
	Status        DocumentStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
	ChunkCount    int            `json:"chunk_count"`
	EntityCount   int            `json:"entity_count"`
	RelationCount int            `json:"relation_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IngestEvent announces an uploaded document to the processing
// workers. IngestedAt lets a consumer measure queue lag; a zero value
// means the producer did not stamp the event.
type IngestEvent struct {
	DocumentID string    `json:"document_id"`
	IngestedAt time.Time `json:"ingested_at"`
}

// IngestStats summarizes what one processed document contributed to
// the vector index and the knowledge graph.
type IngestStats struct {
	Chunks    int `json:"chunks_created"`
	Entities  int `json:"entities_extracted"`
	Relations int `json:"relations_extracted"`
}
