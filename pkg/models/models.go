package models

import "time"

// ChunkMeta is the metadata stored alongside every chunk vector.
type ChunkMeta struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	FilePath    string `json:"file_path"`
}

type Chunk struct {
	ChunkMeta
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchHit is a chunk returned by a similarity query. Distance is cosine
// distance, lower is closer.
type SearchHit struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

type Source struct {
	Filename       string  `json:"filename"`
	ChunkIndex     int     `json:"chunk_index"`
	TotalChunks    int     `json:"total_chunks"`
	RelevanceScore float64 `json:"relevance_score"`
}

// QueryResult is the answer to a single question. It is never persisted.
type QueryResult struct {
	Answer                string                 `json:"answer"`
	Confidence            float64                `json:"confidence"`
	MissingInfo           []string               `json:"missing_info"`
	EnrichmentSuggestions []string               `json:"enrichment_suggestions"`
	Sources               []Source               `json:"sources"`
	AutoEnrichment        []EnrichmentSuggestion `json:"auto_enrichment,omitempty"`
}

type EnrichmentSuggestion struct {
	MissingTopic     string   `json:"missing_topic"`
	SuggestedSources []string `json:"suggested_sources"`
	SearchQueries    []string `json:"search_queries"`
}

type IngestResult struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	TotalChunks int    `json:"total_chunks"`
}

type DeleteResult struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	DeletedChunks int    `json:"deleted_chunks"`
}

type ChunkRef struct {
	ChunkIndex  int `json:"chunk_index"`
	TotalChunks int `json:"total_chunks"`
}

// DocumentSummary groups the stored chunks of one ingested document.
type DocumentSummary struct {
	DocumentID  string     `json:"document_id"`
	Filename    string     `json:"filename"`
	TotalChunks int        `json:"total_chunks"`
	FilePath    string     `json:"file_path"`
	Chunks      []ChunkRef `json:"chunks"`
}

type Feedback struct {
	Query    string `json:"query"`
	Answer   string `json:"answer"`
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

type FeedbackAck struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ExternalSource is a passage fetched from a public reference service.
type ExternalSource struct {
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	URL        string    `json:"url"`
	Confidence float64   `json:"confidence"`
	Type       string    `json:"type"`
	FetchedAt  time.Time `json:"fetched_at"`
}

type EnrichmentResult struct {
	Status        string `json:"status"`
	Filename      string `json:"filename,omitempty"`
	ChunksAdded   int    `json:"chunks_added,omitempty"`
	Query         string `json:"query"`
	ContentLength int    `json:"content_length,omitempty"`
	Sources       int    `json:"sources,omitempty"`
	Error         string `json:"error,omitempty"`
}
