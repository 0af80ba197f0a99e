package queue

const (
	TypeDocumentIngest = "document:ingest"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type DocumentIngestPayload struct {
	DocumentID string `json:"document_id"`
}
