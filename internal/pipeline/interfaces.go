package pipeline

import "context"

// Extractor is the external extraction-service collaborator. It receives the
// full instruction payload and returns the raw textual response, which may
// wrap the JSON array in prose or code fences despite the instructions.
type Extractor interface {
	Extract(ctx context.Context, prompt Prompt) (string, error)
}

// Store is the persistence boundary the pipeline calls. Implementations must
// enforce a uniqueness constraint on (userID, dataHash) so that two
// concurrent identical uploads resolve to one success and one duplicate.
type Store interface {
	// FindFileByHash returns the existing file for (userID, hash), or nil.
	FindFileByHash(ctx context.Context, userID, hash string) (*FileRecord, error)

	// InsertFile inserts a file record and returns its ID. A uniqueness
	// violation on (userID, dataHash) is reported as an error wrapping
	// ErrDuplicateFile.
	InsertFile(ctx context.Context, file *FileRecord) (int64, error)

	// InsertTransactions inserts validated transactions for a file.
	InsertTransactions(ctx context.Context, userID string, fileID int64, txs []Transaction) error

	// SaveStatement inserts the file record and its transactions as a single
	// atomic unit. Returns the new file ID, or a duplicate error when the
	// (userID, dataHash) constraint is violated.
	SaveStatement(ctx context.Context, file *FileRecord, txs []Transaction) (int64, error)

	// FindTransactionsByUser returns all persisted transactions for a user,
	// newest first.
	FindTransactionsByUser(ctx context.Context, userID string) ([]StoredTransaction, error)
}

// ObjectStore holds the raw uploaded statement bytes.
type ObjectStore interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	Fetch(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}
