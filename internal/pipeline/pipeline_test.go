package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mfigueredo/spendy/internal/pipeline"
)

// mockStore is a hand-written Store fake in the spirit of the package's
// other mocks: behavior is overridden per test through the Func fields.
type mockStore struct {
	FindFileByHashFunc         func(ctx context.Context, userID, hash string) (*pipeline.FileRecord, error)
	SaveStatementFunc          func(ctx context.Context, file *pipeline.FileRecord, txs []pipeline.Transaction) (int64, error)
	FindTransactionsByUserFunc func(ctx context.Context, userID string) ([]pipeline.StoredTransaction, error)

	savedFiles []*pipeline.FileRecord
	savedTxs   [][]pipeline.Transaction
}

func (m *mockStore) FindFileByHash(ctx context.Context, userID, hash string) (*pipeline.FileRecord, error) {
	if m.FindFileByHashFunc != nil {
		return m.FindFileByHashFunc(ctx, userID, hash)
	}
	return nil, nil
}

func (m *mockStore) InsertFile(ctx context.Context, file *pipeline.FileRecord) (int64, error) {
	return 0, errors.New("not used by the pipeline directly")
}

func (m *mockStore) InsertTransactions(ctx context.Context, userID string, fileID int64, txs []pipeline.Transaction) error {
	return errors.New("not used by the pipeline directly")
}

func (m *mockStore) SaveStatement(ctx context.Context, file *pipeline.FileRecord, txs []pipeline.Transaction) (int64, error) {
	m.savedFiles = append(m.savedFiles, file)
	m.savedTxs = append(m.savedTxs, txs)
	if m.SaveStatementFunc != nil {
		return m.SaveStatementFunc(ctx, file, txs)
	}
	return 1, nil
}

func (m *mockStore) FindTransactionsByUser(ctx context.Context, userID string) ([]pipeline.StoredTransaction, error) {
	if m.FindTransactionsByUserFunc != nil {
		return m.FindTransactionsByUserFunc(ctx, userID)
	}
	return nil, nil
}

type mockExtractor struct {
	ExtractFunc func(ctx context.Context, prompt pipeline.Prompt) (string, error)
	calls       int
	lastPrompt  pipeline.Prompt
}

func (m *mockExtractor) Extract(ctx context.Context, prompt pipeline.Prompt) (string, error) {
	m.calls++
	m.lastPrompt = prompt
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, prompt)
	}
	return "[]", nil
}

type mockObjectStore struct {
	PutFunc    func(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	puts       int
	deleted    []string
	lastObject string
}

func (m *mockObjectStore) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	m.puts++
	m.lastObject = objectName
	if m.PutFunc != nil {
		return m.PutFunc(ctx, objectName, data, contentType)
	}
	return "local/" + objectName, nil
}

func (m *mockObjectStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (m *mockObjectStore) Delete(ctx context.Context, path string) error {
	m.deleted = append(m.deleted, path)
	return nil
}

func newTestProcessor(store *mockStore, objects *mockObjectStore, extractor *mockExtractor) *pipeline.Processor {
	return pipeline.NewProcessor(store, objects, extractor, zerolog.Nop())
}

func testInput() pipeline.Input {
	return pipeline.Input{
		UserID:      "user-1",
		Filename:    "resumen-enero.pdf",
		ContentType: "application/pdf",
		FileBytes:   []byte("%PDF-1.4 resumen enero"),
		Pages: []string{
			"Resumen Banco Galicia",
			"01/15 Supermercado 1.234,56 Pago anterior 500,00",
		},
	}
}

func TestProcess_EndToEnd(t *testing.T) {
	store := &mockStore{}
	objects := &mockObjectStore{}
	extractor := &mockExtractor{
		ExtractFunc: func(ctx context.Context, prompt pipeline.Prompt) (string, error) {
			return `[{"date":"2025-01-15","description":"Supermercado","amount":1234.56,"currency":"ARS","category":"Supermercado"}]`, nil
		},
	}

	result, err := newTestProcessor(store, objects, extractor).Process(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.Duplicate {
		t.Error("fresh upload reported as duplicate")
	}
	if result.Bank != "Galicia" {
		t.Errorf("bank = %q, want Galicia", result.Bank)
	}
	if len(result.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(result.Transactions))
	}

	tx := result.Transactions[0]
	if tx.Date != "2025-01-15" || tx.Description != "Supermercado" || tx.Amount != 1234.56 {
		t.Errorf("unexpected transaction: %+v", tx)
	}

	// Prompt must embed both page fragments of the normalized text.
	for _, fragment := range []string{"Resumen Banco Galicia", "Pago anterior 500,00"} {
		if !strings.Contains(extractor.lastPrompt.User, fragment) {
			t.Errorf("prompt missing fragment %q", fragment)
		}
	}

	if len(store.savedFiles) != 1 {
		t.Fatalf("expected 1 saved file, got %d", len(store.savedFiles))
	}
	file := store.savedFiles[0]
	if file.BankName != "Galicia" || file.UserID != "user-1" || file.Extension != "pdf" {
		t.Errorf("unexpected file record: %+v", file)
	}
	if file.DataHash != pipeline.HashBytes(testInput().FileBytes) {
		t.Error("file record hash does not match the uploaded bytes")
	}
	if objects.puts != 1 {
		t.Errorf("expected 1 blob upload, got %d", objects.puts)
	}
}

func TestProcess_DuplicateShortCircuits(t *testing.T) {
	store := &mockStore{
		FindFileByHashFunc: func(ctx context.Context, userID, hash string) (*pipeline.FileRecord, error) {
			return &pipeline.FileRecord{ID: 42, UserID: userID, DataHash: hash, BankName: "Santander"}, nil
		},
	}
	objects := &mockObjectStore{}
	extractor := &mockExtractor{}

	result, err := newTestProcessor(store, objects, extractor).Process(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !result.Duplicate {
		t.Error("expected duplicate=true")
	}
	if result.FileID != 42 {
		t.Errorf("file_id = %d, want the existing file's 42", result.FileID)
	}
	if extractor.calls != 0 {
		t.Errorf("extractor was called %d times on a duplicate", extractor.calls)
	}
	if objects.puts != 0 {
		t.Errorf("blob was uploaded %d times on a duplicate", objects.puts)
	}
	if len(store.savedFiles) != 0 {
		t.Error("duplicate upload persisted a new file")
	}
}

func TestProcess_NoTextExtracted(t *testing.T) {
	store := &mockStore{}
	objects := &mockObjectStore{}
	extractor := &mockExtractor{}

	input := testInput()
	input.Pages = []string{"", "   "}

	_, err := newTestProcessor(store, objects, extractor).Process(context.Background(), input)
	if err == nil {
		t.Fatal("expected error for empty pages")
	}
	if pipeline.KindOf(err) != pipeline.KindNoTextExtracted {
		t.Errorf("error kind = %q, want %q", pipeline.KindOf(err), pipeline.KindNoTextExtracted)
	}
	if extractor.calls != 0 {
		t.Error("extraction service was invoked despite empty text")
	}
}

func TestProcess_ExtractionServiceFailure(t *testing.T) {
	tests := []struct {
		name        string
		extractFunc func(ctx context.Context, prompt pipeline.Prompt) (string, error)
	}{
		{
			name: "call error",
			extractFunc: func(ctx context.Context, prompt pipeline.Prompt) (string, error) {
				return "", errors.New("model overloaded")
			},
		},
		{
			name: "empty response",
			extractFunc: func(ctx context.Context, prompt pipeline.Prompt) (string, error) {
				return "   ", nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			extractor := &mockExtractor{ExtractFunc: tt.extractFunc}

			_, err := newTestProcessor(store, &mockObjectStore{}, extractor).Process(context.Background(), testInput())
			if err == nil {
				t.Fatal("expected error")
			}
			if pipeline.KindOf(err) != pipeline.KindExtractionService {
				t.Errorf("error kind = %q, want %q", pipeline.KindOf(err), pipeline.KindExtractionService)
			}
			if len(store.savedFiles) != 0 {
				t.Error("failed extraction persisted a file")
			}
		})
	}
}

func TestProcess_MalformedResponseNothingPersisted(t *testing.T) {
	store := &mockStore{}
	objects := &mockObjectStore{}
	extractor := &mockExtractor{
		ExtractFunc: func(ctx context.Context, prompt pipeline.Prompt) (string, error) {
			return "I cannot help with that.", nil
		},
	}

	_, err := newTestProcessor(store, objects, extractor).Process(context.Background(), testInput())
	if err == nil {
		t.Fatal("expected error")
	}
	if pipeline.KindOf(err) != pipeline.KindMalformedResponse {
		t.Errorf("error kind = %q, want %q", pipeline.KindOf(err), pipeline.KindMalformedResponse)
	}
	if len(store.savedFiles) != 0 {
		t.Error("malformed response persisted a file")
	}
	if objects.puts != 0 {
		t.Error("malformed response uploaded a blob")
	}
}

func TestProcess_ValidationFailureNothingPersisted(t *testing.T) {
	store := &mockStore{}
	objects := &mockObjectStore{}
	extractor := &mockExtractor{
		ExtractFunc: func(ctx context.Context, prompt pipeline.Prompt) (string, error) {
			return `[
				{"date":"2025-01-15","description":"ok","amount":10.0,"currency":"ARS","category":"Comida"},
				{"date":"2025-13-01","description":"bad month","amount":10.0,"currency":"ARS","category":"Comida"}
			]`, nil
		},
	}

	_, err := newTestProcessor(store, objects, extractor).Process(context.Background(), testInput())
	if err == nil {
		t.Fatal("expected error")
	}
	if pipeline.KindOf(err) != pipeline.KindValidation {
		t.Errorf("error kind = %q, want %q", pipeline.KindOf(err), pipeline.KindValidation)
	}
	if len(store.savedFiles) != 0 {
		t.Error("invalid batch persisted a file")
	}
}

func TestProcess_PersistRaceTranslatedToDuplicate(t *testing.T) {
	store := &mockStore{
		SaveStatementFunc: func(ctx context.Context, file *pipeline.FileRecord, txs []pipeline.Transaction) (int64, error) {
			return 0, pipeline.ErrDuplicateFile
		},
		FindFileByHashFunc: func(ctx context.Context, userID, hash string) (*pipeline.FileRecord, error) {
			return nil, nil // loses the first check, wins nothing on re-check either
		},
	}
	objects := &mockObjectStore{}
	extractor := &mockExtractor{
		ExtractFunc: func(ctx context.Context, prompt pipeline.Prompt) (string, error) {
			return `[{"date":"2025-01-15","description":"Supermercado","amount":10.0,"currency":"ARS","category":"Comida"}]`, nil
		},
	}

	result, err := newTestProcessor(store, objects, extractor).Process(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unique-constraint race must not be fatal: %v", err)
	}
	if !result.Duplicate {
		t.Error("expected the race loser to see duplicate=true")
	}
	if len(objects.deleted) != 1 {
		t.Errorf("expected the orphaned blob to be deleted, got %d deletions", len(objects.deleted))
	}
}

func TestProcess_PersistenceFailureCleansBlob(t *testing.T) {
	store := &mockStore{
		SaveStatementFunc: func(ctx context.Context, file *pipeline.FileRecord, txs []pipeline.Transaction) (int64, error) {
			return 0, errors.New("disk full")
		},
	}
	objects := &mockObjectStore{}
	extractor := &mockExtractor{
		ExtractFunc: func(ctx context.Context, prompt pipeline.Prompt) (string, error) {
			return `[{"date":"2025-01-15","description":"Supermercado","amount":10.0,"currency":"ARS","category":"Comida"}]`, nil
		},
	}

	_, err := newTestProcessor(store, objects, extractor).Process(context.Background(), testInput())
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if pipeline.KindOf(err) != pipeline.KindPersistence {
		t.Errorf("error kind = %q, want %q", pipeline.KindOf(err), pipeline.KindPersistence)
	}
	if len(objects.deleted) != 1 {
		t.Errorf("expected orphaned blob cleanup, got %d deletions", len(objects.deleted))
	}
}
