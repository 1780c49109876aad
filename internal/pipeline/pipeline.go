package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Input is one upload attempt: the raw file bytes plus the per-page text an
// external PDF extractor produced from them.
type Input struct {
	UserID      string
	Filename    string
	ContentType string
	FileBytes   []byte
	Pages       []string

	// StoragePath, when set, points at an already-stored copy of FileBytes.
	// The pipeline records that path instead of uploading a second copy, and
	// leaves the blob in place on failure so the caller can retry against it.
	StoragePath string
}

// Result is the outcome of a processed upload. When Duplicate is true the
// upload matched an existing file by content hash and nothing new was
// extracted or persisted.
type Result struct {
	FileID       int64         `json:"file_id"`
	Duplicate    bool          `json:"duplicate"`
	Bank         string        `json:"bank"`
	Transactions []Transaction `json:"transactions"`
}

// Processor runs the statement ingestion pipeline. Collaborators are
// injected at construction time so tests can substitute fakes.
type Processor struct {
	store     Store
	objects   ObjectStore
	extractor Extractor
	log       zerolog.Logger
}

// NewProcessor creates a pipeline processor.
func NewProcessor(store Store, objects ObjectStore, extractor Extractor, log zerolog.Logger) *Processor {
	return &Processor{
		store:     store,
		objects:   objects,
		extractor: extractor,
		log:       log,
	}
}

// state is the shared state threaded through the pipeline steps of a single
// upload. Uploads never share state with each other.
type state struct {
	input Input

	hash        string
	text        string
	bank        string
	prompt      Prompt
	rawResponse string
	records     []UnvalidatedRecord
	txs         []Transaction
	storagePath string

	fileID    int64
	duplicate bool
	blobOwned bool
}

// step is one named stage of the pipeline.
type step struct {
	name string
	run  func(ctx context.Context, st *state) error
}

// Process runs the full ingestion chain for one upload:
// hash → duplicate check → normalize → identify bank → build prompt →
// extract → parse → validate → store blob → persist.
// The duplicate check short-circuits the chain; every later failure aborts
// the upload and is reported with its stage.
func (p *Processor) Process(ctx context.Context, input Input) (*Result, error) {
	st := &state{input: input}

	steps := []step{
		{"hash", p.hashStep},
		{"duplicate_check", p.duplicateCheckStep},
		{"normalize", p.normalizeStep},
		{"identify_bank", p.identifyBankStep},
		{"build_prompt", p.buildPromptStep},
		{"extract", p.extractStep},
		{"parse", p.parseStep},
		{"validate", p.validateStep},
		{"store_blob", p.storeBlobStep},
		{"persist", p.persistStep},
	}

	for _, s := range steps {
		if err := s.run(ctx, st); err != nil {
			p.cleanupBlob(ctx, st)
			p.log.Error().
				Err(err).
				Str("stage", s.name).
				Str("user_id", input.UserID).
				Str("filename", input.Filename).
				Msg("Pipeline stage failed")
			return nil, fmt.Errorf("pipeline stage %s: %w", s.name, err)
		}
		if st.duplicate {
			p.log.Warn().
				Str("user_id", input.UserID).
				Str("filename", input.Filename).
				Str("hash", st.hash).
				Msg("Duplicate upload detected, skipping extraction")
			return &Result{FileID: st.fileID, Duplicate: true, Bank: st.bank}, nil
		}
	}

	p.log.Info().
		Str("user_id", input.UserID).
		Str("bank", st.bank).
		Int64("file_id", st.fileID).
		Int("transactions", len(st.txs)).
		Msg("Statement ingested")

	return &Result{
		FileID:       st.fileID,
		Bank:         st.bank,
		Transactions: st.txs,
	}, nil
}

func (p *Processor) hashStep(ctx context.Context, st *state) error {
	st.hash = HashBytes(st.input.FileBytes)
	return nil
}

func (p *Processor) duplicateCheckStep(ctx context.Context, st *state) error {
	existing, err := p.store.FindFileByHash(ctx, st.input.UserID, st.hash)
	if err != nil {
		return &Error{Kind: KindPersistence, Stage: "duplicate_check", Err: err}
	}
	if existing != nil {
		st.duplicate = true
		st.fileID = existing.ID
		st.bank = existing.BankName
	}
	return nil
}

func (p *Processor) normalizeStep(ctx context.Context, st *state) error {
	st.text = NormalizeText(st.input.Pages)
	if st.text == "" {
		return &Error{
			Kind:  KindNoTextExtracted,
			Stage: "normalize",
			Err:   errors.New("no text extracted from any page"),
		}
	}
	return nil
}

func (p *Processor) identifyBankStep(ctx context.Context, st *state) error {
	st.bank = IdentifyBank(st.text)
	return nil
}

func (p *Processor) buildPromptStep(ctx context.Context, st *state) error {
	st.prompt = BuildPrompt(st.text)
	return nil
}

func (p *Processor) extractStep(ctx context.Context, st *state) error {
	raw, err := p.extractor.Extract(ctx, st.prompt)
	if err != nil {
		return &Error{Kind: KindExtractionService, Stage: "extract", Err: err}
	}
	if strings.TrimSpace(raw) == "" {
		return &Error{
			Kind:  KindExtractionService,
			Stage: "extract",
			Err:   errors.New("extraction service returned no content"),
		}
	}
	st.rawResponse = raw
	return nil
}

func (p *Processor) parseStep(ctx context.Context, st *state) error {
	records, err := ParseResponse(st.rawResponse)
	if err != nil {
		return err
	}
	st.records = records
	return nil
}

func (p *Processor) validateStep(ctx context.Context, st *state) error {
	txs, err := ValidateRecords(st.records)
	if err != nil {
		return err
	}
	st.txs = txs
	return nil
}

func (p *Processor) storeBlobStep(ctx context.Context, st *state) error {
	if st.input.StoragePath != "" {
		st.storagePath = st.input.StoragePath
		return nil
	}

	objectName := fmt.Sprintf("statements/%s/%s-%s",
		st.input.UserID, uuid.NewString(), sanitizeFilename(st.input.Filename))

	path, err := p.objects.Put(ctx, objectName, st.input.FileBytes, st.input.ContentType)
	if err != nil {
		return &Error{Kind: KindPersistence, Stage: "store_blob", Err: err}
	}
	st.storagePath = path
	st.blobOwned = true
	return nil
}

func (p *Processor) persistStep(ctx context.Context, st *state) error {
	file := &FileRecord{
		UserID:    st.input.UserID,
		Name:      st.input.Filename,
		Path:      st.storagePath,
		DataHash:  st.hash,
		Extension: strings.TrimPrefix(filepath.Ext(st.input.Filename), "."),
		BankName:  st.bank,
	}

	fileID, err := p.store.SaveStatement(ctx, file, st.txs)
	if errors.Is(err, ErrDuplicateFile) {
		// A concurrent identical upload won the insert race. Treat this
		// attempt as a duplicate rather than a fatal error.
		st.duplicate = true
		st.txs = nil
		p.cleanupBlob(ctx, st)
		if existing, ferr := p.store.FindFileByHash(ctx, st.input.UserID, st.hash); ferr == nil && existing != nil {
			st.fileID = existing.ID
			st.bank = existing.BankName
		}
		return nil
	}
	if err != nil {
		return &Error{Kind: KindPersistence, Stage: "persist", Err: err}
	}

	st.fileID = fileID
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFilename makes an uploaded filename safe for use in an object name.
func sanitizeFilename(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(name, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "statement"
	}
	return strings.ToLower(s)
}

// cleanupBlob removes a blob the pipeline itself stored after a failure past
// the store_blob stage, so storage doesn't accumulate files with no statement
// record. Blobs stored by the caller are left for the caller to manage. Best
// effort.
func (p *Processor) cleanupBlob(ctx context.Context, st *state) {
	if !st.blobOwned || st.storagePath == "" || st.fileID != 0 {
		return
	}
	if err := p.objects.Delete(ctx, st.storagePath); err != nil {
		p.log.Warn().Err(err).Str("path", st.storagePath).Msg("Failed to delete orphaned blob")
	}
	st.storagePath = ""
}
