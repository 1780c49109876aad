// Command cli drives the ingestion pipeline from the terminal, without the
// HTTP service or the job queue in between.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mfigueredo/spendy/internal/config"
	"github.com/mfigueredo/spendy/internal/extraction"
	"github.com/mfigueredo/spendy/internal/logger"
	"github.com/mfigueredo/spendy/internal/objstore"
	"github.com/mfigueredo/spendy/internal/pipeline"
	"github.com/mfigueredo/spendy/internal/storage/sqlite"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(log)
	case "transactions":
		runTransactions(log)
	case "statements":
		runStatements(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Spendy CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest        Process a bank statement PDF and its extracted text")
	fmt.Println("  transactions  List a user's persisted transactions")
	fmt.Println("  statements    List a user's uploaded statements")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// openStore opens the configured database, or exits.
func openStore(cfg *config.AppConfig, log zerolog.Logger) *sqlite.Store {
	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open database")
	}
	return store
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	userID := fs.String("user", "", "User the statement belongs to")
	filePath := fs.String("file", "", "Path to the statement PDF")
	pagesPath := fs.String("pages", "", "Path to the extracted text, pages separated by form feeds")
	fs.Parse(os.Args[2:])

	if *userID == "" || *filePath == "" || *pagesPath == "" {
		log.Fatal().Msg("Usage: cli ingest -user ID -file STATEMENT.pdf -pages TEXT.txt")
	}

	cfg := config.Load()

	fileBytes, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read statement")
	}
	pagesBytes, err := os.ReadFile(*pagesPath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *pagesPath).Msg("Failed to read extracted text")
	}
	pages := strings.Split(string(pagesBytes), "\f")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ExtractionTimeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store := openStore(cfg, log)
	defer store.Close()

	objects, err := objstore.NewFSStore(cfg.LocalStorageDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.LocalStorageDir).Msg("Failed to create local file store")
	}

	extractor, err := extraction.NewGeminiExtractor(ctx, cfg.ExtractionModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction client")
	}

	processor := pipeline.NewProcessor(store, objects, extractor, log)

	result, err := processor.Process(ctx, pipeline.Input{
		UserID:      *userID,
		Filename:    *filePath,
		ContentType: "application/pdf",
		FileBytes:   fileBytes,
		Pages:       pages,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	if result.Duplicate {
		fmt.Printf("Already ingested (file ID %d, bank %s).\n", result.FileID, result.Bank)
		return
	}

	fmt.Printf("Ingested %d transactions from %s (file ID %d).\n",
		len(result.Transactions), result.Bank, result.FileID)
	for i, tx := range result.Transactions {
		fmt.Printf("%3d. %s  %-40s %10s %s  %s\n",
			i+1, tx.Date, tx.Description, tx.CanonicalAmount(), tx.Currency, tx.Category)
	}
}

func runTransactions(log zerolog.Logger) {
	fs := flag.NewFlagSet("transactions", flag.ExitOnError)
	userID := fs.String("user", "", "User to list transactions for")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	cfg := config.Load()
	store := openStore(cfg, log)
	defer store.Close()

	txs, err := store.FindTransactionsByUser(context.Background(), *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query transactions")
	}

	fmt.Printf("=== Transactions (%d) ===\n", len(txs))
	for _, tx := range txs {
		fmt.Printf("%s  %-40s %10s %s  %s\n",
			tx.Date, tx.Description, tx.Amount, tx.Currency, tx.Category)
	}
}

func runStatements(log zerolog.Logger) {
	fs := flag.NewFlagSet("statements", flag.ExitOnError)
	userID := fs.String("user", "", "User to list statements for")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	cfg := config.Load()
	store := openStore(cfg, log)
	defer store.Close()

	files, err := store.ListFilesByUser(context.Background(), *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list statements")
	}

	fmt.Printf("=== Statements (%d) ===\n", len(files))
	for _, f := range files {
		fmt.Printf("%4d  %-30s %-12s %s\n", f.ID, f.Name, f.BankName, f.UploadedAt.Format("2006-01-02"))
	}
}
