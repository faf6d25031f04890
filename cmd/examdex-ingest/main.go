// examdex-ingest loads extracted paper text into the store without going
// through the HTTP API. It reads a JSON manifest describing documents and
// their text files, registers papers and documents, chunks and embeds.
//
// Usage:
//
//	examdex-ingest -manifest papers.json
//	examdex-ingest -text 9701_s21_qp_2.txt -subject 9701 -level AS -year 2021 -session summer -paper 2 -file-type QP
//
// Re-running over the same manifest is safe: documents are immutable, and
// fragments already embedded are skipped.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/examdex/examdex/internal/config"
	dbRedis "github.com/examdex/examdex/internal/db/redis"
	"github.com/examdex/examdex/internal/domain"
	"github.com/examdex/examdex/internal/domain/chunk"
	logpkg "github.com/examdex/examdex/internal/logger"
	"github.com/examdex/examdex/internal/metrics"
	"github.com/examdex/examdex/internal/repository/embcache"
	fragmentrepo "github.com/examdex/examdex/internal/repository/fragment"
	paperrepo "github.com/examdex/examdex/internal/repository/paper"
	"github.com/examdex/examdex/internal/transport/ollama"
	ingestuc "github.com/examdex/examdex/internal/usecase/ingest"
)

type cliFlags struct {
	manifest     string
	offset       int
	limit        int
	chunkSize    int
	chunkOverlap int
	fragmentCap  int
	concurrency  int
	reset        bool

	// single-document mode
	textPath    string
	subject     string
	level       string
	year        int
	session     string
	paper       int
	fileType    string
	storagePath string
}

func parseFlags() cliFlags {
	f := cliFlags{}
	flag.StringVar(&f.manifest, "manifest", "", "path to JSON manifest of documents")
	flag.IntVar(&f.offset, "offset", 0, "skip the first N manifest entries")
	flag.IntVar(&f.limit, "limit", 0, "ingest at most N manifest entries (0=all)")
	flag.IntVar(&f.chunkSize, "chunk-size", 0, "chunk size override (0=config default)")
	flag.IntVar(&f.chunkOverlap, "chunk-overlap", 0, "chunk overlap override (0=config default)")
	flag.IntVar(&f.fragmentCap, "fragment-cap", 0, "per-document fragment cap override (0=config default)")
	flag.IntVar(&f.concurrency, "concurrency", 0, "embedding workers (0=config default)")
	flag.BoolVar(&f.reset, "reset", false, "drop and rebuild the fragment index before ingesting")
	flag.StringVar(&f.textPath, "text", "", "single document: path to extracted text file")
	flag.StringVar(&f.subject, "subject", "", "single document: syllabus code, e.g. 9701")
	flag.StringVar(&f.level, "level", "", "single document: level, e.g. AS or A2")
	flag.IntVar(&f.year, "year", 0, "single document: exam year")
	flag.StringVar(&f.session, "session", "", "single document: session, e.g. summer")
	flag.IntVar(&f.paper, "paper", 0, "single document: paper number")
	flag.StringVar(&f.fileType, "file-type", "", "single document: QP, MS, ER or GT")
	flag.StringVar(&f.storagePath, "storage-path", "", "single document: original file location")
	flag.Parse()
	return f
}

// manifestEntry is one document in the manifest file.
type manifestEntry struct {
	TextPath    string `json:"text_path"`
	Subject     string `json:"subject"`
	Level       string `json:"level"`
	Year        int    `json:"year"`
	Session     string `json:"session"`
	PaperNumber int    `json:"paper_number"`
	FileType    string `json:"file_type"`
	StoragePath string `json:"storage_path"`
}

type manifest struct {
	Documents []manifestEntry `json:"documents"`
}

func main() {
	_ = godotenv.Load()
	flags := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, flags, logger); err != nil {
		logger.Fatal("Ingest failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, flags cliFlags, logger *zap.Logger) error {
	if flags.manifest == "" && flags.textPath == "" {
		return errors.New("nothing to ingest: pass -manifest or -text with metadata flags")
	}

	entries, err := collectEntries(flags)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		logger.Info("No documents selected, nothing to do")
		return nil
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return err
	}

	metrics.RegisterEmbeddingMetrics()

	baseEmbedder := ollama.NewEmbedder(&ollama.Config{
		BaseURL:    cfg.Embedding.ServiceURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:     logger,
	})
	embedder := embcache.New(baseEmbedder, store, cfg.Embedding.Model, metrics.EmbeddingCacheTotal, logger)

	fragRepo := fragmentrepo.New(store)
	papRepo := paperrepo.New(store)

	if flags.reset {
		if err := fragRepo.ResetIndex(ctx); err != nil {
			return err
		}
		logger.Info("Fragment index dropped, rebuilding")
	}
	if err := fragRepo.EnsureIndex(ctx, cfg.Embedding.Dimensions, fragmentrepo.HNSWConfig{
		M:           cfg.Retrieval.HNSWM,
		EFConstruct: cfg.Retrieval.HNSWEFConstruct,
	}); err != nil {
		return fmt.Errorf("fragment index: %w", err)
	}
	if err := papRepo.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("document index: %w", err)
	}

	concurrency := pick(flags.concurrency, cfg.Ingest.Concurrency)
	chunker := chunk.New(
		pick(flags.chunkSize, cfg.Ingest.ChunkSize),
		pick(flags.chunkOverlap, cfg.Ingest.ChunkOverlap),
		pick(flags.fragmentCap, cfg.Ingest.FragmentCap),
	)
	svc := ingestuc.New(fragRepo, embedder, chunker, cfg.Embedding.Model, logger).
		WithConcurrency(concurrency).
		WithMinDocChars(cfg.Ingest.MinDocChars)

	start := time.Now()
	var totalFragments, totalEmbeddings, failed int

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := ingestEntry(ctx, entry, papRepo, svc, logger)
		if err != nil {
			logger.Error("Document failed",
				zap.String("text_path", entry.TextPath),
				zap.Error(err))
			failed++
			continue
		}
		totalFragments += res.FragmentsCreated
		totalEmbeddings += res.EmbeddingsCreated
	}

	logger.Info("Ingest complete",
		zap.Int("documents", len(entries)-failed),
		zap.Int("failed", failed),
		zap.Int("fragments_created", totalFragments),
		zap.Int("embeddings_created", totalEmbeddings),
		zap.Duration("elapsed", time.Since(start)))

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(entries))
	}
	return nil
}

// pick returns the flag override when set, otherwise the config value.
func pick(flagVal, cfgVal int) int {
	if flagVal > 0 {
		return flagVal
	}
	return cfgVal
}

func collectEntries(flags cliFlags) ([]manifestEntry, error) {
	if flags.manifest != "" {
		data, err := os.ReadFile(flags.manifest)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
		docs := m.Documents
		if flags.offset > 0 {
			if flags.offset >= len(docs) {
				return nil, nil
			}
			docs = docs[flags.offset:]
		}
		if flags.limit > 0 && flags.limit < len(docs) {
			docs = docs[:flags.limit]
		}
		return docs, nil
	}

	if flags.textPath == "" {
		return nil, nil
	}
	return []manifestEntry{{
		TextPath:    flags.textPath,
		Subject:     flags.subject,
		Level:       flags.level,
		Year:        flags.year,
		Session:     flags.session,
		PaperNumber: flags.paper,
		FileType:    flags.fileType,
		StoragePath: flags.storagePath,
	}}, nil
}

func ingestEntry(
	ctx context.Context,
	entry manifestEntry,
	papers *paperrepo.Repo,
	svc *ingestuc.Service,
	logger *zap.Logger,
) (ingestuc.Result, error) {
	doc, err := documentFromEntry(entry)
	if err != nil {
		return ingestuc.Result{}, err
	}

	text, err := os.ReadFile(entry.TextPath)
	if err != nil {
		return ingestuc.Result{}, fmt.Errorf("read text: %w", err)
	}

	paper := domain.Paper{
		ID:          doc.PaperID,
		SubjectCode: doc.SubjectCode,
		Level:       doc.Level,
		Year:        doc.Year,
		Session:     doc.Session,
		PaperNumber: doc.PaperNumber,
	}
	if err := papers.SavePaper(ctx, paper); err != nil {
		return ingestuc.Result{}, fmt.Errorf("save paper: %w", err)
	}
	if err := papers.SaveDocument(ctx, doc); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return ingestuc.Result{}, fmt.Errorf("save document: %w", err)
	}

	res, err := svc.IngestText(ctx, doc, string(text))
	if err != nil {
		return ingestuc.Result{}, err
	}

	logger.Info("Document ingested",
		zap.String("document_id", doc.ID),
		zap.String("file_type", string(doc.FileType)),
		zap.Int("fragments", res.FragmentsCreated),
		zap.Int("embeddings", res.EmbeddingsCreated))
	return res, nil
}

// documentFromEntry validates an entry and derives deterministic IDs so that
// re-runs of the same manifest hit the same rows.
func documentFromEntry(entry manifestEntry) (domain.SourceDocument, error) {
	ft := domain.FileType(strings.ToUpper(entry.FileType))
	if !domain.ValidFileType(ft) {
		return domain.SourceDocument{}, fmt.Errorf("%s: file_type must be one of QP, MS, ER, GT", entry.TextPath)
	}
	if entry.Subject == "" || entry.Year == 0 {
		return domain.SourceDocument{}, fmt.Errorf("%s: subject and year are required", entry.TextPath)
	}

	paperID := fmt.Sprintf("%s-%d-%s-p%d",
		entry.Subject, entry.Year, strings.ToLower(entry.Session), entry.PaperNumber)
	docID := paperID + "-" + strings.ToLower(entry.FileType)

	return domain.SourceDocument{
		ID:          docID,
		PaperID:     paperID,
		FileType:    ft,
		StoragePath: entry.StoragePath,
		SubjectCode: entry.Subject,
		Level:       entry.Level,
		Year:        entry.Year,
		Session:     entry.Session,
		PaperNumber: entry.PaperNumber,
	}, nil
}
