package service

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/filestore"
	"github.com/xxxsen/ragchat/internal/loader"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/vectorstore"
)

// Inserter is the write side of the vector store gateway.
type Inserter interface {
	InsertBatch(ctx context.Context, records []model.ChunkRecord) (*vectorstore.InsertReport, error)
}

type IngestInput struct {
	Name  string
	Data  []byte
	AppID string
}

type IngestResult struct {
	DocumentPath string                    `json:"document_path"`
	Chunks       int                       `json:"chunks"`
	Report       *vectorstore.InsertReport `json:"report"`
}

type IngestService struct {
	files    filestore.Store
	inserter Inserter
	chunk    config.ChunkConfig
}

// NewIngestService builds the ingestion path. files may be nil, in which case
// uploads are not kept and the upload name is used as the document path.
func NewIngestService(files filestore.Store, inserter Inserter, chunk config.ChunkConfig) *IngestService {
	return &IngestService{files: files, inserter: inserter, chunk: chunk}
}

func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	name := strings.TrimSpace(filepath.Base(in.Name))
	if name == "" || name == "." {
		return nil, fmt.Errorf("document name is required: %w", appErr.ErrInvalid)
	}
	if !loader.Supported(name) {
		return nil, fmt.Errorf("unsupported document type %s: %w", filepath.Ext(name), appErr.ErrInvalid)
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("document %s is empty: %w", name, appErr.ErrInvalid)
	}
	text, err := loader.Extract(name, in.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrInvalid, err)
	}
	if s.files == nil {
		return s.IngestText(ctx, text, name, in.AppID)
	}
	docPath := filestore.NewKey(name)
	if err := s.files.Save(ctx, docPath, bytes.NewReader(in.Data), int64(len(in.Data))); err != nil {
		return nil, fmt.Errorf("store document %s: %w", name, err)
	}
	logutil.GetLogger(ctx).Info("document received",
		zap.String("name", name),
		zap.String("document_path", docPath),
		zap.Int("bytes", len(in.Data)),
	)
	res, err := s.IngestText(ctx, text, docPath, in.AppID)
	if err != nil {
		// nothing references the stored copy once the whole batch failed
		if derr := s.files.Delete(ctx, docPath); derr != nil {
			logutil.GetLogger(ctx).Warn("remove orphaned document failed",
				zap.String("document_path", docPath), zap.Error(derr))
		}
		return nil, err
	}
	return res, nil
}

// IngestText chunks text under sourceID and inserts the chunks.
func (s *IngestService) IngestText(ctx context.Context, text, sourceID, appID string) (*IngestResult, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, fmt.Errorf("source id is required: %w", appErr.ErrInvalid)
	}
	if appID == "" {
		appID = s.chunk.AppID
	}
	records := ai.Chunk(text, sourceID,
		ai.WithChunkSize(s.chunk.Size),
		ai.WithOverlap(s.chunk.OverlapWords()),
		ai.WithAppID(appID),
	)
	if len(records) == 0 {
		return nil, fmt.Errorf("no text in %s: %w", sourceID, appErr.ErrInvalid)
	}
	report, err := s.inserter.InsertBatch(ctx, records)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("document ingested",
		zap.String("document_path", sourceID),
		zap.Int("chunks", len(records)),
		zap.Int("failed", len(report.Failed())),
	)
	return &IngestResult{DocumentPath: sourceID, Chunks: len(records), Report: report}, nil
}

// IngestSample inserts the demo rows as-is, one object per row.
func (s *IngestService) IngestSample(ctx context.Context) (*vectorstore.InsertReport, error) {
	return s.inserter.InsertBatch(ctx, SampleRecords())
}

func SampleRecords() []model.ChunkRecord {
	contents := []string{
		"I like strawberry coconut juice",
		"I hate strawberry coconut juice",
		"I like strawberry but not coconut juice",
		"I like strawberry and coconut but I hate juice",
	}
	out := make([]model.ChunkRecord, 0, len(contents))
	for _, c := range contents {
		out = append(out, model.ChunkRecord{Content: c, AppID: ai.DefaultAppID, DocumentPath: "path/to/doc1"})
	}
	return out
}
