package pinning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Client-side request errors
var (
	ErrEmptyUpload     = errors.New("no metadata or files provided")
	ErrInvalidMetadata = errors.New("invalid metadata JSON")
)

// UploadFile is one binary attachment in an upload request
type UploadFile struct {
	Name    string
	Size    int64
	Content io.Reader
}

// Service implements the upload gateway: files are pinned first, then the
// metadata payload (if any) is augmented with the file CIDs and pinned as
// JSON. Any pin failure aborts the whole upload so callers never reference
// a dangling CID from a ledger write.
type Service struct {
	pinner Pinner
	repo   Repository
	logger *zap.Logger
}

// NewService creates an upload service. repo may be nil to disable auditing.
func NewService(pinner Pinner, repo Repository, logger *zap.Logger) *Service {
	return &Service{
		pinner: pinner,
		repo:   repo,
		logger: logger,
	}
}

// Upload pins the request content and returns the single content id the
// caller should reference on the ledger.
func (s *Service) Upload(ctx context.Context, metadata []byte, files []UploadFile, uploader string) (string, error) {
	if len(metadata) == 0 && len(files) == 0 {
		return "", ErrEmptyUpload
	}

	var fileRefs []string
	for _, f := range files {
		cid, err := s.pinner.PinFile(ctx, f.Name, f.Content)
		if err != nil {
			return "", fmt.Errorf("file upload failed: %w", err)
		}
		fileRefs = append(fileRefs, "ipfs://"+cid)
		s.audit(ctx, &PinRecord{CID: cid, Kind: "file", Name: f.Name, Size: f.Size, Uploader: uploader})
	}

	if len(metadata) == 0 {
		// Files only: the first file's CID is the content reference
		return fileRefs[0][len("ipfs://"):], nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(metadata, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	payload["files"] = fileRefs
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	cid, err := s.pinner.PinJSON(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("metadata pin failed: %w", err)
	}

	schema, _ := payload["schema"].(string)
	s.audit(ctx, &PinRecord{CID: cid, Kind: "json", Schema: schema, Size: int64(len(metadata)), Uploader: uploader, Metadata: metadata})
	return cid, nil
}

// audit records a successful pin; audit failures never fail the upload
func (s *Service) audit(ctx context.Context, record *PinRecord) {
	if s.repo == nil {
		return
	}
	if err := s.repo.CreatePin(ctx, record); err != nil {
		s.logger.Warn("failed to record pin", zap.String("cid", record.CID), zap.Error(err))
	}
}
