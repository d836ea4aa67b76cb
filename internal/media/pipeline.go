package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/messaging/whatsappclient"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

var tracer = otel.Tracer("realty.internal.media")

// Pipeline steps, used as metric labels and error prefixes.
const (
	StepResolve  = "resolve"
	StepDownload = "download"
	StepUpload   = "upload"
	StepRecord   = "record"
)

// Source resolves provider media handles and fetches the bytes.
type Source interface {
	GetMedia(ctx context.Context, mediaID string) (*whatsappclient.MediaInfo, error)
	Download(ctx context.Context, mediaURL string) ([]byte, error)
}

// Storage persists objects and returns a URL for them.
type Storage interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Recorder writes the ingest result back onto the message.
type Recorder interface {
	UpdateMedia(ctx context.Context, messageID uuid.UUID, mediaURL, content string) error
	InsertAttachment(ctx context.Context, rec messaging.AttachmentRecord) (uuid.UUID, error)
}

// Job is one media message waiting for its binary.
type Job struct {
	TenantID          uuid.UUID
	ContactID         uuid.UUID
	MessageID         uuid.UUID
	ProviderMessageID string
	MediaID           string
	MimeType          string
	FileName          string
	// Content replaces the placeholder once the media is stored.
	Content    string
	ReceivedAt time.Time
}

// Result describes a stored object.
type Result struct {
	StoragePath  string
	URL          string
	SizeBytes    int64
	AttachmentID uuid.UUID
}

// StepError names the step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("media: %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// Pipeline moves media from the provider into object storage.
type Pipeline struct {
	source   Source
	storage  Storage
	recorder Recorder
	metrics  *metrics.InboxMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewPipeline wires the pipeline. m may be nil.
func NewPipeline(source Source, storage Storage, recorder Recorder, m *metrics.InboxMetrics, logger *logging.Logger) *Pipeline {
	if source == nil {
		panic("media: source cannot be nil")
	}
	if storage == nil {
		panic("media: storage cannot be nil")
	}
	if recorder == nil {
		panic("media: recorder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		source:   source,
		storage:  storage,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest runs resolve, download, upload and record in order. Any failure
// stops the chain and leaves the message row with its placeholder content.
func (p *Pipeline) Ingest(ctx context.Context, job Job) (*Result, error) {
	ctx, span := tracer.Start(ctx, "media.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("realty.media.id", job.MediaID),
		attribute.String("realty.message_id", job.MessageID.String()),
	)

	if job.MediaID == "" {
		return nil, p.fail(job, &StepError{Step: StepResolve, Err: errors.New("missing media id")})
	}

	info, err := p.source.GetMedia(ctx, job.MediaID)
	if err != nil {
		span.RecordError(err)
		return nil, p.fail(job, &StepError{Step: StepResolve, Err: err})
	}
	if info.URL == "" {
		return nil, p.fail(job, &StepError{Step: StepResolve, Err: errors.New("provider returned no url")})
	}

	data, err := p.source.Download(ctx, info.URL)
	if err != nil {
		span.RecordError(err)
		return nil, p.fail(job, &StepError{Step: StepDownload, Err: err})
	}

	mimeType := job.MimeType
	if mimeType == "" {
		mimeType = info.MimeType
	}
	at := job.ReceivedAt
	if at.IsZero() {
		at = p.now()
	}
	key := StoragePath(job.ContactID, at, job.ProviderMessageID, job.FileName, mimeType)

	url, err := p.storage.Put(ctx, key, mimeType, data)
	if err != nil {
		span.RecordError(err)
		return nil, p.fail(job, &StepError{Step: StepUpload, Err: err})
	}

	if err := p.recorder.UpdateMedia(ctx, job.MessageID, url, job.Content); err != nil {
		span.RecordError(err)
		return nil, p.fail(job, &StepError{Step: StepRecord, Err: err})
	}

	fileName := job.FileName
	if fileName == "" {
		fileName = FileName(job.ProviderMessageID, "", mimeType)
	}
	attachmentID, err := p.recorder.InsertAttachment(ctx, messaging.AttachmentRecord{
		TenantID:    job.TenantID,
		ContactID:   job.ContactID,
		MessageID:   job.MessageID,
		StoragePath: key,
		URL:         url,
		FileName:    fileName,
		MimeType:    mimeType,
		SizeBytes:   int64(len(data)),
	})
	if err != nil {
		span.RecordError(err)
		return nil, p.fail(job, &StepError{Step: StepRecord, Err: err})
	}

	p.metrics.ObserveMedia("done", "success")
	p.logger.Info("media stored",
		"tenant_id", job.TenantID,
		"message_id", job.MessageID,
		"storage_path", key,
		"size_bytes", len(data),
	)
	return &Result{StoragePath: key, URL: url, SizeBytes: int64(len(data)), AttachmentID: attachmentID}, nil
}

func (p *Pipeline) fail(job Job, err *StepError) error {
	p.metrics.ObserveMedia(err.Step, "error")
	p.logger.Warn("media ingest failed",
		"tenant_id", job.TenantID,
		"message_id", job.MessageID,
		"media_id", job.MediaID,
		"step", err.Step,
		"error", err.Err,
	)
	return err
}
