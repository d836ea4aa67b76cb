package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/messaging/whatsappclient"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
)

type fakeSource struct {
	info        *whatsappclient.MediaInfo
	data        []byte
	resolveErr  error
	downloadErr error
	downloaded  string
}

func (f *fakeSource) GetMedia(ctx context.Context, mediaID string) (*whatsappclient.MediaInfo, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.info, nil
}

func (f *fakeSource) Download(ctx context.Context, mediaURL string) ([]byte, error) {
	f.downloaded = mediaURL
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.data, nil
}

type fakeStorage struct {
	key         string
	contentType string
	err         error
}

func (f *fakeStorage) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key = key
	f.contentType = contentType
	return "https://cdn.example.com/" + key, nil
}

type fakeRecorder struct {
	updatedURL     string
	updatedContent string
	attachments    []messaging.AttachmentRecord
	updateErr      error
}

func (f *fakeRecorder) UpdateMedia(ctx context.Context, messageID uuid.UUID, mediaURL, content string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedURL = mediaURL
	f.updatedContent = content
	return nil
}

func (f *fakeRecorder) InsertAttachment(ctx context.Context, rec messaging.AttachmentRecord) (uuid.UUID, error) {
	f.attachments = append(f.attachments, rec)
	return uuid.New(), nil
}

func newJob() Job {
	return Job{
		TenantID:          uuid.New(),
		ContactID:         uuid.New(),
		MessageID:         uuid.New(),
		ProviderMessageID: "wamid.IMG1",
		MediaID:           "media-123",
		MimeType:          "image/jpeg",
		Content:           "[Imagem]",
		ReceivedAt:        time.Date(2024, time.June, 2, 12, 0, 0, 0, time.UTC),
	}
}

func TestPipelineIngestStoresAndRecords(t *testing.T) {
	source := &fakeSource{info: &whatsappclient.MediaInfo{URL: "https://lookaside.example/m"}, data: []byte("jpegdata")}
	storage := &fakeStorage{}
	recorder := &fakeRecorder{}
	p := NewPipeline(source, storage, recorder, nil, nil)
	job := newJob()

	res, err := p.Ingest(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "https://lookaside.example/m", source.downloaded)
	assert.Contains(t, storage.key, "received/"+job.ContactID.String()+"/2024/06/")
	assert.Equal(t, "image/jpeg", storage.contentType)
	assert.Equal(t, res.URL, recorder.updatedURL)
	assert.Equal(t, "[Imagem]", recorder.updatedContent)
	require.Len(t, recorder.attachments, 1)
	assert.Equal(t, job.MessageID, recorder.attachments[0].MessageID)
	assert.Equal(t, int64(8), recorder.attachments[0].SizeBytes)
	assert.Equal(t, storage.key, res.StoragePath)
}

func TestPipelineDownloadFailureLeavesPlaceholder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewInboxMetrics(reg)
	source := &fakeSource{info: &whatsappclient.MediaInfo{URL: "https://lookaside.example/m"}, downloadErr: whatsappclient.ErrMediaTooLarge}
	recorder := &fakeRecorder{}
	p := NewPipeline(source, &fakeStorage{}, recorder, m, nil)

	_, err := p.Ingest(context.Background(), newJob())
	require.Error(t, err)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepDownload, stepErr.Step)
	assert.ErrorIs(t, err, whatsappclient.ErrMediaTooLarge)
	assert.Empty(t, recorder.updatedURL)
	assert.Empty(t, recorder.attachments)
}

func TestPipelineResolveFailure(t *testing.T) {
	source := &fakeSource{resolveErr: errors.New("401 unauthorized")}
	recorder := &fakeRecorder{}
	p := NewPipeline(source, &fakeStorage{}, recorder, nil, nil)

	_, err := p.Ingest(context.Background(), newJob())
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepResolve, stepErr.Step)
	assert.Empty(t, source.downloaded)
	assert.Empty(t, recorder.attachments)
}

func TestPipelineMissingMediaID(t *testing.T) {
	p := NewPipeline(&fakeSource{}, &fakeStorage{}, &fakeRecorder{}, nil, nil)
	job := newJob()
	job.MediaID = ""
	_, err := p.Ingest(context.Background(), job)
	assert.Error(t, err)
}

func TestPipelineUploadFailureSkipsRecord(t *testing.T) {
	source := &fakeSource{info: &whatsappclient.MediaInfo{URL: "u"}, data: []byte("x")}
	recorder := &fakeRecorder{}
	p := NewPipeline(source, &fakeStorage{err: ErrStorageDisabled}, recorder, nil, nil)

	_, err := p.Ingest(context.Background(), newJob())
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepUpload, stepErr.Step)
	assert.Empty(t, recorder.attachments)
}

func TestPipelineRecordFailureSkipsAttachment(t *testing.T) {
	source := &fakeSource{info: &whatsappclient.MediaInfo{URL: "u"}, data: []byte("x")}
	recorder := &fakeRecorder{updateErr: errors.New("conn reset")}
	p := NewPipeline(source, &fakeStorage{}, recorder, nil, nil)

	_, err := p.Ingest(context.Background(), newJob())
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepRecord, stepErr.Step)
	assert.Empty(t, recorder.attachments)
}

func TestPipelineFallsBackToProviderMime(t *testing.T) {
	source := &fakeSource{info: &whatsappclient.MediaInfo{URL: "u", MimeType: "audio/ogg"}, data: []byte("x")}
	storage := &fakeStorage{}
	recorder := &fakeRecorder{}
	p := NewPipeline(source, storage, recorder, nil, nil)
	job := newJob()
	job.MimeType = ""

	_, err := p.Ingest(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg", storage.contentType)
	assert.Contains(t, storage.key, "_media.ogg")
	assert.Contains(t, recorder.attachments[0].FileName, "_media.ogg")
}

func TestNewPipelinePanicsOnNilDeps(t *testing.T) {
	assert.Panics(t, func() { NewPipeline(nil, &fakeStorage{}, &fakeRecorder{}, nil, nil) })
	assert.Panics(t, func() { NewPipeline(&fakeSource{}, nil, &fakeRecorder{}, nil, nil) })
	assert.Panics(t, func() { NewPipeline(&fakeSource{}, &fakeStorage{}, nil, nil, nil) })
}
