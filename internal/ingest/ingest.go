package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"sensetech/internal/util"
	"sensetech/pkg/domain"
	"sensetech/pkg/pdfrender"
	"sensetech/pkg/queue"
	"sensetech/pkg/storage"
	"sensetech/pkg/store"
)

// Job tracks one ingest request through the queue.
type Job struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"documentId"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Processor inspects an uploaded document and records what it finds:
// page count, whether any text is extractable, and the final status.
type Processor struct {
	store   store.Store
	objects storage.ObjectStore
	opener  pdfrender.Opener
}

// NewProcessor builds a processor over the given stores.
func NewProcessor(s store.Store, objects storage.ObjectStore, opener pdfrender.Opener) *Processor {
	return &Processor{store: s, objects: objects, opener: opener}
}

// Process runs one ingest job. Any failure marks the document failed
// with the error message; the queue decides whether to retry.
func (p *Processor) Process(ctx context.Context, documentID string) error {
	doc, ok, err := p.store.GetDocument(documentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("document %s not found", documentID)
	}
	if err := p.store.SetDocumentStatus(doc.ID, domain.StatusProcessing, ""); err != nil {
		return err
	}
	if err := p.inspect(ctx, doc); err != nil {
		_ = p.store.SetDocumentStatus(doc.ID, domain.StatusFailed, err.Error())
		return err
	}
	return p.store.SetDocumentStatus(doc.ID, domain.StatusReady, "")
}

func (p *Processor) inspect(ctx context.Context, doc domain.Document) error {
	r, err := p.objects.Get(ctx, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("fetch stored object: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read stored object: %w", err)
	}
	pdfDoc, err := p.opener.Open(data)
	if err != nil {
		return fmt.Errorf("parse pdf: %w", err)
	}
	pages := pdfDoc.PageCount()
	if pages <= 0 {
		return fmt.Errorf("document has no pages")
	}
	if err := p.store.SetDocumentPageCount(doc.ID, pages); err != nil {
		return err
	}
	if !hasAnyText(pdfDoc, pages) {
		// Scanned documents stay readable visually; read-aloud will
		// report the missing text per page.
		slog.Warn("document has no extractable text", "document_id", doc.ID, "pages", pages)
	}
	return nil
}

// hasAnyText probes the first pages for extractable text.
func hasAnyText(doc pdfrender.Document, pages int) bool {
	probe := pages
	if probe > 10 {
		probe = 10
	}
	for i := 1; i <= probe; i++ {
		text, err := doc.PageText(i)
		if err == nil && text != "" {
			return true
		}
	}
	return false
}

// Config holds ingest service configuration.
type Config struct {
	Store   store.Store
	Objects storage.ObjectStore
	Opener  pdfrender.Opener

	RedisAddr         string
	RedisPassword     string
	Stream            string
	Group             string
	Concurrency       int
	MaxRetries        int
	RetryDelaySeconds int
}

// Service drains the upload queue in the background and exposes job
// lookups for status polling.
type Service struct {
	processor *Processor
	queue     *queue.RedisJobQueue
}

// New constructs the ingest service and starts its workers.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Store == nil || cfg.Objects == nil {
		return nil, fmt.Errorf("store and object storage required")
	}
	opener := cfg.Opener
	if opener == nil {
		opener = pdfrender.NewOpener()
	}
	q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     defaultStream(cfg.Stream),
		Group:      defaultGroup(cfg.Group),
		Consumer:   util.NewID(),
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Duration(cfg.RetryDelaySeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	svc := &Service{
		processor: NewProcessor(cfg.Store, cfg.Objects, opener),
		queue:     q,
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	q.Start(ctx, concurrency, func(ctx context.Context, job queue.Job) error {
		return svc.processor.Process(ctx, job.DocumentID)
	})
	return svc, nil
}

// Enqueue registers one document for ingestion.
func (s *Service) Enqueue(documentID string) (Job, error) {
	if strings.TrimSpace(documentID) == "" {
		return Job{}, fmt.Errorf("documentId required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	queued, err := s.queue.Enqueue(ctx, documentID)
	if err != nil {
		return Job{}, err
	}
	return jobFromQueue(queued), nil
}

// EnqueueAll registers a batch of documents, bounding queue round-trips.
// The first enqueue error aborts the batch.
func (s *Service) EnqueueAll(ctx context.Context, documentIDs []string) ([]Job, error) {
	jobs := make([]Job, len(documentIDs))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range documentIDs {
		i, id := i, id
		g.Go(func() error {
			job, err := s.Enqueue(id)
			if err != nil {
				return err
			}
			jobs[i] = job
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob returns a job by ID.
func (s *Service) GetJob(id string) (Job, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	queued, ok, err := s.queue.GetJob(ctx, id)
	if err != nil || !ok {
		return Job{}, false
	}
	return jobFromQueue(queued), true
}

func jobFromQueue(j queue.Job) Job {
	return Job{
		ID:           j.ID,
		DocumentID:   j.DocumentID,
		Status:       j.Status,
		ErrorMessage: j.ErrorMessage,
		Attempts:     j.Attempts,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func defaultStream(name string) string {
	if strings.TrimSpace(name) == "" {
		return "sensetech:ingest"
	}
	return name
}

func defaultGroup(name string) string {
	if strings.TrimSpace(name) == "" {
		return "ingest"
	}
	return name
}
