package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"sensetech/pkg/domain"
	"sensetech/pkg/pdfrender"
	"sensetech/pkg/store"
)

type fakeObjects struct {
	data map[string][]byte
}

func (f *fakeObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.data[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	f.data[key] = data
	return nil
}

func (f *fakeObjects) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

type fakeDocument struct {
	pages int
	texts map[int]string
}

func (d *fakeDocument) PageCount() int { return d.pages }

func (d *fakeDocument) PageText(page int) (string, error) {
	if page < 1 || page > d.pages {
		return "", pdfrender.ErrPageOutOfRange
	}
	return d.texts[page], nil
}

func (d *fakeDocument) Text() (string, error) { return "", nil }

type fakeOpener struct {
	doc *fakeDocument
	err error
}

func (o *fakeOpener) Open([]byte) (pdfrender.Document, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

func newTestProcessor(t *testing.T, opener *fakeOpener) (*Processor, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	objects := &fakeObjects{data: map[string][]byte{"objects/d1.pdf": []byte("%PDF-fake")}}
	if err := ms.SaveDocument(domain.Document{
		ID:          "d1",
		DisplayName: "Guide",
		StorageKey:  "objects/d1.pdf",
		Status:      domain.StatusQueued,
	}); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return NewProcessor(ms, objects, opener), ms
}

func TestProcessMarksReadyWithPageCount(t *testing.T) {
	opener := &fakeOpener{doc: &fakeDocument{pages: 12, texts: map[int]string{1: "hello"}}}
	p, ms := newTestProcessor(t, opener)

	if err := p.Process(context.Background(), "d1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	doc, _, err := ms.GetDocument("d1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != domain.StatusReady {
		t.Fatalf("expected ready status, got %q", doc.Status)
	}
	if doc.PageCount != 12 {
		t.Fatalf("expected page count 12, got %d", doc.PageCount)
	}
	if doc.ErrorMessage != "" {
		t.Fatalf("expected no error message, got %q", doc.ErrorMessage)
	}
}

func TestProcessMarksFailedOnBadPDF(t *testing.T) {
	opener := &fakeOpener{err: errors.New("not a pdf")}
	p, ms := newTestProcessor(t, opener)

	if err := p.Process(context.Background(), "d1"); err == nil {
		t.Fatalf("expected process error")
	}
	doc, _, err := ms.GetDocument("d1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %q", doc.Status)
	}
	if doc.ErrorMessage == "" {
		t.Fatalf("expected an error message on the document")
	}
}

func TestProcessMarksFailedOnEmptyDocument(t *testing.T) {
	opener := &fakeOpener{doc: &fakeDocument{pages: 0}}
	p, ms := newTestProcessor(t, opener)

	if err := p.Process(context.Background(), "d1"); err == nil {
		t.Fatalf("expected process error for zero pages")
	}
	doc, _, _ := ms.GetDocument("d1")
	if doc.Status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %q", doc.Status)
	}
}

func TestProcessUnknownDocument(t *testing.T) {
	opener := &fakeOpener{doc: &fakeDocument{pages: 1}}
	p, _ := newTestProcessor(t, opener)
	if err := p.Process(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown document")
	}
}

func TestProcessMarksFailedOnMissingObject(t *testing.T) {
	opener := &fakeOpener{doc: &fakeDocument{pages: 3}}
	p, ms := newTestProcessor(t, opener)
	if err := ms.SaveDocument(domain.Document{
		ID:         "d2",
		StorageKey: "objects/gone.pdf",
		Status:     domain.StatusQueued,
	}); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	if err := p.Process(context.Background(), "d2"); err == nil {
		t.Fatalf("expected error for missing object")
	}
	doc, _, _ := ms.GetDocument("d2")
	if doc.Status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %q", doc.Status)
	}
}
