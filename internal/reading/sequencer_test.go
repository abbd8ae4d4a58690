package reading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRenderer struct {
	mu           sync.Mutex
	texts        map[int]string
	retryTexts   map[int]string // returned from the second extraction onward
	renderErrs   map[int]error
	renders      []int
	extractCalls map[int]int
}

func newFakeRenderer(texts map[int]string) *fakeRenderer {
	return &fakeRenderer{
		texts:        texts,
		retryTexts:   map[int]string{},
		renderErrs:   map[int]error{},
		extractCalls: map[int]int{},
	}
}

func (f *fakeRenderer) RenderPage(_ context.Context, page int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.renderErrs[page]; err != nil {
		return err
	}
	f.renders = append(f.renders, page)
	return nil
}

func (f *fakeRenderer) ExtractPageText(_ context.Context, page int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls[page]++
	if retry, ok := f.retryTexts[page]; ok && f.extractCalls[page] > 1 {
		return retry, nil
	}
	return f.texts[page], nil
}

type fakeSpeech struct {
	mu        sync.Mutex
	spoken    []string
	params    []SpeechParams
	onDone    func()
	paused    int
	resumed   int
	cancelled int
}

func (f *fakeSpeech) Speak(text string, params SpeechParams, onDone func(), _ func(error)) {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.params = append(f.params, params)
	f.onDone = onDone
	f.mu.Unlock()
}

func (f *fakeSpeech) Pause()  { f.mu.Lock(); f.paused++; f.mu.Unlock() }
func (f *fakeSpeech) Resume() { f.mu.Lock(); f.resumed++; f.mu.Unlock() }
func (f *fakeSpeech) Cancel() { f.mu.Lock(); f.cancelled++; f.mu.Unlock() }

// complete simulates the engine finishing the current utterance.
func (f *fakeSpeech) complete() {
	f.mu.Lock()
	done := f.onDone
	f.mu.Unlock()
	if done != nil {
		done()
	}
}

func (f *fakeSpeech) spokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spoken)
}

func (f *fakeSpeech) lastSpoken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.spoken) == 0 {
		return ""
	}
	return f.spoken[len(f.spoken)-1]
}

func newTestSequencer(t *testing.T, renderer *fakeRenderer, speech *fakeSpeech, totalPages, startPage int) (*Sequencer, *[]int, *bool) {
	t.Helper()
	var recorded []int
	ended := false
	seq := NewSequencer(SequencerConfig{
		Renderer:        renderer,
		Speech:          speech,
		TotalPages:      totalPages,
		StartPage:       startPage,
		RecordPage:      func(page, _ int) { recorded = append(recorded, page) },
		OnEndOfDocument: func() { ended = true },
		RetryDelay:      time.Millisecond,
		RenderLockWait:  50 * time.Millisecond,
		RenderPoll:      5 * time.Millisecond,
	})
	return seq, &recorded, &ended
}

func TestPlayPauseResume(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "page one"})
	speech := &fakeSpeech{}
	seq, _, _ := newTestSequencer(t, renderer, speech, 3, 1)

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	if seq.State() != StateSpeaking || speech.lastSpoken() != "page one" {
		t.Fatalf("expected speaking state with page text, state=%v", seq.State())
	}

	seq.Pause()
	if seq.State() != StatePaused || speech.paused != 1 {
		t.Fatalf("expected paused state, state=%v paused=%d", seq.State(), speech.paused)
	}

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if seq.State() != StateSpeaking {
		t.Fatalf("expected speaking after resume, got %v", seq.State())
	}
	if speech.resumed != 1 || speech.spokenCount() != 1 {
		t.Fatalf("resume must not re-synthesize: resumed=%d spoken=%d", speech.resumed, speech.spokenCount())
	}
}

func TestPlayEmptyPageReturnsErrNoText(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: ""})
	speech := &fakeSpeech{}
	seq, _, _ := newTestSequencer(t, renderer, speech, 3, 1)
	if err := seq.Play(context.Background()); err != ErrNoText {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestAutoAdvanceLoop(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "one", 2: "two", 3: "three"})
	speech := &fakeSpeech{}
	seq, recorded, ended := newTestSequencer(t, renderer, speech, 3, 1)
	seq.SetAutoRead(true)

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	speech.complete()
	if seq.Page() != 2 || speech.lastSpoken() != "two" {
		t.Fatalf("expected advance to page 2, page=%d spoken=%q", seq.Page(), speech.lastSpoken())
	}
	speech.complete()
	if seq.Page() != 3 || speech.lastSpoken() != "three" {
		t.Fatalf("expected advance to page 3, page=%d spoken=%q", seq.Page(), speech.lastSpoken())
	}
	speech.complete()
	if seq.State() != StateIdle {
		t.Fatalf("expected idle at end of document, got %v", seq.State())
	}
	if !*ended {
		t.Fatalf("expected end-of-document signal")
	}
	if len(*recorded) != 2 {
		t.Fatalf("expected a progress record per auto-rendered page, got %v", *recorded)
	}
}

func TestLastPageCompletionGoesIdleNotAdvancing(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{3: "three"})
	speech := &fakeSpeech{}
	seq, _, ended := newTestSequencer(t, renderer, speech, 3, 3)
	seq.SetAutoRead(true)

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	speech.complete()
	if seq.State() != StateIdle {
		t.Fatalf("expected idle, got %v", seq.State())
	}
	if !*ended {
		t.Fatalf("expected end-of-document signal")
	}
	if seq.Page() != 3 {
		t.Fatalf("page must not advance past the end, got %d", seq.Page())
	}
}

func TestCompletionWithoutAutoReadGoesIdle(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "one", 2: "two"})
	speech := &fakeSpeech{}
	seq, _, _ := newTestSequencer(t, renderer, speech, 3, 1)

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	speech.complete()
	if seq.State() != StateIdle || seq.Page() != 1 {
		t.Fatalf("expected idle on page 1, state=%v page=%d", seq.State(), seq.Page())
	}
}

func TestAdvanceRetriesEmptyTextOnce(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "one", 2: ""})
	renderer.retryTexts[2] = "two eventually"
	speech := &fakeSpeech{}
	seq, _, _ := newTestSequencer(t, renderer, speech, 3, 1)
	seq.SetAutoRead(true)

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	speech.complete()
	if speech.lastSpoken() != "two eventually" {
		t.Fatalf("expected retry to pick up late text, spoken=%q", speech.lastSpoken())
	}
	if seq.State() != StateSpeaking {
		t.Fatalf("expected speaking after retry, got %v", seq.State())
	}
}

func TestAdvanceGivesUpAfterRetry(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "one", 2: ""})
	speech := &fakeSpeech{}
	var noTextPage int
	seq := NewSequencer(SequencerConfig{
		Renderer:   renderer,
		Speech:     speech,
		TotalPages: 3,
		StartPage:  1,
		OnNoText:   func(page int) { noTextPage = page },
		RetryDelay: time.Millisecond,
	})
	seq.SetAutoRead(true)

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	speech.complete()
	if seq.State() != StateIdle {
		t.Fatalf("expected idle after failed retry, got %v", seq.State())
	}
	if noTextPage != 2 {
		t.Fatalf("expected no-text signal for page 2, got %d", noTextPage)
	}
	if got := renderer.extractCalls[2]; got != 2 {
		t.Fatalf("expected exactly one retry (2 extractions), got %d", got)
	}
}

func TestAdvanceRenderErrorStopsQuietly(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "one"})
	renderer.renderErrs[2] = errors.New("render blew up")
	speech := &fakeSpeech{}
	seq, _, _ := newTestSequencer(t, renderer, speech, 3, 1)
	seq.SetAutoRead(true)

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	speech.complete()
	if seq.State() != StateIdle {
		t.Fatalf("expected quiet stop to idle, got %v", seq.State())
	}
	if seq.AutoRead() {
		t.Fatalf("auto-read should be cleared after a render failure")
	}
}

func TestManualNavigationCancelsAutoRead(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "one", 2: "two", 3: "three"})
	speech := &fakeSpeech{}
	seq, _, _ := newTestSequencer(t, renderer, speech, 3, 1)
	seq.SetAutoRead(true)

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := seq.NextPage(context.Background()); err != nil {
		t.Fatalf("next page: %v", err)
	}
	if seq.Page() != 2 || seq.State() != StateIdle {
		t.Fatalf("expected idle on page 2, state=%v page=%d", seq.State(), seq.Page())
	}
	if seq.AutoRead() {
		t.Fatalf("manual navigation must clear auto-read")
	}
	if speech.cancelled == 0 {
		t.Fatalf("manual navigation must cancel in-flight speech")
	}

	// A stray completion from the cancelled utterance must be ignored.
	spokenBefore := speech.spokenCount()
	speech.complete()
	if seq.Page() != 2 || seq.State() != StateIdle || speech.spokenCount() != spokenBefore {
		t.Fatalf("stale completion must not advance, state=%v page=%d", seq.State(), seq.Page())
	}
}

func TestJumpToValidatesRange(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "one"})
	speech := &fakeSpeech{}
	seq, _, _ := newTestSequencer(t, renderer, speech, 3, 1)
	if err := seq.JumpTo(context.Background(), 0); err != ErrInvalidPage {
		t.Fatalf("expected ErrInvalidPage for page 0, got %v", err)
	}
	if err := seq.JumpTo(context.Background(), 4); err != ErrInvalidPage {
		t.Fatalf("expected ErrInvalidPage for page past total, got %v", err)
	}
}

func TestParamChangeMidSpeechRestarts(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "one"})
	speech := &fakeSpeech{}
	seq, _, _ := newTestSequencer(t, renderer, speech, 3, 1)

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	newParams := SpeechParams{Rate: 1.5, Volume: 1}
	if err := seq.SetParams(context.Background(), newParams); err != nil {
		t.Fatalf("set params: %v", err)
	}
	if speech.spokenCount() != 2 {
		t.Fatalf("expected automatic restart with new params, spoken=%d", speech.spokenCount())
	}
	if speech.params[1].Rate != 1.5 {
		t.Fatalf("restart must carry the new rate, got %+v", speech.params[1])
	}
	if seq.State() != StateSpeaking {
		t.Fatalf("expected speaking after restart, got %v", seq.State())
	}
}

func TestParamChangeMidPauseWaitsForPlay(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "one"})
	speech := &fakeSpeech{}
	seq, _, _ := newTestSequencer(t, renderer, speech, 3, 1)

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	seq.Pause()
	if err := seq.SetParams(context.Background(), SpeechParams{Rate: 2, Volume: 1}); err != nil {
		t.Fatalf("set params: %v", err)
	}
	if speech.spokenCount() != 1 {
		t.Fatalf("paused param change must not start speech, spoken=%d", speech.spokenCount())
	}
	if seq.State() != StatePaused {
		t.Fatalf("expected to stay paused, got %v", seq.State())
	}

	if err := seq.Play(context.Background()); err != nil {
		t.Fatalf("play after param change: %v", err)
	}
	if speech.spokenCount() != 2 {
		t.Fatalf("play after paused param change must re-synthesize, spoken=%d", speech.spokenCount())
	}
	if speech.params[1].Rate != 2 {
		t.Fatalf("new utterance must carry the new rate, got %+v", speech.params[1])
	}
}

func TestRenderLockForceClears(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{1: "one"})
	speech := &fakeSpeech{}
	seq, recorded, _ := newTestSequencer(t, renderer, speech, 3, 1)

	// Simulate a wedged in-flight render that never releases.
	seq.mu.Lock()
	seq.rendering = true
	seq.mu.Unlock()

	start := time.Now()
	if err := seq.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatalf("render should have waited for the lock before force-clearing")
	}
	if len(*recorded) != 1 {
		t.Fatalf("forced render should still record progress, got %v", *recorded)
	}
}

func TestOpenRendersAndRecordsStartPage(t *testing.T) {
	renderer := newFakeRenderer(map[int]string{2: "two"})
	speech := &fakeSpeech{}
	seq, recorded, _ := newTestSequencer(t, renderer, speech, 5, 2)
	if err := seq.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(renderer.renders) != 1 || renderer.renders[0] != 2 {
		t.Fatalf("expected start page render, got %v", renderer.renders)
	}
	if len(*recorded) != 1 || (*recorded)[0] != 2 {
		t.Fatalf("expected progress record for start page, got %v", *recorded)
	}
}
