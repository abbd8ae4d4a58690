package reading

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the read-aloud lifecycle of one open document view.
type State int

const (
	StateIdle State = iota
	StateSpeaking
	StatePaused
	StateAdvancing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	case StateAdvancing:
		return "advancing"
	}
	return "unknown"
}

// PageRenderer renders pages of one open document and extracts their text.
type PageRenderer interface {
	RenderPage(ctx context.Context, page int) error
	ExtractPageText(ctx context.Context, page int) (string, error)
}

// SpeechParams are the synthesis settings of one utterance.
type SpeechParams struct {
	Voice  string
	Rate   float64
	Pitch  float64
	Volume float64
}

// SpeechEngine synthesizes utterances. Completion and failure come back
// through the callbacks passed to Speak; Cancel discards the current
// utterance without firing them (stray late events are tolerated).
type SpeechEngine interface {
	Speak(text string, params SpeechParams, onDone func(), onError func(error))
	Pause()
	Resume()
	Cancel()
}

const (
	defaultRetryDelay     = 300 * time.Millisecond
	defaultRenderLockWait = 5 * time.Second
	defaultRenderPoll     = 100 * time.Millisecond
)

// SequencerConfig wires one Sequencer to its collaborators.
type SequencerConfig struct {
	Renderer   PageRenderer
	Speech     SpeechEngine
	TotalPages int
	StartPage  int
	Params     SpeechParams

	// RecordPage is invoked fire-and-forget on every successful render.
	// Tracker.PageRecorder supplies it for a signed-in user.
	RecordPage func(page, totalPages int)
	// OnEndOfDocument fires when the last page finishes in auto-read.
	OnEndOfDocument func()
	// OnNoText fires when a page has no extractable text after the retry.
	OnNoText func(page int)

	RetryDelay     time.Duration
	RenderLockWait time.Duration
	RenderPoll     time.Duration
}

// Sequencer coordinates page rendering with speech playback for one open
// document view. All session state lives here, not in globals, so the
// transitions are testable in isolation.
type Sequencer struct {
	renderer PageRenderer
	speech   SpeechEngine

	recordPage      func(page, totalPages int)
	onEndOfDocument func()
	onNoText        func(page int)

	retryDelay     time.Duration
	renderLockWait time.Duration
	renderPoll     time.Duration

	mu         sync.Mutex
	state      State
	page       int
	totalPages int
	autoRead   bool
	params     SpeechParams
	generation uint64
	needSynth  bool
	rendering  bool
	closed     bool
}

// NewSequencer builds a sequencer for one open document view.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	startPage := cfg.StartPage
	if startPage < 1 {
		startPage = 1
	}
	retry := cfg.RetryDelay
	if retry <= 0 {
		retry = defaultRetryDelay
	}
	lockWait := cfg.RenderLockWait
	if lockWait <= 0 {
		lockWait = defaultRenderLockWait
	}
	poll := cfg.RenderPoll
	if poll <= 0 {
		poll = defaultRenderPoll
	}
	return &Sequencer{
		renderer:        cfg.Renderer,
		speech:          cfg.Speech,
		recordPage:      cfg.RecordPage,
		onEndOfDocument: cfg.OnEndOfDocument,
		onNoText:        cfg.OnNoText,
		retryDelay:      retry,
		renderLockWait:  lockWait,
		renderPoll:      poll,
		state:           StateIdle,
		page:            startPage,
		totalPages:      cfg.TotalPages,
		params:          cfg.Params,
	}
}

// State returns the current lifecycle state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Page returns the current page number.
func (s *Sequencer) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// AutoRead reports whether auto-advance is active.
func (s *Sequencer) AutoRead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRead
}

// SetAutoRead toggles auto-advance for subsequent utterance completions.
func (s *Sequencer) SetAutoRead(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoRead = on
}

// Open renders the starting page. Call once before Play.
func (s *Sequencer) Open(ctx context.Context) error {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	return s.render(ctx, page)
}

// Play starts speech on the current page, or resumes when paused.
// Resume does not re-synthesize unless a parameter change discarded the
// paused utterance.
func (s *Sequencer) Play(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	switch s.state {
	case StateSpeaking, StateAdvancing:
		s.mu.Unlock()
		return nil
	case StatePaused:
		if !s.needSynth {
			s.state = StateSpeaking
			s.mu.Unlock()
			s.speech.Resume()
			return nil
		}
		s.state = StateIdle
	}
	page := s.page
	s.mu.Unlock()

	text, err := s.renderer.ExtractPageText(ctx, page)
	if err != nil {
		return err
	}
	if text == "" {
		return ErrNoText
	}
	s.speak(text)
	return nil
}

// Pause suspends speech, retaining the utterance so Play can resume it.
func (s *Sequencer) Pause() {
	s.mu.Lock()
	if s.state != StateSpeaking {
		s.mu.Unlock()
		return
	}
	s.state = StatePaused
	s.mu.Unlock()
	s.speech.Pause()
}

// Stop cancels speech and clears auto-read.
func (s *Sequencer) Stop() {
	s.cancelSpeech()
}

// Close stops the session for good.
func (s *Sequencer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelSpeech()
}

// NextPage navigates forward. Manual navigation cancels auto-read and
// any in-flight speech.
func (s *Sequencer) NextPage(ctx context.Context) error {
	return s.JumpTo(ctx, s.Page()+1)
}

// PrevPage navigates backward.
func (s *Sequencer) PrevPage(ctx context.Context) error {
	return s.JumpTo(ctx, s.Page()-1)
}

// JumpTo navigates to an arbitrary page. Render errors here are surfaced:
// the user asked for this page explicitly.
func (s *Sequencer) JumpTo(ctx context.Context, page int) error {
	s.mu.Lock()
	if page < 1 || page > s.totalPages {
		s.mu.Unlock()
		return ErrInvalidPage
	}
	s.mu.Unlock()
	s.cancelSpeech()
	if err := s.render(ctx, page); err != nil {
		return err
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	return nil
}

// Rerender redraws the current page (zoom changes). Like all manual
// navigation it cancels auto-read and speech.
func (s *Sequencer) Rerender(ctx context.Context) error {
	s.cancelSpeech()
	return s.render(ctx, s.Page())
}

// SetParams applies new speech parameters. Mid-speech the utterance is
// cancelled and restarted from the current page with the new settings;
// mid-pause the utterance is discarded and the settings wait for the
// next explicit Play.
func (s *Sequencer) SetParams(ctx context.Context, p SpeechParams) error {
	s.mu.Lock()
	s.params = p
	switch s.state {
	case StateSpeaking:
		s.generation++
		page := s.page
		s.mu.Unlock()
		s.speech.Cancel()
		text, err := s.renderer.ExtractPageText(ctx, page)
		if err != nil || text == "" {
			s.mu.Lock()
			s.state = StateIdle
			s.mu.Unlock()
			if err != nil {
				return err
			}
			return ErrNoText
		}
		s.speak(text)
		return nil
	case StatePaused:
		s.generation++
		s.needSynth = true
		s.mu.Unlock()
		s.speech.Cancel()
		return nil
	default:
		s.mu.Unlock()
		return nil
	}
}

// Params returns the current speech parameters.
func (s *Sequencer) Params() SpeechParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

func (s *Sequencer) speak(text string) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state = StateSpeaking
	s.needSynth = false
	params := s.params
	s.mu.Unlock()
	s.speech.Speak(text, params,
		func() { s.utteranceDone(gen) },
		func(err error) { s.speechError(gen, err) },
	)
}

// utteranceDone is the completion event of the state machine: it decides
// between advancing to the next page and going idle. Events from
// superseded utterances are dropped.
func (s *Sequencer) utteranceDone(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != StateSpeaking {
		s.mu.Unlock()
		return
	}
	if !s.autoRead {
		s.state = StateIdle
		s.mu.Unlock()
		return
	}
	if s.page >= s.totalPages {
		s.state = StateIdle
		s.autoRead = false
		s.mu.Unlock()
		if s.onEndOfDocument != nil {
			s.onEndOfDocument()
		}
		return
	}
	s.state = StateAdvancing
	s.page++
	page := s.page
	s.mu.Unlock()
	s.advance(page)
}

// advance renders the next page and continues speech. A render failure
// quietly ends auto-read; empty text gets one re-extraction after a
// short delay before giving up.
func (s *Sequencer) advance(page int) {
	ctx := context.Background()
	if err := s.render(ctx, page); err != nil {
		slog.Warn("auto-advance render failed", "page", page, "error", err)
		s.toIdle()
		return
	}
	text, err := s.renderer.ExtractPageText(ctx, page)
	if err != nil {
		s.toIdle()
		return
	}
	if text == "" {
		time.Sleep(s.retryDelay)
		text, err = s.renderer.ExtractPageText(ctx, page)
		if err != nil {
			s.toIdle()
			return
		}
		if text == "" {
			s.toIdle()
			if s.onNoText != nil {
				s.onNoText(page)
			}
			return
		}
	}
	s.mu.Lock()
	if s.closed || s.state != StateAdvancing {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.speak(text)
}

func (s *Sequencer) speechError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.autoRead = false
	s.mu.Unlock()
	slog.Warn("speech engine error", "error", err)
}

func (s *Sequencer) cancelSpeech() {
	s.mu.Lock()
	s.generation++
	s.state = StateIdle
	s.autoRead = false
	s.needSynth = false
	s.mu.Unlock()
	s.speech.Cancel()
}

func (s *Sequencer) toIdle() {
	s.mu.Lock()
	s.state = StateIdle
	s.autoRead = false
	s.mu.Unlock()
}

// render serializes page renders for this session. A second render
// arriving while one is in flight waits; when the wait exceeds the
// bound, the lock is force-cleared and the new render proceeds. That is
// a safety valve against a wedged render, not a correctness guarantee.
func (s *Sequencer) render(ctx context.Context, page int) error {
	deadline := time.Now().Add(s.renderLockWait)
	s.mu.Lock()
	for s.rendering {
		s.mu.Unlock()
		if time.Now().After(deadline) {
			slog.Warn("render lock held past deadline, force-clearing", "page", page)
			s.mu.Lock()
			break
		}
		time.Sleep(s.renderPoll)
		s.mu.Lock()
	}
	s.rendering = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.rendering = false
		s.mu.Unlock()
	}()

	if err := s.renderer.RenderPage(ctx, page); err != nil {
		return err
	}
	s.mu.Lock()
	total := s.totalPages
	s.mu.Unlock()
	if s.recordPage != nil {
		s.recordPage(page, total)
	}
	return nil
}
