package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/patdiletx/DevMeet/internal/models"
	"github.com/patdiletx/DevMeet/internal/protocol"
	"github.com/patdiletx/DevMeet/internal/session"
	"github.com/patdiletx/DevMeet/internal/stt"
)

// fakeTranscriber answers each call through fn and tracks how many
// calls are in flight at once.
type fakeTranscriber struct {
	fn func(req stt.Request) (*stt.Result, error)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(_ context.Context, req stt.Request) (*stt.Result, error) {
	cur := f.inFlight.Add(1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(req)
	}
	return &stt.Result{Text: string(req.Audio)}, nil
}

// memStore is an in-memory ResultStore.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	results    []models.TranscriptionResult
	highlights []models.Highlight
	ended      map[string]time.Time
	summaries  map[string]string
	saveErr    error
}

func newMemStore() *memStore {
	return &memStore{
		ended:     make(map[string]time.Time),
		summaries: make(map[string]string),
	}
}

func (m *memStore) SaveResult(_ context.Context, r *models.TranscriptionResult) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	m.nextID++
	m.results = append(m.results, *r)
	return m.nextID, nil
}

func (m *memStore) RecentResults(_ context.Context, sessionID string, limit int) ([]models.TranscriptionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TranscriptionResult
	for _, r := range m.results {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) SaveHighlight(_ context.Context, h *models.Highlight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highlights = append(m.highlights, *h)
	return nil
}

func (m *memStore) EndMeeting(_ context.Context, sessionID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended[sessionID] = endedAt
	return nil
}

func (m *memStore) SetSummary(_ context.Context, sessionID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[sessionID] = summary
	return nil
}

func (m *memStore) savedContents(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.results {
		if r.SessionID == sessionID {
			out = append(out, r.Content)
		}
	}
	return out
}

// fakeBroadcaster records every delivered envelope per session.
type fakeBroadcaster struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{messages: make(map[string][][]byte)}
}

func (b *fakeBroadcaster) BroadcastToSession(sessionID string, message []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[sessionID] = append(b.messages[sessionID], message)
	return 1
}

func (b *fakeBroadcaster) typesFor(sessionID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, raw := range b.messages[sessionID] {
		env, err := protocol.ParseEnvelope(raw)
		if err != nil {
			continue
		}
		out = append(out, env.Type)
	}
	return out
}

// fakeAnalyzer counts analysis passes.
type fakeAnalyzer struct {
	calls atomic.Int32
}

func (a *fakeAnalyzer) ExtractHighlights(_ context.Context, sessionID, _ string) ([]models.Highlight, error) {
	a.calls.Add(1)
	return []models.Highlight{{SessionID: sessionID, Description: "follow up on the rollout", Priority: "high"}}, nil
}

func (a *fakeAnalyzer) Summarize(_ context.Context, _ string) (string, error) {
	return "short summary", nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func testOrchestrator(tr stt.Transcriber, store ResultStore, bc Broadcaster, sessions *session.Store, opts func(*Options)) *Orchestrator {
	o := Options{
		Transcriber:   tr,
		Store:         store,
		Broadcaster:   bc,
		Sessions:      sessions,
		Limits:        Limits{MinChunkBytes: 4, MaxChunkBytes: 1 << 20},
		SweepInterval: 10 * time.Millisecond,
	}
	if opts != nil {
		opts(&o)
	}
	return New(o)
}

func testChunk(sessionID string, seq int, payload string) *models.AudioChunk {
	return &models.AudioChunk{
		SessionID:  sessionID,
		Payload:    []byte(payload),
		Sequence:   seq,
		Format:     "webm",
		ReceivedAt: time.Now().UTC(),
	}
}

func TestResultsDeliveredInChunkOrder(t *testing.T) {
	store := newMemStore()
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	tr := &fakeTranscriber{}
	o := testOrchestrator(tr, store, bc, sessions, nil)
	defer o.Shutdown()

	for i := 1; i <= 5; i++ {
		o.Enqueue(sess, testChunk(sess.ID, i, fmt.Sprintf("utterance %d", i)))
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(store.savedContents(sess.ID)) == 5
	})

	contents := store.savedContents(sess.ID)
	for i, c := range contents {
		want := fmt.Sprintf("utterance %d", i+1)
		if c != want {
			t.Errorf("results[%d] = %q, want %q", i, c, want)
		}
	}
}

func TestSingleTranscriptionInFlight(t *testing.T) {
	store := newMemStore()
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	tr := &fakeTranscriber{
		fn: func(req stt.Request) (*stt.Result, error) {
			time.Sleep(10 * time.Millisecond)
			return &stt.Result{Text: string(req.Audio)}, nil
		},
	}
	o := testOrchestrator(tr, store, bc, sessions, nil)
	defer o.Shutdown()

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			o.Enqueue(sess, testChunk(sess.ID, seq, fmt.Sprintf("utterance %d", seq)))
		}(i)
	}
	wg.Wait()

	waitFor(t, 5*time.Second, func() bool {
		return len(store.savedContents(sess.ID)) == 8
	})

	if max := tr.maxInFlight.Load(); max != 1 {
		t.Errorf("max concurrent transcriptions = %d, want 1", max)
	}
}

func TestInvalidChunksAreDropped(t *testing.T) {
	store := newMemStore()
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	tr := &fakeTranscriber{}
	o := testOrchestrator(tr, store, bc, sessions, func(opts *Options) {
		opts.Limits = Limits{MinChunkBytes: 10, MaxChunkBytes: 100}
	})
	defer o.Shutdown()

	o.Enqueue(sess, testChunk(sess.ID, 1, "tiny"))
	o.Enqueue(sess, testChunk(sess.ID, 2, strings.Repeat("x", 200)))

	time.Sleep(50 * time.Millisecond)
	if got := len(store.savedContents(sess.ID)); got != 0 {
		t.Errorf("results = %d, want 0 for rejected chunks", got)
	}
	if sess.Processing() {
		t.Error("rejected chunks left the processing flag set")
	}
	if sess.QueueLen() != 0 {
		t.Errorf("queue length = %d, want 0", sess.QueueLen())
	}

	// A valid chunk still flows after rejections.
	o.Enqueue(sess, testChunk(sess.ID, 3, "long enough now"))
	waitFor(t, 2*time.Second, func() bool {
		return len(store.savedContents(sess.ID)) == 1
	})
}

func TestEmptyTranscriptionSkipped(t *testing.T) {
	store := newMemStore()
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	tr := &fakeTranscriber{
		fn: func(req stt.Request) (*stt.Result, error) {
			if strings.Contains(string(req.Audio), "silence") {
				return &stt.Result{Text: "   "}, nil
			}
			return &stt.Result{Text: string(req.Audio)}, nil
		},
	}
	o := testOrchestrator(tr, store, bc, sessions, nil)
	defer o.Shutdown()

	o.Enqueue(sess, testChunk(sess.ID, 1, "hello there"))
	o.Enqueue(sess, testChunk(sess.ID, 2, "silence ........"))
	o.Enqueue(sess, testChunk(sess.ID, 3, "and goodbye"))

	waitFor(t, 2*time.Second, func() bool {
		return len(store.savedContents(sess.ID)) == 2
	})

	contents := store.savedContents(sess.ID)
	if contents[0] != "hello there" || contents[1] != "and goodbye" {
		t.Errorf("results = %v, want the silent chunk skipped", contents)
	}
	if got := sess.Window().Len(); got != 2 {
		t.Errorf("context window entries = %d, want 2 (skips stay out of context)", got)
	}
}

func TestProviderFailureSkipsChunkOnly(t *testing.T) {
	store := newMemStore()
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	var calls atomic.Int32
	tr := &fakeTranscriber{
		fn: func(req stt.Request) (*stt.Result, error) {
			if calls.Add(1) == 1 {
				return nil, fmt.Errorf("upstream unavailable")
			}
			return &stt.Result{Text: string(req.Audio)}, nil
		},
	}
	o := testOrchestrator(tr, store, bc, sessions, nil)
	defer o.Shutdown()

	o.Enqueue(sess, testChunk(sess.ID, 1, "first chunk"))
	o.Enqueue(sess, testChunk(sess.ID, 2, "second chunk"))

	waitFor(t, 2*time.Second, func() bool {
		return len(store.savedContents(sess.ID)) == 1
	})
	if contents := store.savedContents(sess.ID); contents[0] != "second chunk" {
		t.Errorf("surviving result = %q, want the chunk after the failure", contents[0])
	}
	if sess.Processing() {
		t.Error("provider failure left the processing flag set")
	}
}

func TestPromptCarriesRecentContext(t *testing.T) {
	store := newMemStore()
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	tr := &fakeTranscriber{}
	o := testOrchestrator(tr, store, bc, sessions, nil)
	defer o.Shutdown()

	o.Enqueue(sess, testChunk(sess.ID, 1, "alpha beta"))
	waitFor(t, 2*time.Second, func() bool {
		return len(store.savedContents(sess.ID)) == 1
	})
	o.Enqueue(sess, testChunk(sess.ID, 2, "gamma delta"))
	waitFor(t, 2*time.Second, func() bool {
		return len(store.savedContents(sess.ID)) == 2
	})

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.prompts[0] != "" {
		t.Errorf("first prompt = %q, want empty", tr.prompts[0])
	}
	if tr.prompts[1] != "alpha beta" {
		t.Errorf("second prompt = %q, want the first transcript", tr.prompts[1])
	}
}

func TestAnalysisTriggeredEveryNthChunk(t *testing.T) {
	store := newMemStore()
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	analyzer := &fakeAnalyzer{}
	tr := &fakeTranscriber{}
	o := testOrchestrator(tr, store, bc, sessions, func(opts *Options) {
		opts.Analyzer = analyzer
		opts.AnalysisEvery = 2
	})
	defer o.Shutdown()

	for i := 1; i <= 4; i++ {
		o.Enqueue(sess, testChunk(sess.ID, i, fmt.Sprintf("utterance %d", i)))
	}

	waitFor(t, 2*time.Second, func() bool {
		return analyzer.calls.Load() == 2
	})
	waitFor(t, 2*time.Second, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.highlights) == 2
	})
}

func TestEndSessionDrainsBeforeClosing(t *testing.T) {
	store := newMemStore()
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	tr := &fakeTranscriber{
		fn: func(req stt.Request) (*stt.Result, error) {
			time.Sleep(20 * time.Millisecond)
			return &stt.Result{Text: string(req.Audio)}, nil
		},
	}
	o := testOrchestrator(tr, store, bc, sessions, nil)
	o.StartSweep()
	defer o.Shutdown()

	for i := 1; i <= 3; i++ {
		o.Enqueue(sess, testChunk(sess.ID, i, fmt.Sprintf("utterance %d", i)))
	}

	if err := o.EndSession(sess); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return sessions.Get(sess.ID) == nil
	})

	if got := len(store.savedContents(sess.ID)); got != 3 {
		t.Errorf("results = %d, want all 3 queued chunks processed before close", got)
	}

	types := bc.typesFor(sess.ID)
	if len(types) != 4 {
		t.Fatalf("broadcasts = %v, want 3 transcriptions then meeting_ended", types)
	}
	for i := 0; i < 3; i++ {
		if types[i] != protocol.TypeTranscription {
			t.Errorf("broadcast[%d] = %q, want transcription", i, types[i])
		}
	}
	if types[3] != protocol.TypeMeetingEnded {
		t.Errorf("last broadcast = %q, want meeting_ended", types[3])
	}

	store.mu.Lock()
	_, ended := store.ended[sess.ID]
	store.mu.Unlock()
	if !ended {
		t.Error("meeting row never stamped ended")
	}
	if sess.State() != session.StateClosed {
		t.Errorf("session state = %v, want CLOSED", sess.State())
	}
}

func TestEndSessionIdleClosesImmediately(t *testing.T) {
	store := newMemStore()
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	tr := &fakeTranscriber{}
	o := testOrchestrator(tr, store, bc, sessions, nil)
	defer o.Shutdown()

	if err := o.EndSession(sess); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	if sessions.Get(sess.ID) != nil {
		t.Error("idle session still registered after EndSession")
	}
	types := bc.typesFor(sess.ID)
	if len(types) != 1 || types[0] != protocol.TypeMeetingEnded {
		t.Errorf("broadcasts = %v, want a single meeting_ended", types)
	}

	if err := o.EndSession(sess); err == nil {
		t.Error("second EndSession succeeded, want error")
	}
}

func TestEndSessionGeneratesSummary(t *testing.T) {
	store := newMemStore()
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	tr := &fakeTranscriber{}
	o := testOrchestrator(tr, store, bc, sessions, func(opts *Options) {
		opts.Analyzer = &fakeAnalyzer{}
		opts.AnalysisEvery = 100
	})
	defer o.Shutdown()

	o.Enqueue(sess, testChunk(sess.ID, 1, "we decided to ship on friday"))
	waitFor(t, 2*time.Second, func() bool {
		return len(store.savedContents(sess.ID)) == 1
	})

	if err := o.EndSession(sess); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return sessions.Get(sess.ID) == nil
	})

	store.mu.Lock()
	summary := store.summaries[sess.ID]
	store.mu.Unlock()
	if summary != "short summary" {
		t.Errorf("summary = %q, want the analyzer's output", summary)
	}
}

func TestPersistFailureStillDelivers(t *testing.T) {
	store := newMemStore()
	store.saveErr = fmt.Errorf("disk full")
	bc := newFakeBroadcaster()
	sessions := session.NewStore(10, 500)
	sess := sessions.Create("standup", "c1")

	tr := &fakeTranscriber{}
	o := testOrchestrator(tr, store, bc, sessions, nil)
	defer o.Shutdown()

	o.Enqueue(sess, testChunk(sess.ID, 1, "still audible"))

	waitFor(t, 2*time.Second, func() bool {
		return len(bc.typesFor(sess.ID)) == 1
	})
	if types := bc.typesFor(sess.ID); types[0] != protocol.TypeTranscription {
		t.Errorf("broadcast = %q, want transcription despite persist failure", types[0])
	}
}

func TestDetectSpeaker(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Maria: let's start with the backlog", "Maria"},
		{"[Diego] I pushed the fix yesterday", "Diego"},
		{"no speaker label in this one", ""},
		{"123: not a valid label", ""},
	}
	for _, tc := range cases {
		if got := detectSpeaker(tc.text); got != tc.want {
			t.Errorf("detectSpeaker(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestConfidence(t *testing.T) {
	if got := confidence(&stt.Result{Text: "anything"}); got != 0.7 {
		t.Errorf("confidence with no segments = %v, want 0.7", got)
	}

	many := &stt.Result{
		Text: strings.Repeat("x", 200),
		Segments: []stt.Segment{
			{}, {}, {}, {}, {}, {}, {}, {}, {}, {}, {}, {},
		},
	}
	if got := confidence(many); got != 1.0 {
		t.Errorf("confidence with saturated scores = %v, want 1.0", got)
	}

	small := confidence(&stt.Result{Text: "hi", Segments: []stt.Segment{{}}})
	if small <= 0.1 || small >= 0.5 {
		t.Errorf("confidence for a tiny result = %v, want low but above the floor", small)
	}
}
