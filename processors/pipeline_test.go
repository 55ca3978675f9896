package processors

import (
	"errors"
	"testing"

	"kado/core"
)

type stubASR struct {
	segments []core.Segment
	err      error
}

func (s stubASR) Transcribe(audioPath string) ([]core.Segment, error) {
	return s.segments, s.err
}

type stubExtractor struct {
	calls   int
	results [][]core.FailureEvent
	errs    []error
}

func (s *stubExtractor) Extract(window []core.Segment) ([]core.FailureEvent, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return []core.FailureEvent{}, nil
}

func TestPipelineShortCircuitNoSegments(t *testing.T) {
	extractor := &stubExtractor{}
	p := &Pipeline{ASR: stubASR{}, Extractor: extractor, Radius: 2, SkipAudio: true}

	failures, debug, err := p.Run("ignored.mp4")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("expected no failures, got %d", len(failures))
	}
	if extractor.calls != 0 {
		t.Errorf("extractor should not run without segments, got %d calls", extractor.calls)
	}
	if debug.NumSegments != 0 || debug.NumWindows != 0 {
		t.Errorf("unexpected counters: %+v", debug)
	}
}

func TestPipelineShortCircuitNoCandidates(t *testing.T) {
	extractor := &stubExtractor{}
	p := &Pipeline{
		ASR: stubASR{segments: []core.Segment{
			seg(0, 5, "Everything works great"),
			seg(5, 10, "The demo went smoothly"),
		}},
		Extractor: extractor,
		Radius:    2,
		SkipAudio: true,
	}

	failures, debug, err := p.Run("ignored.mp4")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("expected no failures, got %d", len(failures))
	}
	if extractor.calls != 0 {
		t.Errorf("extractor should not run without candidates, got %d calls", extractor.calls)
	}
	if debug.NumSegments != 2 || debug.NumCandidates != 0 || debug.NumWindows != 0 {
		t.Errorf("unexpected counters: %+v", debug)
	}
}

func TestPipelineTranscriptionErrorIsFatal(t *testing.T) {
	p := &Pipeline{
		ASR:       stubASR{err: errors.New("provider unreachable")},
		Extractor: &stubExtractor{},
		Radius:    2,
		SkipAudio: true,
	}
	if _, _, err := p.Run("ignored.mp4"); err == nil {
		t.Error("expected transcription failure to abort the run")
	}
}

func TestPipelineExtractsAndMerges(t *testing.T) {
	segments := []core.Segment{
		seg(0, 5, "Let me open the settings page"),
		seg(5, 10, "clicking save shows an error"),
		seg(10, 15, "trying again, still an error"),
		seg(15, 20, "the rest of the page is fine"),
	}
	extractor := &stubExtractor{
		results: [][]core.FailureEvent{
			{event(5, "Save shows an error", 0.7, "clicking save shows an error")},
			{event(10, "Save shows an error", 0.9, "trying again, still an error")},
		},
	}
	p := &Pipeline{ASR: stubASR{segments: segments}, Extractor: extractor, Radius: 2, SkipAudio: true}

	failures, debug, err := p.Run("ignored.mp4")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if extractor.calls != 2 {
		t.Fatalf("expected one extraction per window, got %d", extractor.calls)
	}
	if debug.NumSegments != 4 || debug.NumCandidates != 2 || debug.NumWindows != 2 {
		t.Errorf("unexpected counters: %+v", debug)
	}
	if len(failures) != 1 {
		t.Fatalf("expected duplicates to merge into 1 failure, got %d", len(failures))
	}
	if failures[0].Confidence != 0.9 {
		t.Errorf("merged confidence = %v, want 0.9", failures[0].Confidence)
	}
}

func TestPipelineWindowErrorDegrades(t *testing.T) {
	segments := []core.Segment{
		seg(0, 5, "clicking save shows an error"),
		seg(5, 10, "now the app crashed completely"),
	}
	extractor := &stubExtractor{
		errs: []error{errors.New("rate limited"), nil},
		results: [][]core.FailureEvent{
			nil,
			{event(5, "App crashed", 0.8, "now the app crashed completely")},
		},
	}
	p := &Pipeline{ASR: stubASR{segments: segments}, Extractor: extractor, Radius: 2, SkipAudio: true}

	failures, _, err := p.Run("ignored.mp4")
	if err != nil {
		t.Fatalf("a window-local failure must not abort the run: %v", err)
	}
	if extractor.calls != 2 {
		t.Fatalf("expected the run to continue past the failed window, got %d calls", extractor.calls)
	}
	if len(failures) != 1 || failures[0].Title != "App crashed" {
		t.Errorf("expected only the second window's failure, got %v", failures)
	}
}
