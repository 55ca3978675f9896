package processors

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"kado/config"
	"kado/core"
)

// Pipeline runs the full analysis for one video: audio extraction,
// transcription, candidate detection, window building, per-window
// extraction and merge/dedupe. Providers are fixed at construction
// time; a Pipeline holds no per-run state and is safe to reuse.
type Pipeline struct {
	ASR       ASRProvider
	Extractor Extractor
	Radius    int

	// SkipAudio bypasses ffmpeg when the transcription provider reads
	// fixtures instead of audio.
	SkipAudio bool
}

// NewPipeline builds a pipeline with the providers the config selects.
func NewPipeline(cfg *config.Config) (*Pipeline, error) {
	asr, err := PickASRProvider(cfg)
	if err != nil {
		return nil, err
	}
	extractor, err := PickExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		ASR:       asr,
		Extractor: extractor,
		Radius:    DefaultWindowRadius,
		SkipAudio: cfg.MockMode || cfg.TranscribeProvider == "mock",
	}, nil
}

// Run analyzes one video and returns the deduplicated failure list
// sorted by timestamp, plus stage counters for diagnostics.
//
// Audio extraction and transcription errors are fatal to the run. A
// failed extraction for a single window only drops that window's
// claims; the run continues.
func (p *Pipeline) Run(videoPath string) ([]core.FailureEvent, *core.DebugInfo, error) {
	debug := &core.DebugInfo{}

	audioPath := videoPath
	if !p.SkipAudio {
		wavPath := filepath.Join(os.TempDir(), "kado-audio-"+core.NewID()+".wav")
		log.Printf("Stage 1: extracting audio from %s", videoPath)
		if err := ExtractAudio(videoPath, wavPath); err != nil {
			return nil, debug, fmt.Errorf("extract audio: %v", err)
		}
		defer func() {
			if err := os.Remove(wavPath); err != nil && !os.IsNotExist(err) {
				log.Printf("Failed to clean up temp WAV %s: %v", wavPath, err)
			}
		}()
		audioPath = wavPath
	}

	log.Printf("Stage 2: transcribing audio")
	segments, err := p.ASR.Transcribe(audioPath)
	if err != nil {
		return nil, debug, fmt.Errorf("transcribe: %v", err)
	}
	debug.NumSegments = len(segments)
	log.Printf("Got %d transcript segments", len(segments))
	if len(segments) == 0 {
		log.Printf("No transcript segments, returning empty result")
		return []core.FailureEvent{}, debug, nil
	}

	log.Printf("Stage 3: detecting candidate segments")
	indices := DetectCandidates(segments)
	debug.NumCandidates = len(indices)
	log.Printf("Found %d candidate segments", len(indices))
	if len(indices) == 0 {
		log.Printf("No candidate segments, returning empty result")
		return []core.FailureEvent{}, debug, nil
	}

	radius := p.Radius
	if radius <= 0 {
		radius = DefaultWindowRadius
	}
	log.Printf("Stage 4: building context windows")
	windows := BuildWindows(segments, indices, radius)
	debug.NumWindows = len(windows)
	log.Printf("Built %d windows", len(windows))

	log.Printf("Stage 5: extracting failures per window")
	allFailures := make([]core.FailureEvent, 0)
	for i, window := range windows {
		failures, err := p.Extractor.Extract(window)
		if err != nil {
			// Contained to this window; its signal is dropped.
			log.Printf("Window %d/%d: extraction failed: %v", i+1, len(windows), err)
			continue
		}
		log.Printf("Window %d/%d: %d failures found", i+1, len(windows), len(failures))
		allFailures = append(allFailures, failures...)
	}
	log.Printf("Total raw failures: %d", len(allFailures))

	log.Printf("Stage 6: merging and deduplicating")
	result := MergeAndDedupe(allFailures)
	log.Printf("Final failures after dedupe: %d", len(result))

	return result, debug, nil
}
