package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"kado/config"
	"kado/core"
)

// ASRProvider transcribes an audio file into timestamped segments.
type ASRProvider interface {
	Transcribe(audioPath string) ([]core.Segment, error)
}

// MockASR returns canned segments from fixtures/transcript.json. It
// never touches the audio file.
type MockASR struct {
	Dir string
}

func (m MockASR) Transcribe(audioPath string) ([]core.Segment, error) {
	data, err := os.ReadFile(filepath.Join(m.Dir, "transcript.json"))
	if err != nil {
		return nil, fmt.Errorf("read transcript fixture: %v", err)
	}
	var segs []core.Segment
	if err := json.Unmarshal(data, &segs); err != nil {
		return nil, fmt.Errorf("parse transcript fixture: %v", err)
	}
	return segs, nil
}

// WhisperASR transcribes through the OpenAI audio API with per-segment
// timestamps.
type WhisperASR struct {
	cli   *openai.Client
	model string
}

func (w WhisperASR) Transcribe(audioPath string) ([]core.Segment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return nil, err
	}

	segs := make([]core.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segs = append(segs, core.Segment{Start: s.Start, End: s.End, Text: text})
	}
	if len(segs) > 0 {
		return segs, nil
	}

	// Some compatible endpoints return plain text without segments.
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, fmt.Errorf("empty transcription result")
	}
	dur, _ := core.ProbeDuration(audioPath)
	return []core.Segment{{Start: 0, End: dur, Text: text}}, nil
}

// WhisperCppASR shells out to a local whisper.cpp build and parses its
// JSON output. No API key required.
type WhisperCppASR struct {
	Bin       string
	ModelPath string
}

func (w WhisperCppASR) Transcribe(audioPath string) ([]core.Segment, error) {
	outPrefix := filepath.Join(os.TempDir(), "kado-whisper-"+core.NewID())
	jsonPath := outPrefix + ".json"
	defer os.Remove(jsonPath)

	cmd := exec.Command(w.Bin, "-m", w.ModelPath, "-f", audioPath, "-oj", "-of", outPrefix, "-np")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("whisper.cpp failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp produced no JSON output: %v", err)
	}
	return parseWhisperCppOutput(data)
}

type whisperCppOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseWhisperCppOutput converts whisper.cpp millisecond offsets into
// segments with second-based timestamps.
func parseWhisperCppOutput(data []byte) ([]core.Segment, error) {
	var out whisperCppOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper.cpp output: %v", err)
	}
	segs := make([]core.Segment, 0, len(out.Transcription))
	for _, t := range out.Transcription {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		segs = append(segs, core.Segment{
			Start: float64(t.Offsets.From) / 1000.0,
			End:   float64(t.Offsets.To) / 1000.0,
			Text:  text,
		})
	}
	return segs, nil
}

// PickASRProvider selects the transcription provider from the config.
func PickASRProvider(cfg *config.Config) (ASRProvider, error) {
	if cfg.MockMode {
		return MockASR{Dir: cfg.FixturesDir}, nil
	}

	switch cfg.TranscribeProvider {
	case "mock":
		return MockASR{Dir: cfg.FixturesDir}, nil
	case "whispercpp":
		if cfg.WhisperCppModelPath == "" {
			return nil, config.NotConfiguredError{Variable: "WHISPERCPP_MODEL_PATH"}
		}
		return WhisperCppASR{Bin: cfg.WhisperCppBin, ModelPath: cfg.WhisperCppModelPath}, nil
	case "whisper":
		if !cfg.HasValidAPI() {
			return nil, config.NotConfiguredError{Variable: "OPENAI_API_KEY"}
		}
		return WhisperASR{cli: openaiClient(cfg), model: cfg.WhisperModel}, nil
	default:
		return nil, fmt.Errorf("unknown TRANSCRIBE_PROVIDER: %s", cfg.TranscribeProvider)
	}
}
