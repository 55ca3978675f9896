package processors

import (
	"fmt"
	"os"

	"kado/core"
)

// ExtractAudio converts a video into a mono 16 kHz WAV suitable for
// transcription.
func ExtractAudio(inputPath, audioOut string) error {
	args := []string{"-y", "-i", inputPath, "-vn", "-ac", "1", "-ar", "16000", "-f", "wav", audioOut}
	if err := core.RunFFmpeg(args); err != nil {
		return fmt.Errorf("ffmpeg failed: %v", err)
	}
	if _, err := os.Stat(audioOut); err != nil {
		return fmt.Errorf("ffmpeg produced no output file")
	}
	return nil
}
