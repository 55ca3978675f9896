package core

import (
	"bytes"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh identifier for correlating uploads, temp files
// and log lines belonging to one analysis run.
func NewID() string {
	return uuid.NewString()
}

func RunFFmpeg(args []string) error {
	cmd := exec.Command("ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// FFmpegAvailable reports whether the ffmpeg binary can be executed.
func FFmpegAvailable() bool {
	return exec.Command("ffmpeg", "-version").Run() == nil
}

// ProbeDuration returns the media duration in seconds using ffprobe.
func ProbeDuration(path string) (float64, error) {
	cmd := exec.Command("ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return 0, err
	}
	s := strings.TrimSpace(out.String())
	return strconv.ParseFloat(s, 64)
}
