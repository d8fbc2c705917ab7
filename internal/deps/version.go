package deps

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// Version runs `<binary> -version` and returns the first line of its output,
// which for ffmpeg and ffprobe names the build. It returns "" when the binary
// cannot be executed within a few seconds.
func Version(ctx context.Context, binary string) string {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := commandContext(ctx, binary, "-version").Output()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

// CheckWithVersion runs CheckBinaries, then reports the version line of every
// binary found and verifies its encoders and filters.
func CheckWithVersion(ctx context.Context, requirements []Requirement) []Status {
	results := CheckBinaries(requirements)
	for i := range results {
		if !results[i].Available {
			continue
		}
		if version := Version(ctx, results[i].Command); version != "" {
			results[i].Detail = version
		}
		checkCapabilities(ctx, &results[i], requirements[i])
	}
	return results
}
