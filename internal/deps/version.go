package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const versionProbeTimeout = 3 * time.Second

// ProbeVersion runs command with flag and returns the first non-empty line of
// its combined output. Failures yield an empty string.
func ProbeVersion(command, flag string) string {
	ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, command, flag).CombinedOutput()
	if err != nil && len(output) == 0 {
		return ""
	}
	for line := range strings.SplitSeq(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
