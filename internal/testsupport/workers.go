package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidscribe/internal/config"
)

// Canned worker bodies for WithExtractorScript and WithTranscriberScript.
const (
	ExtractorWritesAudio = "printf 'RIFF----WAVEfmt ' > \"$2\"\n"
	ExtractorWritesEmpty = ": > \"$2\"\n"
	ExtractorWritesNone  = "exit 0\n"
	// ExtractorBlocks sleeps long enough that only a cancel or timeout ends it.
	ExtractorBlocks = "sleep 30\nprintf 'late' > \"$2\"\n"
)

// WorkerFails returns a body that writes stderr and exits with code.
func WorkerFails(code int, stderr string) string {
	return fmt.Sprintf("printf '%%s\\n' %s >&2\nexit %d\n", shellQuote(stderr), code)
}

// TranscriberPrints returns a body that writes text to stdout.
func TranscriberPrints(text string) string {
	return fmt.Sprintf("printf '%%s\\n' %s\n", shellQuote(text))
}

// Launched reports whether the named stub worker ("extractor" or
// "transcriber") has been started at least once.
func Launched(cfg *config.Config, name string) bool {
	_, err := os.Stat(launchMarker(BaseDir(cfg), name))
	return err == nil
}

func writeWorker(t testing.TB, baseDir, name, body string) string {
	t.Helper()
	marker := launchMarker(baseDir, name)
	script := fmt.Sprintf("touch %s\n%s", shellQuote(marker), body)
	return WriteScript(t, filepath.Join(baseDir, "workers", name), script)
}

func launchMarker(baseDir, name string) string {
	return filepath.Join(baseDir, "workers", name+".launched")
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
