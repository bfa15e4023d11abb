package stage

import (
	"strings"
	"time"

	"vidscribe/internal/config"
)

// Spec declares what a stage runs and what it must produce.
type Spec struct {
	Name       string
	Executable string
	// Args is the argument template; {input} and {output} are substituted
	// with Input and OutputFile at execution time.
	Args    []string
	Input   string
	Timeout time.Duration
	// OutputFile, when set, must exist and be non-empty after a clean exit.
	// When empty the stage's output is its trimmed stdout.
	OutputFile string
	Dir        string
}

// ProducesFile reports whether the stage's output is a file rather than stdout.
func (s Spec) ProducesFile() bool {
	return strings.TrimSpace(s.OutputFile) != ""
}

// RenderArgs substitutes the input and output placeholders.
func (s Spec) RenderArgs() []string {
	replacer := strings.NewReplacer(config.PlaceholderInput, s.Input, config.PlaceholderOutput, s.OutputFile)
	rendered := make([]string, 0, len(s.Args))
	for _, arg := range s.Args {
		rendered = append(rendered, replacer.Replace(arg))
	}
	return rendered
}

// FromWorker builds a Spec from a configured worker.
func FromWorker(name string, w config.Worker, input, outputFile, dir string) Spec {
	return Spec{
		Name:       name,
		Executable: w.Command,
		Args:       append([]string(nil), w.Args...),
		Input:      input,
		Timeout:    w.Timeout(),
		OutputFile: outputFile,
		Dir:        dir,
	}
}
