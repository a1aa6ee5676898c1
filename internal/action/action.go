// Package action handles the GitHub Actions side of the provisioner: reading
// step inputs from the environment and appending step outputs to the files the
// runner designates.
//
// Inputs arrive as INPUT_<NAME> environment variables. Outputs go to the files
// named by GITHUB_OUTPUT and GITHUB_PATH; those files are shared by every step
// in the job, so writes are always appends, never truncations.
package action

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Input returns the value of a workflow input, applying the runner's name
// transformation (uppercase, spaces to underscores, INPUT_ prefix).
// Surrounding whitespace is trimmed.
func Input(name string) string {
	key := "INPUT_" + strings.ReplaceAll(strings.ToUpper(name), " ", "_")
	return strings.TrimSpace(os.Getenv(key))
}

// Outputs appends step results to the runner's output files.
type Outputs struct {
	// OutputFile is the path from GITHUB_OUTPUT. Empty means output emission
	// is a no-op (running outside a workflow).
	OutputFile string

	// PathFile is the path from GITHUB_PATH.
	PathFile string
}

// OutputsFromEnv reads GITHUB_OUTPUT and GITHUB_PATH. Either may be unset;
// the corresponding writes then log and do nothing, so the binary stays
// usable outside a workflow.
func OutputsFromEnv() *Outputs {
	return &Outputs{
		OutputFile: os.Getenv("GITHUB_OUTPUT"),
		PathFile:   os.Getenv("GITHUB_PATH"),
	}
}

// Set appends key=value to the step output file.
func (o *Outputs) Set(key, value string) error {
	if o.OutputFile == "" {
		log.Printf("action: GITHUB_OUTPUT not set, skipping output %s=%s", key, value)
		return nil
	}
	return appendLine(o.OutputFile, key+"="+value)
}

// AddPath appends dir to the PATH file. The runner prepends each line to PATH
// for all subsequent steps.
func (o *Outputs) AddPath(dir string) error {
	if o.PathFile == "" {
		log.Printf("action: GITHUB_PATH not set, skipping path entry %s", dir)
		return nil
	}
	return appendLine(o.PathFile, dir)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return f.Close()
}

// Errorf prints a workflow error annotation. The runner surfaces these in the
// job summary and inline in the log.
func Errorf(format string, args ...any) {
	fmt.Printf("::error::"+format+"\n", args...)
}
