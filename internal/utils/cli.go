package utils

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/kballard/go-shellquote"
)

const DefaultConfigPath = "banana-cask.yaml"

// CLIInputs holds the global flags shared by every subcommand. Zero values
// mean "not set", so the config file value stays in effect.
type CLIInputs struct {
	ConfigPath       string
	DataDir          string
	MaxSegmentSizeMB int
	LogLevel         string
}

// HandleCLIInputs parses the global flags in args and returns them together
// with the remaining arguments (subcommand first).
func HandleCLIInputs(args []string, output io.Writer) (*CLIInputs, []string, error) {
	in := &CLIInputs{}

	fs := flag.NewFlagSet("banana-cask", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&in.ConfigPath, "config", DefaultConfigPath, "Path to the YAML config file")
	fs.StringVar(&in.DataDir, "dir", "", "Directory Path to be used for this instance (overrides config)")
	fs.IntVar(&in.MaxSegmentSizeMB, "segsize", 0, "Max Segment Size (in MB, overrides config)")
	fs.StringVar(&in.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if in.MaxSegmentSizeMB < 0 {
		return nil, nil, fmt.Errorf("segsize must be positive, got %d", in.MaxSegmentSizeMB)
	}
	return in, fs.Args(), nil
}

// SplitStringIntoCommandAndArguments splits an input line with shell quoting
// rules into a command, a key and a value. Key and value are empty when
// absent.
func SplitStringIntoCommandAndArguments(line string) (cmd, key, value string, err error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return "", "", "", err
	}

	switch len(words) {
	case 0:
		return "", "", "", errors.New("empty command")
	case 1:
		return words[0], "", "", nil
	case 2:
		return words[0], words[1], "", nil
	case 3:
		return words[0], words[1], words[2], nil
	default:
		return "", "", "", fmt.Errorf("too many arguments: got %d, quote values containing spaces", len(words)-1)
	}
}
