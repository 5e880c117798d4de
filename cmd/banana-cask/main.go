package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aethne0/banana-cask/core"
	"github.com/aethne0/banana-cask/internal/config"
	"github.com/aethne0/banana-cask/internal/logging"
	"github.com/aethne0/banana-cask/internal/shell"
	"github.com/aethne0/banana-cask/internal/utils"
	"github.com/aethne0/banana-cask/internal/workload"
)

const usage = `usage: banana-cask [flags] <command> [arguments]

Commands:
  put <key> <value>   store a value
  get <key>           print the value of a key
  delete <key>        remove a key
  keys                list every key
  segments            list the segment files
  seed [flags]        generate random writes (see banana-cask seed -h)
  shell               interactive command loop

Flags:`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inputs, rest, err := utils.HandleCLIInputs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, usage)
			return 0
		}
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	cfg, err := loadConfig(inputs)
	if err != nil {
		fmt.Fprintln(stderr, "Error loading config:", err)
		return 1
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(stderr, "Error creating logger:", err)
		return 1
	}
	if closer != nil {
		defer closer.Close()
	}

	opts, err := cfg.Engine.Options(logger)
	if err != nil {
		fmt.Fprintln(stderr, "Invalid engine config:", err)
		return 1
	}

	c, err := core.Open(cfg.Engine.DataDir, cfg.Engine.MaxSegmentSizeBytes, opts...)
	if err != nil {
		logger.Error("Failed to open store", "dir", cfg.Engine.DataDir, "error", err)
		fmt.Fprintln(stderr, "Error opening store:", err)
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	for _, issue := range c.RecoveryIssues() {
		fmt.Fprintln(stderr, "recovery:", issue)
	}

	if err := dispatch(c, rest, stdin, stdout, stderr, logger); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

// loadConfig reads the config file and applies the flag overrides.
func loadConfig(inputs *utils.CLIInputs) (*config.Config, error) {
	if inputs.ConfigPath != utils.DefaultConfigPath && !utils.PathExists(inputs.ConfigPath) {
		return nil, fmt.Errorf("config file %s does not exist", inputs.ConfigPath)
	}

	cfg, err := config.LoadConfig(inputs.ConfigPath)
	if err != nil {
		return nil, err
	}
	if inputs.DataDir != "" {
		cfg.Engine.DataDir = inputs.DataDir
	}
	if inputs.MaxSegmentSizeMB > 0 {
		cfg.Engine.MaxSegmentSizeBytes = int64(inputs.MaxSegmentSizeMB) * core.OneMegabyte
	}
	if inputs.LogLevel != "" {
		cfg.Logging.Level = inputs.LogLevel
	}
	return cfg, nil
}

func dispatch(c *core.Cask, args []string, stdin io.Reader, stdout, stderr io.Writer, logger *slog.Logger) error {
	cmd, args := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "put":
		if len(args) != 2 {
			return errors.New("usage: put <key> <value>")
		}
		return c.Put([]byte(args[0]), []byte(args[1]))

	case "get":
		if len(args) != 1 {
			return errors.New("usage: get <key>")
		}
		value, found, err := c.Get([]byte(args[0]))
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(stdout, "nil")
			return nil
		}
		fmt.Fprintln(stdout, string(value))
		return nil

	case "delete":
		if len(args) != 1 {
			return errors.New("usage: delete <key>")
		}
		return c.Delete([]byte(args[0]))

	case "keys":
		keys, err := c.Keys()
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(stdout, string(k))
		}
		return nil

	case "segments":
		segments, err := c.Segments()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, shell.FormatSegments(segments))
		return nil

	case "seed":
		return seed(c, args, stdout, stderr, logger)

	case "shell":
		ctx, stop := utils.InterruptContext(context.Background())
		defer stop()
		fmt.Fprintln(stdout, "Type commands. 'help' for information or 'exit' to quit.")
		return shell.New(c, stdout).Run(ctx, stdin)

	default:
		return fmt.Errorf("unknown command %q, run banana-cask -h for help", cmd)
	}
}

func seed(c *core.Cask, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	cfg := workload.DefaultConfig()

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent writers")
	fs.IntVar(&cfg.Operations, "ops", cfg.Operations, "Operations per writer")
	fs.IntVar(&cfg.KeyLen, "keylen", cfg.KeyLen, "Key length in bytes")
	fs.IntVar(&cfg.ValueLen, "vallen", cfg.ValueLen, "Value length in bytes")
	fs.Float64Var(&cfg.DeleteRatio, "delete-ratio", cfg.DeleteRatio, "Share of operations that are deletes")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := utils.InterruptContext(context.Background())
	defer stop()

	stats, err := workload.Run(ctx, c, cfg, logger)
	fmt.Fprintf(stdout, "puts=%d deletes=%d elapsed=%s\n", stats.Puts, stats.Deletes, stats.Elapsed.Round(time.Millisecond))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
