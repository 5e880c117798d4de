// Package shell implements the interactive command loop of the CLI.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aethne0/banana-cask/core"
	"github.com/aethne0/banana-cask/internal/utils"
)

const helpString = `
Available Commands:

PING
  Check if the store is alive.
  Response: PONG!

SET <key> <value>
  Store a value for the given key (PUT is an alias).
  Overwrites the value if the key already exists.
  Response: ok

GET <key>
  Retrieve the value associated with the key.
  Response: value | nil

DELETE <key>
  Delete the key and its value.
  Response: ok

EXISTS <key>
  Check if a key exists.
  Response: true | false

COUNT
  Return the total number of keys stored.
  Response: integer

LIST
  List all stored keys.
  Response: list of keys | nil

SEGMENTS
  List the segment files with their sizes.

SYNC
  Flush the active segment to disk.
  Response: ok

HELP
  Show this help message.

EXIT
  Leave the shell.

Keys and values containing spaces must be quoted: SET greeting "hello world"
`

// Shell executes text commands against an open Cask.
type Shell struct {
	cask *core.Cask
	out  io.Writer
}

func New(c *core.Cask, out io.Writer) *Shell {
	return &Shell{cask: c, out: out}
}

// Run reads commands from in, one per line, until EOF, EXIT or ctx is done.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	s.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line != "" && s.Execute(line) {
			return nil
		}
		s.prompt()
	}
	return scanner.Err()
}

func (s *Shell) prompt() {
	fmt.Fprint(s.out, "> ")
}

// Execute runs a single command line and reports whether the shell should
// stop.
func (s *Shell) Execute(line string) (quit bool) {
	command, key, value, err := utils.SplitStringIntoCommandAndArguments(line)
	if err != nil {
		s.reply("parse error: " + err.Error())
		return false
	}

	switch strings.ToLower(command) {
	case "ping":
		s.reply("PONG!")
	case "set", "put":
		s.handleCommandSET(key, value)
	case "get":
		s.handleCommandGET(key)
	case "delete":
		s.handleCommandDelete(key)
	case "exists":
		s.handleCommandExists(key)
	case "count":
		s.handleCommandCount()
	case "list":
		s.handleCommandList()
	case "segments":
		s.handleCommandSegments()
	case "sync":
		s.handleCommandSync()
	case "help":
		s.reply(strings.TrimSpace(helpString))
	case "exit", "quit":
		return true
	default:
		s.reply("Invalid Command")
	}
	return false
}

func (s *Shell) handleCommandSET(key, value string) {
	if key == "" {
		s.reply("usage: SET <key> <value>")
		return
	}
	if err := s.cask.Put([]byte(key), []byte(value)); err != nil {
		s.replyError("setting value", err)
		return
	}
	s.reply("ok")
}

func (s *Shell) handleCommandGET(key string) {
	value, found, err := s.cask.Get([]byte(key))
	if err != nil {
		s.replyError("reading value", err)
		return
	}
	if !found {
		s.reply("nil")
		return
	}
	s.reply(string(value))
}

func (s *Shell) handleCommandDelete(key string) {
	if err := s.cask.Delete([]byte(key)); err != nil {
		s.replyError("deleting value", err)
		return
	}
	s.reply("ok")
}

func (s *Shell) handleCommandExists(key string) {
	ok, err := s.cask.Has([]byte(key))
	if err != nil {
		s.replyError("checking key", err)
		return
	}
	s.reply(strconv.FormatBool(ok))
}

func (s *Shell) handleCommandCount() {
	n, err := s.cask.Len()
	if err != nil {
		s.replyError("counting keys", err)
		return
	}
	s.reply(strconv.Itoa(n))
}

func (s *Shell) handleCommandList() {
	keys, err := s.cask.Keys()
	if err != nil {
		s.replyError("listing keys", err)
		return
	}
	if len(keys) == 0 {
		s.reply("nil")
		return
	}

	var b strings.Builder
	b.WriteString("----- KEYS START -----\n")
	for _, k := range keys {
		b.Write(k)
		b.WriteByte('\n')
	}
	b.WriteString("----- KEYS END -----")
	s.reply(b.String())
}

func (s *Shell) handleCommandSegments() {
	segments, err := s.cask.Segments()
	if err != nil {
		s.replyError("listing segments", err)
		return
	}
	s.reply(FormatSegments(segments))
}

func (s *Shell) handleCommandSync() {
	if err := s.cask.Sync(); err != nil {
		s.replyError("syncing", err)
		return
	}
	s.reply("ok")
}

func (s *Shell) reply(msg string) {
	fmt.Fprintln(s.out, msg)
}

func (s *Shell) replyError(action string, err error) {
	s.reply(fmt.Sprintf("Error while %s: %v", action, err))
}

// FormatSegments renders one "<id> <file> <bytes>" line per segment, the
// active segment marked with a trailing asterisk.
func FormatSegments(segments []core.SegmentInfo) string {
	var b strings.Builder
	for i, seg := range segments {
		size := int64(-1)
		if stat, err := os.Stat(seg.Path); err == nil {
			size = stat.Size()
		}
		fmt.Fprintf(&b, "%d\t%s\t%d", seg.ID, filepath.Base(seg.Path), size)
		if i == len(segments)-1 {
			b.WriteString("\t*")
		}
		if i < len(segments)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
