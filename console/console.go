// Package console reads operator commands. On a terminal it provides line
// editing and in-memory history; otherwise it reads plain lines.
package console

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// DefaultPrompt is shown before each command.
const DefaultPrompt = "> "

// ErrInterrupted is returned by ReadLine when the operator presses Ctrl-C.
var ErrInterrupted = errors.New("interrupted")

const ctrlC = 0x03

// LineReader reads one command line at a time.
type LineReader interface {
	ReadLine() (string, error)
}

// Console is a LineReader that also accepts log output, so that asynchronous
// writes do not garble the line being edited.
type Console struct {
	mu      sync.Mutex
	term    *term.Terminal
	scanner *bufio.Scanner
	out     io.Writer
	prompt  string

	// fd is the terminal, or -1. The terminal is raw only while ReadLine
	// blocks, so Ctrl-C raises SIGINT at any other time.
	fd       int
	rawMu    sync.Mutex
	oldState *term.State
}

// New opens the console on in/out. A terminal stays in its current mode until
// the first ReadLine.
func New(in *os.File, out io.Writer, prompt string) (*Console, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return NewReader(in, out, prompt), nil
	}
	rw := struct {
		io.Reader
		io.Writer
	}{interruptReader{in}, out}
	return &Console{
		term:   term.NewTerminal(rw, prompt),
		out:    out,
		prompt: prompt,
		fd:     fd,
	}, nil
}

// NewReader reads plain lines from r and prints the prompt to out.
func NewReader(r io.Reader, out io.Writer, prompt string) *Console {
	return &Console{
		scanner: bufio.NewScanner(r),
		out:     out,
		prompt:  prompt,
		fd:      -1,
	}
}

func (c *Console) ReadLine() (string, error) {
	if c.term != nil {
		if err := c.makeRaw(); err != nil {
			return "", err
		}
		line, err := c.term.ReadLine()
		c.restore()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	c.mu.Lock()
	if c.prompt != "" {
		io.WriteString(c.out, c.prompt)
	}
	c.mu.Unlock()
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.scanner.Text()), nil
}

// Write prints output above the prompt line.
func (c *Console) Write(p []byte) (int, error) {
	if c.term != nil {
		return c.term.Write(p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *Console) makeRaw() error {
	c.rawMu.Lock()
	defer c.rawMu.Unlock()
	if c.oldState != nil {
		return nil
	}
	state, err := term.MakeRaw(c.fd)
	if err != nil {
		return err
	}
	c.oldState = state
	return nil
}

func (c *Console) restore() error {
	c.rawMu.Lock()
	defer c.rawMu.Unlock()
	if c.oldState == nil {
		return nil
	}
	state := c.oldState
	c.oldState = nil
	return term.Restore(c.fd, state)
}

// Close restores the terminal if a ReadLine left it in raw mode.
func (c *Console) Close() error {
	if c.fd < 0 {
		return nil
	}
	return c.restore()
}

// interruptReader turns Ctrl-C, which raw mode delivers as a byte, into an error.
type interruptReader struct {
	r io.Reader
}

func (ir interruptReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if i := bytes.IndexByte(p[:n], ctrlC); i >= 0 {
		return i, ErrInterrupted
	}
	return n, err
}
