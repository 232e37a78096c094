package terminal

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// LineReader reads one line of user input.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// LineEditor is a LineReader with line editing and persistent history.
type LineEditor struct {
	state       *liner.State
	historyFile string
}

// NewLineEditor starts line editing. History is loaded from historyFile when
// it is non-empty.
func NewLineEditor(historyFile string) *LineEditor {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	e := &LineEditor{state: state, historyFile: historyFile}
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}
	return e
}

func (e *LineEditor) Prompt(prompt string) (string, error) {
	input, err := e.state.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.state.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and restores the terminal.
func (e *LineEditor) Close() error {
	if e.historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(e.historyFile), 0o700); err == nil {
			if f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
				_, _ = e.state.WriteHistory(f)
				_ = f.Close()
			}
		}
	}
	return e.state.Close()
}
