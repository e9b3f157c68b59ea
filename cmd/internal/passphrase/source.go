package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrMismatch is returned when a confirmed prompt receives two different
// entries.
var ErrMismatch = errors.New("passphrases do not match")

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The value is cached after the first successful
// retrieval so repeated calls reuse the same secret.
type Source struct {
	envVar  string
	label   string
	confirm bool

	lookupEnv func(string) (string, bool)
	prompt    func(label string) (string, error)
	out       io.Writer

	once  sync.Once
	value string
	err   error
}

// Option customises a Source.
type Option func(*Source)

// WithLabel names the secret in prompts and errors, e.g. "owner keystore".
func WithLabel(label string) Option {
	return func(s *Source) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			s.label = trimmed
		}
	}
}

// WithConfirmation makes interactive resolution ask twice. Use it when the
// passphrase protects a keystore that is about to be created.
func WithConfirmation() Option {
	return func(s *Source) { s.confirm = true }
}

// WithPrompt replaces the terminal prompt, mainly for tests.
func WithPrompt(prompt func(label string) (string, error)) Option {
	return func(s *Source) { s.prompt = prompt }
}

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(s *Source) { s.lookupEnv = lookup }
}

// NewSource constructs a passphrase source that checks envVar before
// interactively prompting on the terminal.
func NewSource(envVar string, opts ...Option) *Source {
	s := &Source{
		envVar:    strings.TrimSpace(envVar),
		label:     "keystore",
		lookupEnv: os.LookupEnv,
		out:       os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prompt == nil {
		s.prompt = s.terminalPrompt
	}
	return s
}

// Get returns the cached passphrase or resolves it if this is the first call.
// When the environment variable is set the exact value is used; otherwise the
// operator is prompted on stderr. Whitespace-only passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}

	first, err := s.prompt(fmt.Sprintf("Enter %s passphrase: ", s.label))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(first) == "" {
		return "", fmt.Errorf("%s passphrase cannot be empty", s.label)
	}
	if s.confirm {
		second, err := s.prompt(fmt.Sprintf("Repeat %s passphrase: ", s.label))
		if err != nil {
			return "", err
		}
		if first != second {
			return "", ErrMismatch
		}
	}
	return first, nil
}

func (s *Source) terminalPrompt(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if s.envVar != "" {
			return "", fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
		}
		return "", fmt.Errorf("%s passphrase required and no terminal available", s.label)
	}
	fmt.Fprint(s.out, label)
	bytes, err := term.ReadPassword(fd)
	fmt.Fprintln(s.out)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(bytes), nil
}
