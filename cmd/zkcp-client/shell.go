package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/allsmog/zkcp-go/pkg/crypto/chaumpedersen"
	"github.com/allsmog/zkcp-go/pkg/crypto/group"
	"github.com/allsmog/zkcp-go/pkg/prover"
	"github.com/chzyer/readline"
)

// Shell is the interactive prover
type Shell struct {
	client *prover.Client
	rl     *readline.Instance
	out    io.Writer

	// readPassphrase prompts for a secret without echoing it
	readPassphrase func(prompt string) (string, error)

	params  *group.Params
	provers map[string]*prover.Prover
}

// NewShell creates an interactive shell on the terminal
func NewShell(client *prover.Client) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "zkcp> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("help"),
			readline.PcItem("params"),
			readline.PcItem("register"),
			readline.PcItem("login"),
			readline.PcItem("stats"),
			readline.PcItem("format", readline.PcItem("json"), readline.PcItem("cbor")),
			readline.PcItem("forget"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	sh := newShell(client, rl.Stdout(), func(prompt string) (string, error) {
		b, err := rl.ReadPassword(prompt)
		return string(b), err
	})
	sh.rl = rl
	return sh, nil
}

func newShell(client *prover.Client, out io.Writer, readPassphrase func(string) (string, error)) *Shell {
	return &Shell{
		client:         client,
		out:            out,
		readPassphrase: readPassphrase,
		provers:        make(map[string]*prover.Prover),
	}
}

// Run starts the interactive command loop
func (s *Shell) Run(ctx context.Context) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			return
		}

		if quit := s.exec(ctx, line); quit {
			fmt.Fprintln(s.out, "Exiting...")
			return
		}
	}
}

// exec runs one command line and reports whether the shell should exit
func (s *Shell) exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "params", "p":
		s.cmdParams(ctx)

	case "register", "reg":
		s.cmdRegister(ctx, args)

	case "login", "l":
		s.cmdLogin(ctx, args)

	case "stats":
		s.cmdStats(ctx)

	case "format":
		s.cmdFormat(args)

	case "forget":
		s.cmdForget(args)

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
zkcp client commands:
  params               - Show the server's group parameters
  register <identity>  - Register a credential derived from a passphrase
  login <identity>     - Log in and print the session token
  stats                - Show server record counts
  format json|cbor     - Select the wire format
  forget <identity>    - Drop the cached secret for an identity
  quit                 - Exit`)
}

func (s *Shell) cmdParams(ctx context.Context) {
	params, err := s.fetchParams(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	printParams(s.out, params)
}

func (s *Shell) cmdRegister(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: register <identity>")
		return
	}

	p, err := s.prover(ctx, args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}

	if err := s.client.Register(ctx, p); err != nil {
		fmt.Fprintf(s.out, "Registration failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Registered %s\n", args[0])
}

func (s *Shell) cmdLogin(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: login <identity>")
		return
	}

	p, err := s.prover(ctx, args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}

	start := time.Now()
	token, err := s.client.Login(ctx, p)
	if err != nil {
		fmt.Fprintf(s.out, "Login failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Logged in as %s in %v\n  session: %s\n", args[0], time.Since(start).Round(time.Millisecond), token)
}

func (s *Shell) cmdStats(ctx context.Context) {
	stats, err := s.client.Stats(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "credentials: %d\nchallenges:  %d\n", stats.Credentials, stats.Challenges)
}

func (s *Shell) cmdFormat(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(s.out, "Current format: %s\n", s.format())
		return
	}

	switch strings.ToLower(args[0]) {
	case "json":
		s.client.CBOR = false
	case "cbor":
		s.client.CBOR = true
	default:
		fmt.Fprintln(s.out, "Usage: format json|cbor")
		return
	}
	fmt.Fprintf(s.out, "Format: %s\n", s.format())
}

func (s *Shell) cmdForget(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: forget <identity>")
		return
	}
	delete(s.provers, args[0])
	fmt.Fprintf(s.out, "Forgot %s\n", args[0])
}

func (s *Shell) format() string {
	if s.client.CBOR {
		return "cbor"
	}
	return "json"
}

func (s *Shell) fetchParams(ctx context.Context) (*group.Params, error) {
	if s.params != nil {
		return s.params, nil
	}

	params, err := s.client.Params(ctx)
	if err != nil {
		return nil, err
	}
	s.params = params
	return params, nil
}

// prover returns the cached prover for identity or derives one from a
// passphrase prompt
func (s *Shell) prover(ctx context.Context, identity string) (*prover.Prover, error) {
	if p, ok := s.provers[identity]; ok {
		return p, nil
	}

	params, err := s.fetchParams(ctx)
	if err != nil {
		return nil, err
	}

	passphrase, err := s.readPassphrase(fmt.Sprintf("passphrase for %s: ", identity))
	if err != nil {
		return nil, err
	}
	if passphrase == "" {
		return nil, fmt.Errorf("empty passphrase")
	}

	p, err := prover.FromPassphrase(chaumpedersen.New(params), identity, passphrase)
	if err != nil {
		return nil, err
	}
	s.provers[identity] = p
	return p, nil
}

func printParams(w io.Writer, params *group.Params) {
	fmt.Fprintf(w, "group:   %s\n", params.Name())
	fmt.Fprintf(w, "bits:    %d\n", params.Modulus().BitLen())
	fmt.Fprintf(w, "g:       %s\n", params.G())
	fmt.Fprintf(w, "h:       %s\n", params.H())
	fmt.Fprintf(w, "modulus: %s\n", params.Modulus())
	fmt.Fprintf(w, "order:   %s\n", params.Order())
}
