package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/allsmog/zkcp-go/pkg/auth"
	"github.com/allsmog/zkcp-go/pkg/crypto/chaumpedersen"
	"github.com/allsmog/zkcp-go/pkg/prover"
)

const usage = `Usage: zkcp-client [flags] <command> [identity]

Commands:
  register <identity>   Derive a credential from a passphrase and register it
  login <identity>      Prove knowledge of the passphrase and print the session token
  params                Show the server's group parameters
  shell                 Interactive mode

Flags:
`

func main() {
	// Command line flags
	var (
		server     = flag.String("server", "http://127.0.0.1:50051", "Auth server base URL")
		useCBOR    = flag.Bool("cbor", false, "Use the CBOR wire format")
		passphrase = flag.String("passphrase", "", "Passphrase (default: $ZKCP_PASSPHRASE)")
		timeout    = flag.Duration("timeout", 30*time.Second, "Per-command timeout")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	client := prover.NewClient(*server)
	client.CBOR = *useCBOR

	if flag.Arg(0) == "shell" {
		sh, err := NewShell(client)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		sh.Run(context.Background())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := runCommand(ctx, client, flag.Args(), passphraseFrom(*passphrase)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func passphraseFrom(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("ZKCP_PASSPHRASE")
}

func runCommand(ctx context.Context, client *prover.Client, args []string, passphrase string) error {
	switch args[0] {
	case "params":
		params, err := client.Params(ctx)
		if err != nil {
			return err
		}
		printParams(os.Stdout, params)
		return nil

	case "register", "login":
		if len(args) < 2 {
			return fmt.Errorf("%s needs an identity", args[0])
		}
		if passphrase == "" {
			return errors.New("no passphrase: use -passphrase or ZKCP_PASSPHRASE")
		}

		params, err := client.Params(ctx)
		if err != nil {
			return err
		}
		p, err := prover.FromPassphrase(chaumpedersen.New(params), args[1], passphrase)
		if err != nil {
			return err
		}

		if args[0] == "register" {
			if err := client.Register(ctx, p); err != nil {
				return err
			}
			fmt.Printf("registered %s\n", args[1])
			return nil
		}

		token, err := client.Login(ctx, p)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrVerificationFailed):
		return 3
	case errors.Is(err, auth.ErrIdentityNotFound),
		errors.Is(err, auth.ErrIdentityAlreadyRegistered):
		return 4
	default:
		return 1
	}
}
