// Package authctl implements the operator CLI: offline helpers for
// provisioning credentials and key material without a running daemon.
package authctl

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/shelfmark/authd/internal/common"
	"github.com/shelfmark/authd/internal/cryptox"
)

// readPassword is a test seam for term.ReadPassword.
// In tests you can replace it with a stub to avoid touching the terminal.
var readPassword = term.ReadPassword

const secretKeyBytes = 32

// App routes authctl subcommands.
type App struct {
	out io.Writer
}

func NewApp(out io.Writer) *App {
	return &App{out: out}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "usage: authctl <command>")
	fmt.Fprintln(a.out, "")
	fmt.Fprintln(a.out, "commands:")
	fmt.Fprintln(a.out, "  hash-password   prompt for a password and print its stored form")
	fmt.Fprintln(a.out, "  gen-secret      print a fresh HS256 signing secret")
	fmt.Fprintln(a.out, "  gen-code        print a one-time verification code")
}

// Run executes the subcommand named by args (program name excluded).
func (a *App) Run(args []string) error {
	if len(args) < 1 {
		a.usage()
		return fmt.Errorf("%w: missing command", common.ErrorValidation)
	}

	switch args[0] {
	case "hash-password":
		return a.hashPassword()
	case "gen-secret":
		return a.genSecret()
	case "gen-code":
		return a.genCode()
	default:
		a.usage()
		return fmt.Errorf("%w: unknown command %q", common.ErrorValidation, args[0])
	}
}

func (a *App) promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(a.out, prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func (a *App) hashPassword() error {
	pw, err := a.promptPassword("Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	confirm, err := a.promptPassword("Repeat password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if string(pw) != string(confirm) {
		return fmt.Errorf("%w: passwords do not match", common.ErrorValidation)
	}

	hash, err := cryptox.HashPassword(string(pw))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, hash)
	return nil
}

func (a *App) genSecret() error {
	secret, err := common.MakeRandHexString(secretKeyBytes)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, secret)
	return nil
}

func (a *App) genCode() error {
	code, err := cryptox.GenerateVerificationCode(6)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, code)
	return nil
}
