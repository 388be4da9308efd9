// Package rosterctl implements the operator CLI for master rosters: forced
// rebuilds, digests, exports and minting access tokens for tooling.
package rosterctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/filex"
	"github.com/dmitrijs2005/rollkeeper/internal/server/auth"
	"github.com/dmitrijs2005/rollkeeper/internal/server/identity"
	"github.com/dmitrijs2005/rollkeeper/internal/server/roster"
	"golang.org/x/term"
)

// Usage is printed when no or an unknown command is given.
const Usage = `usage: rosterctl [config flags] <command> [args]

commands:
  rebuild <subject>                          regenerate the roster from the ledger
  digest <subject>                           print the artifact digest
  export [-format xlsx|csv] [-out file] <subject>
  token <user-id> <role>                     mint an access token`

// ErrUsage reports malformed command lines.
var ErrUsage = errors.New("usage error")

// Reconciler is the subset of the roster reconciler the CLI drives.
type Reconciler interface {
	Rebuild(ctx context.Context, subjectID string) error
	Snapshot(ctx context.Context, subjectID string) ([]byte, error)
	ExportRoster(ctx context.Context, subjectID, format string) ([]byte, error)
}

// configFlags are consumed by the server configuration loader and skipped
// here.
var configFlags = []string{"a", "d", "s", "t", "w", "l", "k", "o", "m", "u", "p", "b", "g", "e", "c", "config", "env"}

// CommandArgs drops leading configuration flags and returns the command
// with its arguments.
func CommandArgs(args []string) ([]string, error) {
	fs := flag.NewFlagSet("rosterctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	for _, name := range configFlags {
		fs.String(name, "", "")
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return fs.Args(), nil
}

type CLI struct {
	rec           Reconciler
	out           io.Writer
	secret        []byte
	tokenValidity time.Duration
	isTerminal    func(io.Writer) bool
}

func New(rec Reconciler, out io.Writer, secret string, tokenValidity time.Duration) *CLI {
	return &CLI{
		rec:           rec,
		out:           out,
		secret:        []byte(secret),
		tokenValidity: tokenValidity,
		isTerminal:    isTerminal,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run executes one command.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "rebuild":
		subject, err := oneArg(args[1:])
		if err != nil {
			return err
		}
		if err := c.rec.Rebuild(ctx, subject); err != nil {
			return err
		}
		return c.printDigest(ctx, subject, true)
	case "digest":
		subject, err := oneArg(args[1:])
		if err != nil {
			return err
		}
		return c.printDigest(ctx, subject, false)
	case "export":
		return c.export(ctx, args[1:])
	case "token":
		if len(args) != 3 {
			return ErrUsage
		}
		return c.token(identity.Identity{UserID: args[1], Role: args[2]})
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func oneArg(args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", ErrUsage
	}
	return args[0], nil
}

func (c *CLI) printDigest(ctx context.Context, subject string, allowMissing bool) error {
	data, err := c.rec.Snapshot(ctx, subject)
	if err != nil {
		if allowMissing && errors.Is(err, common.ErrNotFound) {
			_, err = fmt.Fprintf(c.out, "%s\t(no closed sessions)\n", subject)
		}
		return err
	}
	_, err = fmt.Fprintf(c.out, "%s\t%s\n", subject, roster.Digest(data))
	return err
}

func (c *CLI) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	format := fs.String("format", roster.FormatXLSX, "xlsx or csv")
	out := fs.String("out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	subject, err := oneArg(fs.Args())
	if err != nil {
		return err
	}

	if *out == "" && *format == roster.FormatXLSX && c.isTerminal(c.out) {
		return fmt.Errorf("%w: refusing to write xlsx to a terminal, use -out", ErrUsage)
	}

	data, err := c.rec.ExportRoster(ctx, subject, *format)
	if err != nil {
		return err
	}

	if *out == "" {
		_, err = c.out.Write(data)
		return err
	}
	if err := filex.WriteFileAtomic(*out, data, 0o644); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "wrote %s (%d bytes)\n", *out, len(data))
	return err
}

func (c *CLI) token(id identity.Identity) error {
	switch id.Role {
	case common.RoleStudent, common.RoleFaculty, common.RoleAdmin:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrUsage, id.Role)
	}
	token, err := auth.GenerateToken(id, c.secret, c.tokenValidity)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, token)
	return err
}
