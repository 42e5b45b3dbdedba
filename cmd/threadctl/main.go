package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Rrens/thread-router/internal/app"
	"github.com/Rrens/thread-router/internal/config"
	"github.com/Rrens/thread-router/internal/domain"
	"github.com/Rrens/thread-router/internal/logger"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

var errUsage = errors.New("usage")

type registry interface {
	List(ctx context.Context) ([]domain.Session, error)
	ThreadForUser(ctx context.Context, user string) (string, error)
	UserForThread(ctx context.Context, threadID string) (string, error)
	Assign(ctx context.Context, user string, req domain.SessionUpsert) error
	Remove(ctx context.Context, user string) (bool, error)
	Clear(ctx context.Context, confirm bool) (int64, error)
}

type tokenMinter interface {
	GenerateAdminToken(subject string) (string, error)
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Logging.File == "" {
		cfg.Logging.Level = "error"
	}
	logCloser, err := logger.Setup(cfg.Logging, os.Stderr)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx := context.Background()
	a, err := app.NewRegistryOnly(ctx, cfg)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	err = run(ctx, os.Args[1:], os.Stdin, os.Stdout, a.Registry, a.JWT)
	if errors.Is(err, errUsage) {
		if err != errUsage {
			color.Red("Error: %v\n", err)
		}
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(w, "Usage: threadctl <command> [args]")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  list                    List every user and thread")
	fmt.Fprintln(w, "  get <user>              Show the thread registered for a user")
	fmt.Fprintln(w, "  who <thread>            Show the user registered for a thread")
	fmt.Fprintln(w, "  set <user> <thread>     Register a user on an existing thread")
	fmt.Fprintln(w, "  delete <user>           Remove a user's session")
	fmt.Fprintln(w, "  clear [--yes]           Remove every session (irreversible)")
	fmt.Fprintln(w, "  token [subject]         Mint an admin token for the HTTP API")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  CONFIG_PATH             Config file (default ./configs/config.yaml)")
	fmt.Fprintln(w, "  REGISTRY_DRIVER         sqlite, redis or postgres")
	fmt.Fprintln(w, "  REGISTRY_SQLITE_PATH    SQLite registry file")
	fmt.Fprintln(w, "  JWT_SECRET              Secret used by the token command")
	fmt.Fprintln(w)
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer, reg registry, minter tokenMinter) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		return cmdList(ctx, out, reg)
	case "get":
		if len(rest) != 1 {
			return errUsage
		}
		threadID, err := reg.ThreadForUser(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, threadID)
		return nil
	case "who":
		if len(rest) != 1 {
			return errUsage
		}
		user, err := reg.UserForThread(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, user)
		return nil
	case "set":
		if len(rest) != 2 {
			return errUsage
		}
		if err := reg.Assign(ctx, rest[0], domain.SessionUpsert{ThreadID: rest[1]}); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(out, "%s -> %s\n", rest[0], rest[1])
		return nil
	case "delete":
		if len(rest) != 1 {
			return errUsage
		}
		deleted, err := reg.Remove(ctx, rest[0])
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Fprintf(out, "No session for %s\n", rest[0])
			return nil
		}
		color.New(color.FgGreen).Fprintf(out, "Removed session for %s\n", rest[0])
		return nil
	case "clear":
		return cmdClear(ctx, rest, in, out, reg)
	case "token":
		subject := "threadctl"
		if len(rest) > 0 {
			subject = rest[0]
		}
		token, err := minter.GenerateAdminToken(subject)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, token)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func cmdList(ctx context.Context, out io.Writer, reg registry) error {
	sessions, err := reg.List(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(out)
	cyan.Fprintln(out, "  Sessions")
	cyan.Fprintln(out, "  --------")

	if len(sessions) == 0 {
		fmt.Fprintln(out, "  (no sessions)")
		fmt.Fprintln(out)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  USER\tTHREAD\tUPDATED")
	fmt.Fprintln(w, "  ----\t------\t-------")
	for _, s := range sessions {
		updated := "-"
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", s.UserIdentity, s.ThreadID, updated)
	}
	w.Flush()
	fmt.Fprintln(out)
	return nil
}

func cmdClear(ctx context.Context, args []string, in io.Reader, out io.Writer, reg registry) error {
	confirmed := len(args) > 0 && (args[0] == "--yes" || args[0] == "-y")

	color.New(color.FgRed).Fprintln(out, "WARNING: this removes every user to thread mapping and cannot be undone.")
	if !confirmed {
		fmt.Fprint(out, "Type 'yes' to continue: ")
		answer, _ := bufio.NewReader(in).ReadString('\n')
		if strings.TrimSpace(strings.ToLower(answer)) != "yes" {
			fmt.Fprintln(out, "Aborted")
			return nil
		}
	}

	removed, err := reg.Clear(ctx, true)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(out, "Removed %d session(s)\n", removed)
	return nil
}
