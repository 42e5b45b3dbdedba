package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Rrens/thread-router/internal/app"
	"github.com/Rrens/thread-router/internal/config"
	"github.com/Rrens/thread-router/internal/logger"
	"github.com/Rrens/thread-router/internal/service"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

const (
	title      = "Chat simulator for the OpenAI Assistants API"
	frameWidth = 100
)

type asker interface {
	GetOrCreateThread(ctx context.Context, user string) (string, error)
	RouteQuestion(ctx context.Context, req service.AskRequest) (*service.AskResponse, error)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	// keep routine logs out of the conversation unless they go to a file
	switch cfg.Logging.Level {
	case "trace", "debug", "info":
		if cfg.Logging.File == "" {
			cfg.Logging.Level = "warn"
		}
	}
	logCloser, err := logger.Setup(cfg.Logging, os.Stderr)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := runChat(ctx, os.Stdin, os.Stdout, a.Conversation); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

// runChat draws the frame, asks for a name and relays messages until the
// user quits or input ends
func runChat(ctx context.Context, in io.Reader, out io.Writer, conv asker) error {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)
	blue := color.New(color.FgBlue)
	red := color.New(color.FgRed)

	drawFrame(out, cyan)

	scanner := bufio.NewScanner(in)
	readLine := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	var user string
	for user == "" {
		yellow.Fprint(out, "Please enter your name: ")
		line, ok := readLine()
		if !ok {
			return scanner.Err()
		}
		if isQuit(line) {
			red.Fprintln(out, "Leaving the chat simulator...")
			return nil
		}
		user = line
	}

	threadID, err := conv.GetOrCreateThread(ctx, user)
	if err != nil {
		return fmt.Errorf("opening conversation for %s: %w", user, err)
	}
	cyan.Fprintf(out, "Conversation thread: %s\n", threadID)

	for {
		green.Fprintf(out, "%s, type your message (or '/sair' to finish): ", user)
		line, ok := readLine()
		if !ok {
			return scanner.Err()
		}
		if isQuit(line) {
			red.Fprintln(out, "Leaving the chat simulator...")
			return nil
		}
		if line == "" {
			continue
		}

		resp, err := conv.RouteQuestion(ctx, service.AskRequest{User: user, Question: line})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				red.Fprintln(out, "Leaving the chat simulator...")
				return nil
			}
			red.Fprintf(out, "Error: %v\n", err)
			continue
		}

		blue.Fprintf(out, "Assistant: %s\n", resp.Reply)
	}
}

func drawFrame(out io.Writer, c *color.Color) {
	inner := frameWidth - 2
	pad := inner - len(title)
	left := pad / 2

	c.Fprintln(out, "╒"+strings.Repeat("═", inner)+"╕")
	c.Fprintln(out, "│"+strings.Repeat(" ", left)+title+strings.Repeat(" ", pad-left)+"│")
	c.Fprintln(out, "╘"+strings.Repeat("═", inner)+"╛")
}

func isQuit(line string) bool {
	switch strings.ToLower(line) {
	case "/sair", "/quit", "/exit":
		return true
	}
	return false
}
