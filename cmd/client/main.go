package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/harrylevesque/callform/internal/calls"
	"github.com/harrylevesque/callform/internal/config"
	"github.com/harrylevesque/callform/internal/form"
	"github.com/harrylevesque/callform/internal/models"
	"github.com/harrylevesque/callform/internal/notify"
	"github.com/harrylevesque/callform/internal/utils"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitBadInput = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	phone := fs.String("phone", "", "Phone number to call; read from stdin when empty")
	endpoint := fs.String("endpoint", "", "Override calls endpoint URL (e.g. http://localhost:4040/api/v1/calls)")
	configPath := fs.String("config", config.DefaultPath, "Path to config.json")
	timeout := fs.Duration("timeout", 0, "Request timeout, overrides config (0 keeps config)")
	wait := fs.Bool("wait", false, "Wait for Enter before acknowledging the result")
	verbose := fs.Bool("v", false, "Log request details to stderr")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitBadInput
	}
	if *endpoint != "" {
		cfg.Endpoint = strings.TrimSpace(*endpoint)
	}
	if *timeout > 0 {
		cfg.RequestTimeout = timeout.String()
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitBadInput
	}

	client, err := calls.NewClient(cfg.Endpoint, calls.WithTimeout(cfg.Timeout()))
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitBadInput
	}

	logOut := io.Discard
	if *verbose {
		logOut = stderr
	}
	queue := notify.NewMemoryQueue()
	f := form.New(uuid.New().String(), client, queue, utils.NewWriterLogger(logOut))

	in := bufio.NewReader(stdin)
	if *phone == "" {
		fmt.Fprint(stdout, "Phone: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			fmt.Fprintln(stderr, "Error:", err)
			return exitBadInput
		}
		*phone = strings.TrimRight(line, "\r\n")
	}
	// encoding/json would swap invalid bytes for U+FFFD and send a different number
	if !utf8.ValidString(*phone) {
		fmt.Fprintln(stderr, "Error: phone is not valid UTF-8")
		return exitBadInput
	}
	f.OnInputChange(*phone)

	n, err := f.OnSubmit(context.Background())
	if errors.Is(err, form.ErrEmptyPhone) {
		fmt.Fprintln(stderr, "Error:", err)
		return exitBadInput
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailed
	}

	fmt.Fprintln(stdout, n.Message)
	if *wait {
		fmt.Fprint(stdout, "Press Enter to continue...")
		in.ReadString('\n')
		fmt.Fprintln(stdout)
	}
	if err := queue.Ack(context.Background(), f.ID(), n.ID); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}

	if n.Kind != models.KindSuccess {
		return exitFailed
	}
	return exitOK
}
