package chatcmder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saiaslabs/saias/pkg/backend"
	"github.com/saiaslabs/saias/pkg/cache"
	"github.com/saiaslabs/saias/pkg/chat"
	"github.com/saiaslabs/saias/pkg/logger"
	"github.com/saiaslabs/saias/pkg/store"
)

const chatLongDesc = `Interactive chat against a SAIAS persistence backend.

Reads lines from stdin, sends each as a message, and prints the reply.
The transcript is mirrored to a local SQLite cache, so the last session
is shown immediately on start even while the backend is unreachable.

The bearer token comes from --token or the SAIAS_TOKEN environment
variable.

With --relay the command talks to a relay instead: each message carries
the conversation so far as history, the reply streams back token by
token, and no backend token or cache is involved.`

type chatCommander struct {
	backendURL string
	token      string
	cachePath  string
	noReveal   bool
	debug      bool

	relayURL string
	model    string
	apiKey   string
}

// NewChatCmd builds the chat subcommand.
func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with the backend",
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.backendURL, "backend", "b", "http://localhost:8000", "Persistence backend base URL")
	cmd.Flags().StringVarP(&cmder.token, "token", "t", "", "Bearer token (default: SAIAS_TOKEN env)")
	cmd.Flags().StringVar(&cmder.cachePath, "cache", "", "Path to the local transcript cache (default: ~/.saias/cache.db)")
	cmd.Flags().BoolVar(&cmder.noReveal, "no-reveal", false, "Print replies at once instead of word by word")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cmder.relayURL, "relay", "", "Chat through a relay URL instead of the persistence backend")
	cmd.Flags().StringVar(&cmder.model, "model", "", "Model id forwarded to the relay (relay mode only)")
	cmd.Flags().StringVar(&cmder.apiKey, "key", "", "Provider API key forwarded to the relay (relay mode only)")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	_ = godotenv.Load()

	if c.relayURL != "" {
		return c.runRelay(cmd)
	}

	if c.token == "" {
		c.token = os.Getenv("SAIAS_TOKEN")
	}
	if c.token == "" {
		return fmt.Errorf("no token: pass --token or set SAIAS_TOKEN")
	}

	cachePath, err := c.resolveCachePath()
	if err != nil {
		return err
	}

	transcript, err := cache.Open(cachePath)
	if err != nil {
		return fmt.Errorf("could not open cache %s: %w", cachePath, err)
	}
	defer transcript.Close()

	log := logger.New(c.debug)
	defer log.Sync()

	revealInterval := 30 * time.Millisecond
	if c.noReveal {
		revealInterval = 0
	}

	st := store.New(backend.New(c.backendURL), transcript, store.Options{
		RevealInterval: revealInterval,
		Logger:         log,
	})

	ctx := cmd.Context()
	st.Initialize(ctx, &chat.Session{AccessToken: c.token})

	out := cmd.OutOrStdout()
	snap := st.Snapshot()
	if snap.Err != "" {
		fmt.Fprintln(out, "!", snap.Err)
	}
	for _, m := range snap.Messages {
		printMessage(out, m)
	}

	fmt.Fprintln(out, "Type a message and press enter. Ctrl-D to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		st.SetInput(line)
		if err := st.Send(ctx); err != nil {
			fmt.Fprintln(out, "!", err)
			continue
		}

		snap := st.Snapshot()
		if snap.Err != "" {
			fmt.Fprintln(out, "!", snap.Err)
			continue
		}
		if len(snap.Messages) > 0 {
			printMessage(out, snap.Messages[len(snap.Messages)-1])
		}
	}

	return scanner.Err()
}

// runRelay is the relay-backed REPL: no session, no backend, no cache.
// Replies print as they stream in.
func (c *chatCommander) runRelay(cmd *cobra.Command) error {
	session := newRelaySession(c.relayURL, c.model, c.apiKey)
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Type a message and press enter. Ctrl-D to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fmt.Fprint(out, "saias: ")
		if _, err := session.send(cmd.Context(), line, out); err != nil {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "!", err)
			continue
		}
		fmt.Fprintln(out)
	}

	return scanner.Err()
}

func (c *chatCommander) resolveCachePath() (string, error) {
	if c.cachePath != "" {
		return c.cachePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".saias")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "cache.db"), nil
}

func printMessage(out io.Writer, m *chat.Message) {
	prefix := "you"
	if m.Role == chat.RoleAssistant {
		prefix = "saias"
	}
	fmt.Fprintf(out, "%s: %s\n", prefix, m.Content)
}
