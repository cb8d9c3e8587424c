package modelscmder

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

const modelsLongDesc = `List the chat-capable models available through a SAIAS relay.

The relay filters audio-only models out of the provider catalog. A key
passed with --key is forwarded as a bearer token; without one the relay
falls back to its server-side key.

Examples:
  saias models http://localhost:8080
  saias models --key gsk_... http://localhost:8080`

type modelsCommander struct {
	apiKey string
}

// NewModelsCmd builds the models subcommand.
func NewModelsCmd() *cobra.Command {
	cmder := &modelsCommander{}

	cmd := &cobra.Command{
		Use:   "models <relay-url>",
		Short: "List chat-capable models via the relay",
		Long:  modelsLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.apiKey, "key", "k", "", "Provider API key forwarded to the relay")

	return cmd
}

func (c *modelsCommander) run(cmd *cobra.Command, relayURL string) error {
	relayURL = strings.TrimRight(relayURL, "/")

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, relayURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("could not build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Data []struct {
			ID      string `json:"id"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}

	if len(payload.Data) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No chat models available.")
		return nil
	}

	for _, m := range payload.Data {
		if m.OwnedBy != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t(%s)\n", m.ID, m.OwnedBy)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), m.ID)
	}
	return nil
}
