package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"
)

// Exit codes for the query command.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitDenied      = 2
	ExitUnavailable = 3
)

var (
	queryMessage string
	queryURL     string
	queryAPIKey  string
	queryTimeout int
	queryConvID  string
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Send a one-shot question to a running server",
	Long: `Send a message to a running Novus server and print the answer.

Examples:
  novus query -m "Can metformin treat glioblastoma?"
  novus query -m "Compare it with aspirin" --conversation-id 4f3a...
  novus query -m "What is the market size?" --json

Exit codes:
  0  success
  1  request failure
  2  unauthorized or rate limited
  3  server unavailable`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryMessage, "message", "m", "", "message to send (required)")
	queryCmd.Flags().StringVar(&queryURL, "url", "http://localhost:8080", "server URL")
	queryCmd.Flags().StringVar(&queryAPIKey, "api-key", "", "API key (or NOVUS_API_KEY env)")
	queryCmd.Flags().IntVar(&queryTimeout, "timeout", 300, "timeout in seconds")
	queryCmd.Flags().StringVar(&queryConvID, "conversation-id", "", "conversation ID for multi-turn context")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the raw JSON envelope")

	_ = queryCmd.MarkFlagRequired("message")
}

func runQuery(_ *cobra.Command, _ []string) error {
	if queryMessage == "" {
		return fmt.Errorf("message is required: use -m flag")
	}

	apiKey := goutils.Env("NOVUS_API_KEY", queryAPIKey)
	serverURL := goutils.Env("NOVUS_URL", queryURL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(queryTimeout)*time.Second)
	defer cancel()

	reqBody, _ := json.Marshal(map[string]any{
		"message":         queryMessage,
		"conversation_id": queryConvID,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", serverURL+"/v1/synthesize", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach server at %s: %v\n", serverURL, err)
		os.Exit(ExitUnavailable)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		if queryJSON {
			fmt.Println(string(respBody))
			os.Exit(ExitSuccess)
		}

		var result struct {
			Type           string   `json:"type"`
			Answer         string   `json:"answer"`
			ConversationID string   `json:"conversation_id"`
			Mode           string   `json:"mode"`
			ActiveDrugs    []string `json:"active_drugs"`
			Intent         string   `json:"intent"`
			CorrelationID  string   `json:"correlation_id"`
		}
		_ = json.Unmarshal(respBody, &result)
		fmt.Println(result.Answer)
		fmt.Fprintf(os.Stderr, "\n[conversation_id=%s type=%s mode=%s intent=%s correlation_id=%s]\n",
			result.ConversationID, result.Type, result.Mode, result.Intent, result.CorrelationID)
		os.Exit(ExitSuccess)

	case http.StatusUnauthorized:
		fmt.Fprintln(os.Stderr, "Error: unauthorized (check API key)")
		os.Exit(ExitDenied)

	case http.StatusTooManyRequests:
		fmt.Fprintln(os.Stderr, "Error: rate limited, try again later")
		os.Exit(ExitDenied)

	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		fmt.Fprintf(os.Stderr, "Error: server unavailable (%d)\n", resp.StatusCode)
		os.Exit(ExitUnavailable)

	default:
		fmt.Fprintf(os.Stderr, "Error: server returned %d: %s\n", resp.StatusCode, string(respBody))
		os.Exit(ExitFailure)
	}

	return nil
}
