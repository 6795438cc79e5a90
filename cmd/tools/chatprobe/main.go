// Command chatprobe exercises a running SynthesisTalk backend from the
// terminal: health check, chat, streaming, upload and export.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	sessionID string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "chatprobe",
	Short: "Probe a running SynthesisTalk backend",
	Long: `chatprobe sends requests to a running backend and prints the replies.

Available subcommands:
  health - Check that the server is up
  chat   - Send one chat message (notes, citations, charts and exports included)
  stream - Send one chat message over SSE and print deltas as they arrive
  upload - Upload a .pdf or .txt file as the session's pending document
  export - Download the session transcript as txt or pdf`,
	SilenceUsage: true,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		msg, err := newClient().health(cmd.Context())
		if err != nil {
			return err
		}
		color.Green("%s", msg)
		return nil
	},
}

var chatFormat string

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one chat message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := newClient().chat(cmd.Context(), sessionID, strings.Join(args, " "), chatFormat)
		if err != nil {
			return err
		}
		printReply(reply)
		return nil
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream <message>",
	Short: "Send one chat message over SSE",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed error
		err := newClient().stream(cmd.Context(), sessionID, strings.Join(args, " "), chatFormat, func(event, data string) {
			switch event {
			case "delta":
				var d struct {
					Content string `json:"content"`
				}
				if json.Unmarshal([]byte(data), &d) == nil {
					fmt.Print(d.Content)
				}
			case "message", "chart":
				var reply chatReply
				if json.Unmarshal([]byte(data), &reply) == nil && (reply.Chart != "" || reply.Download != "") {
					fmt.Println()
					printReply(reply)
				}
			case "error":
				var e struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal([]byte(data), &e)
				failed = errors.New(e.Error)
			case "end":
				fmt.Println()
			}
		})
		if err != nil {
			return err
		}
		return failed
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a .pdf or .txt file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := newClient().upload(cmd.Context(), sessionID, args[0])
		if err != nil {
			return err
		}
		color.Green("%s (session %s)", msg, sessionID)
		return nil
	},
}

var (
	exportFormat string
	exportDir    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the session transcript",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := newClient().export(cmd.Context(), sessionID, exportFormat, exportDir)
		if err != nil {
			return err
		}
		color.Green("transcript written to %s", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "backend base URL")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "session id (default: generated per run)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")

	chatCmd.Flags().StringVarP(&chatFormat, "format", "f", "", "format hint: bullet, paragraph, bar, line, pie, hist")
	streamCmd.Flags().StringVarP(&chatFormat, "format", "f", "", "format hint: bullet or paragraph")
	exportCmd.Flags().StringVar(&exportFormat, "format", "txt", "export format: txt or pdf")
	exportCmd.Flags().StringVar(&exportDir, "dir", ".", "directory to write the transcript to")

	rootCmd.AddCommand(healthCmd, chatCmd, streamCmd, uploadCmd, exportCmd)
}

func main() {
	_ = godotenv.Load()

	var cancel context.CancelFunc = func() {}
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		var ctx context.Context
		ctx, cancel = context.WithTimeout(cmd.Context(), timeout)
		cmd.SetContext(ctx)

		if f := cmd.Flag("server"); f != nil && !f.Changed {
			serverURL = envOr("CHATPROBE_SERVER", serverURL)
		}

		if sessionID == "" {
			sessionID = fmt.Sprintf("probe-%d", time.Now().UnixNano())
			color.Cyan("session: %s", sessionID)
		}
	}

	err := rootCmd.ExecuteContext(context.Background())
	cancel()
	if err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func newClient() *client {
	return &client{baseURL: serverURL, http: &http.Client{}}
}

func printReply(reply chatReply) {
	switch {
	case reply.Chart != "":
		color.Magenta("chart received (%d bytes of data URL)", len(reply.Chart))
	case reply.Reply != "":
		fmt.Println(reply.Reply)
	}
	if reply.Download != "" {
		color.Yellow("download: %s%s", strings.TrimRight(serverURL, "/"), reply.Download)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
