// Package main provides diagramctl, a command line client for the Diagram
// Studio coordinator.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AltairaLabs/diagram-studio/internal/coordinator"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

const version = "0.1.0"

type options struct {
	server   string
	jsonOut  bool
	noColor  bool
	wait     bool
	interval time.Duration
	timeout  time.Duration
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	defaultServer := os.Getenv("DIAGRAM_STUDIO_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}

	root := &cobra.Command{
		Use:           "diagramctl",
		Short:         "Drive a Diagram Studio coordinator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor || opts.jsonOut {
				color.NoColor = true
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "Coordinator base URL")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print raw JSON responses")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		generateCmd(opts),
		chatCmd(opts),
		statusCmd(opts),
		docCmd(opts),
		deleteCmd(opts),
	)
	return root
}

func addWaitFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "Poll until generation finishes")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "Polling interval with --wait")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Give up waiting after this long")
}

func generateCmd(opts *options) *cobra.Command {
	var req coordinator.GenerateRequest
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a diagram from a prompt, or regenerate a session's diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(opts.server)
			accepted, err := client.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return finishDispatch(cmd, opts, client, accepted)
		},
	}
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "What to design")
	cmd.Flags().StringVar(&req.Model, "model", "", "Model identifier")
	cmd.Flags().StringVar(&req.SessionID, "session", "", "Existing session to regenerate")
	addWaitFlags(cmd, opts)
	return cmd
}

func docCmd(opts *options) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Generate the design document for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(opts.server)
			accepted, err := client.DesignDoc(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			return finishDispatch(cmd, opts, client, accepted)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session identifier")
	_ = cmd.MarkFlagRequired("session")
	addWaitFlags(cmd, opts)
	return cmd
}

// finishDispatch prints an accepted job, or waits for it with --wait.
func finishDispatch(cmd *cobra.Command, opts *options, client *apiClient, accepted coordinator.DispatchResponse) error {
	out := cmd.OutOrStdout()
	if !opts.wait {
		if opts.jsonOut {
			return printJSON(out, accepted)
		}
		fmt.Fprintf(out, "%s %s generation for session %s\n", color.GreenString("✓ dispatched"), accepted.Kind, accepted.SessionID)
		return nil
	}

	view, err := client.Wait(cmd.Context(), accepted.SessionID, accepted.Kind, opts.interval, opts.timeout)
	if err != nil {
		return err
	}
	if opts.jsonOut {
		return printJSON(out, view)
	}
	renderView(out, view)
	if accepted.Kind == session.KindDesignDoc && view.DesignDoc != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, view.DesignDoc)
	}
	if st := view.Status[accepted.Kind]; st.State == session.StatusFailed {
		return fmt.Errorf("%s generation failed: %s", accepted.Kind, st.Error)
	}
	return nil
}

func chatCmd(opts *options) *cobra.Command {
	var req coordinator.ChatRequest
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send a chat message that may edit the diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(opts.server).Chat(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderChat(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.SessionID, "session", "", "Session identifier")
	cmd.Flags().StringVar(&req.Message, "message", "", "Message to send")
	cmd.Flags().StringVar(&req.NodeID, "node", "", "Node the message is about")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func statusCmd(opts *options) *cobra.Command {
	var sessionID string
	var kind string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a session's generation status",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := session.Kind(kind)
			if !k.Valid() {
				return fmt.Errorf("unknown kind %q", kind)
			}
			client := newAPIClient(opts.server)
			var (
				view coordinator.SessionView
				err  error
			)
			if opts.wait {
				view, err = client.Wait(cmd.Context(), sessionID, k, opts.interval, opts.timeout)
			} else {
				view, err = client.Session(cmd.Context(), sessionID)
			}
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), view)
			}
			renderView(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session identifier")
	cmd.Flags().StringVar(&kind, "kind", string(session.KindDiagram), "Artifact to wait for: diagram or design_doc")
	_ = cmd.MarkFlagRequired("session")
	addWaitFlags(cmd, opts)
	return cmd
}

func deleteCmd(opts *options) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient(opts.server).Delete(cmd.Context(), sessionID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s session %s\n", color.GreenString("✓ deleted"), sessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session identifier")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
