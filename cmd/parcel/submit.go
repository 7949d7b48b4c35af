package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/parcel/internal/api"
	"github.com/Veraticus/parcel/internal/cli"
	"github.com/Veraticus/parcel/internal/model"
)

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit [text...]",
		Short: "Send a request to a running server",
		Long: `Submit text to a running "parcel serve" and print the proposal or the
clarification. With no arguments the text is read from stdin, which suits
piping in a raw email with --email.`,
		Example: `  parcel submit add client Jane Doe, jane@example.com
  parcel submit --email < message.eml`,
		RunE: runSubmit,
	}

	cmd.Flags().String("server", "", "API address (default: server.addr)")
	cmd.Flags().String("session", "cli", "session ID")
	cmd.Flags().Bool("email", false, "treat the input as a raw email")

	return cmd
}

func runSubmit(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	session, _ := cmd.Flags().GetString("session")
	req := api.SubmitRequest{Text: text, SessionID: session}
	if email, _ := cmd.Flags().GetBool("email"); email {
		req.Source = string(model.SourceEmail)
	}

	client, err := apiClient(cmd)
	if err != nil {
		return err
	}
	resp, err := client.Submit(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if resp.Proposal == nil {
		fmt.Fprintln(out, cli.FormatQuestion(resp.Message))
		return nil
	}
	fmt.Fprintln(out, renderPayload(resp.Proposal))
	fmt.Fprintln(out, resp.Message)
	fmt.Fprintln(out, cli.FormatInfo("parcel decide "+resp.Proposal.OperationID+" confirm"))
	return nil
}

func decideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide <operation-id> <confirm|reject>",
		Short: "Confirm or reject a proposal on a running server",
		Example: `  parcel decide 3f2a... confirm --set email=jane@example.com
  parcel decide 3f2a... confirm --resolution merge`,
		Args: cobra.ExactArgs(2),
		RunE: runDecide,
	}

	cmd.Flags().String("server", "", "API address (default: server.addr)")
	cmd.Flags().StringToString("set", nil, "field overrides applied before confirming")
	cmd.Flags().String("resolution", "", "conflict resolution: merge, skip or replace")

	return cmd
}

func runDecide(cmd *cobra.Command, args []string) error {
	overrides, _ := cmd.Flags().GetStringToString("set")
	resolution, _ := cmd.Flags().GetString("resolution")

	client, err := apiClient(cmd)
	if err != nil {
		return err
	}
	resp, err := client.Decide(cmd.Context(), api.DecideRequest{
		OperationID: args[0],
		Decision:    args[1],
		Overrides:   overrides,
		Resolution:  resolution,
	})

	out := cmd.OutOrStdout()
	if resp.FollowUp != nil {
		fmt.Fprintln(out, cli.FormatWarning(resp.Message))
		fmt.Fprintln(out, renderPayload(resp.FollowUp))
		fmt.Fprintln(out, cli.FormatInfo("parcel decide "+resp.FollowUp.OperationID+" confirm --resolution merge|skip|replace"))
		return nil
	}

	var se *api.StatusError
	if errors.As(err, &se) {
		fmt.Fprintln(out, cli.FormatError(se.Message))
		return fmt.Errorf("decision not applied")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, cli.FormatSuccess(resp.Message))
	return nil
}

// apiClient targets --server or server.addr. When the server uses its
// self-signed certificate the client trusts that certificate only.
func apiClient(cmd *cobra.Command) (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	addr, _ := cmd.Flags().GetString("server")
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if !cfg.Server.TLS || strings.Contains(addr, "://") {
		return api.NewClient(addr, nil), nil
	}

	pool, err := serverCerts(cfg, addr).CertPool()
	if err != nil {
		return nil, err
	}
	hc := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		},
	}
	return api.NewClient("https://"+addr, hc), nil
}

// renderPayload draws a proposal received over the API like a local one.
func renderPayload(p *api.ProposalPayload) string {
	return cli.RenderProposal(model.PendingOperation{
		ID:        p.OperationID,
		Kind:      p.OperationKind,
		Preview:   p.Preview,
		Conflict:  p.Conflict,
		ExpiresAt: p.ExpiresAt,
	})
}
