package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/parcel/internal/cli"
	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/service"
)

func opsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Inspect the operation audit trail",
		Long: `Every operation that reaches a final status (executed, failed, rejected
or expired) is archived. These commands read that archive.`,
	}

	cmd.AddCommand(opsListCmd())
	cmd.AddCommand(opsShowCmd())

	return cmd
}

func opsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived operations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := operationFilter(cmd)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ops, err := store.ListArchivedOperations(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to list operations: %w", err)
			}
			if asJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), ops)
			}

			rows := make([][]string, 0, len(ops))
			for _, op := range ops {
				rows = append(rows, []string{
					op.ID,
					op.UpdatedAt.Local().Format("2006-01-02 15:04"),
					op.SessionID,
					string(op.Kind),
					string(op.Status),
					op.StatusReason,
				})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Updated", "Session", "Kind", "Status", "Reason"}, rows)
			return nil
		},
	}

	cmd.Flags().String("session", "", "only this session")
	cmd.Flags().String("status", "", "only this status (executed, failed, rejected, expired)")
	cmd.Flags().Duration("since", 0, "only operations updated within this window, e.g. 24h")
	cmd.Flags().Int("limit", 50, "maximum rows")
	cmd.Flags().Bool("json", false, "print JSON")

	return cmd
}

func operationFilter(cmd *cobra.Command) (service.OperationFilter, error) {
	session, _ := cmd.Flags().GetString("session")
	status, _ := cmd.Flags().GetString("status")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := service.OperationFilter{SessionID: session, Limit: limit}
	if status != "" {
		s := model.Status(strings.ToLower(status))
		switch s {
		case model.StatusExecuted, model.StatusFailed, model.StatusRejected, model.StatusExpired:
			filter.Status = s
		default:
			return filter, fmt.Errorf("status %q is never archived", status)
		}
	}
	if since > 0 {
		t := time.Now().Add(-since)
		filter.Since = &t
	}
	return filter, nil
}

func opsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <operation-id>",
		Short: "Show one archived operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			op, err := store.GetArchivedOperation(cmd.Context(), args[0])
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("no archived operation %s", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to load operation: %w", err)
			}
			if asJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), op)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.RenderProposal(*op))
			fmt.Fprintf(out, "%s %s", cli.FieldStyle.Render("status"), op.Status)
			if op.StatusReason != "" {
				fmt.Fprintf(out, " (%s)", op.StatusReason)
			}
			fmt.Fprintln(out)
			if op.Input != "" {
				fmt.Fprintf(out, "%s %s\n", cli.FieldStyle.Render("input"), op.Input)
			}
			if r := op.Result; r != nil {
				switch {
				case r.Success && r.RecordID != 0:
					fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("record #%d", r.RecordID)))
				case r.Success:
					fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%d records", len(r.RecordIDs))))
				default:
					fmt.Fprintln(out, cli.FormatError(r.Error))
				}
			}
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "print JSON")

	return cmd
}
