package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Veraticus/parcel/internal/cli"
	"github.com/Veraticus/parcel/internal/model"
)

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List stored records",
		Long:  `List the clients, properties and transactions in the record store.`,
	}

	cmd.PersistentFlags().String("name", "", "filter by name (clients)")
	cmd.PersistentFlags().String("city", "", "filter by city (properties)")
	cmd.PersistentFlags().String("status", "", "filter by status (transactions)")
	cmd.PersistentFlags().Int("limit", 50, "maximum rows")
	cmd.PersistentFlags().Bool("json", false, "print JSON")

	cmd.AddCommand(recordsClientsCmd())
	cmd.AddCommand(recordsPropertiesCmd())
	cmd.AddCommand(recordsTransactionsCmd())

	return cmd
}

func recordFilter(cmd *cobra.Command) model.RecordFilter {
	name, _ := cmd.Flags().GetString("name")
	city, _ := cmd.Flags().GetString("city")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	return model.RecordFilter{Name: name, City: city, Status: status, Limit: limit}
}

func recordsClientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			clients, err := store.FindClients(cmd.Context(), recordFilter(cmd))
			if err != nil {
				return fmt.Errorf("failed to list clients: %w", err)
			}
			if asJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), clients)
			}

			rows := make([][]string, 0, len(clients))
			for _, c := range clients {
				rows = append(rows, []string{id(c.ID), c.FirstName + " " + c.LastName, c.Email, c.Phone})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Email", "Phone"}, rows)
			return nil
		},
	}
}

func recordsPropertiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "properties",
		Short: "List properties",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			properties, err := store.FindProperties(cmd.Context(), recordFilter(cmd))
			if err != nil {
				return fmt.Errorf("failed to list properties: %w", err)
			}
			if asJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), properties)
			}

			rows := make([][]string, 0, len(properties))
			for _, p := range properties {
				rows = append(rows, []string{id(p.ID), p.Address, p.City, p.State, p.Zip, money(p.Price)})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Address", "City", "State", "Zip", "Price"}, rows)
			return nil
		},
	}
}

func recordsTransactionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transactions",
		Short: "List transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			txns, err := store.FindTransactions(cmd.Context(), recordFilter(cmd))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			if asJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), txns)
			}

			rows := make([][]string, 0, len(txns))
			for _, t := range txns {
				closing := ""
				if t.ClosingDate != nil {
					closing = t.ClosingDate.Format("2006-01-02")
				}
				rows = append(rows, []string{id(t.ID), id(t.ClientID), id(t.PropertyID), t.Status, money(t.PurchasePrice), closing})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Client", "Property", "Status", "Price", "Closing"}, rows)
			return nil
		},
	}
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, cli.FormatInfo("No records."))
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(cli.SubtleColor)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return cli.TitleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}

func id(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

func money(v float64) string {
	if v == 0 {
		return ""
	}
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}
