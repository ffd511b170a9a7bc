package main

import (
    "context"
    "database/sql"
    "fmt"
    "os"
    "time"

    "github.com/fatih/color"
    "github.com/google/uuid"
    "github.com/olekukonko/tablewriter"
    "github.com/spf13/cobra"

    "github.com/kargodata/recherche-orchestrator/internal/billing"
    "github.com/kargodata/recherche-orchestrator/internal/db"
    "github.com/kargodata/recherche-orchestrator/internal/models"
)

var (
    green  = color.New(color.FgGreen).SprintFunc()
    red    = color.New(color.FgRed).SprintFunc()
    yellow = color.New(color.FgYellow).SprintFunc()
    bold   = color.New(color.Bold).SprintFunc()
)

func createPartnerCommands() *cobra.Command {
    partnerCmd := &cobra.Command{
        Use:   "partner",
        Short: "Manage partners",
        Long:  "Commands for managing partners and their rate cards",
    }

    partnerCmd.AddCommand(
        createPartnerAddCommand(),
        createPartnerListCommand(),
        createPartnerSuspendCommand(),
    )

    return partnerCmd
}

func createPartnerAddCommand() *cobra.Command {
    var (
        baseFeeEUR        float64
        perResultStandard float64
        perResultPremium  float64
        perResultKomplett float64
    )

    cmd := &cobra.Command{
        Use:   "add <name>",
        Short: "Add a new partner",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            id := uuid.New().String()
            _, err := database.DB.ExecContext(ctx, `
                INSERT INTO partners (id, name, base_fee_eur, per_result_standard, per_result_premium, per_result_komplett)
                VALUES (?, ?, ?, ?, ?, ?)`,
                id, args[0], baseFeeEUR, perResultStandard, perResultPremium, perResultKomplett)
            if err != nil {
                return fmt.Errorf("failed to create partner: %v", err)
            }

            fmt.Printf("%s Partner '%s' created (id=%s)\n", green("✓"), args[0], id)
            return nil
        },
    }

    rc := models.DefaultRateCard()
    cmd.Flags().Float64Var(&baseFeeEUR, "base-fee", rc.BaseFeeEUR, "Flat base fee per order, in EUR")
    cmd.Flags().Float64Var(&perResultStandard, "rate-standard", rc.PerResultStandard, "Per-new-result rate for the standard tier, in EUR")
    cmd.Flags().Float64Var(&perResultPremium, "rate-premium", rc.PerResultPremium, "Per-new-result rate for the premium tier, in EUR")
    cmd.Flags().Float64Var(&perResultKomplett, "rate-komplett", rc.PerResultKomplett, "Per-new-result rate for the komplett tier, in EUR")

    return cmd
}

func createPartnerListCommand() *cobra.Command {
    cmd := &cobra.Command{
        Use:   "list",
        Short: "List all partners",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            rows, err := database.DB.QueryContext(ctx, `
                SELECT p.id, p.name, p.suspended, COALESCE(a.balance_cents, 0)
                FROM partners p
                LEFT JOIN billing_accounts a ON a.partner_id = p.id
                ORDER BY p.created_at ASC`)
            if err != nil {
                return fmt.Errorf("failed to list partners: %v", err)
            }
            defer rows.Close()

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"ID", "Name", "Status", "Balance (EUR)"})
            table.SetBorder(false)
            table.SetAutoWrapText(false)

            found := false
            for rows.Next() {
                found = true
                var id, name string
                var suspended bool
                var balanceCents int64
                if err := rows.Scan(&id, &name, &suspended, &balanceCents); err != nil {
                    return err
                }

                status := green("Active")
                if suspended {
                    status = red("Suspended")
                }

                table.Append([]string{id, name, status, fmt.Sprintf("%.2f", float64(balanceCents)/100)})
            }
            if !found {
                fmt.Println("No partners found")
                return nil
            }

            table.Render()
            return nil
        },
    }

    return cmd
}

func createPartnerSuspendCommand() *cobra.Command {
    var reason string

    cmd := &cobra.Command{
        Use:   "suspend <partner-id>",
        Short: "Suspend a partner's billing account",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            result, err := database.DB.ExecContext(ctx, `
                UPDATE billing_accounts SET suspended = TRUE, suspended_reason = ?, updated_at = NOW()
                WHERE partner_id = ?`, reason, args[0])
            if err != nil {
                return fmt.Errorf("failed to suspend partner: %v", err)
            }
            if n, _ := result.RowsAffected(); n == 0 {
                return fmt.Errorf("no billing account found for partner %s", args[0])
            }

            fmt.Printf("%s Partner '%s' suspended\n", yellow("!"), args[0])
            return nil
        },
    }

    cmd.Flags().StringVar(&reason, "reason", "", "Reason for suspension")
    return cmd
}

func createOrderCommands() *cobra.Command {
    orderCmd := &cobra.Command{
        Use:   "order",
        Short: "Inspect recherche orders",
    }

    orderCmd.AddCommand(
        createOrderListCommand(),
        createOrderShowCommand(),
    )

    return orderCmd
}

func createOrderListCommand() *cobra.Command {
    var status string

    cmd := &cobra.Command{
        Use:   "list",
        Short: "List recent orders",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            query := `
                SELECT id, partner_id, quality_tier, status, attempts, max_attempts, raw_count, new_count, created_at
                FROM orders`
            var rows *sql.Rows
            var err error
            if status != "" {
                rows, err = database.DB.QueryContext(ctx, query+" WHERE status = ? ORDER BY created_at DESC LIMIT 50", status)
            } else {
                rows, err = database.DB.QueryContext(ctx, query+" ORDER BY created_at DESC LIMIT 50")
            }
            if err != nil {
                return fmt.Errorf("failed to list orders: %v", err)
            }
            defer rows.Close()

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"ID", "Partner", "Tier", "Status", "Attempts", "Results (new)", "Created"})
            table.SetBorder(false)
            table.SetAutoWrapText(false)

            found := false
            for rows.Next() {
                found = true
                var id, partnerID, tier, st string
                var attempts, maxAttempts, rawCount, newCount int
                var createdAt time.Time
                if err := rows.Scan(&id, &partnerID, &tier, &st, &attempts, &maxAttempts, &rawCount, &newCount, &createdAt); err != nil {
                    return err
                }

                coloredStatus := st
                switch models.OrderStatus(st) {
                case models.OrderStatusCompleted:
                    coloredStatus = green(st)
                case models.OrderStatusFailed:
                    coloredStatus = red(st)
                case models.OrderStatusProcessing:
                    coloredStatus = yellow(st)
                }

                table.Append([]string{
                    id, partnerID, tier, coloredStatus,
                    fmt.Sprintf("%d/%d", attempts, maxAttempts),
                    fmt.Sprintf("%d (%d)", rawCount, newCount),
                    createdAt.Format("2006-01-02 15:04"),
                })
            }
            if !found {
                fmt.Println("No orders found")
                return nil
            }

            table.Render()
            return nil
        },
    }

    cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (CONFIRMED/PROCESSING/COMPLETED/FAILED)")
    return cmd
}

func createOrderShowCommand() *cobra.Command {
    cmd := &cobra.Command{
        Use:   "show <order-id>",
        Short: "Show the full detail of one order",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            var o models.Order
            err := database.DB.QueryRowContext(ctx, `
                SELECT id, partner_id, quality_tier, search_params, status, attempts, max_attempts,
                       estimated_cost_cents, actual_cost_cents, raw_count, new_count, duplicate_count,
                       updated_count, error_message, created_at
                FROM orders WHERE id = ?`, args[0]).Scan(
                &o.ID, &o.PartnerID, &o.QualityTier, &o.SearchParamsJSON, &o.Status, &o.Attempts,
                &o.MaxAttempts, &o.EstimatedCostCents, &o.ActualCostCents, &o.Counts.Raw, &o.Counts.New,
                &o.Counts.Duplicate, &o.Counts.Updated, &o.ErrorMessage, &o.CreatedAt,
            )
            if err == sql.ErrNoRows {
                return fmt.Errorf("order %s not found", args[0])
            }
            if err != nil {
                return fmt.Errorf("failed to load order: %v", err)
            }

            fmt.Printf("%s %s\n", bold("Order:"), o.ID)
            fmt.Printf("  Partner:     %s\n", o.PartnerID)
            fmt.Printf("  Tier:        %s\n", o.QualityTier)
            fmt.Printf("  Status:      %s\n", o.Status)
            fmt.Printf("  Attempts:    %d/%d\n", o.Attempts, o.MaxAttempts)
            fmt.Printf("  Results:     %d raw / %d new / %d duplicate / %d updated\n",
                o.Counts.Raw, o.Counts.New, o.Counts.Duplicate, o.Counts.Updated)
            fmt.Printf("  Est. cost:   %.2f EUR\n", float64(o.EstimatedCostCents)/100)
            if o.ActualCostCents != nil {
                fmt.Printf("  Actual cost: %.2f EUR\n", float64(*o.ActualCostCents)/100)
            }
            if o.ErrorMessage != "" {
                fmt.Printf("  Error:       %s\n", red(o.ErrorMessage))
            }
            fmt.Printf("  Created:     %s\n", o.CreatedAt.Format(time.RFC3339))
            return nil
        },
    }

    return cmd
}

func createLedgerCommands() *cobra.Command {
    ledgerCmd := &cobra.Command{
        Use:   "ledger",
        Short: "Inspect and adjust billing ledgers",
    }

    ledgerCmd.AddCommand(
        createLedgerShowCommand(),
        createLedgerCreditCommand(),
    )

    return ledgerCmd
}

func createLedgerShowCommand() *cobra.Command {
    cmd := &cobra.Command{
        Use:   "show <partner-id>",
        Short: "Show recent ledger entries for a partner",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            rows, err := database.DB.QueryContext(ctx, `
                SELECT t.type, t.amount_cents, t.balance_after_cents, t.description, t.created_at
                FROM credit_transactions t
                JOIN billing_accounts a ON a.id = t.billing_account_id
                WHERE a.partner_id = ?
                ORDER BY t.created_at DESC LIMIT 50`, args[0])
            if err != nil {
                return fmt.Errorf("failed to list ledger entries: %v", err)
            }
            defer rows.Close()

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"Type", "Amount (EUR)", "Balance after (EUR)", "Description", "When"})
            table.SetBorder(false)
            table.SetAutoWrapText(false)

            found := false
            for rows.Next() {
                found = true
                var txType, description string
                var amountCents, balanceAfterCents int64
                var createdAt time.Time
                if err := rows.Scan(&txType, &amountCents, &balanceAfterCents, &description, &createdAt); err != nil {
                    return err
                }

                amount := fmt.Sprintf("%.2f", float64(amountCents)/100)
                if models.TransactionType(txType) == models.TransactionDebit {
                    amount = red("-" + amount)
                } else {
                    amount = green("+" + amount)
                }

                table.Append([]string{
                    txType, amount, fmt.Sprintf("%.2f", float64(balanceAfterCents)/100),
                    description, createdAt.Format("2006-01-02 15:04"),
                })
            }
            if !found {
                fmt.Println("No ledger entries found")
                return nil
            }

            table.Render()
            return nil
        },
    }

    return cmd
}

func createLedgerCreditCommand() *cobra.Command {
    var description string

    cmd := &cobra.Command{
        Use:   "credit <partner-id> <amount-eur>",
        Short: "Credit a partner's balance (manual top-up)",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            var amountEUR float64
            if _, err := fmt.Sscanf(args[1], "%f", &amountEUR); err != nil {
                return fmt.Errorf("invalid amount %q: %v", args[1], err)
            }
            amountCents := int64(amountEUR * 100)

            return database.Transaction(ctx, func(tx *sql.Tx) error {
                ledger := billing.NewLedger(tx)
                accountID, err := ledger.EnsureAccountForPartner(ctx, args[0])
                if err != nil {
                    return err
                }

                result, err := ledger.Credit(ctx, accountID, amountCents, "manual", "", "admin-cli", description)
                if err != nil {
                    return err
                }

                fmt.Printf("%s Credited %.2f EUR to partner %s (new balance: %.2f EUR)\n",
                    green("✓"), amountEUR, args[0], float64(result.NewBalanceCents)/100)
                return nil
            })
        },
    }

    cmd.Flags().StringVar(&description, "description", "manual credit", "Ledger entry description")
    return cmd
}

func createSettingsCommands() *cobra.Command {
    settingsCmd := &cobra.Command{
        Use:   "settings",
        Short: "Manage provider credentials and operational settings",
    }

    settingsCmd.AddCommand(
        &cobra.Command{
            Use:   "set <key> <value>",
            Short: "Set a setting",
            Args:  cobra.ExactArgs(2),
            RunE: func(cmd *cobra.Command, args []string) error {
                ctx := context.Background()
                if err := initializeForCLI(ctx); err != nil {
                    return err
                }
                if err := db.SetSetting(ctx, database.DB, args[0], args[1]); err != nil {
                    return fmt.Errorf("failed to set setting: %v", err)
                }
                fmt.Printf("%s %s updated\n", green("✓"), args[0])
                return nil
            },
        },
        &cobra.Command{
            Use:   "get <key>",
            Short: "Get a setting",
            Args:  cobra.ExactArgs(1),
            RunE: func(cmd *cobra.Command, args []string) error {
                ctx := context.Background()
                if err := initializeForCLI(ctx); err != nil {
                    return err
                }
                value, err := db.GetSetting(ctx, database.DB, args[0], "")
                if err != nil {
                    return fmt.Errorf("failed to get setting: %v", err)
                }
                fmt.Println(value)
                return nil
            },
        },
    )

    return settingsCmd
}
