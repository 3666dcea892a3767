package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fandreams/fancoin/internal/app/vesting"
	"github.com/fandreams/fancoin/internal/daemon"
	"github.com/fandreams/fancoin/internal/domain"
)

// ─── Admin commands ─────────────────────────────────────────────────────────
// These open the store directly and are meant for operators, not for the
// platform backend — the backend talks to the HTTP API.

func init() {
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(grantCmd)

	grantCmd.Flags().String("type", string(domain.GrantEngagement), "grant type")
	grantCmd.Flags().String("rule", string(domain.VestNever), "vesting rule: never, revenue, time, condition")
	grantCmd.Flags().Float64("rate", 0, "revenue vesting: coins unlocked per BRL")
	grantCmd.Flags().String("unlock-at", "", "time vesting: RFC3339 unlock instant")
	grantCmd.Flags().String("condition", "", "condition vesting: condition description")
	grantCmd.Flags().String("ref", "", "reference id")
}

// openDaemon loads the config and wires the services without starting the
// HTTP server or the background loops.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg)
}

var walletCmd = &cobra.Command{
	Use:   "wallet USER_ID",
	Short: "Show a user's wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.DB().Close()

		w, err := d.Ledger.Wallet(args[0])
		if err != nil {
			return err
		}
		cmd.Printf("user:               %s\n", w.UserID)
		cmd.Printf("balance:            %d\n", w.Balance)
		cmd.Printf("withdrawable:       %d\n", w.Withdrawable())
		cmd.Printf("locked bonus:       %d\n", w.LockedBonus)
		cmd.Printf("withdrawable bonus: %d\n", w.WithdrawableBonus)
		cmd.Printf("total earned:       %d\n", w.TotalEarned)
		cmd.Printf("total spent:        %d\n", w.TotalSpent)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the commitment maturity sweep and vesting tick once",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.DB().Close()

		now := time.Now()
		completed, err := d.Commitments.MaturitySweep(now)
		if err != nil {
			return fmt.Errorf("maturity sweep: %w", err)
		}
		unlocked, err := d.Vesting.Tick(now)
		if err != nil {
			return fmt.Errorf("vesting tick: %w", err)
		}
		cmd.Printf("completed %d commitments, unlocked %d time grants\n", completed, unlocked)
		return nil
	},
}

var grantCmd = &cobra.Command{
	Use:   "grant USER_ID AMOUNT",
	Short: "Issue a bonus grant to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var amount int64
		if _, err := fmt.Sscanf(args[1], "%d", &amount); err != nil {
			return fmt.Errorf("invalid amount %q", args[1])
		}

		grantType, _ := cmd.Flags().GetString("type")
		rule, _ := cmd.Flags().GetString("rule")
		rate, _ := cmd.Flags().GetFloat64("rate")
		unlockAt, _ := cmd.Flags().GetString("unlock-at")
		condition, _ := cmd.Flags().GetString("condition")
		ref, _ := cmd.Flags().GetString("ref")

		req := vesting.GrantRequest{
			UserID:           args[0],
			Type:             domain.GrantType(grantType),
			Amount:           amount,
			VestingRule:      domain.VestingRule(rule),
			VestingRate:      rate,
			VestingCondition: condition,
			ReferenceID:      ref,
		}
		if unlockAt != "" {
			t, err := time.Parse(time.RFC3339, unlockAt)
			if err != nil {
				return fmt.Errorf("invalid unlock-at: %w", err)
			}
			req.VestingUnlockAt = &t
		}

		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.DB().Close()

		grant, err := d.Vesting.Grant(req)
		if err != nil {
			return err
		}
		cmd.Printf("granted %d coins to %s (grant %s, rule %s)\n",
			grant.TotalAmount, grant.UserID, grant.ID, grant.VestingRule)
		return nil
	},
}
