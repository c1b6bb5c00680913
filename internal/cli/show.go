package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mortgage-rate-alerts/internal/app"
)

var (
	showEmail string
	showAll   bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the rate alerts of one email",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showEmail == "" {
			return fmt.Errorf("--email is required")
		}

		opts := app.ShowOptions{
			Email: showEmail,
			All:   showAll,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showEmail, "email", "", "Email whose alerts are listed")
	showCmd.Flags().BoolVar(&showAll, "all", false, "Include alerts in every status, not only ACTIVE")
}
