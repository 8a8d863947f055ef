// cmd/sync-manager/settings.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"survey-sync/internal/common/auth"
)

var (
	loginUser     string
	loginPassword string
)

var apiURLCmd = &cobra.Command{
	Use:   "api-url",
	Short: "Show or change the API base URL",
}

var apiURLSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Probe and save a new API base URL",
	Long: `The URL is normalized (scheme added, trailing slashes removed) and
saved only if GET <url>/clientes answers with a 2xx status.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, cleanup := bootstrap(ctx)
		defer cleanup()

		saved, err := a.settings.SetAPIBaseURL(ctx, args[0])
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(saved)
	},
}

var apiURLShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the API base URL in use",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, cleanup := bootstrap(ctx)
		defer cleanup()

		if saved, ok := a.settings.GetAPIBaseURL(ctx); ok {
			fmt.Println(saved)
			return
		}
		fmt.Printf("%s (default)\n", a.baseURL(ctx))
	},
}

var apiURLClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the saved API base URL",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, cleanup := bootstrap(ctx)
		defer cleanup()

		if err := a.settings.ClearAPIBaseURL(ctx); err != nil {
			fatal("%v", err)
		}
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check a local credential pair and print its role",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("config load failed: %v", err)
		}
		password := loginPassword
		if password == "" {
			password = strings.TrimRight(os.Getenv("SURVEY_PASSWORD"), "\r\n")
		}

		role, err := auth.NewVerifier(cfg.Auth).Verify(loginUser, password)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(role)
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "User name")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (default: $SURVEY_PASSWORD)")
	_ = loginCmd.MarkFlagRequired("user")

	apiURLCmd.AddCommand(apiURLSetCmd, apiURLShowCmd, apiURLClearCmd)
	rootCmd.AddCommand(apiURLCmd)
	rootCmd.AddCommand(loginCmd)
}
