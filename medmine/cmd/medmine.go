// Command-line client for the MedMine purchase order assistant
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"medmine/medmine/client/workspace"
	"medmine/medmine/config"
	"medmine/medmine/controllers"
	"medmine/medmine/utils/color"
	"medmine/medmine/utils/logging"

	"github.com/spf13/cobra"
)

var clientCfg = config.LoadClientConfig()

var rootCmd = &cobra.Command{
	Use:   "medmine",
	Short: "Chat with Earl about your purchase order data",
	Long: `medmine uploads CSV or Excel purchase order files to the MedMine
backend and lets you ask Earl questions about them.

Run without a subcommand to start an interactive chat. Type /help inside
the chat for the available commands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// logs go next to the state file, the terminal belongs to the chat
		return logging.InitLoggerIn(filepath.Join(filepath.Dir(clientCfg.StateFile), "logs"))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return newREPL(ctx, clientCfg, cmd.InOrStdin(), cmd.OutOrStdout()).Run()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the saved chats of this session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace.New(workspace.Options{Config: clientCfg, Logger: logging.AppLogger})
		chats, err := ws.History(cmd.Context())
		if err != nil {
			return err
		}
		printChats(cmd.OutOrStdout(), chats)
		return nil
	},
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token [subject]",
	Short: "Issue an API token signed with the server's JWT_SECRET",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject := "medmine-cli"
		if len(args) == 1 {
			subject = args[0]
		}
		token, err := controllers.NewAuthController(config.LoadConfig()).IssueToken(subject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&clientCfg.APIURL, "api", clientCfg.APIURL, "backend base URL")
	flags.StringVar(&clientCfg.Token, "token", clientCfg.Token, "bearer token for the backend")
	flags.StringVar(&clientCfg.StateFile, "state", clientCfg.StateFile, "file holding the session identity")
	flags.IntVar(&clientCfg.PageSize, "page-size", clientCfg.PageSize, "rows per data page")
	flags.DurationVar(&clientCfg.Timeout, "timeout", clientCfg.Timeout, "HTTP timeout per request")

	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime")

	rootCmd.AddCommand(historyCmd, tokenCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.ColorError("Error: "+err.Error()))
		os.Exit(1)
	}
}
