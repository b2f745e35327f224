package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/funcprov/cmd/funcprov/commands"
	"github.com/loykin/funcprov/internal/constants"
)

var rootCmd = &cobra.Command{
	Use:           "funcprov",
	Short:         "Set up Azure Functions projects with a dev-container definition from deep links",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	v := viper.GetViper()
	v.SetDefault("config", "")
	v.SetDefault("limit", constants.DefaultProvisionLimit)
	v.SetDefault("ttl", 15*time.Minute)

	// Environment variables support: FUNCPROV_CONFIG, FUNCPROV_TOKEN, ...
	v.SetEnvPrefix("FUNCPROV")
	v.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.String("config", v.GetString("config"), "path to a config yaml")
	pf.String("log-level", "", "log level: error, warn, info, debug")
	pf.String("log-format", "", "log format: text, json, color")
	pf.Bool("no-open", false, "do not open the project in the editor")
	pf.Bool("no-history", false, "do not record runs in the history store")
	pf.Bool("keep-downloads", false, "keep downloaded archives and the extracted template tree")
	pf.String("editor", "", "editor command used to open projects (default: code)")

	pc := commands.ProvisionCmd.Flags()
	pc.String("resource-id", "", "ARM resource id of the function app")
	pc.String("container", "", "dev-container template name, e.g. go")
	pc.String("dir", "", "folder to create the project folder in")
	pc.String("token", "", "bearer token for the SCM endpoint")
	pc.String("token-env", "", "environment variable holding the bearer token")

	commands.ServeCmd.Flags().String("listen", "", "listen address (default "+constants.DefaultListenAddr+")")
	commands.TemplatesCmd.Flags().String("archive", "", "read templates from a local archive instead of downloading it")

	hc := commands.HistoryCmd.Flags()
	hc.String("app", "", "only runs for this app")
	hc.String("status", "", "only runs with this status (succeeded, failed)")
	hc.Int("limit", v.GetInt("limit"), "maximum number of runs (0 = all)")

	tc := commands.TokenCmd.Flags()
	tc.String("subject", "funcprov", "subject claim")
	tc.Duration("ttl", v.GetDuration("ttl"), "token lifetime")

	_ = v.BindPFlag("config", pf.Lookup("config"))
	_ = v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log_format", pf.Lookup("log-format"))
	_ = v.BindPFlag("no_open", pf.Lookup("no-open"))
	_ = v.BindPFlag("no_history", pf.Lookup("no-history"))
	_ = v.BindPFlag("keep_downloads", pf.Lookup("keep-downloads"))
	_ = v.BindPFlag("editor", pf.Lookup("editor"))
	_ = v.BindPFlag("resource_id", pc.Lookup("resource-id"))
	_ = v.BindPFlag("container", pc.Lookup("container"))
	_ = v.BindPFlag("dir", pc.Lookup("dir"))
	_ = v.BindPFlag("token", pc.Lookup("token"))
	_ = v.BindPFlag("token_env", pc.Lookup("token-env"))
	_ = v.BindPFlag("listen", commands.ServeCmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("archive", commands.TemplatesCmd.Flags().Lookup("archive"))
	_ = v.BindPFlag("app", hc.Lookup("app"))
	_ = v.BindPFlag("status", hc.Lookup("status"))
	_ = v.BindPFlag("limit", hc.Lookup("limit"))
	_ = v.BindPFlag("subject", tc.Lookup("subject"))
	_ = v.BindPFlag("ttl", tc.Lookup("ttl"))

	rootCmd.AddCommand(commands.ProvisionCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.TemplatesCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.TokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
