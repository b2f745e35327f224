package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/funcprov/internal/server"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for deep links on a local HTTP endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := NewApp(ctx, viper.GetViper(), AppOptions{})
		if err != nil {
			return err
		}
		defer app.Close()

		srv, err := newServer(app)
		if err != nil {
			return err
		}
		return srv.ListenAndServe(ctx)
	},
}

func newServer(app *App) (*server.Server, error) {
	opts := server.Options{
		Addr:   app.Config.Server.Addr,
		Runner: app.Provisioner,
		Logger: app.Logger,
	}
	if app.Store != nil {
		opts.Runs = app.Store
	}
	if secret := app.Config.JWTSecret(); secret != "" {
		skew, err := app.Config.ClockSkew()
		if err != nil {
			return nil, err
		}
		opts.JWT = &server.VerifyConfig{
			Secret:          []byte(secret),
			AllowedIssuer:   app.Config.Server.Issuer,
			AllowedAudience: app.Config.Server.Audience,
			ClockSkew:       skew,
		}
	} else {
		app.Logger.Warn("listener runs without bearer verification; folder= is refused and workspace.dir is used",
			"workspace_dir", app.Config.Workspace.Dir)
	}
	return server.New(opts), nil
}
