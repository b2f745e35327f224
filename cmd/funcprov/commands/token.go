package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/funcprov/internal/server"
)

var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the deep-link listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		doc, _, err := LoadConfig(v)
		if err != nil {
			return err
		}
		secret := doc.JWTSecret()
		if secret == "" {
			return errors.New("server.jwt_secret is not configured")
		}
		ic := server.IssueConfig{
			Secret:  secret,
			Subject: v.GetString("subject"),
			Issuer:  doc.Server.Issuer,
			ID:      uuid.NewString(),
			TTL:     v.GetDuration("ttl"),
		}
		if doc.Server.Audience != "" {
			ic.Audience = []string{doc.Server.Audience}
		}
		tok, err := ic.Issue(time.Now())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}
