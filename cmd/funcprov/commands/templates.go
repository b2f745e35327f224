package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var TemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the dev-container templates available in the template archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		ctx := cmd.Context()
		app, err := NewApp(ctx, v, AppOptions{WithoutStore: true})
		if err != nil {
			return err
		}
		defer app.Close()

		tpl := app.Config.Devcontainer.WithDefaults()
		archivePath := strings.TrimSpace(v.GetString("archive"))
		if archivePath == "" {
			tmp, err := os.MkdirTemp("", "funcprov-templates-")
			if err != nil {
				return err
			}
			defer func() { _ = os.RemoveAll(tmp) }()
			archivePath = filepath.Join(tmp, tpl.ArchiveFileName())
			if _, err := app.Downloader.DownloadFile(ctx, tpl.ArchiveURL, archivePath, nil); err != nil {
				return err
			}
		}

		names, err := tpl.NamesFromArchive(app.Fs, archivePath)
		if err != nil {
			return err
		}
		for _, n := range names {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}
