package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/funcprov/internal/store"
)

var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded provisioning runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		app, err := NewApp(cmd.Context(), v, AppOptions{})
		if err != nil {
			return err
		}
		defer app.Close()
		if app.Store == nil {
			return errors.New("history store is disabled")
		}

		runs, err := app.Store.ListRuns(cmd.Context(), store.ListOptions{
			AppName: v.GetString("app"),
			Status:  v.GetString("status"),
			Limit:   v.GetInt("limit"),
		})
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func printRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "no provisioning runs recorded")
		return
	}
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	_, _ = fmt.Fprintf(w, "%-20s %-24s %-10s %-18s %-10s %s\n", "STARTED", "APP", "STATUS", "STEP", "DURATION", "PATH")
	for _, r := range runs {
		status := ok.Sprintf("%-10s", r.Status)
		if !r.Succeeded() {
			status = bad.Sprintf("%-10s", r.Status)
		}
		step := r.Step
		if step == "" {
			step = "-"
		}
		_, _ = fmt.Fprintf(w, "%-20s %-24s %s %-18s %-10s %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.AppName,
			status,
			step,
			r.Duration().Round(time.Millisecond),
			r.ProjectPath)
		if r.Error != "" {
			_, _ = bad.Fprintf(w, "  %s\n", r.Error)
		}
	}
}
