package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/funcprov/internal/deeplink"
	"github.com/loykin/funcprov/internal/provision"
)

// interactive and promptFolder are replaced in tests.
var (
	interactive = func() bool {
		return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	}
	promptFolder = func(def string) (string, error) {
		prompt := promptui.Prompt{
			Label:   "Folder to create the project in",
			Default: def,
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("folder is required")
				}
				return nil
			},
		}
		return prompt.Run()
	}
)

var ProvisionCmd = &cobra.Command{
	Use:   "provision [URI]",
	Short: "Download a function app and a dev-container template into a local project folder",
	Long: `Provision materializes an Azure Functions app locally and adds a dev-container definition.

The target is either a deep link such as
  vscode://ms-azuretools.vscode-azurefunctions/?res=<resource id>&container=<template>
or the --resource-id and --container flags.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		link, err := linkFromArgs(v, args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		app, err := NewApp(ctx, v, AppOptions{})
		if err != nil {
			return err
		}
		defer app.Close()

		folder := strings.TrimSpace(v.GetString("dir"))
		if folder == "" && link.Folder == "" && app.Config.Workspace.Dir == "" {
			if !interactive() {
				return errors.New("no target folder: pass --dir, add folder= to the link, or set workspace.dir")
			}
			cwd, _ := os.Getwd()
			folder, err = promptFolder(cwd)
			if err != nil {
				return fmt.Errorf("folder prompt: %w", err)
			}
		}

		token, err := tokenFromFlags(v)
		if err != nil {
			return err
		}

		res, err := app.Provisioner.Run(ctx, provision.Request{Link: link, Folder: folder, Token: token})
		if err != nil {
			printFailure(cmd.ErrOrStderr(), err)
			if res == nil {
				return err
			}
		}
		printResult(cmd.OutOrStdout(), res)
		return err
	},
}

func linkFromArgs(v *viper.Viper, args []string) (deeplink.Link, error) {
	if len(args) == 1 {
		return deeplink.Parse(args[0])
	}
	rid := strings.TrimSpace(v.GetString("resource_id"))
	container := strings.TrimSpace(v.GetString("container"))
	if rid == "" && container == "" {
		return deeplink.Link{}, errors.New("a deep-link URI or --resource-id and --container are required")
	}
	return deeplink.New(rid, container, "")
}

func tokenFromFlags(v *viper.Viper) (string, error) {
	if t := strings.TrimSpace(v.GetString("token")); t != "" {
		return t, nil
	}
	if name := strings.TrimSpace(v.GetString("token_env")); name != "" {
		t := strings.TrimSpace(os.Getenv(name))
		if t == "" {
			return "", fmt.Errorf("environment variable %s is empty", name)
		}
		return t, nil
	}
	return "", nil
}

func printResult(w io.Writer, res *provision.Result) {
	green := color.New(color.FgGreen, color.Bold)
	_, _ = green.Fprintf(w, "✓ %s", res.AppName)
	_, _ = fmt.Fprintf(w, " provisioned in %s\n", res.ProjectPath)
	_, _ = fmt.Fprintf(w, "  files:        %d\n", len(res.Files))
	if res.DevcontainerPath != "" {
		_, _ = fmt.Fprintf(w, "  devcontainer: %s\n", res.DevcontainerPath)
	}
	_, _ = fmt.Fprintf(w, "  run id:       %s\n", res.RunID)
}

func printFailure(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	if step := provision.FailedStep(err); step != "" {
		_, _ = red.Fprintf(w, "✗ provisioning failed at %s\n", step)
		return
	}
	_, _ = red.Fprintln(w, "✗ provisioning failed")
}
