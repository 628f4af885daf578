package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/bootstrap"
	"github.com/iac-studio/envforge/internal/identity"
	"github.com/iac-studio/envforge/internal/registry"
	"github.com/iac-studio/envforge/internal/services"
	"github.com/iac-studio/envforge/pkg/logger"
)

func newProjectsCmd() *cobra.Command {
	projects := &cobra.Command{
		Use:   "projects",
		Short: "Inspect projects",
	}
	projects.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List managed projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *bootstrap.Runtime) error {
				ids, err := rt.Orchestrator.ListProjects(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	})
	return projects
}

func newProjectCmd() *cobra.Command {
	project := &cobra.Command{
		Use:   "project",
		Short: "Create, describe or destroy one project",
	}

	project.AddCommand(&cobra.Command{
		Use:   "create <project>",
		Short: "Create the project, or return the existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *bootstrap.Runtime) error {
				p, err := rt.Orchestrator.FindOrCreateProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	})

	project.AddCommand(&cobra.Command{
		Use:   "describe <project>",
		Short: "Show the project subnet and open pull requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *bootstrap.Runtime) error {
				d, err := rt.Orchestrator.DescribeProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d)
			})
		},
	})

	var purge bool
	destroy := &cobra.Command{
		Use:   "destroy <project>",
		Short: "Destroy the project network; --purge also removes its registry and IAM user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid := args[0]
			return withRuntime(cmd.Context(), func(rt *bootstrap.Runtime) error {
				ctx := cmd.Context()
				if err := services.NewProjectService(rt.Orchestrator, rt.Secrets).DestroyProject(ctx, pid); err != nil {
					return err
				}
				if purge {
					if err := identity.NewManager(rt.AWS.IAM).DestroyProjectUser(ctx, pid); err != nil {
						return err
					}
					if err := registry.NewManager(rt.AWS.ECR).Destroy(ctx, pid); err != nil {
						return err
					}
					logger.L().Info("project purged", zap.String("project_id", pid))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "project %s destroyed\n", pid)
				return nil
			})
		},
	}
	destroy.Flags().BoolVar(&purge, "purge", false, "also delete the ECR repository and IAM user")
	project.AddCommand(destroy)

	return project
}

func newWebhookSecretCmd() *cobra.Command {
	ws := &cobra.Command{
		Use:   "webhook-secret",
		Short: "Manage project webhook secrets",
	}
	ws.AddCommand(&cobra.Command{
		Use:   "init <project>",
		Short: "Generate and store a new webhook secret, printing it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *bootstrap.Runtime) error {
				secret, err := rt.Orchestrator.InitializeWebhookSecret(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), secret)
				return nil
			})
		},
	})
	return ws
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
