package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/deckrebuild-backend/internal/app"
	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/dbctx"
	"github.com/yungbote/deckrebuild-backend/internal/services"
)

func newJobCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage rebuild jobs in the configured database",
	}
	cmd.AddCommand(
		newAddDeckCmd(),
		newAddTemplateCmd(),
		newCreateJobCmd(),
		newSubmitJobCmd(),
		newStatusJobCmd(),
		newRunJobCmd(),
	)
	return cmd
}

// withApp wires the full app for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	a, err := app.New(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newAddDeckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-deck <deck.pptx>",
		Short: "Upload a source deck and record it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app.App) error {
				id := uuid.New()
				name := filepath.Base(args[0])
				key := path.Join("decks", id.String(), name)
				if err := a.Clients.Blob.Put(cmd.Context(), key, data, pptxContentType); err != nil {
					return err
				}
				f := &types.DeckFile{ID: id, OriginalName: name, StorageKey: key, SizeBytes: int64(len(data))}
				if err := a.Repos.Inputs.CreateDeckFile(dbctx.Context{Ctx: cmd.Context()}, f); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), f.ID)
				return nil
			})
		},
	}
}

func newAddTemplateCmd() *cobra.Command {
	var name string
	var version int
	var draft bool
	cmd := &cobra.Command{
		Use:   "add-template <template.potx>",
		Short: "Upload a template version and record it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app.App) error {
				key := path.Join("templates", name, fmt.Sprintf("v%d", version), filepath.Base(args[0]))
				if err := a.Clients.Blob.Put(cmd.Context(), key, data, pptxContentType); err != nil {
					return err
				}
				v := &types.TemplateVersion{Template: name, Version: version, StorageKey: key}
				if !draft {
					now := time.Now()
					v.PublishedAt = &now
				}
				if err := a.Repos.Inputs.CreateTemplateVersion(dbctx.Context{Ctx: cmd.Context()}, v); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "template name")
	cmd.Flags().IntVar(&version, "version", 1, "template version number")
	cmd.Flags().BoolVar(&draft, "draft", false, "record the version unpublished")
	return cmd
}

func newCreateJobCmd() *cobra.Command {
	var deckID, templateID string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rebuild job and dispatch it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deck, err := uuid.Parse(deckID)
			if err != nil {
				return fmt.Errorf("--deck: %w", err)
			}
			tpl, err := uuid.Parse(templateID)
			if err != nil {
				return fmt.Errorf("--template: %w", err)
			}
			return withApp(cmd, func(a *app.App) error {
				job, err := a.Services.Jobs.Create(dbctx.Context{Ctx: cmd.Context()}, services.CreateRequest{
					DeckFileID:        deck,
					TemplateVersionID: tpl,
					DryRun:            dryRun,
				})
				if job != nil {
					fmt.Fprintln(cmd.OutOrStdout(), job.ID)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&deckID, "deck", "", "deck file id")
	cmd.Flags().StringVar(&templateID, "template", "", "template version id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the mapping without writing a deck")
	return cmd
}

func newSubmitJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <job-id>",
		Short: "Dispatch an existing job again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app.App) error {
				return a.Services.Jobs.Submit(dbctx.Context{Ctx: cmd.Context()}, id)
			})
		},
	}
}

type jobStatus struct {
	Job       *types.RebuildJob    `json:"job"`
	Events    []*types.JobEvent    `json:"events"`
	Artifacts []*types.JobArtifact `json:"artifacts"`
}

func newStatusJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print a job with its events and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app.App) error {
				dbc := dbctx.Context{Ctx: cmd.Context()}
				var st jobStatus
				if st.Job, err = a.Services.Jobs.Get(dbc, id); err != nil {
					return err
				}
				if st.Events, err = a.Services.Jobs.Events(dbc, id); err != nil {
					return err
				}
				if st.Artifacts, err = a.Services.Jobs.Artifacts(dbc, id); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

func newRunJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-id>",
		Short: "Claim and execute one attempt of a job in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app.App) error {
				job, ran, err := a.Services.Worker.RunJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !ran {
					fmt.Fprintf(cmd.ErrOrStderr(), "job not runnable (status %s)\n", job.Status)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s stage=%s attempts=%d\n", job.ID, job.Status, job.Stage, job.Attempts)
				if job.Status == types.StatusFailed {
					return fmt.Errorf("%s: %s", job.ErrorKind, job.Error)
				}
				return nil
			})
		},
	}
}

const pptxContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
