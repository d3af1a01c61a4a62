package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/timmy/lungscan/internal/app"
	"github.com/timmy/lungscan/internal/classifier"
	"github.com/timmy/lungscan/internal/config"
	"github.com/timmy/lungscan/internal/logger"
	"github.com/timmy/lungscan/internal/service"
	"github.com/timmy/lungscan/internal/source/localdir"
)

type rootOptions struct {
	configPath string
}

func rootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "classify",
		Short:        "Classify chest X-ray images and manage accounts",
		SilenceUsage: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "Path to config file")

	cmd.AddCommand(
		dirCommand(opts),
		fileCommand(opts),
		userCommand(opts),
	)
	return cmd
}

func dirCommand(root *rootOptions) *cobra.Command {
	var (
		limit   int
		workers int
		email   string
		name    string
	)
	cmd := &cobra.Command{
		Use:   "dir [path]",
		Short: "Classify every image in a directory and store the predictions",
		Long: `Classify every image in a directory through the same pipeline as POST /predict.
A manifest.jsonl in the directory restricts the run to the listed files and may
attribute each file to a submitter.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Batch.Workers = workers
			}

			ctx := cmd.Context()
			a, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.Classifier.Loaded() {
				return classifier.ErrModelUnavailable
			}

			stats, err := a.Batch.ClassifyFromSource(ctx, localdir.NewAdapter(args[0]), limit, &service.BatchOptions{
				UserEmail: email,
				UserName:  name,
			})
			if stats != nil {
				logger.FromContext(ctx).WithFields(logger.Fields{
					"total":    stats.TotalItems,
					"failed":   stats.FailedItems,
					"duration": stats.EndTime.Sub(stats.StartTime).String(),
				}).Info("Directory classified")
				if encErr := writeJSON(cmd.OutOrStdout(), stats); encErr != nil && err == nil {
					err = encErr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of images to classify, 0 for all")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Number of concurrent workers, 0 uses the configured value")
	cmd.Flags().StringVar(&email, "email", "", "Submitter email recorded for images without one")
	cmd.Flags().StringVar(&name, "name", "", "Submitter name recorded for images without one")
	return cmd
}

// fileResult is the JSON printed by the file command.
type fileResult struct {
	File            string             `json:"file"`
	PredictedClass  string             `json:"predicted_class"`
	ConfidenceScore float64            `json:"confidence_score"`
	AllPredictions  map[string]float64 `json:"all_predictions"`
	ProcessingTime  float64            `json:"processing_time"`
	OriginalSize    [2]int             `json:"original_size"`
	ModelVersion    string             `json:"model_version"`
}

func fileCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "file [image]",
		Short: "Classify a single image and print the result without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if ct := mime.TypeByExtension(filepath.Ext(args[0])); ct != "" && !isImageType(ct) {
				return fmt.Errorf("%s is not an image (%s)", args[0], ct)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			clf := classifier.Load(ctx, cfg.Model)
			defer clf.Close()

			res, err := clf.Predict(ctx, data)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), fileResult{
				File:            args[0],
				PredictedClass:  res.PredictedClass.String(),
				ConfidenceScore: res.ConfidenceScore,
				AllPredictions:  res.AllPredictions,
				ProcessingTime:  res.ProcessingTime,
				OriginalSize:    [2]int{res.OriginalWidth, res.OriginalHeight},
				ModelVersion:    clf.Version(),
			})
		},
	}
}

func userCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage account flags",
	}

	flag := func(use, short string, apply func(svc *service.AuthService, cmd *cobra.Command, email string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [email]",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(root.configPath)
				if err != nil {
					return err
				}
				a, err := app.Build(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer a.Close()

				if err := apply(a.Auth, cmd, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", use, args[0])
				return nil
			},
		}
	}

	cmd.AddCommand(
		flag("activate", "Allow the account to log in", func(svc *service.AuthService, cmd *cobra.Command, email string) error {
			return svc.SetActive(cmd.Context(), email, true)
		}),
		flag("deactivate", "Reject future logins for the account", func(svc *service.AuthService, cmd *cobra.Command, email string) error {
			return svc.SetActive(cmd.Context(), email, false)
		}),
		flag("promote", "Grant administrator rights", func(svc *service.AuthService, cmd *cobra.Command, email string) error {
			return svc.SetAdmin(cmd.Context(), email, true)
		}),
		flag("demote", "Revoke administrator rights", func(svc *service.AuthService, cmd *cobra.Command, email string) error {
			return svc.SetAdmin(cmd.Context(), email, false)
		}),
	)
	return cmd
}

func isImageType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && len(mediaType) > 6 && mediaType[:6] == "image/"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
