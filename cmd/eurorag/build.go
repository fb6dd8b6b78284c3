package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"eurorag/internal/extract"
	"eurorag/internal/index"
	"eurorag/internal/logger"
	"eurorag/internal/segmenter"
)

type buildReport struct {
	Corpus    string `json:"corpus"`
	Source    string `json:"source"`
	Units     int    `json:"units"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
}

func NewBuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build [corpus...]",
		Short: "Build corpus indexes",
		Long:  `Segment, embed and persist every configured corpus, or only the named ones.`,
		RunE:  makeBuildRunner(a),
	}
}

func makeBuildRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		ctx := cmd.Context()

		configs, err := a.corpusConfigs(args)
		if err != nil {
			return err
		}
		emb, err := a.embedder()
		if err != nil {
			return err
		}
		st, err := a.store()
		if err != nil {
			return err
		}
		builder := index.NewBuilder(emb, st, logger.WithComponent("builder"), a.metrics)

		reports := make([]buildReport, 0, len(configs))
		for _, c := range configs {
			doc, err := extract.Load(c.Source)
			if err != nil {
				return fmt.Errorf("corpus %s: %w", c.Name, err)
			}
			seg, err := segmenter.New(c.Kind, c.Headers)
			if err != nil {
				return fmt.Errorf("corpus %s: %w", c.Name, err)
			}
			idx, err := builder.Build(ctx, c.Name, doc, seg)
			if err != nil {
				return err
			}
			reports = append(reports, buildReport{
				Corpus:    c.Name,
				Source:    c.Source,
				Units:     idx.Len(),
				Dimension: idx.Dimension,
				Model:     idx.Model,
			})
			if !asJSON {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d units, dimension %d (%s)\n", c.Name, idx.Len(), idx.Dimension, idx.Model)
			}
		}

		rc, err := a.resultCache(ctx)
		if err != nil {
			return err
		}
		if rc != nil {
			if err := rc.Invalidate(ctx); err != nil {
				return fmt.Errorf("invalidate result cache: %w", err)
			}
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}
		return nil
	}
}
