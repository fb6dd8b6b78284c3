package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"eurorag/internal/domain"
	"eurorag/internal/retrieval"
	"eurorag/internal/service"
)

func NewSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve the closest units for a query",
		Long:  `Search one or all corpora and print the grounding a question would be answered from.`,
		Args:  cobra.ExactArgs(1),
		RunE:  makeSearchRunner(a),
	}

	cmd.Flags().StringSlice("corpus", nil, "Corpora to search (default all)")
	cmd.Flags().IntP("top-k", "k", 0, "Override the configured top_k of every corpus")
	return cmd
}

func makeSearchRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		query := args[0]
		names, _ := cmd.Flags().GetStringSlice("corpus")
		topK, _ := cmd.Flags().GetInt("top-k")
		asJSON, _ := cmd.Flags().GetBool("json")
		if cmd.Flags().Changed("top-k") && topK <= 0 {
			return domain.Errorf(domain.ErrQuery, "search", "", "top-k must be positive, got %d", topK)
		}

		svc, err := a.service(cmd.Context(), names, false)
		if err != nil {
			return err
		}
		corpora, err := svc.Select(topK)
		if err != nil {
			return err
		}
		results, _, err := svc.Retrieve(cmd.Context(), query, corpora)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if asJSON {
			return outputResultsJSON(cmd, corpora, results)
		}
		if len(corpora) == 1 {
			fmt.Fprintln(cmd.OutOrStdout(), retrieval.FormatResult(results[corpora[0].Name]))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), service.Grounding(corpora, results))
		return nil
	}
}

func outputResultsJSON(cmd *cobra.Command, corpora []retrieval.Corpus, results map[string]domain.Result) error {
	out := make([]domain.Result, 0, len(corpora))
	for _, c := range corpora {
		out = append(out, results[c.Name])
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
