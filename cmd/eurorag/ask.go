package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewAskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question",
		Long:  `Retrieve grounding from every corpus and answer the question from it.`,
		RunE:  makeAskRunner(a),
	}

	cmd.Flags().StringP("question", "q", "", "Question to answer (alternative to the positional argument)")
	cmd.Flags().Bool("sources", false, "Print the grounding after the answer")
	return cmd
}

func makeAskRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		question, _ := cmd.Flags().GetString("question")
		if question == "" {
			question = strings.Join(args, " ")
		}
		if strings.TrimSpace(question) == "" {
			return errors.New("ask: a question is required")
		}
		sources, _ := cmd.Flags().GetBool("sources")
		asJSON, _ := cmd.Flags().GetBool("json")

		svc, err := a.service(cmd.Context(), nil, true)
		if err != nil {
			return err
		}
		ans, err := svc.Ask(cmd.Context(), question)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ans)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
		if sources {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", ans.Grounding)
		}
		return nil
	}
}
