package main

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "eurorag",
		Short: "Answer euro adoption questions from BNB documents",
		Long: `Builds embedding indexes over the Bulgarian National Bank Q&A document and law,
retrieves the closest units for a question and asks a chat model to answer from them.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.Close()
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	addSubcommands(rootCmd, a)

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file (default ./eurorag.yaml or ~/.config/eurorag/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level override (debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

func addSubcommands(root *cobra.Command, a *app) {
	root.AddCommand(
		NewBuildCmd(a),
		NewSearchCmd(a),
		NewAskCmd(a),
		NewChatCmd(a),
	)
}
