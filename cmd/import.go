package cmd

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [file.csv]",
	Short: "Register documents from a CSV file",
	Long: `Register one document per CSV row. The header names the columns:
title, description, document_type, source, priority, confidentiality,
receiving_office_id, date_received, date_due and prefix. Rows fail
independently.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var importUser string

func init() {
	importCmd.Flags().StringVar(&importUser, "user", "", "ID of the user registering the documents")
	_ = importCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	userID, err := uuid.Parse(importUser)
	if err != nil {
		return errors.Wrapf(err, "invalid --user %q", importUser)
	}

	file, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "failed to open import file")
	}
	defer file.Close()

	a, err := newApp(cfg, "smartdocs-import", true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	actor, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	result, err := a.imports.Import(ctx, actor, file)
	if err != nil {
		return err
	}

	for _, rowErr := range result.Errors {
		log.Warn().Int("row", rowErr.Row).Str("error", rowErr.Message).Msg("Row rejected")
	}
	log.Info().
		Str("file", args[0]).
		Int("created", result.Created).
		Int("failed", result.Failed).
		Msg("Import finished")
	return nil
}
