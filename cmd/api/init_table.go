package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"north-backend/infrastructure/config"
	"north-backend/infrastructure/persistence/dynamodb"
)

// initTableCmd creates the DynamoDB table
var initTableCmd = &cobra.Command{
	Use:   "init-table",
	Short: "Create the DynamoDB table",
	Long: `Create the DynamoDB table named by TABLE_NAME, with on-demand billing
and TTL enabled on usage counters. An existing table is left untouched.

Set DYNAMODB_ENDPOINT to target DynamoDB Local.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		client, err := dynamodb.NewClient(cmd.Context(), cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return err
		}
		if err := dynamodb.CreateTable(cmd.Context(), client, cfg.TableName, logger); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Table %s is ready\n", cfg.TableName)
		return nil
	},
}
