package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/config"
	"github.com/xxxsen/docchat/internal/extract"
)

func main() {
	var (
		configPath string
		envFile    string
	)

	rootCmd := &cobra.Command{
		Use:   "docchat",
		Short: "document chat and extraction server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "optional dotenv file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docchat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	indexCmd := &cobra.Command{
		Use:   "index <file>",
		Short: "index one document and print its content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			res, err := app.documents.Upload(cmd.Context(), "", filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tchunks=%d\ttokens=%d\treused=%t\n", res.Hash, res.Chunks, res.Tokens, res.Reused)
			return nil
		},
	}
	indexCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	schemasCmd := &cobra.Command{
		Use:   "schemas",
		Short: "list extraction schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range extract.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, indexCmd, schemasCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env %s: %w", path, err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}
