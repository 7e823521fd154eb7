// Точка входа DH Simulator — симулятор займов и рассрочки обуви.
// Команды: serve (по умолчанию), migrate, config show|import, create-admin.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/dhsimulator/internal/config"
)

// envFile — путь к .env, читается до загрузки конфигурации.
var envFile string

var rootCmd = &cobra.Command{
	Use:   "dhsimulator",
	Short: "Симулятор займов и рассрочки DH",
	Long: `dhsimulator — веб-приложение с публичным симулятором, кабинетом агентов
и панелью администратора. Без подкоманды запускает HTTP-сервер.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFile)
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "файл с переменными окружения (отсутствие не является ошибкой)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(createAdminCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Ошибка выполнения команды", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadConfig загружает конфигурацию и настраивает логирование.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, config.SetupLogger(cfg), nil
}
