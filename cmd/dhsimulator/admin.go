package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bigkaa/dhsimulator/internal/config"
	"github.com/bigkaa/dhsimulator/internal/database"
	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/domain/rbac"
	"github.com/bigkaa/dhsimulator/internal/keycloak"
	"github.com/bigkaa/dhsimulator/internal/repository"
	"github.com/bigkaa/dhsimulator/internal/service"
)

// cliActor — автор изменений конфигурации, сделанных из командной строки.
const cliActor = "cli"

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции БД и выйти",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		schema, err := database.Migrate(cfg, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Версия схемы: %d\n", schema.Version)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Конфигурация калькулятора (ставки и обувь)",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Вывести действующую конфигурацию в YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		pool, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		svc := service.NewConfigService(repository.NewAppConfigRepository(pool), cfg.ConfigCacheSize, cfg.ConfigCacheTTL, logger)
		snap, err := svc.Snapshot(ctx)
		if err != nil {
			return err
		}
		return writeConfigFile(cmd.OutOrStdout(), configFile{Rates: snap.Rates, Footwear: &snap.Footwear})
	},
}

var configImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Загрузить конфигурацию из YAML-файла",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("чтение %s: %w", args[0], err)
		}
		file, err := parseConfigFile(raw)
		if err != nil {
			return err
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		pool, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		svc := service.NewConfigService(repository.NewAppConfigRepository(pool), cfg.ConfigCacheSize, cfg.ConfigCacheTTL, logger)
		if err := svc.Save(ctx, file.Rates, file.Footwear, cliActor); err != nil {
			return err
		}
		logger.Info("Конфигурация импортирована", slog.String("file", args[0]))
		return nil
	},
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Создать администратора в Keycloak",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		pool, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		kcClient := keycloak.New(cfg.KeycloakURL, cfg.KeycloakRealm, cfg.KeycloakClientID, cfg.KeycloakClientSecret, nil, logger)
		users := service.NewUserService(kcClient, repository.NewProfileRepository(pool), cfg.RoleAdminGroups, cfg.RoleAgentGroups, logger)

		user, err := users.Create(ctx, model.NewUser{
			Email:    email,
			Password: password,
			Role:     rbac.RoleAdmin,
			FullName: name,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Администратор создан: %s (%s)\n", user.Email, user.ID)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configImportCmd)

	createAdminCmd.Flags().String("email", "", "email администратора")
	createAdminCmd.Flags().String("password", "", "пароль (не короче 6 символов)")
	createAdminCmd.Flags().String("name", "", "отображаемое имя")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
}

// openDatabase применяет миграции и открывает пул соединений.
func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if _, err := database.Migrate(cfg, logger); err != nil {
		return nil, err
	}
	return database.Connect(ctx, cfg, logger)
}

// configFile — формат YAML-файла конфигурации калькулятора.
// Отсутствующая секция при импорте не изменяется.
type configFile struct {
	Rates    calculator.RateTable       `yaml:"rates,omitempty"`
	Footwear *calculator.FootwearConfig `yaml:"footwear,omitempty"`
}

// parseConfigFile разбирает YAML и проверяет значения до записи в БД.
func parseConfigFile(raw []byte) (*configFile, error) {
	var file configFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("некорректный YAML: %w", err)
	}
	if file.Rates == nil && file.Footwear == nil {
		return nil, fmt.Errorf("файл не содержит секций rates и footwear")
	}
	if file.Rates != nil {
		if err := file.Rates.Validate(); err != nil {
			return nil, err
		}
	}
	if file.Footwear != nil {
		if err := file.Footwear.Validate(); err != nil {
			return nil, err
		}
	}
	return &file, nil
}

func writeConfigFile(w io.Writer, file configFile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return err
	}
	return enc.Close()
}
