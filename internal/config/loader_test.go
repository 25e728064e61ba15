package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/tierboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, "127.0.0.1:9080")
				convey.So(cfg.CooldownSeconds, convey.ShouldEqual, 120)
				convey.So(cfg.ExpireHours, convey.ShouldEqual, 48)
				convey.So(cfg.TierFloors, convey.ShouldResemble, []int{15, 35, 60, 90, 120})
				convey.So(cfg.GatewayEnabled(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("TIERBOARD_ADDR", ":8080")
			_ = os.Setenv("TIERBOARD_COOLDOWN_SECONDS", "60")
			_ = os.Setenv("TIERBOARD_EXPIRE_HOURS", "24")
			_ = os.Setenv("TIERBOARD_TIER_FLOORS", "10,20,30,40,50")
			_ = os.Setenv("TIERBOARD_HOOK_WORKERS", "4")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.CooldownSeconds, convey.ShouldEqual, 60)
				convey.So(cfg.ExpireHours, convey.ShouldEqual, 24)
				convey.So(cfg.TierFloors, convey.ShouldResemble, []int{10, 20, 30, 40, 50})
				convey.So(cfg.HookWorkers, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
db_path: "/tmp/board.db"
cooldown_seconds: 30
tier_floors: [5, 10, 20, 40, 80]
retention_days: 30
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("TIERBOARD_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DBPath, convey.ShouldEqual, "/tmp/board.db")
				convey.So(cfg.CooldownSeconds, convey.ShouldEqual, 30)
				convey.So(cfg.TierFloors, convey.ShouldResemble, []int{5, 10, 20, 40, 80})
				convey.So(cfg.RetentionDays, convey.ShouldEqual, 30)
				convey.So(cfg.ExpireHours, convey.ShouldEqual, 48)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
cooldown_seconds: 30
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("TIERBOARD_CONFIG", tmpFile)
			_ = os.Setenv("TIERBOARD_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.CooldownSeconds, convey.ShouldEqual, 30)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("TIERBOARD_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("TIERBOARD_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("TIERBOARD_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When tier floors from env are out of order", func() {
			_ = os.Setenv("TIERBOARD_TIER_FLOORS", "50,40,30,20,10")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When tier floors from a file are too few", func() {
			tmpFile := createTempConfigFile("tier_floors: [10, 20, 30]\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("TIERBOARD_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then defaults should not pad the list", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("TIERBOARD_COOLDOWN_SECONDS", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the Discord token is set without channels", func() {
			_ = os.Setenv("TIERBOARD_DISCORD_TOKEN", "secret")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should demand the guild id", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "guild_id")
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"TIERBOARD_CONFIG",
		"TIERBOARD_ADDR",
		"TIERBOARD_COOLDOWN_SECONDS",
		"TIERBOARD_EXPIRE_HOURS",
		"TIERBOARD_TIER_FLOORS",
		"TIERBOARD_HOOK_WORKERS",
		"TIERBOARD_DISCORD_TOKEN",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "tierboard-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
