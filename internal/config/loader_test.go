package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/rankready/internal/config"
	"github.com/okian/rankready/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var configEnvVars = []string{
	"RANKREADY_CONFIG",
	"RANKREADY_ENV_FILE",
	"RANKREADY_ADDR",
	"RANKREADY_QUEUE_SIZE",
	"RANKREADY_WORKER_COUNT",
	"RANKREADY_STORE_DRIVER",
	"RANKREADY_LOG_LEVEL",
	"RANKREADY_GENERATION_ENABLED",
	"RANKREADY_GENERATION_RATE_PER_SECOND",
}

func clearConfigEnvVars() {
	for _, v := range configEnvVars {
		_ = os.Unsetenv(v)
	}
	// keep a stray .env in the working directory out of the picture
	_ = os.Setenv("RANKREADY_ENV_FILE", filepath.Join(os.TempDir(), "rankready-missing.env"))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
		})

		convey.Convey("When environment variables are set", func() {
			_ = os.Setenv("RANKREADY_ADDR", ":8080")
			_ = os.Setenv("RANKREADY_QUEUE_SIZE", "64")
			_ = os.Setenv("RANKREADY_GENERATION_ENABLED", "true")
			_ = os.Setenv("RANKREADY_GENERATION_RATE_PER_SECOND", "2.5")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
			convey.So(cfg.GenerationEnabled, convey.ShouldBeTrue)
			convey.So(cfg.GenerationRatePerSecond, convey.ShouldEqual, 2.5)
		})

		convey.Convey("When a YAML file is provided", func() {
			path := writeFile(t, "rankready.yaml", `
addr: ":9090"
worker_count: 7
store_driver: sqlite
sqlite_path: /tmp/ranks.db
benchmark_divisors:
  citations_per_faculty: 200
`)
			_ = os.Setenv("RANKREADY_CONFIG", path)
			_ = os.Setenv("RANKREADY_WORKER_COUNT", "9")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSQLite)
			convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/ranks.db")
			convey.So(cfg.BenchmarkDivisors["citations_per_faculty"], convey.ShouldEqual, 200)

			convey.Convey("Then env vars override the file", func() {
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 9)
			})
		})

		convey.Convey("When a .env file is provided", func() {
			path := writeFile(t, "test.env", "RANKREADY_LOG_LEVEL=debug\n")
			_ = os.Setenv("RANKREADY_ENV_FILE", path)

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
		})

		convey.Convey("When the YAML file does not exist", func() {
			_ = os.Setenv("RANKREADY_CONFIG", "/non/existent/rankready.yaml")

			_, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a value does not parse", func() {
			_ = os.Setenv("RANKREADY_QUEUE_SIZE", "lots")

			_, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the result fails validation", func() {
			_ = os.Setenv("RANKREADY_STORE_DRIVER", "mongo")

			_, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestWatch(t *testing.T) {
	convey.Convey("Given a watched config file", t, func() {
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		path := writeFile(t, "watch.yaml", "log_level: info\n")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		reloaded := make(chan *config.Config, 4)
		err := config.Watch(ctx, path, func(c *config.Config) {
			select {
			case reloaded <- c:
			default:
			}
		})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then a rewrite delivers the new settings", func() {
			convey.So(os.WriteFile(path, []byte("log_level: debug\n"), 0o600), convey.ShouldBeNil)

			// a truncating write can surface an intermediate empty file first
			var level string
			timeout := time.After(5 * time.Second)
			for level != "debug" {
				select {
				case c := <-reloaded:
					level = c.LogLevel
				case <-timeout:
					t.Fatal("config reload was not observed")
				}
			}
			convey.So(level, convey.ShouldEqual, "debug")
		})
	})

	convey.Convey("Watch needs a path", t, func() {
		err := config.Watch(context.Background(), "", func(*config.Config) {})
		convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
	})
}
