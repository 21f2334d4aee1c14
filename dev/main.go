// Command dev bootstraps a local development environment: it prompts
// for the bot credentials, writes a starter config and creates an
// empty database.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tcnksm/go-input"

	watchesdb "terminwatch/services/watches/db"

	_ "modernc.org/sqlite"
)

const configTemplate = `{
	database: { path: "dev/.state/terminwatch.db" },
	telegram: { token: %q },
	screenshots: { dir: "dev/.state/screenshots" },
	scheduler: { tick: "5m", probe_delay: "2s", retain_days: 30 },
	browser: { headful: true },
	targets: [
		{
			category: "Bürgerbüro",
			service: "Reisepass beantragen",
			quantity: 1,
		},
	],
}
`

const telemetryTemplate = `{
	otlp: {},
}
`

func create(recreate bool) error {
	_, err := os.Stat("go.mod")
	if os.IsNotExist(err) {
		return fmt.Errorf("the dev environment must be created in the repository root (the same directory as the 'go.mod' file)")
	}

	if recreate {
		err = os.RemoveAll("dev/.state")
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	err = os.MkdirAll("dev/.state/screenshots", 0777)
	if err != nil && !os.IsExist(err) {
		return err
	}

	if err := writeConfig(); err != nil {
		return err
	}
	if err := writeTelemetryConfig(); err != nil {
		return err
	}
	if err := createServiceDB(); err != nil {
		return err
	}

	slog.Info("dev environment ready", "run", "go run ./cmd/terminwatch --config config.local.json5 serve -v")
	return nil
}

func writeConfig() error {
	_, err := os.Stat("config.local.json5")
	if !os.IsNotExist(err) {
		slog.Info("config.local.json5 already exists, keeping it")
		return err
	}

	ui := input.DefaultUI()
	token, err := ui.Ask("telegram bot token (from @BotFather):", &input.Options{
		Default: "",
		Mask:    false,
		Loop:    true,
	})
	if err != nil {
		return err
	}

	return os.WriteFile("config.local.json5", []byte(fmt.Sprintf(configTemplate, token)), 0600)
}

func writeTelemetryConfig() error {
	_, err := os.Stat("telemetry.json5")
	if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile("telemetry.json5", []byte(telemetryTemplate), 0644)
}

func createServiceDB() error {
	db, err := sql.Open("sqlite", "dev/.state/terminwatch.db")
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(watchesdb.Schema)
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

func main() {
	recreate := flag.Bool("recreate", false, "Wipe dev/.state before creating the environment.")
	flag.Parse()

	err := create(*recreate)
	if err != nil {
		slog.Error("failed to create dev environment", "err", err)
		os.Exit(1)
	}
}
