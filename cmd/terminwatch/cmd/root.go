package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"terminwatch/lib/configutil"
	"terminwatch/lib/serviceutil"
	"terminwatch/lib/telemetry"
	"terminwatch/services/notify"
	"terminwatch/services/watches"
)

type DatabaseConfig struct {
	Path string `json:"path"`
}

type TelegramConfig struct {
	Token string `json:"token"`
}

type ScreenshotsConfig struct {
	// local directory for diagnostic screenshots, empty disables
	Dir string `json:"dir"`
	// optional collector endpoint that receives a copy of each image
	Endpoint string `json:"endpoint"`
}

type SchedulerConfig struct {
	Tick       string `json:"tick"`
	ProbeDelay string `json:"probe_delay"`
	RetainDays int    `json:"retain_days"`
}

type BrowserConfig struct {
	Headful      bool   `json:"headful"`
	NavTimeout   string `json:"nav_timeout"`
	ProbeTimeout string `json:"probe_timeout"`
}

type Config struct {
	Database    DatabaseConfig       `json:"database"`
	Telegram    TelegramConfig       `json:"telegram"`
	Smtp        notify.SmtpConfig    `json:"smtp"`
	Screenshots ScreenshotsConfig    `json:"screenshots"`
	Scheduler   SchedulerConfig      `json:"scheduler"`
	Browser     BrowserConfig        `json:"browser"`
	SiteProfile string               `json:"site_profile"`
	Targets     []watches.TargetSeed `json:"targets"`
}

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "terminwatch",
	Short: "terminwatch monitors the Düsseldorf appointment booking site for free slots.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "Path to the configuration file.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging/instrumentation.")
}

func Execute() {
	err := rootCmd.ExecuteContext(serviceutil.SignalContext())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (Config, error) {
	return configutil.ReadConfig[Config](configPath)
}

// parseDuration falls back when the config leaves the value empty.
func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
