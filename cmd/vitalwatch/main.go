package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/vitalwatch/internal/classifier"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
	"github.com/good-yellow-bee/vitalwatch/internal/storage"
	"github.com/good-yellow-bee/vitalwatch/pkg/config"
)

var (
	configFile string
	verbose    bool
	fallback   string
)

var rootCmd = &cobra.Command{
	Use:   "vitalwatch",
	Short: "VitalWatch - patient vital sign alerting",
	Long: `VitalWatch ingests patient vital sign samples, classifies them against
clinical bands and per-patient thresholds, and raises alerts to the
configured notification channels.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, ingest sources and alert lifecycle",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

var classifyCmd = &cobra.Command{
	Use:   "classify [file]",
	Short: "Classify JSON samples read from a file or stdin",
	Long: `Classify reads one JSON sample per line and prints its severity
against the fixed clinical bands. No state is read or written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vitalwatch %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
		if verbose {
			fmt.Println(config.GetBuildInfo())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	classifyCmd.Flags().StringVar(&fallback, "fallback", "", "missing vital policy: zero or strict (default from config, else zero)")

	rootCmd.AddCommand(serveCmd, migrateCmd, classifyCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the -c file, or falls back to defaults plus environment.
func loadConfig() (*Config, error) {
	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}
	cfg.Verbose = verbose
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// openStorage opens and migrates the configured database.
func openStorage(cfg *Config) (*storage.SQLStorage, error) {
	dialect, err := storage.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	if dialect == storage.DialectSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	store := storage.New(dialect, cfg.dsn())
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	version, err := store.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database %s at schema version %d\n", store.Dialect(), version)
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	policy := fallback
	if policy == "" && configFile != "" {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		policy = cfg.Alerting.Fallback
	}
	fb, err := classifier.ParseFallbackPolicy(policy)
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	return classifyStream(in, cmd.OutOrStdout(), classifier.New(fb), time.Now)
}

// classification is one line of classify output.
type classification struct {
	Line      int             `json:"line"`
	PatientID string          `json:"patientId,omitempty"`
	Severity  models.Severity `json:"severity,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// classifyStream writes one JSON result per non-empty input line.
// Undecodable lines are reported and skipped.
func classifyStream(r io.Reader, w io.Writer, c *classifier.Classifier, now func() time.Time) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(w)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		out := classification{Line: line}
		s, err := models.DecodeSample(raw, now())
		if err != nil {
			out.Error = err.Error()
		} else {
			out.PatientID = s.PatientID
			sev, reason := c.Explain(s)
			out.Severity = sev
			if reason != nil {
				out.Reason = reason.Error()
			}
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
