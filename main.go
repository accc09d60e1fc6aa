package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/Tutortoise/mask-stream/classifier"
	"github.com/Tutortoise/mask-stream/classifier/dnn"
	"github.com/Tutortoise/mask-stream/config"
	"github.com/Tutortoise/mask-stream/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debugMode  bool
)

var rootCmd = &cobra.Command{
	Use:   "mask-stream",
	Short: "Real-time mask detection from a camera feed",
	Long: `mask-stream reads frames from a camera, classifies each frame as
"Mask" or "No Mask" and shows the annotated video in a web page.
Running it without a subcommand starts the web server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "config.yaml", "Path to the YAML config file (optional)")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug logging with per-frame timings")
	flags.Int("port", 0, "Port to listen on (overrides config)")
	flags.Int("device", -1, "Camera device index (overrides config)")
	flags.String("model", "", "Path to the classifier model (overrides config)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	if os.Getenv("DEBUG") == "true" {
		debugMode = true
	}
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("device") {
		cfg.Camera.Device, _ = flags.GetInt("device")
	}
	if flags.Changed("model") {
		cfg.Model.Path, _ = flags.GetString("model")
	}
	if debugMode {
		cfg.Log.Level = "debug"
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", problems)
	}

	logging.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

// buildClassifier loads the model for the configured backend. The pool is nil
// for the opencv backend. The returned cleanup is always non-nil.
func buildClassifier(cfg *config.Config) (classifier.Classifier, *ClassifierPool, func(), error) {
	noop := func() {}

	if cfg.Model.Backend == config.BackendOpenCV {
		net, err := dnn.New(cfg.Model.Path)
		if err != nil {
			return nil, nil, noop, err
		}
		logging.Info("model loaded", "backend", cfg.Model.Backend, "path", cfg.Model.Path)
		return net, nil, func() { net.Close() }, nil
	}

	shutdown, err := initRuntime(cfg.Model.LibraryPath)
	if err != nil {
		return nil, nil, noop, err
	}

	threads := cfg.Model.Threads
	if threads == 0 {
		threads = max(1, runtime.NumCPU()/cfg.Model.PoolSize)
	}

	pool, err := NewClassifierPool(cfg.Model.Path, cfg.Model.PoolSize, classifier.SessionOptions{
		InputName:  cfg.Model.InputName,
		OutputName: cfg.Model.OutputName,
		Threads:    threads,
	})
	if err != nil {
		shutdown()
		return nil, nil, noop, err
	}
	logging.Info("model loaded",
		"backend", cfg.Model.Backend,
		"path", cfg.Model.Path,
		"sessions", pool.Size(),
		"threads", threads,
	)

	return pool, pool, func() {
		pool.Destroy()
		shutdown()
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
