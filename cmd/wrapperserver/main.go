package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/restinthemiddle/wrapperserver/internal/version"
	"github.com/restinthemiddle/wrapperserver/pkg/core"
	config "github.com/restinthemiddle/wrapperserver/pkg/core/config"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// errVersionRequested is returned by Load when --version is given.
var errVersionRequested = errors.New("version requested")

// ConfigLoader loads the translated configuration from the command line,
// the environment and an optional config file.
type ConfigLoader interface {
	Load(args []string) (*config.TranslatedConfig, error)
}

// LoggerFactory builds the process logger.
type LoggerFactory interface {
	CreateLogger(level zapcore.Level) (*zap.Logger, error)
}

// App wires configuration, logging and the control API together.
type App struct {
	ConfigLoader  ConfigLoader
	LoggerFactory LoggerFactory
	Server        core.HTTPServer
	Writer        io.Writer
	Args          []string
}

// NewApp returns an App with the production dependencies.
func NewApp() *App {
	return &App{
		ConfigLoader:  &DefaultConfigLoader{Output: os.Stdout},
		LoggerFactory: &DefaultLoggerFactory{},
		Writer:        os.Stdout,
		Args:          os.Args,
	}
}

// Run loads the configuration and blocks until ctx ends.
func (a *App) Run(ctx context.Context) error {
	cfg, err := a.ConfigLoader.Load(a.Args)
	if errors.Is(err, errVersionRequested) {
		fmt.Fprintln(a.Writer, version.Info())
		return nil
	}
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := a.LoggerFactory.CreateLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("wrapperserver started",
		zap.String("version", version.Short()),
		zap.String("server_ip", cfg.ServerIP),
		zap.Int("server_port", cfg.ServerPort),
	)

	server := a.Server
	if server == nil {
		server = &core.DefaultHTTPServer{
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		}
	}

	return core.Run(ctx, cfg, logger, server)
}

// DefaultLoggerFactory builds a production zap logger.
type DefaultLoggerFactory struct{}

// CreateLogger implements LoggerFactory.
func (f *DefaultLoggerFactory) CreateLogger(level zapcore.Level) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// DefaultConfigLoader reads flags, environment and config files via viper.
type DefaultConfigLoader struct {
	// Output receives the effective configuration dump. Nil discards it.
	Output io.Writer
	// HomeDir overrides os.UserHomeDir.
	HomeDir func() (string, error)
}

// FlagVars holds the values of the command line flags.
type FlagVars struct {
	headers             []string
	serverIP            string
	serverPort          int
	controlIP           string
	controlPort         int
	autoInit            bool
	shutdownGracePeriod int
	readTimeout         int
	writeTimeout        int
	idleTimeout         int
	metricsEnabled      bool
	setRequestID        bool
	logLevel            string
	configFile          string
	version             bool
}

func setupFlags(fs *flag.FlagSet) *FlagVars {
	fv := &FlagVars{}

	fs.StringSliceVar(&fv.headers, "header", []string{}, "HTTP header the wrapped server sets on every response. You may use this flag multiple times.")
	fs.StringVar(&fv.serverIP, "server-ip", config.DefaultServerIP, "IP address the wrapped server binds to")
	fs.IntVar(&fv.serverPort, "server-port", config.DefaultServerPort, "Port the wrapped server binds to, 0 picks a free one")
	fs.StringVar(&fv.controlIP, "control-ip", config.DefaultControlIP, "IP address of the control API")
	fs.IntVar(&fv.controlPort, "control-port", config.DefaultControlPort, "Port of the control API")
	fs.BoolVar(&fv.autoInit, "auto-init", false, "Start accepting on the wrapped server immediately")
	fs.IntVar(&fv.shutdownGracePeriod, "shutdown-grace-period", 0, "Seconds in-flight requests may finish on shutdown")
	fs.IntVar(&fv.readTimeout, "read-timeout", config.DefaultReadTimeout, "Read timeout in seconds")
	fs.IntVar(&fv.writeTimeout, "write-timeout", config.DefaultWriteTimeout, "Write timeout in seconds")
	fs.IntVar(&fv.idleTimeout, "idle-timeout", config.DefaultIdleTimeout, "Idle timeout in seconds")
	fs.BoolVar(&fv.metricsEnabled, "metrics-enabled", true, "Expose Prometheus metrics on the control API")
	fs.BoolVar(&fv.setRequestID, "set-request-id", true, "Set a request ID on control API responses")
	fs.StringVar(&fv.logLevel, "log-level", config.DefaultLogLevel, "Log level")
	fs.StringVar(&fv.configFile, "config", "", "Path to a config file")
	fs.BoolVar(&fv.version, "version", false, "Print version information and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\nUsage of %s:\n", version.Info(), fs.Name())
		fs.PrintDefaults()
	}

	return fv
}

var envBindings = map[string]string{
	"serverIp":            "SERVER_IP",
	"serverPort":          "SERVER_PORT",
	"headers":             "HEADERS",
	"controlIp":           "CONTROL_IP",
	"controlPort":         "CONTROL_PORT",
	"autoInit":            "AUTO_INIT",
	"shutdownGracePeriod": "SHUTDOWN_GRACE_PERIOD",
	"readTimeout":         "READ_TIMEOUT",
	"writeTimeout":        "WRITE_TIMEOUT",
	"idleTimeout":         "IDLE_TIMEOUT",
	"metricsEnabled":      "METRICS_ENABLED",
	"setRequestId":        "SET_REQUEST_ID",
	"logLevel":            "LOG_LEVEL",
}

// Load implements ConfigLoader.
func (l *DefaultConfigLoader) Load(args []string) (*config.TranslatedConfig, error) {
	name := "wrapperserver"
	if len(args) > 0 {
		name = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fv := setupFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fv.version {
		return nil, errVersionRequested
	}

	defaults := map[string]interface{}{
		"serverIp":            config.DefaultServerIP,
		"serverPort":          config.DefaultServerPort,
		"headers":             make(map[string]string),
		"controlIp":           config.DefaultControlIP,
		"controlPort":         config.DefaultControlPort,
		"autoInit":            false,
		"shutdownGracePeriod": 0,
		"readTimeout":         config.DefaultReadTimeout,
		"writeTimeout":        config.DefaultWriteTimeout,
		"idleTimeout":         config.DefaultIdleTimeout,
		"metricsEnabled":      true,
		"setRequestId":        true,
		"logLevel":            config.DefaultLogLevel,
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, env := range envBindings {
		v.BindEnv(key, env) //nolint:errcheck
	}

	homeDir := l.HomeDir
	if homeDir == nil {
		homeDir = os.UserHomeDir
	}
	setupConfigPaths(v, fv.configFile, homeDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg config.SourceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	updateConfigFromFlags(&cfg, fs, fv)
	processHeaders(&cfg, fv.headers)

	out := l.Output
	if out == nil {
		out = io.Discard
	}
	cfg.PrintConfig(out)
	if configFile := v.ConfigFileUsed(); configFile != "" {
		fmt.Fprintf(out, "Config File: %s\n", configFile)
	}

	translatedConfig, err := cfg.NewTranslatedConfiguration()
	if err != nil {
		return nil, fmt.Errorf("failed to translate configuration: %w", err)
	}

	return translatedConfig, nil
}

func setupConfigPaths(v *viper.Viper, configFile string, homeDir func() (string, error)) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		return
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/wrapperserver")
	if home, err := homeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".wrapperserver"))
	}
	v.AddConfigPath(".")
}

// updateConfigFromFlags lets flags given on the command line win over
// environment and config file values.
func updateConfigFromFlags(cfg *config.SourceConfig, fs *flag.FlagSet, fv *FlagVars) {
	if fs.Changed("server-ip") {
		cfg.ServerIP = fv.serverIP
	}
	if fs.Changed("server-port") {
		cfg.ServerPort = fv.serverPort
	}
	if fs.Changed("control-ip") {
		cfg.ControlIP = fv.controlIP
	}
	if fs.Changed("control-port") {
		cfg.ControlPort = fv.controlPort
	}
	if fs.Changed("auto-init") {
		cfg.AutoInit = fv.autoInit
	}
	if fs.Changed("shutdown-grace-period") {
		cfg.ShutdownGracePeriod = fv.shutdownGracePeriod
	}
	if fs.Changed("read-timeout") {
		cfg.ReadTimeout = fv.readTimeout
	}
	if fs.Changed("write-timeout") {
		cfg.WriteTimeout = fv.writeTimeout
	}
	if fs.Changed("idle-timeout") {
		cfg.IdleTimeout = fv.idleTimeout
	}
	if fs.Changed("metrics-enabled") {
		cfg.MetricsEnabled = fv.metricsEnabled
	}
	if fs.Changed("set-request-id") {
		cfg.SetRequestID = fv.setRequestID
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}
}

// processHeaders merges "name:value" pairs into cfg.Headers and
// canonicalises every header name.
func processHeaders(cfg *config.SourceConfig, headers []string) {
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string, len(headers))
	}
	for _, item := range headers {
		k, v, found := strings.Cut(item, ":")
		if k = strings.TrimSpace(k); found && k != "" {
			cfg.Headers[k] = strings.TrimSpace(v)
		}
	}

	titleCaser := cases.Title(language.AmericanEnglish)
	processed := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		processed[titleCaser.String(strings.ToLower(strings.TrimSpace(k)))] = strings.TrimSpace(v)
	}
	cfg.Headers = processed
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewApp().Run(ctx); err != nil {
		log.Fatalf("wrapperserver: %v", err)
	}
}
