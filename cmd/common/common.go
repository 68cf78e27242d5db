package common

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	logger "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/lane-core/logging"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/sdk/metric/aggregator/histogram"
	controller "go.opentelemetry.io/otel/sdk/metric/controller/basic"
	"go.opentelemetry.io/otel/sdk/metric/export/aggregation"
	processor "go.opentelemetry.io/otel/sdk/metric/processor/basic"
	selector "go.opentelemetry.io/otel/sdk/metric/selector/simple"
)

// Flag describes a configuration flag.
type Flag struct {
	Name        string
	DefValue    interface{}
	Description string
	Repeatable  bool
}

// ConfigureCLI registers flags on rootCmd and binds each of them to v, which
// also reads them from envs named PREFIX_FLAG_NAME.
func ConfigureCLI(v *viper.Viper, envPrefix string, flags []Flag, rootCmd *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	pf := rootCmd.Flags()
	for _, f := range flags {
		switch def := f.DefValue.(type) {
		case string:
			if f.Repeatable {
				pf.StringSlice(f.Name, []string{def}, f.Description)
			} else {
				pf.String(f.Name, def, f.Description)
			}
		case bool:
			pf.Bool(f.Name, def, f.Description)
		case int:
			pf.Int(f.Name, def, f.Description)
		case int64:
			pf.Int64(f.Name, def, f.Description)
		case time.Duration:
			pf.Duration(f.Name, def, f.Description)
		default:
			return fmt.Errorf("flag %s has unsupported type %T", f.Name, f.DefValue)
		}
		v.SetDefault(f.Name, f.DefValue)
		if err := v.BindPFlag(f.Name, pf.Lookup(f.Name)); err != nil {
			return fmt.Errorf("binding flag %s: %s", f.Name, err)
		}
	}
	return nil
}

// LoadEnvFiles loads env vars from the given dotenv files, or from .env in the
// working directory if none is given. Missing files are ignored; vars already
// set in the environment win.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %s", p, err)
		}
	}
	return nil
}

// ExpandEnvVars expands env vars present in the config.
func ExpandEnvVars(v *viper.Viper, settings map[string]interface{}) {
	for name, val := range settings {
		if str, ok := val.(string); ok {
			v.Set(name, os.ExpandEnv(str))
		}
	}
}

// ConfigureLogging sets up the output format from log-json and the level of
// systems from log-debug. Overrides in log-levels ("sys=level,...") are applied
// last. An empty systems list targets every logger.
func ConfigureLogging(v *viper.Viper, systems []string) error {
	if v.GetBool("log-json") {
		logger.SetupLogging(logger.Config{
			Format: logger.JSONOutput,
			Stdout: true,
		})
	}

	level := logger.LevelInfo
	if v.GetBool("log-debug") {
		level = logger.LevelDebug
	}
	levels := map[string]logger.LogLevel{}
	if len(systems) == 0 {
		levels["*"] = level
	}
	for _, sys := range systems {
		levels[sys] = level
	}

	overrides, err := logging.ParseLevels(v.GetString("log-levels"))
	if err != nil {
		return fmt.Errorf("parsing log-levels: %s", err)
	}
	for sys, l := range overrides {
		levels[sys] = l
	}
	if err := logging.SetLogLevels(levels); err != nil {
		return fmt.Errorf("set log levels: %s", err)
	}
	return nil
}

// ParseStringSlice returns a single slice of values that may have been set by either repeating
// a flag or using comma seperation in a single flag.
// This is used to enable repeated flags as well as env vars that can't be repeated.
func ParseStringSlice(v *viper.Viper, key string) []string {
	var vals []string
	for _, val := range v.GetStringSlice(key) {
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				vals = append(vals, part)
			}
		}
	}
	return vals
}

// SetupInstrumentation starts a metrics endpoint.
func SetupInstrumentation(prometheusAddr string) error {
	config := prometheus.Config{
		// tick latency in micros
		DefaultHistogramBoundaries: []float64{1, 10, 100, 1000, 10000, 100000},
	}
	c := controller.New(
		processor.NewFactory(
			selector.NewWithHistogramDistribution(
				histogram.WithExplicitBoundaries(config.DefaultHistogramBoundaries),
			),
			aggregation.CumulativeTemporalitySelector(),
			processor.WithMemory(true),
		),
	)
	exporter, err := prometheus.New(config, c)
	if err != nil {
		return fmt.Errorf("failed to initialize prometheus exporter %v", err)
	}
	global.SetMeterProvider(exporter.MeterProvider())
	http.HandleFunc("/metrics", exporter.ServeHTTP)
	go func() {
		_ = http.ListenAndServe(prometheusAddr, nil)
	}()

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return fmt.Errorf("starting Go runtime metrics: %s", err)
	}

	return nil
}

// RecoverHandler logs and answers 500 on panics while serving h.
func RecoverHandler(log *logger.ZapEventLogger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorf("panic serving %s %s: %s", r.Method, r.URL.Path, rec)
				http.Error(w, fmt.Sprintf("panic: %s", rec), http.StatusInternalServerError)
			}
		}()
		h.ServeHTTP(w, r)
	})
}

// CheckErr ends in a fatal log if err is not nil.
func CheckErr(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// CheckErrf ends in a fatal log if err is not nil.
func CheckErrf(format string, err error) {
	if err != nil {
		log.Fatalf(format, err)
	}
}

// HandleInterrupt blocks until SIGINT or SIGTERM, then runs cleanup and exits.
// A second signal while cleaning up forces the exit.
func HandleInterrupt(cleanup func()) {
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	fmt.Printf("Received %s, stopping... (signal again to force)\n", sig)
	go func() {
		<-quit
		os.Exit(2)
	}()
	cleanup()
	os.Exit(0)
}
