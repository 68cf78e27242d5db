package main

import (
	"context"
	"errors"
	"fmt"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	golog "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/lane-core/cmd/auctioneerd/audit"
	"github.com/textileio/lane-core/cmd/auctioneerd/auctioneer"
	"github.com/textileio/lane-core/cmd/auctioneerd/eligibility"
	"github.com/textileio/lane-core/cmd/auctioneerd/httpapi"
	"github.com/textileio/lane-core/cmd/common"
	"github.com/textileio/lane-core/finalizer"
	"github.com/textileio/lane-core/msgbroker"
	"github.com/textileio/lane-core/msgbroker/gpubsub"
	"github.com/textileio/lane-core/msgbroker/kafka"
)

var (
	daemonName        = "auctioneerd"
	defaultConfigPath = filepath.Join(os.Getenv("HOME"), "."+daemonName)
	log               = golog.Logger(daemonName)
	v                 = viper.New()
)

func init() {
	def := auctioneer.DefaultConfig()
	flags := []common.Flag{
		{Name: "http-addr", DefValue: ":8080", Description: "HTTP API listen address"},
		{Name: "metrics-addr", DefValue: ":9090", Description: "Prometheus listen address"},
		{Name: "env-file", DefValue: "", Description: "Optional dotenv file loaded before reading envs"},

		{Name: "msgbroker", DefValue: "none", Description: "Message broker backend: none, gpubsub or kafka"},
		{Name: "msgbroker-topic-prefix", DefValue: "", Description: "Topic prefix to use for msg broker topics"},
		{Name: "gpubsub-project-id", DefValue: "", Description: "Google PubSub project id"},
		{Name: "gpubsub-api-key", DefValue: "", Description: "Google PubSub API key"},
		{Name: "gpubsub-subscription", DefValue: daemonName, Description: "Google PubSub subscription name"},
		{Name: "kafka-brokers", DefValue: "", Description: "Kafka broker addresses", Repeatable: true},
		{Name: "kafka-group-id", DefValue: daemonName, Description: "Kafka consumer group id"},

		{Name: "acceptance-window", DefValue: def.AcceptanceWindow, Description: "Time a vendor has to answer an award"},
		{Name: "reminder-marks", DefValue: "12h,2h,30m", Description: "Remaining times at which live awards are reminded",
			Repeatable: true},
		{Name: "percentage-threshold", DefValue: def.PercentageThreshold.String(),
			Description: "Default premium allowed over the winning bid, as a fraction"},
		{Name: "absolute-threshold", DefValue: def.AbsoluteThreshold.String(),
			Description: "Premium allowed over the winning bid of SPOT auctions"},
		{Name: "reliability-penalty", DefValue: def.ReliabilityPenalty, Description: "Reliability points lost on decline"},
		{Name: "placement-sla", DefValue: def.PlacementSLA, Description: "Vehicle placement SLA after acceptance"},
		{Name: "spot-placement-sla", DefValue: def.SpotPlacementSLA, Description: "Vehicle placement SLA of spot winners"},
		{Name: "spot-duration", DefValue: def.SpotDuration, Description: "Spot auction duration"},
		{Name: "reauction-duration", DefValue: def.ReauctionDuration, Description: "Default re-auction window"},
		{Name: "tick-interval", DefValue: def.TickInterval, Description: "Scheduler tick interval"},
		{Name: "event-buffer", DefValue: def.EventBuffer, Description: "Live event feed capacity"},
		{Name: "auto-award-on-close", DefValue: def.AutoAwardOnClose, Description: "Award rank 1 when a lane closes"},
		{Name: "min-performance-score", DefValue: eligibility.DefaultConfig.MinPerformanceScore,
			Description: "Minimum vendor performance score"},

		{Name: "log-debug", DefValue: false, Description: "Enable debug level logging"},
		{Name: "log-json", DefValue: false, Description: "Enable structured logging"},
		{Name: "log-levels", DefValue: "", Description: "Per-system level overrides, e.g. auctioneer/queue=debug"},
	}

	cobra.OnInitialize(func() {
		v.SetConfigType("json")
		v.SetConfigName("config")
		v.AddConfigPath(os.Getenv("AUCTIONEER_PATH"))
		v.AddConfigPath(defaultConfigPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				common.CheckErrf("reading configuration: %s", err)
			}
		}
	})

	common.CheckErrf("configuring cli: %v", common.ConfigureCLI(v, "AUCTIONEER", flags, rootCmd))
}

var rootCmd = &cobra.Command{
	Use:   daemonName,
	Short: "auctioneerd runs reverse auctions for freight lanes",
	Long:  "auctioneerd runs reverse auctions for freight lanes, awards them and escalates failed placements",
	PersistentPreRun: func(c *cobra.Command, args []string) {
		if path := v.GetString("env-file"); path != "" {
			common.CheckErrf("loading env file: %v", common.LoadEnvFiles(path))
		} else {
			common.CheckErrf("loading env file: %v", common.LoadEnvFiles())
		}
		common.ExpandEnvVars(v, v.AllSettings())
		err := common.ConfigureLogging(v, []string{
			daemonName,
			"auctioneer",
			"auctioneer/queue",
			"auctioneer/audit",
			"auctioneer/eligibility",
			"auctioneer/api",
			"msgbroker/gpubsub",
			"msgbroker/kafka",
		})
		common.CheckErrf("setting log levels: %v", err)
	},
	Run: func(c *cobra.Command, args []string) {
		if file := v.ConfigFileUsed(); file != "" {
			log.Infof("loaded config file: %s", file)
		}
		fin := finalizer.NewFinalizer()

		err := common.SetupInstrumentation(v.GetString("metrics-addr"))
		common.CheckErrf("booting instrumentation: %v", err)

		conf, err := engineConfig(v)
		common.CheckErrf("parsing engine config: %v", err)

		mb, err := newMsgBroker(v)
		common.CheckErrf("creating msg broker: %v", err)
		if mb != nil {
			if cl, ok := mb.(interface{ Close() error }); ok {
				fin.Add(cl)
			}
			err = msgbroker.RegisterHandlers(mb, notificationLogger{}, msgbroker.WithGroupID(daemonName+"-notifications"))
			common.CheckErrf("registering msg broker handlers: %v", err)
		}

		store := dssync.MutexWrap(ds.NewMapDatastore())
		fin.Add(store)

		vendors := eligibility.NewDirectory(eligibility.Config{
			MinPerformanceScore: v.GetInt("min-performance-score"),
		})
		lib, err := auctioneer.New(conf, clock.New(), vendors, audit.New(store), mb)
		common.CheckErrf("creating auctioneer: %v", err)
		fin.Add(lib)
		lib.Start()

		server, err := httpapi.NewServer(v.GetString("http-addr"), lib)
		common.CheckErrf("starting http api: %v", err)
		fin.AddFn(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				log.Errorf("shutting down http server: %s", err)
			}
		})

		common.HandleInterrupt(func() {
			common.CheckErr(fin.Cleanupf("closing service: %v", nil))
		})
	},
}

func engineConfig(v *viper.Viper) (auctioneer.Config, error) {
	conf := auctioneer.DefaultConfig()
	conf.AcceptanceWindow = v.GetDuration("acceptance-window")
	conf.ReliabilityPenalty = v.GetInt("reliability-penalty")
	conf.PlacementSLA = v.GetDuration("placement-sla")
	conf.SpotPlacementSLA = v.GetDuration("spot-placement-sla")
	conf.SpotDuration = v.GetDuration("spot-duration")
	conf.ReauctionDuration = v.GetDuration("reauction-duration")
	conf.TickInterval = v.GetDuration("tick-interval")
	conf.EventBuffer = v.GetInt("event-buffer")
	conf.AutoAwardOnClose = v.GetBool("auto-award-on-close")

	var err error
	if conf.PercentageThreshold, err = decimal.NewFromString(v.GetString("percentage-threshold")); err != nil {
		return auctioneer.Config{}, fmt.Errorf("parsing percentage threshold: %s", err)
	}
	if conf.AbsoluteThreshold, err = decimal.NewFromString(v.GetString("absolute-threshold")); err != nil {
		return auctioneer.Config{}, fmt.Errorf("parsing absolute threshold: %s", err)
	}
	conf.ReminderMarks = nil
	for _, s := range common.ParseStringSlice(v, "reminder-marks") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return auctioneer.Config{}, fmt.Errorf("parsing reminder mark %q: %s", s, err)
		}
		conf.ReminderMarks = append(conf.ReminderMarks, d)
	}
	return conf, conf.Validate()
}

func newMsgBroker(v *viper.Viper) (msgbroker.MsgBroker, error) {
	prefix := v.GetString("msgbroker-topic-prefix")
	switch name := v.GetString("msgbroker"); name {
	case "", "none":
		log.Info("message broker disabled, live events stay in process")
		return nil, nil
	case "gpubsub":
		return gpubsub.New(
			v.GetString("gpubsub-project-id"),
			v.GetString("gpubsub-api-key"),
			prefix,
			v.GetString("gpubsub-subscription"))
	case "kafka":
		return kafka.New(common.ParseStringSlice(v, "kafka-brokers"), prefix, v.GetString("kafka-group-id"))
	default:
		return nil, fmt.Errorf("unknown message broker %q", name)
	}
}

func main() {
	common.CheckErr(rootCmd.Execute())
}
