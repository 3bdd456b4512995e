package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bakarr/livebridge/pkg/livebridge"
	"github.com/bakarr/livebridge/pkg/livebridge/config"
	"github.com/bakarr/livebridge/pkg/livebridge/events"
	"github.com/bakarr/livebridge/pkg/livebridge/jqfilter"
	"github.com/bakarr/livebridge/pkg/livebridge/transport"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [server-url]",
	Short: "Watch a Bakarr server's event stream",
	Long: `Watch connects to a Bakarr server and prints the notifications its events
produce. With --jq, matching envelopes are printed as JSON as well.

The server URL comes from the positional argument or from a --config file.

Examples:
  bakarr-watch watch http://localhost:8989/api/events
  bakarr-watch watch --config bakarr.hcl
  bakarr-watch watch http://localhost:8989/api/events --transport websocket
  bakarr-watch watch http://localhost:8989/api/events --jq '.payload.downloads'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var (
	configPath    string
	transportName string
	retryInterval time.Duration
	apiKey        string
	jqExpression  string
	minLevel      string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&configPath, "config", "c", "", "HCL configuration file")
	watchCmd.Flags().StringVarP(&transportName, "transport", "t", "", "transport: sse or websocket")
	watchCmd.Flags().DurationVar(&retryInterval, "retry-interval", 0, "delay between reconnection attempts")
	watchCmd.Flags().StringVar(&apiKey, "api-key", "", "API key sent as a Bearer token")
	watchCmd.Flags().StringVar(&jqExpression, "jq", "", "jq expression; matching envelopes are printed as JSON")
	watchCmd.Flags().StringVar(&minLevel, "min-level", "", "lowest notification level to print (info, success, warning, error)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	settings, err := watchSettings(args)
	if err != nil {
		return err
	}

	builder := livebridge.New().
		WithDialer(settings.dialer).
		WithNotificationSink(livebridge.NewMinLevelSink(printingSink{}, settings.minLevel)).
		WithLogger(logger).
		WithRetryInterval(settings.retryInterval).
		WithStateListener(func(old, next transport.State) {
			logger.Info("Connection state changed",
				zap.Stringer("from", old),
				zap.Stringer("to", next))
		})

	if settings.filter != nil {
		builder = builder.WithObserver(printFiltered(settings.filter, logger))
	}

	bridge, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	defer bridge.Stop()

	logger.Info("Watching events", zap.String("url", settings.url))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	logger.Debug("Signal received, exiting", zap.String("signal", sig.String()))
	return nil
}

type resolvedSettings struct {
	url           string
	dialer        livebridge.Dialer
	retryInterval time.Duration
	minLevel      events.Level
	filter        *jqfilter.Filter
}

// watchSettings merges the config file (when given) with command-line flags;
// flags win.
func watchSettings(args []string) (*resolvedSettings, error) {
	settings := &resolvedSettings{
		retryInterval: transport.DefaultRetryInterval,
		minLevel:      events.LevelInfo,
	}
	transportChoice := config.TransportSSE
	auth := ""

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		settings.url = cfg.Server.URL
		settings.retryInterval = cfg.RetryInterval()
		settings.minLevel = cfg.MinLevel()
		transportChoice = cfg.Server.Transport
		if cfg.Server.APIKey != "" {
			auth = "Bearer " + cfg.Server.APIKey
		}
	}

	if len(args) > 0 {
		settings.url = args[0]
	}
	if settings.url == "" {
		return nil, fmt.Errorf("a server URL or --config file is required")
	}

	if transportName != "" {
		transportChoice = transportName
	}
	if retryInterval > 0 {
		settings.retryInterval = retryInterval
	}
	if apiKey != "" {
		auth = "Bearer " + apiKey
	}
	if minLevel != "" {
		level := events.Level(minLevel)
		switch level {
		case events.LevelInfo, events.LevelSuccess, events.LevelWarning, events.LevelError:
		default:
			return nil, fmt.Errorf("unknown min-level %q (want info, success, warning or error)", minLevel)
		}
		settings.minLevel = level
	}

	switch transportChoice {
	case config.TransportSSE:
		dialer := transport.NewSSEDialer(settings.url)
		if auth != "" {
			dialer = dialer.WithAuthorization(auth)
		}
		settings.dialer = dialer
	case config.TransportWebSocket:
		dialer := transport.NewWebSocketDialer(settings.url)
		if auth != "" {
			dialer = dialer.WithAuthorization(auth)
		}
		settings.dialer = dialer
	default:
		return nil, fmt.Errorf("unknown transport %q (want %q or %q)",
			transportChoice, config.TransportSSE, config.TransportWebSocket)
	}

	if jqExpression != "" {
		filter, err := jqfilter.New(jqExpression)
		if err != nil {
			return nil, err
		}
		settings.filter = filter
	}

	return settings, nil
}

// printingSink writes notifications to stdout as "[level] message" lines.
type printingSink struct{}

func (printingSink) Notify(ctx context.Context, level events.Level, message string) error {
	_, err := fmt.Printf("[%s] %s\n", level, message)
	return err
}

func printFiltered(filter *jqfilter.Filter, logger *zap.Logger) livebridge.EnvelopeObserver {
	return func(ctx context.Context, env events.Envelope) {
		results, err := filter.Apply(ctx, env)
		if err != nil {
			logger.Warn("jq filter failed", zap.String("kind", env.Kind), zap.Error(err))
			return
		}
		for _, result := range results {
			line, err := json.Marshal(result)
			if err != nil {
				logger.Warn("jq result not serializable", zap.Error(err))
				continue
			}
			fmt.Println(string(line))
		}
	}
}
