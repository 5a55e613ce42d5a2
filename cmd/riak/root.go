package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/riakpb/riakpb"
	"github.com/riakpb/riakpb/promexporter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const Version = "0.2.0"

// app is the state shared by every command of one invocation.
type app struct {
	out    io.Writer
	v      *viper.Viper
	logger *zap.Logger
	client *riakpb.Client

	root        *cobra.Command
	stopMetrics context.CancelFunc
}

func newApp(out io.Writer) *app {
	a := &app{out: out, v: viper.New()}

	root := &cobra.Command{
		Use:   "riak",
		Short: "Riak protocol-buffers client",
		Long: fmt.Sprintf(`riak (v%s)

Talks to one or more Riak nodes over the protocol-buffers interface:
objects, buckets, bucket properties and map-reduce jobs.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.String("config", "", wrap("Config file (yaml, json or toml) with the same keys as the flags"))
	flags.String("nodes", riakpb.DefaultAddress, wrap("Comma separated host:port list of the nodes to talk to"))
	flags.Duration("timeout", 5*time.Second, wrap("Timeout of every exchange with a node"))
	flags.String("client-id", "", wrap("Client identity sent on every connection. Requested from the node when empty"))
	flags.Int32("pool-size", riakpb.DefaultMaxSize, wrap("Maximum connections per node"))
	flags.String("pool", "channel", wrap("Connection pool implementation (channel, puddle)"))
	flags.Bool("circuit-breaker", false, wrap("Stop sending to a node after repeated failures"))
	flags.String("log-level", "warn", wrap("Log level (debug, info, warn, error)"))
	flags.String("log-format", "console", wrap("Log format (console, json)"))
	flags.StringP("output", "o", "text", wrap("Output format (text, json, yaml)"))
	flags.String("metrics-addr", "", wrap("Serve Prometheus metrics on this address while the command runs"))

	root.AddCommand(
		a.versionCmd(),
		a.pingCmd(),
		a.infoCmd(),
		a.bucketsCmd(),
		a.keysCmd(),
		a.getCmd(),
		a.putCmd(),
		a.deleteCmd(),
		a.propsCmd(),
		a.setPropsCmd(),
		a.mapredCmd(),
		a.loadCmd(),
	)
	a.root = root
	return a
}

// execute runs the command line args and releases the client even when
// the command fails.
func (a *app) execute(args []string) error {
	defer a.teardown()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

// setup loads the configuration and connects the client.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	a.v.SetEnvPrefix("riak")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	logger, err := newLogger(a.v.GetString("log-level"), a.v.GetString("log-format"))
	if err != nil {
		return err
	}
	a.logger = logger

	if cmd.Name() == "version" {
		return nil
	}

	config, err := a.clientConfig()
	if err != nil {
		return err
	}
	client, err := riakpb.NewClient(riakpb.NewStaticServers(splitList(a.v.GetString("nodes"))...), config)
	if err != nil {
		return err
	}
	a.client = client

	if addr := a.v.GetString("metrics-addr"); addr != "" {
		if err := a.serveMetrics(addr); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) teardown() {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) clientConfig() (riakpb.Config, error) {
	config := riakpb.Config{
		MaxSize:  a.v.GetInt32("pool-size"),
		Timeout:  a.v.GetDuration("timeout"),
		ClientID: a.v.GetString("client-id"),
		Logger:   a.logger,
	}

	switch pool := a.v.GetString("pool"); pool {
	case "", "channel":
		config.NewPool = riakpb.NewChannelPool
	case "puddle":
		config.NewPool = riakpb.NewPuddlePool
	default:
		return config, fmt.Errorf("unknown pool %q", pool)
	}

	if a.v.GetBool("circuit-breaker") {
		config.NewCircuitBreaker = riakpb.NewCircuitBreakerConfig(3, 10*time.Second, 5*time.Second, a.logger)
	}
	return config, nil
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stopMetrics = cancel

	exporter := promexporter.NewExporter(a.client)
	go func() {
		if err := exporter.Serve(ctx, ln); err != nil {
			a.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	var config zap.Config
	if format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(l)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	return config.Build()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// wrap folds help text so flag descriptions stay readable in a terminal.
func wrap(text string) string {
	const width = 50

	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
