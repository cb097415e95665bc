package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Johndevils/Mongodb-bot/bot"
	"github.com/Johndevils/Mongodb-bot/config"
	"github.com/Johndevils/Mongodb-bot/errors"
	"github.com/Johndevils/Mongodb-bot/log"
	"github.com/Johndevils/Mongodb-bot/metrics"
	"github.com/Johndevils/Mongodb-bot/transfer"
)

// Constants for server configuration.
const (
	ServerReadTimeout       = 30 * time.Second
	ServerReadHeaderTimeout = 3 * time.Second
	MaxRequestSize          = humanize.MiByte
	ServerResponseTimeout   = 5 * time.Second
)

// contextKey is a type for context keys used in this package.
type contextKey string

// configContextKey is the context key for storing *config.Config.
const configContextKey contextKey = "config"

var (
	Version   = "v1.0.0" //nolint:gochecknoglobals
	GitCommit = ""       //nolint:gochecknoglobals
	BuildTime = ""       //nolint:gochecknoglobals
)

func buildVersion() string {
	return Version + " " + GitCommit + " " + BuildTime
}

//nolint:gochecknoglobals
var rootCmd = &cobra.Command{
	Use:   "mongodb-transfer-bot",
	Short: "Telegram-driven MongoDB collection transfer tool",

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cmd)
		if err != nil {
			return errors.Wrap(err, "load config")
		}

		logLevel, err := zerolog.ParseLevel(cfg.Log.Level)
		if err != nil {
			logLevel = zerolog.InfoLevel
		}

		lg := log.InitGlobals(logLevel, cfg.Log.JSON, cfg.Log.NoColor)
		ctx := lg.WithContext(context.Background())
		ctx = context.WithValue(ctx, configContextKey, cfg)
		cmd.SetContext(ctx)

		return nil
	},

	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.CalledAs() != "mongodb-transfer-bot" || cmd.ArgsLenAtDash() != -1 {
			return nil
		}

		cfg := cmd.Context().Value(configContextKey).(*config.Config) //nolint:forcetypeassert

		log.Ctx(cmd.Context()).Info("MongoDB Transfer Bot " + buildVersion())

		return runServer(cmd.Context(), cfg)
	},
}

//nolint:gochecknoglobals
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version info",

	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("Version:   " + Version)
		fmt.Println("GitCommit: " + GitCommit)
		fmt.Println("BuildTime: " + BuildTime)
		fmt.Println("GoVersion: " + runtime.Version())
		fmt.Println("Platform:  " + runtime.GOOS + "/" + runtime.GOARCH)
	},
}

//nolint:gochecknoglobals
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of the current transfer",

	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := cmd.Context().Value(configContextKey).(*config.Config) //nolint:forcetypeassert

		return NewClient(cfg.Port).Status(cmd.Context())
	},
}

//nolint:gochecknoglobals
var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Start a transfer on a running server",

	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := cmd.Context().Value(configContextKey).(*config.Config) //nolint:forcetypeassert

		req := transferRequest{}
		req.SourceURI, _ = cmd.Flags().GetString("source")
		req.TargetURI, _ = cmd.Flags().GetString("target")
		req.SourceCollection, _ = cmd.Flags().GetString("source-collection")
		req.TargetCollection, _ = cmd.Flags().GetString("target-collection")
		req.BatchSize, _ = cmd.Flags().GetInt("transfer-batch-size")
		req.Policy, _ = cmd.Flags().GetString("policy")

		if req.TargetCollection == "" {
			req.TargetCollection = req.SourceCollection
		}

		return NewClient(cfg.Port).Transfer(cmd.Context(), req)
	},
}

//nolint:gochecknoglobals
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is up",

	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := cmd.Context().Value(configContextKey).(*config.Config) //nolint:forcetypeassert

		return NewClient(cfg.Port).Health(cmd.Context())
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output log in JSON format")
	rootCmd.PersistentFlags().Bool("log-no-color", false, "Disable log color")

	rootCmd.PersistentFlags().Int("port", config.DefaultServerPort, "Port number")

	rootCmd.Flags().String("telegram-token", "", "Telegram bot token")
	rootCmd.Flags().Int64("admin-chat-id", 0, "Chat notified when the bot starts")

	rootCmd.Flags().Int("batch-size", config.DefaultBatchSize,
		"Number of documents per bulk write")
	rootCmd.Flags().String("duplicate-policy", config.DefaultDuplicatePolicy,
		"How to handle documents that already exist on the target (skip|overwrite|fail)")
	rootCmd.Flags().String("transfer-timeout", config.DefaultTransferTimeout.String(),
		"End-to-end time budget for one transfer (e.g. 30m)")
	rootCmd.Flags().String("connect-timeout", config.DefaultConnectTimeout.String(),
		"Timeout for the connection liveness probe")

	transferCmd.Flags().String("source", "", "MongoDB connection string for the source")
	transferCmd.Flags().String("target", "", "MongoDB connection string for the target")
	transferCmd.Flags().String("source-collection", "", "Collection to read")
	transferCmd.Flags().String("target-collection", "",
		"Collection to write (defaults to the source collection)")
	transferCmd.Flags().Int("transfer-batch-size", 0, "Documents per bulk write (0 = server default)")
	transferCmd.Flags().String("policy", "", "Duplicate policy (skip|overwrite|fail)")

	rootCmd.AddCommand(
		versionCmd,
		statusCmd,
		transferCmd,
		healthCmd,
	)

	err := rootCmd.Execute()
	if err != nil {
		zerolog.Ctx(context.Background()).Fatal().Err(err).Msg("")
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	err := config.Validate(cfg)
	if err != nil {
		return errors.Wrap(err, "validate options")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, os.Kill)
	defer stop()

	srv := createServer(ctx, cfg)

	if cfg.Telegram.Token != "" {
		tgBot, err := bot.New(cfg.Telegram, srv)
		if err != nil {
			return errors.Wrap(err, "telegram bot")
		}

		go func() {
			err := tgBot.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.New("bot").Error(err, "Bot stopped")
			}
		}()
	} else {
		log.Ctx(ctx).Warn("No telegram token configured, HTTP API only")
	}

	go func() {
		<-ctx.Done()

		os.Exit(0)
	}()

	port := cfg.Port
	if port == 0 {
		port = config.DefaultServerPort
	}

	addr := fmt.Sprintf(":%d", port)
	httpServer := http.Server{
		Addr:    addr,
		Handler: srv.Handler(),

		ReadTimeout:       ServerReadTimeout,
		ReadHeaderTimeout: ServerReadHeaderTimeout,
	}

	log.Ctx(ctx).Infof("Starting HTTP server at http://localhost:%d", port)

	return httpServer.ListenAndServe() //nolint:wrapcheck
}

// Server owns the HTTP surface and runs transfers one at a time. It also
// backs the Telegram bot as its bot.Runner.
type Server struct {
	// Cfg holds the configuration.
	Cfg *config.Config

	// ctx outlives individual HTTP requests so async transfers are not
	// cut short when the triggering request returns.
	ctx context.Context

	// promRegistry is the Prometheus registry for metrics.
	promRegistry *prometheus.Registry

	startTime time.Time

	running atomic.Bool
	current atomic.Pointer[transfer.Transfer]
}

func createServer(ctx context.Context, cfg *config.Config) *Server {
	promRegistry := prometheus.NewRegistry()
	metrics.Init(promRegistry)

	return &Server{
		Cfg:          cfg,
		ctx:          ctx,
		promRegistry: promRegistry,
		startTime:    time.Now(),
	}
}

// Run executes one transfer, refusing to overlap with another. It
// implements bot.Runner.
func (s *Server) Run(
	ctx context.Context,
	req transfer.Request,
	reporter transfer.ProgressReporter,
) (*transfer.Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, errors.New("a transfer is already running")
	}
	defer s.running.Store(false)

	reporters := transfer.MultiReporter{transfer.NewLogReporter()}
	if reporter != nil {
		reporters = append(reporters, reporter)
	}

	tr := transfer.New(reporters, s.Cfg.Transfer)
	s.current.Store(tr)

	return tr.Run(ctx, req) //nolint:wrapcheck
}

// Status returns the progress of the most recent transfer. It implements
// bot.Runner.
func (s *Server) Status() (transfer.Progress, bool) {
	tr := s.current.Load()
	if tr == nil {
		return transfer.Progress{}, false
	}

	return tr.Progress(), true
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/status", s.HandleStatus)
	mux.HandleFunc("/transfer", s.HandleTransfer)
	mux.Handle("/metrics", s.HandleMetrics())

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			log.New("http").Trace(r.Method + " " + r.URL.String())
		} else {
			log.New("http").Info(r.Method + " " + r.URL.String())
		}
		mux.ServeHTTP(w, r)
	})
}

// HandleHealth handles the /health endpoint.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w,
			http.StatusText(http.StatusMethodNotAllowed),
			http.StatusMethodNotAllowed)

		return
	}

	writeResponse(w, healthResponse{
		Ok:            true,
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// HandleStatus handles the /status endpoint.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w,
			http.StatusText(http.StatusMethodNotAllowed),
			http.StatusMethodNotAllowed)

		return
	}

	p, ok := s.Status()
	if !ok {
		writeResponse(w, statusResponse{Ok: true, State: string(transfer.StateIdle)})

		return
	}

	writeResponse(w, statusResponse{
		Ok:             true,
		State:          string(p.State),
		Read:           p.Read,
		Written:        p.Written,
		Skipped:        p.Skipped,
		Failed:         p.Failed,
		ElapsedSeconds: int64(p.Elapsed.Seconds()),
	})
}

// HandleTransfer handles the /transfer endpoint. The transfer runs in the
// background; poll /status for its outcome.
func (s *Server) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w,
			http.StatusText(http.StatusMethodNotAllowed),
			http.StatusMethodNotAllowed)

		return
	}

	if r.ContentLength > MaxRequestSize {
		http.Error(w,
			http.StatusText(http.StatusRequestEntityTooLarge),
			http.StatusRequestEntityTooLarge)

		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w,
			http.StatusText(http.StatusInternalServerError),
			http.StatusInternalServerError)

		return
	}

	var params transferRequest

	err = json.Unmarshal(data, &params)
	if err != nil {
		http.Error(w,
			http.StatusText(http.StatusBadRequest),
			http.StatusBadRequest)

		return
	}

	req := transfer.Request{
		SourceURI:        params.SourceURI,
		TargetURI:        params.TargetURI,
		SourceCollection: params.SourceCollection,
		TargetCollection: params.TargetCollection,
		BatchSize:        params.BatchSize,
		Policy:           transfer.Policy(params.Policy),
		Timeout:          time.Duration(params.TimeoutSeconds) * time.Second,
	}

	// fail fast on requests that could never start
	if err := req.WithDefaults(s.Cfg.Transfer).Validate(); err != nil {
		writeResponse(w, transferResponse{Err: err.Error()})

		return
	}

	if s.running.Load() {
		writeResponse(w, transferResponse{Err: "a transfer is already running"})

		return
	}

	go func() {
		_, err := s.Run(s.ctx, req, nil)
		if err != nil {
			log.New("http").Error(err, "Transfer")
		}
	}()

	writeResponse(w, transferResponse{Ok: true, State: string(transfer.StateConnecting)})
}

// HandleMetrics handles the /metrics endpoint.
func (s *Server) HandleMetrics() http.Handler {
	return promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{})
}

// writeResponse writes the response as JSON to the ResponseWriter.
func writeResponse[T any](w http.ResponseWriter, resp T) {
	err := json.NewEncoder(w).Encode(resp)
	if err != nil {
		http.Error(w,
			http.StatusText(http.StatusInternalServerError),
			http.StatusInternalServerError)
	}
}

// transferRequest represents the request body for the /transfer endpoint.
type transferRequest struct {
	// SourceURI is the connection string of the deployment to read from.
	SourceURI string `json:"sourceURI"`
	// TargetURI is the connection string of the deployment to write to.
	TargetURI string `json:"targetURI"`
	// SourceCollection is the collection to read.
	SourceCollection string `json:"sourceCollection"`
	// TargetCollection is the collection to write.
	TargetCollection string `json:"targetCollection"`

	// BatchSize overrides the configured batch size when non-zero.
	BatchSize int `json:"batchSize,omitempty"`
	// Policy overrides the configured duplicate policy when set.
	Policy string `json:"policy,omitempty"`
	// TimeoutSeconds overrides the configured transfer timeout when non-zero.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

// transferResponse represents the response body for the /transfer endpoint.
type transferResponse struct {
	// Ok indicates if the transfer was accepted.
	Ok bool `json:"ok"`
	// State is the transfer state at the time of the response.
	State string `json:"state,omitempty"`
	// Err is the error message if the transfer was rejected.
	Err string `json:"error,omitempty"`
}

// statusResponse represents the response body for the /status endpoint.
type statusResponse struct {
	// Ok indicates if the request was handled.
	Ok bool `json:"ok"`
	// Err is the error message if the request failed.
	Err string `json:"error,omitempty"`

	// State is the lifecycle state of the most recent transfer.
	State string `json:"state"`

	// Read is the number of documents read from the source.
	Read int64 `json:"read"`
	// Written is the number of documents written to the target.
	Written int64 `json:"written"`
	// Skipped is the number of documents skipped as duplicates.
	Skipped int64 `json:"skipped"`
	// Failed is the number of documents that could not be written.
	Failed int64 `json:"failed"`

	// ElapsedSeconds is the transfer's wall-clock running time.
	ElapsedSeconds int64 `json:"elapsedSeconds"`
}

// healthResponse represents the response body for the /health endpoint.
type healthResponse struct {
	// Ok indicates the server is up.
	Ok bool `json:"ok"`
	// Version is the server build version.
	Version string `json:"version"`
	// UptimeSeconds is how long the server has been running.
	UptimeSeconds int64 `json:"uptimeSeconds"`
}

type BotClient struct {
	port int
}

func NewClient(port int) BotClient {
	return BotClient{port: port}
}

// Status sends a request to get the status of the current transfer.
func (c BotClient) Status(ctx context.Context) error {
	return doClientRequest[statusResponse](ctx, c.port, http.MethodGet, "status", nil)
}

// Transfer sends a request to start a transfer.
func (c BotClient) Transfer(ctx context.Context, req transferRequest) error {
	return doClientRequest[transferResponse](ctx, c.port, http.MethodPost, "transfer", req)
}

// Health sends a request to check that the server is up.
func (c BotClient) Health(ctx context.Context) error {
	return doClientRequest[healthResponse](ctx, c.port, http.MethodGet, "health", nil)
}

func doClientRequest[T any](ctx context.Context, port int, method, path string, body any) error {
	url := fmt.Sprintf("http://localhost:%d/%s", port, path)

	bodyData := []byte("")
	if body != nil {
		var err error
		bodyData, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyData))
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	log.Ctx(ctx).Debugf("%s /%s %s", method, path, string(bodyData))

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request")
	}
	defer res.Body.Close()

	var resp T

	err = json.NewDecoder(res.Body).Decode(&resp)
	if err != nil {
		return errors.Wrap(err, "decode response")
	}

	j := json.NewEncoder(os.Stdout)
	j.SetIndent("", "  ")
	err = j.Encode(resp)

	return errors.Wrap(err, "print response")
}
