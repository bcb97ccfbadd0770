package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"defiwatch-telegram-bot/config"
	"defiwatch-telegram-bot/internal/api"
	"defiwatch-telegram-bot/internal/cache"
	"defiwatch-telegram-bot/internal/database"
	"defiwatch-telegram-bot/internal/monitor"
	"defiwatch-telegram-bot/internal/ratelimit"
	"defiwatch-telegram-bot/internal/subgraph"
	"defiwatch-telegram-bot/internal/telegram"
	"defiwatch-telegram-bot/lib/translation"

	"github.com/leonelquinteros/gotext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

type ServiceMetrics struct {
	AlertsEvaluated    prometheus.Counter
	AlertsFired        prometheus.Counter
	EvaluationFailures prometheus.Counter
	CooldownSuppressed prometheus.Counter
}

var (
	metrics = NewServiceMetrics()
)

func init() {
	config.InitConfig()
	setupLogging()
}

func NewServiceMetrics() *ServiceMetrics {
	metrics := &ServiceMetrics{
		AlertsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "defiwatch",
			Subsystem: "monitor",
			Name:      "alerts_evaluated",
			Help:      "The total number of alert evaluations",
		}),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "defiwatch",
			Subsystem: "monitor",
			Name:      "alerts_fired",
			Help:      "The total number of alerts that fired a notification",
		}),
		EvaluationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "defiwatch",
			Subsystem: "monitor",
			Name:      "evaluation_failures",
			Help:      "The total number of per-alert evaluation failures",
		}),
		CooldownSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "defiwatch",
			Subsystem: "monitor",
			Name:      "cooldown_suppressed",
			Help:      "The total number of satisfied alerts suppressed by cooldown",
		}),
	}

	prometheus.MustRegister(metrics.AlertsEvaluated)
	prometheus.MustRegister(metrics.AlertsFired)
	prometheus.MustRegister(metrics.EvaluationFailures)
	prometheus.MustRegister(metrics.CooldownSuppressed)

	return metrics
}

func main() {
	gotext.Configure("locales", strings.ToLower(config.GetString("lang")), "default")
	log.Debugf("Active language: %s", translation.GetLanguage())

	err := database.InitDB(config.GetString("db_path"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()

	LoadMetricsFromDB()

	alertStore := database.NewAlertStore(database.DB)

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:   config.GetString("telegram_bot_token"),
		Debug:   config.GetBool("debug"),
		Timeout: time.Duration(config.GetInt("fetch_timeout_seconds")) * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	limiter := ratelimit.New()
	responseCache := cache.New()
	subgraphClient := subgraph.NewClient(subgraph.ClientConfig{
		BaseURL:      config.GetString("subgraph_url"),
		CacheTTL:     time.Duration(config.GetInt("subgraph_cache_ttl_seconds")) * time.Second,
		FetchTimeout: time.Duration(config.GetInt("fetch_timeout_seconds")) * time.Second,
		RateLimit:    config.GetInt("subgraph_rate_limit"),
		RateWindow:   time.Duration(config.GetInt("subgraph_rate_window_seconds")) * time.Second,
	}, responseCache, limiter)
	positions := subgraph.NewPositions(subgraphClient, config.GetString("subgraph_scope"))

	monitorService := monitor.NewService(alertStore, positions, bot, monitor.Config{
		Interval:     time.Duration(config.GetInt("monitor_interval_seconds")) * time.Second,
		FetchTimeout: time.Duration(config.GetInt("fetch_timeout_seconds")) * time.Second,
		OnCycle:      recordCycle,
	})
	monitorService.Start()

	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "defiwatch",
		Subsystem: "monitor",
		Name:      "running",
		Help:      "Whether the alert monitor loop is currently running",
	}, func() float64 {
		if monitorService.IsActive() {
			return 1
		}
		return 0
	}))

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			SaveMetricsToDB()
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		monitorService.Stop()
		SaveMetricsToDB()
		log.Println("Metrics saved, shutting down...")
		os.Exit(0)
	}()

	router := api.NewRouter(&api.Server{
		Monitor:  monitorService,
		Alerts:   alertStore,
		Subgraph: subgraphClient,
		Bot:      bot,
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", healthCheckHandler)

	port := config.GetInt("http_port")
	log.Infof("Launching API, metrics and health endpoint on :%d", port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting defiwatch service...")
}

func recordCycle(report monitor.CycleReport) {
	metrics.AlertsEvaluated.Add(float64(report.Evaluated))
	metrics.AlertsFired.Add(float64(report.Fired))
	metrics.CooldownSuppressed.Add(float64(report.Cooldown))
	metrics.EvaluationFailures.Add(float64(len(report.Errors)))
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func LoadMetricsFromDB() {
	alertsEvaluated, _ := database.GetMetric("alerts_evaluated")
	alertsFired, _ := database.GetMetric("alerts_fired")
	evaluationFailures, _ := database.GetMetric("evaluation_failures")
	cooldownSuppressed, _ := database.GetMetric("cooldown_suppressed")

	metrics.AlertsEvaluated.Add(alertsEvaluated)
	metrics.AlertsFired.Add(alertsFired)
	metrics.EvaluationFailures.Add(evaluationFailures)
	metrics.CooldownSuppressed.Add(cooldownSuppressed)

	log.Println("Metrics loaded from database.")
}

func SaveMetricsToDB() {
	database.SaveMetric("alerts_evaluated", GetMetricValue(metrics.AlertsEvaluated))
	database.SaveMetric("alerts_fired", GetMetricValue(metrics.AlertsFired))
	database.SaveMetric("evaluation_failures", GetMetricValue(metrics.EvaluationFailures))
	database.SaveMetric("cooldown_suppressed", GetMetricValue(metrics.CooldownSuppressed))

	log.Println("Metrics saved to database.")
}

func GetMetricValue(metric prometheus.Collector) float64 {
	var metricValue float64
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Printf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		metricValue = metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		metricValue = metricProto.Gauge.GetValue()
	}
	return metricValue
}
