package main

/*
blipee-worker — процесс оркестрации агентов.

Подкоманды:

	run      — демон: парк агентов, планировщик, триггер-движок, HITL-свипер
	train    — один цикл планового переобучения моделей
	trigger  — один проход триггер-движка (ручной прогон)

Демон поднимает ops-поверхность на metrics-порту: /metrics, /healthz и
ручные тики планировщика и триггеров для отладки.
*/

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/agent"
	"github.com/blipee-dev/blipee-orchestrator/internal/approval"
	"github.com/blipee-dev/blipee-orchestrator/internal/audit"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
	"github.com/blipee-dev/blipee-orchestrator/internal/knowledge"
	"github.com/blipee-dev/blipee-orchestrator/internal/registry"
	"github.com/blipee-dev/blipee-orchestrator/internal/repository/postgres"
	"github.com/blipee-dev/blipee-orchestrator/internal/scheduler"
	"github.com/blipee-dev/blipee-orchestrator/internal/tools"
	"github.com/blipee-dev/blipee-orchestrator/internal/trigger"
)

func main() {
	root := &cobra.Command{
		Use:           "blipee-worker",
		Short:         "Autonomous agent orchestration worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newTrainCmd(), newTriggerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app — собранный граф зависимостей воркера.
type app struct {
	cfg     *infra.Config
	logger  *zap.Logger
	repo    *postgres.Repo
	rdb     *redis.Client
	reg     *prometheus.Registry
	metrics *infra.Metrics

	trail       *audit.Trail
	knowledge   *knowledge.Store
	classifier  *approval.Classifier
	approvals   *approval.Service
	modelClient *registry.Client
	models      *registry.Service
	toolReg     *tools.Registry
	runtime     *agent.Runtime
	manager     *agent.Manager
	scheduler   *scheduler.Scheduler
	evaluator   *trigger.Evaluator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return nil, err
	}

	// 1. Ресурсы
	repo, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repo.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	// 2. Инфраструктурные сервисы
	trail := audit.NewTrail(repo, logger, cfg.Audit.BufferSize, cfg.Audit.BatchSize, cfg.Audit.FlushInterval)
	trail.InstrumentBuffer(metrics.AuditBufferFill)
	know := knowledge.NewStore(repo, logger)
	classifier := approval.NewClassifier(cfg.Approval, logger)
	approvals := approval.NewService(repo, rdb, cfg.Approval, metrics, logger)

	// 3. Граница инференса: транспорт + надежность
	caller := registry.NewHTTPCaller(cfg.Inference.BaseURL, cfg.Inference.Timeout)
	safeCaller := registry.NewReliabilityWrapper(caller, cfg.Inference, metrics)
	modelClient := registry.NewClient(safeCaller)
	models := registry.NewService(repo, repo, modelClient, cfg.Inference, logger)

	// 4. Инструменты
	toolReg := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewEmissionsTool(repo),
		tools.NewAnomalyTool(repo, know),
		tools.NewForecastTool(models, repo),
		tools.NewRiskTool(classifier),
	} {
		if err := toolReg.Register(tool); err != nil {
			return nil, err
		}
	}

	// 5. Агенты
	runtime := agent.NewRuntime(toolReg, classifier, approvals, trail, cfg.Agents, metrics, logger)
	behaviors := map[string]agent.Behavior{}
	for _, b := range []agent.Behavior{
		agent.NewCarbonHunter(),
		agent.NewComplianceGuardian(),
		agent.NewESGAdvisor(),
	} {
		behaviors[b.Definition().ID] = b
	}
	manager := agent.NewManager(behaviors, runtime, repo, know, rdb, cfg.Agents, metrics, logger)

	// 6. Планировщик: расписание собирается из поведений
	specs := make(map[string][]scheduler.TaskSpec, len(behaviors))
	for agentType, b := range behaviors {
		specs[agentType] = b.Schedule()
	}
	sched, err := scheduler.New(repo, rdb, specs, cfg.Scheduler, logger)
	if err != nil {
		return nil, err
	}

	// 7. Триггер-движок
	rules := []trigger.Rule{
		&trigger.EmissionsSpikeRule{Metrics: repo, Thresholds: know},
		&trigger.DataGapRule{Metrics: repo},
		&trigger.ComplianceDeadlineRule{},
	}
	evaluator := trigger.NewEvaluator(repo, repo, rdb, rules, cfg.Trigger, metrics, logger)

	return &app{
		cfg: cfg, logger: logger, repo: repo, rdb: rdb, reg: reg, metrics: metrics,
		trail: trail, knowledge: know, classifier: classifier, approvals: approvals,
		modelClient: modelClient, models: models, toolReg: toolReg,
		runtime: runtime, manager: manager, scheduler: sched, evaluator: evaluator,
	}, nil
}

func (a *app) close() {
	a.repo.Close()
	_ = a.rdb.Close()
	_ = a.logger.Sync()
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the orchestration daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			log := a.logger.Named("worker")

			a.trail.Start()

			// Парк агентов: все типы для всех активных тенантов
			orgs, err := a.repo.ListActiveOrganizations(ctx)
			if err != nil {
				return err
			}
			a.manager.StartAll(ctx, orgs)

			go a.manager.RunHealthLoop(ctx)
			go a.manager.ListenControl(ctx)
			go a.approvals.RunSweeper(ctx)
			go a.scheduler.Run(ctx)
			go a.evaluator.Run(ctx)

			// Ops-поверхность: метрики, здоровье, ручные тики
			opsSrv := a.newOpsServer()
			go func() {
				log.Info("ops server started", zap.String("addr", opsSrv.Addr))
				if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("ops server failed", zap.Error(err))
				}
			}()

			log.Info("worker started",
				zap.Int("organizations", len(orgs)),
				zap.Strings("tools", a.toolReg.List()))

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			log.Info("worker stopping...")
			cancel()
			a.manager.StopAll()
			a.trail.Stop()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = opsSrv.Shutdown(shutdownCtx)

			log.Info("worker exited properly")
			return nil
		},
	}
}

func (a *app) newOpsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.repo.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ops/scheduler/tick", func(w http.ResponseWriter, r *http.Request) {
		created, err := a.scheduler.Tick(r.Context(), time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "tasks created: %d\n", created)
	})
	mux.HandleFunc("/ops/trigger/pass", func(w http.ResponseWriter, r *http.Request) {
		fired := a.evaluator.RunPass(r.Context(), time.Now())
		fmt.Fprintf(w, "messages sent: %d\n", fired)
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.MetricsPort),
		Handler:      mux,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}
}

func newTrainCmd() *cobra.Command {
	var modelType string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run one model training cycle over all tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			trainer := registry.NewTrainer(a.repo, a.repo, a.modelClient, a.cfg.Inference, a.logger)
			report, err := trainer.RunCycle(ctx, modelType)
			if err != nil {
				return err
			}

			fmt.Printf("trained: %d, skipped: %d, failed: %d\n", report.Trained, report.Skipped, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("training cycle finished with %d failures", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelType, "model-type", "prophet", "model type to train")
	return cmd
}

func newTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Run one proactive trigger pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			fired := a.evaluator.RunPass(ctx, time.Now())
			fmt.Printf("messages sent: %d\n", fired)
			return nil
		},
	}
}
