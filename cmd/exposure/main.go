// exposure 运行一次蒙特卡洛敞口模拟：读取定义目录与运行配置，输出立方体、现金流、敞口曲线并发布.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"
	"time"

	"github.com/wyfcoding/exposure/algorithm/finance"
	"github.com/wyfcoding/exposure/config"
	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/loader"
	"github.com/wyfcoding/exposure/logging"
	"github.com/wyfcoding/exposure/metrics"
	"github.com/wyfcoding/exposure/publisher"
	"github.com/wyfcoding/exposure/simulation"
	"github.com/wyfcoding/exposure/storage"
	"github.com/wyfcoding/exposure/tracing"
)

// BootstrapName 服务唯一标识
const BootstrapName = "exposure"

func main() {
	defsDir := flag.String("defs", "", "模型、产品与相关矩阵定义目录")
	cfgPath := flag.String("config", "control.toml", "运行配置文件 (TOML)")
	metricsPort := flag.String("metrics-port", "", "指标 HTTP 端口，覆盖配置文件")
	flag.Parse()

	if *defsDir == "" {
		fmt.Fprintln(os.Stderr, "usage: exposure -defs <dir> [-config control.toml] [-metrics-port 9090]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *defsDir, *cfgPath, *metricsPort)
	stop()
	if err != nil {
		slog.Error("exposure run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, defsDir, cfgPath, metricsPort string) error {
	// 1. 配置与日志
	var cfg config.Config
	if err := config.Load(cfgPath, &cfg); err != nil {
		return err
	}
	logger := logging.InitLogger(cfg.LoggingConfig(BootstrapName))
	app := logger.Tagged("app")
	config.PrintWithMask(&cfg)

	// 2. 可观测性
	shutdown, err := tracing.InitTracer(cfg.Tracing, BootstrapName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			app.Error("tracer shutdown failed", "error", err)
		}
	}()

	m := metrics.NewMetrics(BootstrapName)
	m.RegisterBuildInfo(BootstrapName, cfg.Version)
	if metricsPort == "" {
		metricsPort = cfg.Metrics.Port
	}
	if metricsPort != "" {
		defer m.ExposeHttp(metricsPort)()
	}

	runID := publisher.NewRunID()
	ctx, span := tracing.StartRun(ctx, runID, cfg.Simulation.NumPaths, len(cfg.Simulation.TimeSteps))
	defer span.End()
	app.InfoContext(ctx, "exposure run started", "run_id", runID, "defs", defsDir, "trace_id", tracing.TraceID(ctx))

	// 3. 定义
	defs, err := loader.Load(defsDir)
	if err != nil {
		return err
	}
	app.InfoContext(ctx, "initializing models", "models", defs.ModelNames())
	if err := defs.InitModels(); err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// 4. 情景
	sc := cfg.Simulation
	parallelism := sc.Parallelism
	if parallelism == 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	ctrl := simulation.NewController(defs.Models, defs.Correlations,
		simulation.WithSeed(sc.Seed),
		simulation.WithParallelism(parallelism),
		simulation.WithLogger(logger),
		simulation.WithMetrics(m),
	)

	var raw *cube.Cube
	if sc.RecycleRandomness {
		raw, err = ctrl.LoadOrCreateRawCube(ctx, store, sc.RandomnessFile, sc.TimeSteps, sc.NumPaths)
	} else {
		raw, err = ctrl.CreateRawCube(sc.TimeSteps, sc.NumPaths)
	}
	if err != nil {
		return err
	}
	factors, err := ctrl.CreateFactorCube(ctx, raw)
	if err != nil {
		return err
	}
	live, err := ctrl.CreateLiveModels(factors, raw)
	if err != nil {
		return err
	}

	// 5. 定价
	results := cube.NewEmpty(sc.TimeSteps, sc.NumPaths, len(defs.Instruments))
	exp, err := ctrl.ComputeExposures(ctx, defs.Instruments, results, live)
	if err != nil {
		return err
	}
	profiles, err := simulation.Profiles(exp.Values, cfg.Output.ProfileQuantile)
	if err != nil {
		return err
	}

	// 6. 输出
	out := &writer{ctx: ctx, store: store, logger: app}
	o := cfg.Output
	out.cube(o.Variables, raw)
	out.cube(o.Outputs, factors)
	out.cube(o.Exposures, exp.Values)
	out.json(o.Profiles, profiles)

	cashflows := make([]instrumentCashflows, len(exp.Names))
	summaries := make([]instrumentSummary, len(exp.Names))
	for i, name := range exp.Names {
		cashflows[i] = instrumentCashflows{Instrument: name, Scenarios: exp.Cashflows[i]}
		summaries[i] = instrumentSummary{Instrument: name, Dates: simulation.SummarizeCashflows(exp.Cashflows[i])}
		if exp.Exercise[i] != nil && o.ExerciseOutputDir != "" {
			out.cube(path.Join(o.ExerciseOutputDir, name+".json"), exp.Exercise[i])
		}
	}
	out.json(o.Cashflows, cashflows)
	out.json(o.CashflowSummary, summaries)

	if o.DumpModels {
		for _, md := range ctrl.Models() {
			out.json(path.Join(o.ModelOutputDir, md.Type()+"_"+md.Name()+".json"), md)
		}
	}
	if o.DumpModelValues {
		values, err := simulation.ModelValues(live, sc.TimeSteps, sc.NumPaths, o.ModelValuesTerms)
		if err != nil {
			return err
		}
		out.cube(o.ModelValues, values)
	}
	if out.err != nil {
		return out.err
	}

	// 7. 发布
	pub := publisher.New(cfg.Kafka, logger, m)
	defer pub.Close()
	if err := pub.PublishProfiles(ctx, runID, profiles); err != nil {
		return err
	}

	if cfg.Metrics.TextfilePath != "" {
		if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			return err
		}
	}
	app.InfoContext(ctx, "exposure run finished", "run_id", runID, "instruments", len(exp.Names), "paths", sc.NumPaths)
	return nil
}

type instrumentCashflows struct {
	Instrument string               `json:"instrument"`
	Scenarios  [][]finance.Cashflow `json:"scenarios"`
}

type instrumentSummary struct {
	Instrument string                       `json:"instrument"`
	Dates      []simulation.CashflowSummary `json:"dates"`
}

// writer 记录第一个写入错误，之后的写入直接跳过. 空对象名表示不输出.
type writer struct {
	ctx    context.Context
	store  storage.CubeStore
	logger *logging.Logger
	err    error
}

func (w *writer) cube(name string, c *cube.Cube) {
	if w.err != nil || name == "" {
		return
	}
	if w.err = w.store.SaveCube(w.ctx, name, c); w.err != nil {
		w.logger.ErrorContext(w.ctx, "failed to write cube", "object", name, "error", w.err)
		return
	}
	w.logger.InfoContext(w.ctx, "cube written", "object", name, "series", c.NumSeries())
}

func (w *writer) json(name string, v any) {
	if w.err != nil || name == "" {
		return
	}
	if w.err = w.store.SaveJSON(w.ctx, name, v); w.err != nil {
		w.logger.ErrorContext(w.ctx, "failed to write object", "object", name, "error", w.err)
		return
	}
	w.logger.InfoContext(w.ctx, "object written", "object", name)
}
