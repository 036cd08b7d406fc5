package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	actisense "github.com/taoyao-code/actisense-sdk"
	cfgpkg "github.com/taoyao-code/actisense-sdk/internal/config"
	"github.com/taoyao-code/actisense-sdk/internal/diag"
	"github.com/taoyao-code/actisense-sdk/internal/logging"
	"github.com/taoyao-code/actisense-sdk/internal/metrics"
	"github.com/taoyao-code/actisense-sdk/protocol/bem"
	"github.com/taoyao-code/actisense-sdk/protocol/bst"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file path (default: ACTISENSE_CONFIG env or configs/example.yaml)")
		dumpConfig = flag.Bool("dump-config", false, "print effective config as YAML and exit")
	)
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *dumpConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			panic(err)
		}
		fmt.Print(string(out))
		return
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 指标注册
	reg := metrics.NewRegistry()
	sdkMetrics := metrics.NewSdkMetrics(reg)

	// 4) 打开串口会话
	serialCfg := actisense.SerialConfig{
		Port:                cfg.Serial.Port,
		Baud:                cfg.Serial.Baud,
		DataBits:            cfg.Serial.DataBits,
		Parity:              cfg.Serial.Parity,
		StopBits:            cfg.Serial.StopBits,
		ReadBufferSize:      cfg.Serial.ReadBufferSize,
		ReadTimeout:         cfg.Serial.ReadTimeout,
		MaxPendingMessages:  cfg.Serial.MaxPendingMessages,
		SendRateBytesPerSec: cfg.Serial.SendRateBytesPerSec,
	}

	sess := actisense.OpenSerialSession(serialCfg,
		func(ev actisense.Event) { printEvent(ev) },
		func(kind actisense.ErrorKind, msg string) {
			log.Warn("session error", zap.String("kind", kind.String()), zap.String("detail", msg))
		},
		actisense.WithLogger(log),
		actisense.WithMetrics(sdkMetrics),
		actisense.WithSweepInterval(cfg.Session.SweepInterval),
		actisense.WithMaxFrameSize(cfg.Session.MaxFrameSize),
	)
	if sess == nil {
		log.Fatal("failed to open serial session", zap.String("port", cfg.Serial.Port))
	}
	defer sess.Close()

	// 5) 诊断 HTTP 服务
	var diagSrv *diag.Server
	if cfg.Diag.Enable {
		diagSrv = diag.New(cfg.Diag, metrics.Handler(reg), func() diag.Stats {
			return diag.Stats{
				Connected:              sess.IsConnected(),
				FramesReceived:         sess.FramesReceived(),
				FramesDropped:          sess.FramesDropped(),
				BemResponsesReceived:   sess.BemResponsesReceived(),
				BemResponsesCorrelated: sess.BemResponsesCorrelated(),
				PendingRequests:        sess.PendingRequests(),
			}
		})
		go func() {
			if err := diagSrv.Start(); err != nil {
				log.Warn("diag server stopped", zap.Error(err))
			}
		}()
	}

	// 启动时读取一次工作模式
	sess.GetOperatingMode(cfg.Session.RequestTimeout, func(resp *bem.Response, kind actisense.ErrorKind, msg string) {
		if kind != actisense.Ok {
			log.Warn("get operating mode failed", zap.String("kind", kind.String()), zap.String("detail", msg))
			return
		}
		mode, err := bem.DecodeOperatingMode(resp.Data)
		if err != nil {
			log.Warn("operating mode decode failed", zap.Error(err))
			return
		}
		fmt.Printf("operating mode: %s\n", mode)
	})

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if diagSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = diagSrv.Shutdown(ctx)
		cancel()
	}
	log.Info("console exiting",
		zap.Uint64("frames_received", sess.FramesReceived()),
		zap.Uint64("bem_responses", sess.BemResponsesReceived()))
}

// printEvent 以单行文本输出一条事件
func printEvent(ev actisense.Event) {
	switch e := ev.(type) {
	case *actisense.ParsedMessageEvent:
		switch p := e.Payload.(type) {
		case *bst.Bst93Frame:
			fmt.Printf("[%s] pgn=%d src=%d dst=%d prio=%d ts=%dms data=% X\n",
				e.MessageType, p.PGN, p.Source, p.Destination, p.Priority, p.TimestampMs, p.Data)
		case *bst.Bst95Frame:
			fmt.Printf("[%s] pgn=%d src=%d dst=%d prio=%d data=% X\n",
				e.MessageType, p.PGN, p.Source, p.Destination, p.Priority, p.Data)
		case *bst.BstD0Frame:
			fmt.Printf("[%s] pgn=%d src=%d dst=%d prio=%d type=%d data=% X\n",
				e.MessageType, p.PGN, p.Source, p.Destination, p.Priority, p.MessageType, p.Data)
		case *bem.Response:
			fmt.Printf("[%s] model=%d serial=%d err=%d data=% X\n",
				e.MessageType, p.ModelID, p.SerialNumber, p.ErrorCode, p.Data)
		default:
			fmt.Printf("[%s] %v\n", e.MessageType, e.Payload)
		}
	case *actisense.DeviceStatusEvent:
		fmt.Printf("[status] %s=%s\n", e.Key, e.Value)
	}
}
