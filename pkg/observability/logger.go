// Package observability contains logging setup.
package observability

import (
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "gopkg.in/natefinch/lumberjack.v2"

    "dirmesh/pkg/config"
)

// SetupLogger builds a zap.Logger from the provided configuration, sets it as
// the global logger, and redirects the stdlib log package. The returned
// function flushes the logger and restores the previous globals.
func SetupLogger(c config.LogConfig) (*zap.Logger, func(), error) {
    lvl := strings.ToLower(strings.TrimSpace(c.Level))
    if lvl == "warning" { lvl = "warn" }
    level, err := zap.ParseAtomicLevel(lvl)
    if err != nil { return nil, nil, fmt.Errorf("log level: %w", err) }

    encCfg := encoderConfig(c.Development)
    var encoder zapcore.Encoder
    if strings.ToLower(c.Format) == "json" {
        encoder = zapcore.NewJSONEncoder(encCfg)
    } else {
        encoder = zapcore.NewConsoleEncoder(encCfg)
    }

    var cores []zapcore.Core
    var closers []func() error
    for _, out := range c.Outputs {
        ws, closeFn, err := sinkFor(out, c)
        if err != nil { return nil, nil, err }
        if closeFn != nil { closers = append(closers, closeFn) }
        cores = append(cores, zapcore.NewCore(encoder, ws, level))
    }

    opts := []zap.Option{
        zap.AddCaller(),
        zap.AddStacktrace(zap.ErrorLevel),
    }
    if c.Development {
        opts = append(opts, zap.Development())
    }

    logger := zap.New(zapcore.NewTee(cores...), opts...)
    restore := zap.ReplaceGlobals(logger)
    // redirect stdlib log to zap at Info level
    undoStd, _ := zap.RedirectStdLogAt(logger, zap.InfoLevel)
    return logger, func() {
        _ = logger.Sync()
        if undoStd != nil { undoStd() }
        restore()
        for _, fn := range closers { _ = fn() }
    }, nil
}

func sinkFor(out string, c config.LogConfig) (zapcore.WriteSyncer, func() error, error) {
    switch strings.ToLower(out) {
    case "stdout":
        return zapcore.Lock(os.Stdout), nil, nil
    case "stderr":
        return zapcore.Lock(os.Stderr), nil, nil
    }
    if c.Rotation.Enable {
        lj := &lumberjack.Logger{
            Filename:   rotationFilename(out, c),
            MaxSize:    max(c.Rotation.MaxSizeMB, 10),
            MaxBackups: max(c.Rotation.MaxBackups, 1),
            MaxAge:     max(c.Rotation.MaxAgeDays, 7),
            Compress:   c.Rotation.Compress,
        }
        return zapcore.AddSync(lj), lj.Close, nil
    }
    if dir := filepath.Dir(out); dir != "." {
        if err := os.MkdirAll(dir, 0o755); err != nil { return nil, nil, fmt.Errorf("log dir: %w", err) }
    }
    f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
    if err != nil { return nil, nil, fmt.Errorf("log file: %w", err) }
    return zapcore.AddSync(f), f.Close, nil
}

func encoderConfig(dev bool) zapcore.EncoderConfig {
    if dev {
        cfg := zap.NewDevelopmentEncoderConfig()
        cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
        return cfg
    }
    cfg := zap.NewProductionEncoderConfig()
    cfg.EncodeTime = zapcore.ISO8601TimeEncoder
    return cfg
}

// rotationFilename prefers the rotation filename over the output entry.
func rotationFilename(out string, c config.LogConfig) string {
    if strings.TrimSpace(c.Rotation.Filename) != "" {
        return c.Rotation.Filename
    }
    return out
}
