package logging

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string
	Format string
}

var (
	baseLogger *zap.Logger
	sugar      *zap.SugaredLogger
	instanceID atomic.Value
	level      = zap.NewAtomicLevel()
)

func init() {
	baseLogger = zap.NewNop()
	sugar = baseLogger.Sugar()
}

func InitFromEnv() error {
	return Init(Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
}

// Init 按级别和格式（console | json）重建全局 logger
func Init(cfg Config) error {
	lvl := zapcore.InfoLevel
	if name := strings.TrimSpace(cfg.Level); name != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %s", cfg.Level)
		}
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "console":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s", cfg.Format)
	}

	level.SetLevel(lvl)
	baseLogger = zap.New(zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level), zap.AddCaller())
	sugar = baseLogger.Sugar()
	return nil
}

// DebugEnabled reports whether debug output is on, e.g. to switch gin into debug mode.
func DebugEnabled() bool {
	return level.Enabled(zapcore.DebugLevel)
}

func Sync() {
	if baseLogger != nil {
		_ = baseLogger.Sync()
	}
}

// SetInstanceID tags every subsequent log line with the mixer process instance.
func SetInstanceID(id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	instanceID.Store(id)
}

func NewInstanceID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Named 返回带组件名的 logger，供 mixer、server、device 等组件持有
func Named(component string) *zap.SugaredLogger {
	return withFields(0).Named(component)
}

func Debugf(format string, args ...interface{}) {
	withFields(1).Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	withFields(1).Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	withFields(1).Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	withFields(1).Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	withFields(1).Fatalf(format, args...)
}

func withFields(callerSkip int) *zap.SugaredLogger {
	id, _ := instanceID.Load().(string)
	if id == "" {
		id = "instance-unknown"
	}
	return sugar.WithOptions(zap.AddCallerSkip(callerSkip)).With("instance_id", id)
}
