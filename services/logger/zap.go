package logsvc

import (
	"go.uber.org/zap"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
)

// ZapLogger writes structured events through zap.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ core.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a development logger in debug mode, a JSON production logger otherwise.
func NewZapLogger(debug bool) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return NewZapLoggerFrom(logger), nil
}

func NewZapLoggerFrom(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.Sugar()}
}

func (l *ZapLogger) Sync() {
	_ = l.sugar.Sync()
}

// keysAndValues flattens args into zap's alternating keys and values.
func (l *ZapLogger) keysAndValues(args []interface{}) []interface{} {
	kvs := make([]interface{}, 0, 2*len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			kvs = append(kvs, zap.Error(v))
		case map[string]interface{}:
			for key, val := range redact(v).(map[string]interface{}) {
				kvs = append(kvs, key, val)
			}
		case account.Account:
			kvs = append(kvs, "account_id", v.ID, "username", v.Username)
		default:
			kvs = append(kvs, "extra", v)
		}
	}
	return kvs
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugw(msg, l.keysAndValues(args)...)
}

func (l *ZapLogger) Info(msg string, args ...interface{}) {
	l.sugar.Infow(msg, l.keysAndValues(args)...)
}

func (l *ZapLogger) Warn(msg string, args ...interface{}) {
	l.sugar.Warnw(msg, l.keysAndValues(args)...)
}

func (l *ZapLogger) Error(msg string, args ...interface{}) {
	l.sugar.Errorw(msg, l.keysAndValues(args)...)
}

func (l *ZapLogger) Fatal(msg string, args ...interface{}) {
	l.sugar.Fatalw(msg, l.keysAndValues(args)...)
}
