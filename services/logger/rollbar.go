package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
)

// RollbarLogger reports every event to Rollbar and echoes it on std.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Wait blocks until the queued events are sent.
func (l RollbarLogger) Wait() {
	rollbar.Wait()
}

// splitAccount separates the first account.Account of args, the event's person, from the redacted rest.
func splitAccount(args []interface{}) (*account.Account, []interface{}) {
	var person *account.Account
	rest := make([]interface{}, 0, len(args))
	for _, arg := range args {
		acc, ok := arg.(account.Account)
		switch {
		case ok && person == nil:
			person = &acc
		case ok:
		default:
			rest = append(rest, redact(arg))
		}
	}
	return person, rest
}

func (l RollbarLogger) report(send func(...interface{}), msg string, args []interface{}) {
	person, rest := splitAccount(args)
	if person != nil {
		rollbar.SetPerson(person.ID, person.Username, person.Email)
	} else {
		rollbar.ClearPerson()
	}
	send(append([]interface{}{msg}, rest...)...)

	l.std.Println(msg)
	for _, arg := range rest {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.report(rollbar.Debug, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.report(rollbar.Info, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.Warning, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.Error, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.Critical, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
