package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/fieldsync/pkg/logger"
)

type gooseLogger struct {
	logg *logger.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logg.Info(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	g.logg.Error(context.Background(), "goose fatal", fmt.Errorf("%s", msg))
	panic(msg)
}

// SetLogger routes goose output through the structured logger. A nil logger
// silences goose.
func SetLogger(logg *logger.Logger) {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if logg == nil {
		goose.SetLogger(goose.NopLogger())
		return
	}
	goose.SetLogger(gooseLogger{logg: logg})
}
