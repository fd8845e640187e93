package main

// @title           Kitchenbot Backend API
// @version         1.0
// @description     Entitlement, usage metering and payment backend for the recipe bot.

// @host      localhost:8888
// @BasePath  /

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/whattoeat/kitchenbot/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	a := fx.New(
		app.Module,
		fx.WithLogger(func(log *zap.SugaredLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Desugar().Named("fx")}
		}),
	)
	// the app logger may not exist yet when the graph fails to build
	fallback := zap.NewExample().Sugar()

	startCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		fallback.Errorf("failed to start app: %v", err)
		return 1
	}

	sig := <-a.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer cancelStop()
	if err := a.Stop(stopCtx); err != nil {
		fallback.Errorf("failed to stop app: %v", err)
		return 1
	}
	return sig.ExitCode
}
