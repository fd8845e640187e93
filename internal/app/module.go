package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/whattoeat/kitchenbot/internal/app/api/server"
	"github.com/whattoeat/kitchenbot/internal/app/service/account"
	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	"github.com/whattoeat/kitchenbot/internal/app/service/expiry_sweep"
	"github.com/whattoeat/kitchenbot/internal/app/service/kitchen"
	notificationhandler "github.com/whattoeat/kitchenbot/internal/app/service/notification_handler"
	notificationlog "github.com/whattoeat/kitchenbot/internal/app/service/notification_log"
	"github.com/whattoeat/kitchenbot/internal/app/service/payment"
	"github.com/whattoeat/kitchenbot/internal/app/service/statistics"
	"github.com/whattoeat/kitchenbot/internal/app/service/usage"
	"github.com/whattoeat/kitchenbot/internal/platform/db"
	"github.com/whattoeat/kitchenbot/internal/platform/llm"
	"github.com/whattoeat/kitchenbot/internal/platform/stripe_checkout"
	"github.com/whattoeat/kitchenbot/internal/platform/yookassa"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/logger"
	"github.com/whattoeat/kitchenbot/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// Core is everything except the HTTP server. The CLI runs on it.
var Core = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	account.Module,
	entitlement.Module,
	usage.Module,
	notificationlog.Module,
	notificationhandler.Module,
	stripe_checkout.Module,
	yookassa.Module,
	payment.Module,
	llm.Module,
	kitchen.Module,
	statistics.Module,
	expiry_sweep.Module,
)

var Module = fx.Options(
	Core,
	server.Module,
)
