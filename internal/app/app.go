package app

import (
	"go.uber.org/fx"

	"github.com/chopdirect/chopdirect/internal/cache"
	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/database"
	"github.com/chopdirect/chopdirect/internal/logger"
	"github.com/chopdirect/chopdirect/internal/messaging"
	"github.com/chopdirect/chopdirect/internal/notify"
	"github.com/chopdirect/chopdirect/internal/observability"
	"github.com/chopdirect/chopdirect/internal/provider/momo"
	"github.com/chopdirect/chopdirect/internal/provider/paystack"
	repositoryorder "github.com/chopdirect/chopdirect/internal/repository/order"
	repositorypayment "github.com/chopdirect/chopdirect/internal/repository/payment"
	repositoryrestaurant "github.com/chopdirect/chopdirect/internal/repository/restaurant"
	repositorysettings "github.com/chopdirect/chopdirect/internal/repository/settings"
	grpcserver "github.com/chopdirect/chopdirect/internal/server/grpc"
	httpserver "github.com/chopdirect/chopdirect/internal/server/http"
	servicecatalog "github.com/chopdirect/chopdirect/internal/service/catalog"
	serviceorder "github.com/chopdirect/chopdirect/internal/service/order"
	servicepayment "github.com/chopdirect/chopdirect/internal/service/payment"
	"github.com/chopdirect/chopdirect/internal/settings"
	transporthttp "github.com/chopdirect/chopdirect/internal/transport/http"
	"github.com/chopdirect/chopdirect/internal/worker"
	workerorder "github.com/chopdirect/chopdirect/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	notify.Module,
	observability.Module,
	repositoryorder.Module,
	repositorypayment.Module,
	repositoryrestaurant.Module,
	repositorysettings.Module,
	settings.Module,
	paystack.Module,
	momo.Module,
	servicecatalog.Module,
	serviceorder.Module,
	servicepayment.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
