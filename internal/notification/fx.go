package notification

import (
	"github.com/hormisur/backoffice/internal/notification/liveevents"
	"github.com/hormisur/backoffice/internal/notification/repository"
	"github.com/hormisur/backoffice/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(liveevents.NewHub),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
