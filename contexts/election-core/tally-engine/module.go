package tallyengine

import (
	"log/slog"

	httpadapter "quorum/contexts/election-core/tally-engine/adapters/http"
	"quorum/contexts/election-core/tally-engine/adapters/memory"
	"quorum/contexts/election-core/tally-engine/application/commands"
	"quorum/contexts/election-core/tally-engine/application/queries"
	"quorum/contexts/election-core/tally-engine/ports"
)

type Module struct {
	Handler    httpadapter.Handler
	Aggregator commands.TallyAggregatorUseCase
	Store      *memory.Store
}

type Dependencies struct {
	Tallies ports.TallyRepository
	Configs ports.ConfigRepository
	Clock   ports.Clock
	Logger  *slog.Logger
}

func NewModule(deps Dependencies) Module {
	configUseCase := commands.TallyConfigUseCase{
		Configs: deps.Configs,
		Clock:   deps.Clock,
		Logger:  deps.Logger,
	}
	aggregatorUseCase := commands.TallyAggregatorUseCase{
		Tallies: deps.Tallies,
		Clock:   deps.Clock,
		Logger:  deps.Logger,
	}
	disclosureUseCase := queries.DisclosureUseCase{
		Tallies: deps.Tallies,
		Configs: deps.Configs,
		Clock:   deps.Clock,
		Logger:  deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Configs:    configUseCase,
			Disclosure: disclosureUseCase,
			Logger:     deps.Logger,
		},
		Aggregator: aggregatorUseCase,
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Tallies: store,
		Configs: store,
		Clock:   store,
		Logger:  logger,
	})
	module.Store = store
	return module
}
