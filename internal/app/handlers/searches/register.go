package searches

import (
	"pricewatch/internal/app/commands"
	"pricewatch/internal/app/dto"
	"pricewatch/internal/app/queries"
)

// Register wires every search handler onto the buses.
func Register(cmdBus *commands.InMemoryBus, queryBus *queries.InMemoryBus, deps Deps) {
	commands.Register[CreateSearchCommand, *dto.Search](cmdBus, &CreateSearchHandler{Deps: deps})
	commands.Register[UpdateSearchCommand, *dto.Search](cmdBus, &UpdateSearchHandler{Deps: deps})
	commands.Register[DeleteSearchCommand, *dto.Search](cmdBus, &DeleteSearchHandler{Deps: deps})
	commands.Register[RunSearchCommand, dto.RefreshAccepted](cmdBus, &RunSearchHandler{Deps: deps})
	commands.Register[UpdateScheduleCommand, *dto.Search](cmdBus, &UpdateScheduleHandler{Deps: deps})

	queries.Register[GetSearchQuery, *dto.Search](queryBus, &GetSearchHandler{Deps: deps})
	queries.Register[ListSearchesQuery, dto.SearchCatalog](queryBus, &ListSearchesHandler{Deps: deps})
}
