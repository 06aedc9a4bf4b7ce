package statusmap

import (
	"factory-floor-backend/internal/accounting"
	"factory-floor-backend/internal/model"
)

// Resolver answers status lookups with station-scoped definitions taking
// precedence over global ones. An unknown status identifier is simply
// unresolved; it is never an error.
type Resolver struct {
	global    map[int64]model.StatusDefinition
	byStation map[int64]map[int64]model.StatusDefinition
}

// New indexes a loaded definition list.
func New(defs []model.StatusDefinition) *Resolver {
	r := &Resolver{
		global:    make(map[int64]model.StatusDefinition),
		byStation: make(map[int64]map[int64]model.StatusDefinition),
	}
	for _, def := range defs {
		if def.StationID == nil {
			r.global[def.ID] = def
			continue
		}
		scoped, ok := r.byStation[*def.StationID]
		if !ok {
			scoped = make(map[int64]model.StatusDefinition)
			r.byStation[*def.StationID] = scoped
		}
		scoped[def.ID] = def
	}
	return r
}

// Definition looks up the effective definition of a status for a station.
func (r *Resolver) Definition(stationID, statusID int64) (model.StatusDefinition, bool) {
	if scoped, ok := r.byStation[stationID]; ok {
		if def, ok := scoped[statusID]; ok {
			return def, true
		}
	}
	def, ok := r.global[statusID]
	return def, ok
}

// ForStation returns the accounting resolver view for one station.
func (r *Resolver) ForStation(stationID int64) accounting.Resolver {
	return func(statusID int64) (model.MachineState, bool) {
		def, ok := r.Definition(stationID, statusID)
		if !ok {
			return "", false
		}
		return def.MachineState, true
	}
}
