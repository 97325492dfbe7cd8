package common

// Component names used for structured logging fields and health metrics
// across the event store's subsystems.
const (
	ComponentArtifactStore  = "artifact-store"
	ComponentIntervalLedger = "interval-ledger"
	ComponentFactoryIndex   = "factory-index"
	ComponentReplay         = "replay"
	ComponentReorgManager   = "reorg-manager"
	ComponentReadCache      = "read-cache"
	ComponentFacade         = "facade"
	ComponentMaintenance    = "maintenance"
)

var AllComponents = map[string]struct{}{
	ComponentArtifactStore:  {},
	ComponentIntervalLedger: {},
	ComponentFactoryIndex:   {},
	ComponentReplay:         {},
	ComponentReorgManager:   {},
	ComponentReadCache:      {},
	ComponentFacade:         {},
	ComponentMaintenance:    {},
}
