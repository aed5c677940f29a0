package core

import (
	"fmt"
	"time"

	pkgconfig "overflowgraph/pkg/config"
)

// SchedulerConfigFromLoaded converts a loaded pkg/config.Config into the
// SchedulerConfig this package's Scheduler expects, and constructs the
// PersistencePort the config's Persistence.Backend selects ("memory" or
// "file"; file requires Persistence.Dir).
func SchedulerConfigFromLoaded(cfg *pkgconfig.Config) (SchedulerConfig, PersistencePort, error) {
	sc := SchedulerConfig{
		BatchSize:           cfg.Eviction.BatchSize,
		WorkerCount:         cfg.Eviction.WorkerCount,
		MaxBackpressureWait: time.Duration(cfg.Eviction.MaxBackpressureWaitMS) * time.Millisecond,
		DirtyOnly:           cfg.Eviction.DirtyOnly,
	}

	var port PersistencePort
	switch cfg.Persistence.Backend {
	case "", "memory":
		port = NewMemoryStore()
	case "file":
		if cfg.Persistence.Dir == "" {
			return SchedulerConfig{}, nil, fmt.Errorf("persistence backend \"file\" requires persistence.dir")
		}
		fs, err := NewFileStore(cfg.Persistence.Dir)
		if err != nil {
			return SchedulerConfig{}, nil, err
		}
		port = fs
	default:
		return SchedulerConfig{}, nil, fmt.Errorf("unknown persistence backend %q", cfg.Persistence.Backend)
	}

	return sc, port, nil
}
