package datasource

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// AdapterInfo describes a registered driver.
type AdapterInfo struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// Registration bundles a driver's info with its factories.
type Registration struct {
	Info                    AdapterInfo
	SchemaDiscovererFactory func(ctx context.Context, cfg *ConnectionConfig, logger *zap.Logger) (SchemaDiscoverer, error)
	QueryExecutorFactory    func(ctx context.Context, cfg *ConnectionConfig, logger *zap.Logger) (QueryExecutor, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each driver's init(). Thread-safe.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters lists the available driver types.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// IsRegistered checks whether a driver type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}

// NewSchemaDiscoverer creates a discoverer for the configured driver type.
func NewSchemaDiscoverer(ctx context.Context, cfg *ConnectionConfig, logger *zap.Logger) (SchemaDiscoverer, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown datasource type %q", cfg.Type)
	}
	return reg.SchemaDiscovererFactory(ctx, cfg, logger)
}

// NewQueryExecutor creates a query executor for the configured driver type.
func NewQueryExecutor(ctx context.Context, cfg *ConnectionConfig, logger *zap.Logger) (QueryExecutor, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown datasource type %q", cfg.Type)
	}
	return reg.QueryExecutorFactory(ctx, cfg, logger)
}
