package agent

import (
	"fmt"
	"reflect"
	"sync"
)

// Type represents a specific type of an agent Config. Configs with
// this type create Agents of the corresponding algorithm.
type Type string

const (
	DeepQ        Type = "DQN"
	DoubleDeepQ  Type = "DoubleDQN"
	DuelingDeepQ Type = "DuelingDQN"
	VanillaPG    Type = "PolicyGradient"
	VanillaAC    Type = "ActorCritic"
	PPO          Type = "PPO"

	// GNN is the type of graph placement model snapshots
	GNN Type = "GNN"
)

// Registered types with the package. Once a Type has been registered,
// a TypedConfig with that type can be deserialized.
//
// No Types are registered with this package upon initialization.
// Each agent package registers its own Types to avoid circular
// imports.
var (
	registeredMu    sync.RWMutex
	registeredTypes = make(map[Type]reflect.Type)
)

// Register registers an agent Type with a concrete Config type so
// that TypedConfigs of type agentType are deserialized into that
// concrete type.
func Register(agentType Type, config Config) {
	registeredMu.Lock()
	defer registeredMu.Unlock()

	ty := reflect.TypeOf(config)
	if ty.Kind() == reflect.Ptr {
		ty = ty.Elem()
	}
	registeredTypes[agentType] = ty
}

func registered(agentType Type) (reflect.Type, error) {
	registeredMu.RLock()
	defer registeredMu.RUnlock()

	ty, ok := registeredTypes[agentType]
	if !ok {
		return nil, fmt.Errorf("agent type %q is not registered", agentType)
	}
	return ty, nil
}
