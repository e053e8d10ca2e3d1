package agent

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// TypedConfig stores a Config together with its Type so that it can be
// deserialized into its concrete type without knowing that type
// beforehand.
type TypedConfig struct {
	Type
	Config
}

// NewTypedConfig types the argument Config
func NewTypedConfig(c Config) TypedConfig {
	return TypedConfig{Type: c.Type(), Config: c}
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (t *TypedConfig) UnmarshalJSON(data []byte) error {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	var typeName Type
	if err := json.Unmarshal(m["Type"], &typeName); err != nil {
		return fmt.Errorf("unmarshaljson: could not decode agent type: %v",
			err)
	}
	ty, err := registered(typeName)
	if err != nil {
		return fmt.Errorf("unmarshaljson: %v", err)
	}

	value := reflect.New(ty)
	if err := json.Unmarshal(m["Config"], value.Interface()); err != nil {
		return fmt.Errorf("unmarshaljson: could not decode %v config: %v",
			typeName, err)
	}

	config, ok := value.Elem().Interface().(Config)
	if !ok {
		config, ok = value.Interface().(Config)
	}
	if !ok {
		return fmt.Errorf("unmarshaljson: %v does not implement Config", ty)
	}

	t.Type = typeName
	t.Config = config
	return nil
}
