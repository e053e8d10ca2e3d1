// Package initwfn wraps Gorgonia weight initializers so that they can
// be stored in JSON agent configurations and rebuilt from them.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes the available initializer types
type Type string

const (
	GlorotU Type = "GlorotU"
	GlorotN Type = "GlorotN"
	HeU     Type = "HeU"
	Zeroes  Type = "Zeroes"
)

var registered = map[string]reflect.Type{
	string(GlorotU): reflect.TypeOf(GlorotUConfig{}),
	string(GlorotN): reflect.TypeOf(GlorotNConfig{}),
	string(HeU):     reflect.TypeOf(HeUConfig{}),
	string(Zeroes):  reflect.TypeOf(ZeroesConfig{}),
}

// InitWFn wraps a Gorgonia InitWFn together with the Config that
// created it.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

func newInitWFn(c Config) *InitWFn {
	return &InitWFn{initWFn: c.Create(), Type: c.Type(), Config: c}
}

// Default returns the initializer used when an agent configuration
// does not name one.
func Default() *InitWFn {
	return NewGlorotU(1.0)
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (w *InitWFn) InitWFn() G.InitWFn {
	if w.initWFn == nil && w.Config != nil {
		w.initWFn = w.Config.Create()
	}
	return w.initWFn
}

func (w *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", w.Type, w.Config)
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (w *InitWFn) UnmarshalJSON(data []byte) error {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	var typeName string
	if err := json.Unmarshal(m["Type"], &typeName); err != nil {
		return fmt.Errorf("unmarshaljson: could not decode initializer "+
			"type: %v", err)
	}
	ty, ok := registered[typeName]
	if !ok {
		return fmt.Errorf("unmarshaljson: unknown initializer type %q",
			typeName)
	}

	value := reflect.New(ty)
	if raw, ok := m["Config"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, value.Interface()); err != nil {
			return fmt.Errorf("unmarshaljson: could not decode %v config: %v",
				typeName, err)
		}
	}

	*w = *newInitWFn(value.Elem().Interface().(Config))
	return nil
}

// Config describes a Gorgonia InitWFn and can create it
type Config interface {
	Create() G.InitWFn
	Type() Type
}

// GlorotUConfig configures Glorot uniform initialization
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot uniform weight initializer
func NewGlorotU(gain float64) *InitWFn {
	return newInitWFn(GlorotUConfig{Gain: gain})
}

func (g GlorotUConfig) Type() Type        { return GlorotU }
func (g GlorotUConfig) Create() G.InitWFn { return G.GlorotU(g.Gain) }

// GlorotNConfig configures Glorot normal initialization
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot normal weight initializer
func NewGlorotN(gain float64) *InitWFn {
	return newInitWFn(GlorotNConfig{Gain: gain})
}

func (g GlorotNConfig) Type() Type        { return GlorotN }
func (g GlorotNConfig) Create() G.InitWFn { return G.GlorotN(g.Gain) }

// HeUConfig configures He uniform initialization, which suits ReLU
// hidden layers.
type HeUConfig struct {
	Gain float64
}

// NewHeU returns a new He uniform weight initializer
func NewHeU(gain float64) *InitWFn {
	return newInitWFn(HeUConfig{Gain: gain})
}

func (h HeUConfig) Type() Type        { return HeU }
func (h HeUConfig) Create() G.InitWFn { return G.HeU(h.Gain) }

// ZeroesConfig configures all-zero initialization
type ZeroesConfig struct{}

// NewZeroes returns a new all-zero weight initializer
func NewZeroes() *InitWFn {
	return newInitWFn(ZeroesConfig{})
}

func (z ZeroesConfig) Type() Type        { return Zeroes }
func (z ZeroesConfig) Create() G.InitWFn { return G.Zeroes() }
