package scenario

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/iocache"
	"github.com/sarchlab/cosim/observer"
	"github.com/sarchlab/cosim/simtime"
)

// Config is the YAML-loadable description of a scenario: an end time and a
// list of events naming a subsimulator by index rather than by handle, since
// the document is parsed before the execution's subsimulator table exists.
type Config struct {
	EndSeconds float64        `yaml:"end_seconds"`
	Events     []EventConfig  `yaml:"events"`
}

// EventConfig is one YAML event entry. Modifier is either "constant" (Value
// is held fixed) or "offset" (Value is added to the original each tick).
type EventConfig struct {
	TimeSeconds float64 `yaml:"time_seconds"`
	Subsim      int     `yaml:"subsim"`
	Type        string  `yaml:"type"`
	Reference   int     `yaml:"reference"`
	IsInput     bool    `yaml:"is_input"`
	Modifier    string  `yaml:"modifier"`
	Value       float64 `yaml:"value"`
}

// LoadConfig parses a scenario document.
func LoadConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &cosimerr.BadFile{Path: "<scenario>", Err: err}
	}
	return &cfg, nil
}

func parseType(name string) (cosim.Type, error) {
	switch name {
	case "real":
		return cosim.Real, nil
	case "integer":
		return cosim.Integer, nil
	case "boolean":
		return cosim.Boolean, nil
	case "string":
		return cosim.String, nil
	default:
		return 0, &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("unknown scenario variable type %q", name)}
	}
}

func buildModifier(ec EventConfig) (iocache.Modifier, error) {
	switch ec.Modifier {
	case "constant":
		typ, err := parseType(ec.Type)
		if err != nil {
			return nil, err
		}
		var v cosim.Value
		switch typ {
		case cosim.Real:
			v = cosim.NewReal(ec.Value)
		case cosim.Integer:
			v = cosim.NewInteger(int32(ec.Value))
		case cosim.Boolean:
			v = cosim.NewBoolean(ec.Value != 0)
		case cosim.String:
			return nil, &cosimerr.UnsupportedFeature{Feature: "constant modifier value must be numeric/boolean, not string"}
		}
		return observer.Constant(v), nil
	case "offset":
		offset := ec.Value
		return func(original cosim.Value, dt simtime.Duration) cosim.Value {
			real, ok := original.Real()
			if !ok {
				return original
			}
			return cosim.NewReal(real + offset)
		}, nil
	default:
		return nil, &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("unknown scenario modifier kind %q", ec.Modifier)}
	}
}

// Target resolves a subsimulator index to the capability the manager needs
// to install a modifier: a get-cache-bearing Subsimulator for outputs, or a
// raw SetCache for inputs.
type Target struct {
	Sub      observer.Subsimulator
	SetCache SetCache
}

// Build resolves cfg against subs (indexed by EventConfig.Subsim) into a
// runnable Manager.
func Build(cfg *Config, subs []Target) (*Manager, error) {
	events := make([]Event, 0, len(cfg.Events))
	for _, ec := range cfg.Events {
		if ec.Subsim < 0 || ec.Subsim >= len(subs) {
			return nil, &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("scenario event references unknown subsim %d", ec.Subsim)}
		}
		typ, err := parseType(ec.Type)
		if err != nil {
			return nil, err
		}
		modifier, err := buildModifier(ec)
		if err != nil {
			return nil, err
		}

		target := subs[ec.Subsim]
		events = append(events, Event{
			Time: simtime.FromSecondsTimePoint(ec.TimeSeconds),
			Action: VariableAction{
				Sub:      target.Sub,
				SetCache: target.SetCache,
				Type:     typ,
				Ref:      ec.Reference,
				IsInput:  ec.IsInput,
				Modifier: modifier,
			},
		})
	}

	return NewManager(events, simtime.FromSecondsTimePoint(cfg.EndSeconds)), nil
}
