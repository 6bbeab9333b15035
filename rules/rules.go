package rules

import (
	"fmt"
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/shimmeringbee/ztd/dispatch"
	"time"
)

// Input is the product information a profile is matched against, read from
// the Basic cluster during enumeration.
type Input struct {
	Manufacturer string
	Product      string
	DeviceID     uint16
}

// Settings is the partial configuration a rule contributes. Zero fields are
// inherited from the matched rule's ancestors; UseAPSAck is a pointer so a
// child can force it off.
type Settings struct {
	Gangs               int
	Datapoints          map[uint8][]uint8
	GlobalDatapoints    []uint8
	AvailabilityTimeout time.Duration
	RetryProfile        dispatch.Profile
	DebounceWindow      time.Duration
	UseAPSAck           *bool
	GroupingToken       string
}

// Rule matches devices by an expression over Input and yields settings,
// refined depth first by its children: the deepest matching rule wins and
// inherits anything it leaves unset.
type Rule struct {
	Description string
	Filter      string
	Settings    Settings
	Children    []Rule
}

// Profile is the fully resolved driver configuration for one device model.
type Profile struct {
	Description         string
	Gangs               int
	Datapoints          map[uint8][]uint8
	GlobalDatapoints    []uint8
	AvailabilityTimeout time.Duration
	RetryProfile        dispatch.Profile
	DebounceWindow      time.Duration
	UseAPSAck           bool
	GroupingToken       string
}

type compiledRule struct {
	description string
	filter      *vm.Program
	settings    Settings
	children    []compiledRule
}

// Engine holds compiled profile rules.
type Engine struct {
	rules []compiledRule
}

// NewEngine compiles the rule tree, failing on any invalid filter expression.
func NewEngine(rules []Rule) (*Engine, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}

	return &Engine{rules: compiled}, nil
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	var compiled []compiledRule

	for _, r := range rules {
		p, err := expr.Compile(r.Filter, expr.Env(Input{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("filter compilation: %s: %w", r.Description, err)
		}

		children, err := compileRules(r.Children)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Description, err)
		}

		compiled = append(compiled, compiledRule{
			description: r.Description,
			filter:      p,
			settings:    r.Settings,
			children:    children,
		})
	}

	return compiled, nil
}

// Match resolves the profile for a device. Root rules are evaluated in order;
// the first that matches is refined depth first through its children, and the
// settings along the matched chain are merged leaf over root.
func (e *Engine) Match(in Input) (Profile, bool) {
	for _, r := range e.rules {
		if chain, ok := matchChain(r, in); ok {
			return resolve(chain), true
		}
	}

	return Profile{}, false
}

func matchChain(r compiledRule, in Input) ([]compiledRule, bool) {
	out, err := expr.Run(r.filter, in)
	if err != nil {
		return nil, false
	}

	if matched, ok := out.(bool); !ok || !matched {
		return nil, false
	}

	for _, c := range r.children {
		if chain, ok := matchChain(c, in); ok {
			return append([]compiledRule{r}, chain...), true
		}
	}

	return []compiledRule{r}, true
}

func resolve(chain []compiledRule) Profile {
	p := Profile{}

	for _, r := range chain {
		p.Description = r.description

		if r.settings.Gangs != 0 {
			p.Gangs = r.settings.Gangs
		}

		if r.settings.Datapoints != nil {
			p.Datapoints = r.settings.Datapoints
		}

		if r.settings.GlobalDatapoints != nil {
			p.GlobalDatapoints = r.settings.GlobalDatapoints
		}

		if r.settings.AvailabilityTimeout != 0 {
			p.AvailabilityTimeout = r.settings.AvailabilityTimeout
		}

		if r.settings.RetryProfile != "" {
			p.RetryProfile = r.settings.RetryProfile
		}

		if r.settings.DebounceWindow != 0 {
			p.DebounceWindow = r.settings.DebounceWindow
		}

		if r.settings.UseAPSAck != nil {
			p.UseAPSAck = *r.settings.UseAPSAck
		}

		if r.settings.GroupingToken != "" {
			p.GroupingToken = r.settings.GroupingToken
		}
	}

	return p
}
