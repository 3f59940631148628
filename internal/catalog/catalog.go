package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Unit describes a trainable unit or a placeable structure.
type Unit struct {
	Build        float64 `yaml:"build"`
	Supply       int     `yaml:"supply"`
	Structure    bool    `yaml:"structure"`
	Worker       bool    `yaml:"worker"`
	Prerequisite string  `yaml:"prerequisite"`
}

// Boost holds the production-acceleration effect constants. Targets are the
// producers a boost can land on and Casters the types that cast it.
type Boost struct {
	Abilities []string `yaml:"abilities"`
	Duration  float64  `yaml:"duration"`
	Rate      float64  `yaml:"rate"`
	Targets   []string `yaml:"targets"`
	Casters   []string `yaml:"casters"`
}

// Illusions holds the decoy-creation constants.
type Illusions struct {
	Abilities    map[string]string `yaml:"abilities"`
	Capable      []string          `yaml:"capable"`
	WindowFrames int64             `yaml:"window_frames"`
	Label        string            `yaml:"label"`
	// CreatorPrefix matches the creator ability recorded on decoy births.
	CreatorPrefix string `yaml:"creator_prefix"`
}

// Prefixes lists ability-name prefixes per production family.
type Prefixes struct {
	Warp     []string `yaml:"warp"`
	Research []string `yaml:"research"`
	Morph    []string `yaml:"morph"`
	Strip    []string `yaml:"strip"`
}

// Skip lists labels that never become build-order rows.
type Skip struct {
	Units    []string `yaml:"units"`
	Keywords []string `yaml:"keywords"`
	Workers  []string `yaml:"workers"`
}

// Catalog is the set of in-game constants the engine consults.
type Catalog struct {
	Units             map[string]Unit    `yaml:"units"`
	Upgrades          map[string]float64 `yaml:"upgrades"`
	Aliases           map[string]string  `yaml:"aliases"`
	Prefixes          Prefixes           `yaml:"prefixes"`
	Skip              Skip               `yaml:"skip"`
	Boost             Boost              `yaml:"boost"`
	Illusions         Illusions          `yaml:"illusions"`
	FixedOffsets      map[string]float64 `yaml:"fixed_offsets"`
	WarpSupplyOffsets map[string]int     `yaml:"warp_supply_offsets"`
	Morphs            []string           `yaml:"morphs"`
	// Abilities always applies; AbilityTables are keyed by the first base
	// build they are valid for.
	Abilities     map[string]string           `yaml:"abilities"`
	AbilityTables map[int64]map[string]string `yaml:"ability_tables"`

	skipUnits    map[string]bool
	workers      map[string]bool
	boosts       map[string]bool
	boostTargets map[string]bool
	boostCasters map[string]bool
	capable      map[string]bool
	morphs       map[string]bool
	unitsLower   map[string]string
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := FromYAML(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file and layers it over the embedded default.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	base := Default()
	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	base.merge(&override)
	if err := base.Validate(); err != nil {
		return nil, err
	}
	base.index()
	return base, nil
}

// FromYAML parses a complete catalog document.
func FromYAML(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.index()
	return &c, nil
}

// Validate ensures the catalog meets required structure.
func (c *Catalog) Validate() error {
	for name, u := range c.Units {
		if name == "" {
			return fmt.Errorf("catalog.units contains empty name")
		}
		if u.Build < 0 {
			return fmt.Errorf("unit %s has negative build time", name)
		}
	}
	for build := range c.AbilityTables {
		if build < 0 {
			return fmt.Errorf("catalog.ability_tables has negative build %d", build)
		}
	}
	for name, d := range c.Upgrades {
		if d < 0 {
			return fmt.Errorf("upgrade %s has negative research time", name)
		}
	}
	if c.Boost.Rate != 0 && c.Boost.Rate < 1 {
		return fmt.Errorf("catalog.boost.rate must be >= 1")
	}
	if c.Boost.Duration < 0 {
		return fmt.Errorf("catalog.boost.duration must not be negative")
	}
	if c.Illusions.WindowFrames < 0 {
		return fmt.Errorf("catalog.illusions.window_frames must not be negative")
	}
	return nil
}

func (c *Catalog) merge(o *Catalog) {
	mergeMap(&c.Units, o.Units)
	mergeMap(&c.Upgrades, o.Upgrades)
	mergeMap(&c.Aliases, o.Aliases)
	mergeMap(&c.FixedOffsets, o.FixedOffsets)
	mergeMap(&c.WarpSupplyOffsets, o.WarpSupplyOffsets)
	mergeMap(&c.Abilities, o.Abilities)
	mergeMap(&c.Illusions.Abilities, o.Illusions.Abilities)
	c.Skip.Units = append(c.Skip.Units, o.Skip.Units...)
	c.Skip.Keywords = append(c.Skip.Keywords, o.Skip.Keywords...)
	c.Boost.Abilities = append(c.Boost.Abilities, o.Boost.Abilities...)
	c.Illusions.Capable = append(c.Illusions.Capable, o.Illusions.Capable...)
	c.Boost.Targets = append(c.Boost.Targets, o.Boost.Targets...)
	c.Boost.Casters = append(c.Boost.Casters, o.Boost.Casters...)
	c.Morphs = append(c.Morphs, o.Morphs...)
	for build, table := range o.AbilityTables {
		if c.AbilityTables == nil {
			c.AbilityTables = make(map[int64]map[string]string)
		}
		dst := c.AbilityTables[build]
		mergeMap(&dst, table)
		c.AbilityTables[build] = dst
	}
	if o.Boost.Duration > 0 {
		c.Boost.Duration = o.Boost.Duration
	}
	if o.Boost.Rate > 0 {
		c.Boost.Rate = o.Boost.Rate
	}
	if o.Illusions.WindowFrames > 0 {
		c.Illusions.WindowFrames = o.Illusions.WindowFrames
	}
	if o.Illusions.Label != "" {
		c.Illusions.Label = o.Illusions.Label
	}
	if o.Illusions.CreatorPrefix != "" {
		c.Illusions.CreatorPrefix = o.Illusions.CreatorPrefix
	}
}

func mergeMap[V any](dst *map[string]V, src map[string]V) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]V, len(src))
	}
	for k, v := range src {
		(*dst)[k] = v
	}
}

func (c *Catalog) index() {
	c.skipUnits = lowerSet(c.Skip.Units)
	c.workers = lowerSet(c.Skip.Workers)
	c.boosts = lowerSet(c.Boost.Abilities)
	c.boostTargets = lowerSet(c.Boost.Targets)
	c.boostCasters = lowerSet(c.Boost.Casters)
	c.capable = lowerSet(c.Illusions.Capable)
	c.morphs = lowerSet(c.Morphs)
	c.unitsLower = make(map[string]string, len(c.Units))
	for name := range c.Units {
		c.unitsLower[strings.ToLower(name)] = name
	}
}

func lowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.ToLower(it)] = true
	}
	return set
}

// Unit looks up a unit by type name, case-insensitively.
func (c *Catalog) Unit(name string) (Unit, bool) {
	if u, ok := c.Units[name]; ok {
		return u, true
	}
	if key, ok := c.unitsLower[strings.ToLower(name)]; ok {
		return c.Units[key], true
	}
	return Unit{}, false
}

// IsStructure reports whether the type is a placeable structure.
func (c *Catalog) IsStructure(name string) bool {
	u, ok := c.Unit(name)
	return ok && u.Structure
}

// IsWorker reports whether the type is one of the worker units.
func (c *Catalog) IsWorker(name string) bool {
	return c.workers[strings.ToLower(name)]
}

// ResearchDuration returns the research time for an upgrade.
func (c *Catalog) ResearchDuration(name string) (float64, bool) {
	if d, ok := c.Upgrades[name]; ok {
		return d, true
	}
	lower := strings.ToLower(name)
	for k, d := range c.Upgrades {
		if strings.ToLower(k) == lower {
			return d, true
		}
	}
	return 0, false
}

// IsBoostAbility reports whether the ability accelerates a producer.
func (c *Catalog) IsBoostAbility(ability string) bool {
	return c.boosts[strings.ToLower(ability)]
}

// IllusionTarget returns the unit type created by an illusion-cast ability.
func (c *Catalog) IllusionTarget(ability string) (string, bool) {
	t, ok := c.Illusions.Abilities[ability]
	return t, ok
}

// IllusionCapable reports whether the type can be copied by an illusion cast.
func (c *Catalog) IllusionCapable(name string) bool {
	return c.capable[strings.ToLower(name)]
}

// Skipped reports whether a cleaned label is cosmetic or non-actionable.
// Worker types are skipped too when excludeWorkers is set.
func (c *Catalog) Skipped(label string, excludeWorkers bool) bool {
	lower := strings.ToLower(label)
	if c.skipUnits[lower] || c.skipUnits[strings.ReplaceAll(lower, " ", "")] {
		return true
	}
	if excludeWorkers && c.workers[lower] {
		return true
	}
	for _, kw := range c.Skip.Keywords {
		if strings.Contains(lower, kw) || strings.Contains(strings.ReplaceAll(lower, " ", ""), strings.ReplaceAll(kw, " ", "")) {
			return true
		}
	}
	return false
}

// HasPrefix reports which prefix of the family the ability starts with.
func HasPrefix(ability string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(ability, p) {
			return p, true
		}
	}
	return "", false
}

// Clean strips the production verb from an ability name ("Train Marine" -> "Marine").
func (c *Catalog) Clean(ability string) string {
	if p, ok := HasPrefix(ability, c.Prefixes.Strip); ok {
		return strings.TrimSpace(ability[len(p):])
	}
	return ability
}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// Pretty converts an internal type name into a display label, honoring aliases.
func (c *Catalog) Pretty(raw string) string {
	if raw == "" {
		return raw
	}
	if alias, ok := c.Aliases[strings.ToLower(raw)]; ok {
		return alias
	}
	spaced := camelBoundary.ReplaceAllString(raw, "$1 $2")
	words := strings.Fields(spaced)
	for i, w := range words {
		if len(w) > 1 && strings.ToUpper(w) == w {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// IsBoostTarget reports whether a boost can land on the type.
func (c *Catalog) IsBoostTarget(name string) bool {
	return c.boostTargets[strings.ToLower(name)]
}

// IsBoostCaster reports whether the type casts the boost.
func (c *Catalog) IsBoostCaster(name string) bool {
	return c.boostCasters[strings.ToLower(name)]
}

// BoostAbility is the canonical name of the boost ability.
func (c *Catalog) BoostAbility() string {
	if len(c.Boost.Abilities) == 0 {
		return ""
	}
	return c.Boost.Abilities[0]
}

// IllusionCreator reports whether a unit born from the creator ability is a
// decoy.
func (c *Catalog) IllusionCreator(ability string) bool {
	if ability == "" {
		return false
	}
	if _, ok := c.Illusions.Abilities[ability]; ok {
		return true
	}
	return c.Illusions.CreatorPrefix != "" && strings.HasPrefix(ability, c.Illusions.CreatorPrefix)
}

// IllusionAbilityFor returns the cast ability that creates a decoy of
// typeName, so a decoy birth can be replayed as its cast.
func (c *Catalog) IllusionAbilityFor(typeName string) (string, bool) {
	keys := make([]string, 0, len(c.Illusions.Abilities))
	for ability := range c.Illusions.Abilities {
		keys = append(keys, ability)
	}
	sort.Strings(keys)
	for _, ability := range keys {
		if strings.EqualFold(c.Illusions.Abilities[ability], typeName) {
			return ability, true
		}
	}
	return "", false
}

// IsMorph reports whether changing into the type is a production action.
func (c *Catalog) IsMorph(name string) bool {
	return c.morphs[strings.ToLower(name)]
}

// Ability resolves an s2prot ability link and command index to an ability
// name for a replay base build. The flat table wins; otherwise the table with
// the highest starting build not above build is used.
func (c *Catalog) Ability(build, link, cmdIndex int64) (string, bool) {
	key := fmt.Sprintf("%d/%d", link, cmdIndex)
	if name, ok := c.Abilities[key]; ok {
		return name, true
	}
	name, ok := c.abilityTable(build)[key]
	return name, ok
}

// HasAbilities reports whether any ability can resolve for build.
func (c *Catalog) HasAbilities(build int64) bool {
	return len(c.Abilities) > 0 || len(c.abilityTable(build)) > 0
}

func (c *Catalog) abilityTable(build int64) map[string]string {
	best := int64(-1)
	for from := range c.AbilityTables {
		if from <= build && from > best {
			best = from
		}
	}
	if best < 0 {
		return nil
	}
	return c.AbilityTables[best]
}
