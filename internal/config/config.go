// Package config loads and validates workcell.yml, the per-bench
// description of the robot, its deck, and the protocol parameter defaults.
// Validation is strict and happens at load time: a config that loads is a
// config every command can act on without re-checking.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/flexprep/internal/labware"
	"github.com/dyluth/flexprep/internal/plan"
	"github.com/dyluth/flexprep/internal/protocol"
	"github.com/dyluth/flexprep/internal/robot"
)

// Deck names the robot's API uses for the labware the protocols touch.
// The appliance maps these to its loaded labware; only the 50 µL rack swap
// references slots directly, because the gripper moves racks between them.
const (
	DefaultModuleName = "heatershaker"
	DefaultPlateName  = "pcr"
	DefaultTubesName  = "tubes"
	DefaultCellsName  = "cells"

	Tips50Name        = "tips50"
	Tips50ReserveName = "tips50reserve"
	Tips200Name       = "tips200"
	Tips1000Name      = "tips1000"

	DefaultTips50Slot = "B1"
	DefaultTips50Hold = "C4"
)

const (
	// MaxNameLength is the maximum length for a workcell name.
	MaxNameLength = 63

	// DefaultIncubationMinutes is how long an aliquoting run waits between
	// reagent distribution and carrying the mixes to the cells.
	DefaultIncubationMinutes = 15
)

var (
	// NamePattern is the regex pattern for valid workcell names: lowercase
	// alphanumeric with hyphens, not at the start or end. Workcell names end
	// up in journal key prefixes, so they follow the same rules everywhere.
	NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
)

// WorkcellConfig represents the top-level workcell.yml configuration.
type WorkcellConfig struct {
	Version  string         `yaml:"version"`
	Workcell string         `yaml:"workcell"`
	Robot    *RobotConfig   `yaml:"robot,omitempty"`
	Journal  *JournalConfig `yaml:"journal,omitempty"` // omit to run without a journal
	Layout   string         `yaml:"layout,omitempty"`  // mix table CSV, relative to this file
	Deck     *DeckConfig    `yaml:"deck,omitempty"`
	Mix      *MixConfig     `yaml:"mix,omitempty"`
	Aliquot  *AliquotConfig `yaml:"aliquot,omitempty"`
}

// RobotConfig points at the robot appliance. Required for 'run', unused by
// 'validate' and 'plan'.
type RobotConfig struct {
	Address string `yaml:"address"`
}

// JournalConfig enables the optional run journal.
type JournalConfig struct {
	RedisURL string `yaml:"redis_url"`
}

// DeckConfig renames the deck items if the robot knows them under different
// names. Every field is optional; the defaults match the standard deck.
type DeckConfig struct {
	Module string `yaml:"module,omitempty"` // heater-shaker module
	Plate  string `yaml:"plate,omitempty"`  // PCR plate on the module
	Tubes  string `yaml:"tubes,omitempty"`  // 24-position Eppendorf rack
	Cells  string `yaml:"cells,omitempty"`  // flat-bottom cell plate

	Tips50Slot string `yaml:"tips_50_slot,omitempty"` // slot of the working 50 µL rack
	Tips50Hold string `yaml:"tips_50_hold,omitempty"` // parking slot for the emptied rack
}

// MixConfig holds the mix-construction parameters.
type MixConfig struct {
	Count         int   `yaml:"count"`
	MaxComponents int   `yaml:"max_components,omitempty"` // table columns read per mix, NaCl included
	BatchSize     int   `yaml:"batch_size,omitempty"`
	Premix        *bool `yaml:"premix,omitempty"` // stir sources before drawing (default: true)

	StartTip50  string `yaml:"start_tip_50,omitempty"`
	StartTip200 string `yaml:"start_tip_200,omitempty"`

	// SmallPool and FinalPool are the tube-rack wells free for intermediate
	// vessels, consumed front first.
	SmallPool []string `yaml:"small_pool,omitempty"`
	FinalPool []string `yaml:"final_pool,omitempty"`
}

// AliquotConfig holds the aliquoting parameters.
type AliquotConfig struct {
	Count         int     `yaml:"count,omitempty"`
	ReagentVolume float64 `yaml:"reagent_volume,omitempty"` // µL into each mix well
	AliquotVolume float64 `yaml:"aliquot_volume,omitempty"` // µL per cell well
	ReagentTube   string  `yaml:"reagent_tube,omitempty"`   // tube-rack well with the reagent

	FirstMixWell string `yaml:"first_mix_well,omitempty"`
	MixRows      int    `yaml:"mix_rows,omitempty"`
	MixColumns   int    `yaml:"mix_columns,omitempty"`

	IncubationMinutes *int    `yaml:"incubation_minutes,omitempty"`
	Premix            bool    `yaml:"premix,omitempty"` // stir the reagent before each refill
	PremixVolume      float64 `yaml:"premix_volume,omitempty"`

	StartTip200  string `yaml:"start_tip_200,omitempty"`
	StartTip1000 string `yaml:"start_tip_1000,omitempty"`
}

// Load reads and validates workcell.yml from the specified path. The layout
// path comes back resolved relative to the config file, so callers can open
// it from any working directory.
func Load(path string) (*WorkcellConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config WorkcellConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if config.Layout != "" && !filepath.IsAbs(config.Layout) {
		config.Layout = filepath.Join(filepath.Dir(path), config.Layout)
	}

	return &config, nil
}

// ValidateWorkcellName checks a workcell name against the naming rules.
// Names appear in journal keys and run records, so they are restricted the
// same way DNS labels are.
func ValidateWorkcellName(name string) error {
	if name == "" {
		return fmt.Errorf("workcell name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("workcell name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid workcell name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// Validate performs strict validation and fills in defaults. After Validate
// returns nil, every accessor on the config yields usable values.
func (c *WorkcellConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := ValidateWorkcellName(c.Workcell); err != nil {
		return err
	}

	if c.Robot != nil && c.Robot.Address == "" {
		return fmt.Errorf("robot section present but robot.address is empty")
	}

	if c.Journal != nil && c.Journal.RedisURL == "" {
		return fmt.Errorf("journal section present but journal.redis_url is empty")
	}

	if c.Deck == nil {
		c.Deck = &DeckConfig{}
	}
	if err := c.Deck.Validate(); err != nil {
		return err
	}

	if c.Mix == nil {
		c.Mix = &MixConfig{}
	}
	if err := c.Mix.Validate(); err != nil {
		return fmt.Errorf("mix: %w", err)
	}

	if c.Aliquot == nil {
		c.Aliquot = &AliquotConfig{}
	}
	if err := c.Aliquot.Validate(); err != nil {
		return fmt.Errorf("aliquot: %w", err)
	}

	return nil
}

// Validate fills deck defaults and checks the names and slots are distinct.
func (d *DeckConfig) Validate() error {
	if d.Module == "" {
		d.Module = DefaultModuleName
	}
	if d.Plate == "" {
		d.Plate = DefaultPlateName
	}
	if d.Tubes == "" {
		d.Tubes = DefaultTubesName
	}
	if d.Cells == "" {
		d.Cells = DefaultCellsName
	}
	if d.Tips50Slot == "" {
		d.Tips50Slot = DefaultTips50Slot
	}
	if d.Tips50Hold == "" {
		d.Tips50Hold = DefaultTips50Hold
	}

	names := map[string]bool{d.Module: true, d.Plate: true, d.Tubes: true, d.Cells: true}
	if len(names) != 4 {
		return fmt.Errorf("deck names must be distinct: got module=%s plate=%s tubes=%s cells=%s",
			d.Module, d.Plate, d.Tubes, d.Cells)
	}

	if d.Tips50Slot == d.Tips50Hold {
		return fmt.Errorf("tips_50_slot and tips_50_hold must be different slots, both are %s", d.Tips50Slot)
	}

	return nil
}

// Validate fills mix defaults and checks the knobs against the labware.
func (m *MixConfig) Validate() error {
	if m.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", m.Count)
	}
	if max := labware.Plate96.NumWells(); m.Count > max {
		return fmt.Errorf("count %d exceeds the %d wells of a %s", m.Count, max, labware.Plate96.Name)
	}

	if m.MaxComponents == 0 {
		m.MaxComponents = protocol.DefaultMaxComponents
	}
	if m.MaxComponents < 2 {
		return fmt.Errorf("max_components must be at least 2 (one plasmid plus NaCl), got %d", m.MaxComponents)
	}

	if m.BatchSize == 0 {
		m.BatchSize = protocol.DefaultBatchSize
	}
	if m.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", m.BatchSize)
	}

	if m.Premix == nil {
		premix := true
		m.Premix = &premix
	}

	if m.StartTip50 == "" {
		m.StartTip50 = "A1"
	}
	if m.StartTip200 == "" {
		m.StartTip200 = "A1"
	}
	if !labware.TipRack96.Contains(m.StartTip50) {
		return fmt.Errorf("start_tip_50 %q is not a position on a %s", m.StartTip50, labware.TipRack96.Name)
	}
	if !labware.TipRack96.Contains(m.StartTip200) {
		return fmt.Errorf("start_tip_200 %q is not a position on a %s", m.StartTip200, labware.TipRack96.Name)
	}

	if len(m.SmallPool) == 0 {
		m.SmallPool = defaultPool("C")
	}
	if len(m.FinalPool) == 0 {
		m.FinalPool = defaultPool("D")
	}

	seen := make(map[string]bool)
	for _, well := range append(append([]string{}, m.SmallPool...), m.FinalPool...) {
		if !labware.TubeRack24.Contains(well) {
			return fmt.Errorf("vessel pool well %q is not a position on a %s", well, labware.TubeRack24.Name)
		}
		if seen[well] {
			return fmt.Errorf("vessel pool well %s listed twice", well)
		}
		seen[well] = true
	}

	return nil
}

// defaultPool builds the standard six-well vessel row on the tube rack.
func defaultPool(row string) []string {
	pool := make([]string, 0, labware.TubeRack24.Columns)
	for col := 1; col <= labware.TubeRack24.Columns; col++ {
		pool = append(pool, fmt.Sprintf("%s%d", row, col))
	}
	return pool
}

// Validate fills aliquot defaults. Geometry and volume feasibility beyond
// basic sanity stays with the protocol compiler, which owns those rules.
func (a *AliquotConfig) Validate() error {
	if a.Count == 0 {
		a.Count = 12
	}
	if a.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", a.Count)
	}

	if a.ReagentVolume == 0 {
		a.ReagentVolume = 88
	}
	if a.AliquotVolume == 0 {
		a.AliquotVolume = 20
	}
	if a.ReagentVolume < 0 || a.AliquotVolume < 0 {
		return fmt.Errorf("reagent_volume and aliquot_volume must be positive")
	}

	if a.ReagentTube == "" {
		a.ReagentTube = "D6"
	}
	if !labware.TubeRack24.Contains(a.ReagentTube) {
		return fmt.Errorf("reagent_tube %q is not a position on a %s", a.ReagentTube, labware.TubeRack24.Name)
	}

	if a.FirstMixWell == "" {
		a.FirstMixWell = "C1"
	}
	if !labware.Plate96.Contains(a.FirstMixWell) {
		return fmt.Errorf("first_mix_well %q is not a position on a %s", a.FirstMixWell, labware.Plate96.Name)
	}

	if a.MixRows == 0 {
		a.MixRows = 2
	}
	if a.MixColumns == 0 {
		a.MixColumns = 6
	}
	if a.MixRows < 1 || a.MixColumns < 1 {
		return fmt.Errorf("mix_rows and mix_columns must be at least 1")
	}

	if a.IncubationMinutes == nil {
		minutes := DefaultIncubationMinutes
		a.IncubationMinutes = &minutes
	}
	if *a.IncubationMinutes < 0 {
		return fmt.Errorf("incubation_minutes must be >= 0, got %d", *a.IncubationMinutes)
	}

	if a.PremixVolume == 0 {
		a.PremixVolume = 2
	}
	if a.PremixVolume < 0 {
		return fmt.Errorf("premix_volume must be positive")
	}

	if a.StartTip200 == "" {
		a.StartTip200 = "A1"
	}
	if a.StartTip1000 == "" {
		a.StartTip1000 = "A1"
	}
	if !labware.TipRack96.Contains(a.StartTip200) {
		return fmt.Errorf("start_tip_200 %q is not a position on a %s", a.StartTip200, labware.TipRack96.Name)
	}
	if !labware.TipRack96.Contains(a.StartTip1000) {
		return fmt.Errorf("start_tip_1000 %q is not a position on a %s", a.StartTip1000, labware.TipRack96.Name)
	}

	return nil
}

// MixDeck returns the deck names the mix build touches.
func (c *WorkcellConfig) MixDeck() protocol.MixDeck {
	return protocol.MixDeck{
		Module: c.Deck.Module,
		Plate:  c.Deck.Plate,
		Tubes:  c.Deck.Tubes,
	}
}

// AliquotDeck returns the deck names the aliquoting run touches.
func (c *WorkcellConfig) AliquotDeck() protocol.AliquotDeck {
	return protocol.AliquotDeck{
		Module: c.Deck.Module,
		Plate:  c.Deck.Plate,
		Tubes:  c.Deck.Tubes,
		Cells:  c.Deck.Cells,
	}
}

// MixParams converts the mix section into protocol parameters.
func (c *WorkcellConfig) MixParams() protocol.MixParams {
	return protocol.MixParams{
		MixCount:      c.Mix.Count,
		MaxComponents: c.Mix.MaxComponents,
		BatchSize:     c.Mix.BatchSize,
		Premix:        *c.Mix.Premix,
		SmallPool:     c.Mix.SmallPool,
		FinalPool:     c.Mix.FinalPool,
	}
}

// AliquotParams converts the aliquot section into protocol parameters.
func (c *WorkcellConfig) AliquotParams() protocol.AliquotParams {
	return protocol.AliquotParams{
		MixCount:         c.Aliquot.Count,
		ReagentVolume:    c.Aliquot.ReagentVolume,
		AliquotVolume:    c.Aliquot.AliquotVolume,
		ReagentTube:      c.Aliquot.ReagentTube,
		FirstMixWell:     c.Aliquot.FirstMixWell,
		MixRows:          c.Aliquot.MixRows,
		MixColumnsPerRow: c.Aliquot.MixColumns,
		Delay:            time.Duration(*c.Aliquot.IncubationMinutes) * time.Minute,
		Premix:           c.Aliquot.Premix,
		PremixVolume:     c.Aliquot.PremixVolume,
	}
}

// MixRacks returns the tip supply for a mix build: 50 µL tips on the left
// instrument with a reserve rack, 200 µL tips on the right.
func (c *WorkcellConfig) MixRacks() []plan.RackConfig {
	return []plan.RackConfig{
		{
			Class:      labware.Tip50,
			Mount:      robot.MountLeft,
			Labware:    Tips50Name,
			StartTip:   c.Mix.StartTip50,
			Reserve:    Tips50ReserveName,
			ActiveSlot: c.Deck.Tips50Slot,
			HoldSlot:   c.Deck.Tips50Hold,
		},
		{
			Class:    labware.Tip200,
			Mount:    robot.MountRight,
			Labware:  Tips200Name,
			StartTip: c.Mix.StartTip200,
		},
	}
}

// AliquotRacks returns the tip supply for an aliquoting run: both classes
// serve the right instrument, and neither carries a reserve.
func (c *WorkcellConfig) AliquotRacks() []plan.RackConfig {
	return []plan.RackConfig{
		{
			Class:    labware.Tip200,
			Mount:    robot.MountRight,
			Labware:  Tips200Name,
			StartTip: c.Aliquot.StartTip200,
		},
		{
			Class:    labware.Tip1000,
			Mount:    robot.MountRight,
			Labware:  Tips1000Name,
			StartTip: c.Aliquot.StartTip1000,
		},
	}
}
