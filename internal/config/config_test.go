package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/flexprep/internal/labware"
	"github.com/dyluth/flexprep/internal/robot"
)

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "workcell.yml")

	validConfig := `version: "1.0"
workcell: bench-a
robot:
  address: "http://flex-a.lab:31950"
journal:
  redis_url: "redis://localhost:6379"
layout: layout.csv
mix:
  count: 3
  premix: false
  start_tip_50: B7
aliquot:
  count: 8
  reagent_volume: 90
  incubation_minutes: 20
`
	err := os.WriteFile(configPath, []byte(validConfig), 0644)
	require.NoError(t, err)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.NotNil(t, config)
	assert.Equal(t, "1.0", config.Version)
	assert.Equal(t, "bench-a", config.Workcell)
	assert.Equal(t, "http://flex-a.lab:31950", config.Robot.Address)
	assert.Equal(t, "redis://localhost:6379", config.Journal.RedisURL)

	assert.Equal(t, 3, config.Mix.Count)
	assert.False(t, *config.Mix.Premix)
	assert.Equal(t, "B7", config.Mix.StartTip50)

	assert.Equal(t, 8, config.Aliquot.Count)
	assert.Equal(t, 90.0, config.Aliquot.ReagentVolume)
	assert.Equal(t, 20, *config.Aliquot.IncubationMinutes)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/workcell.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "workcell.yml")

	invalidYAML := `version: "1.0"
mix:
  - this is invalid
    yaml syntax
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	config, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "workcell.yml")

	minimalConfig := `version: "1.0"
workcell: bench-a
mix:
  count: 1
`
	err := os.WriteFile(configPath, []byte(minimalConfig), 0644)
	require.NoError(t, err)

	config, err := Load(configPath)
	require.NoError(t, err)

	// Deck defaults
	assert.Equal(t, "heatershaker", config.Deck.Module)
	assert.Equal(t, "pcr", config.Deck.Plate)
	assert.Equal(t, "tubes", config.Deck.Tubes)
	assert.Equal(t, "cells", config.Deck.Cells)
	assert.Equal(t, "B1", config.Deck.Tips50Slot)
	assert.Equal(t, "C4", config.Deck.Tips50Hold)

	// Mix defaults
	assert.Equal(t, 6, config.Mix.MaxComponents)
	assert.Equal(t, 12, config.Mix.BatchSize)
	assert.True(t, *config.Mix.Premix)
	assert.Equal(t, "A1", config.Mix.StartTip50)
	assert.Equal(t, "A1", config.Mix.StartTip200)
	assert.Equal(t, []string{"C1", "C2", "C3", "C4", "C5", "C6"}, config.Mix.SmallPool)
	assert.Equal(t, []string{"D1", "D2", "D3", "D4", "D5", "D6"}, config.Mix.FinalPool)

	// Aliquot defaults
	assert.Equal(t, 12, config.Aliquot.Count)
	assert.Equal(t, 88.0, config.Aliquot.ReagentVolume)
	assert.Equal(t, 20.0, config.Aliquot.AliquotVolume)
	assert.Equal(t, "D6", config.Aliquot.ReagentTube)
	assert.Equal(t, "C1", config.Aliquot.FirstMixWell)
	assert.Equal(t, 2, config.Aliquot.MixRows)
	assert.Equal(t, 6, config.Aliquot.MixColumns)
	assert.Equal(t, 15, *config.Aliquot.IncubationMinutes)
	assert.False(t, config.Aliquot.Premix)
	assert.Equal(t, 2.0, config.Aliquot.PremixVolume)

	// No robot, no journal unless configured
	assert.Nil(t, config.Robot)
	assert.Nil(t, config.Journal)
}

func TestLoad_ResolvesLayoutRelativeToConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "workcell.yml")

	cfg := `version: "1.0"
workcell: bench-a
layout: tables/plasmids.csv
mix:
  count: 1
`
	err := os.WriteFile(configPath, []byte(cfg), 0644)
	require.NoError(t, err)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "tables", "plasmids.csv"), config.Layout)
}

func TestValidate_UnsupportedVersion(t *testing.T) {
	config := &WorkcellConfig{
		Version:  "2.0",
		Workcell: "bench-a",
		Mix:      &MixConfig{Count: 1},
	}

	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version: 2.0")
}

func TestValidateWorkcellName(t *testing.T) {
	valid := []string{"bench-a", "flex1", "a", "lab-2-north"}
	for _, name := range valid {
		assert.NoError(t, ValidateWorkcellName(name), "name %s should be valid", name)
	}

	cases := []struct {
		name    string
		errText string
	}{
		{"", "cannot be empty"},
		{strings.Repeat("a", 64), "too long"},
		{"Bench-A", "lowercase"},
		{"-bench", "lowercase alphanumeric"},
		{"bench-", "lowercase alphanumeric"},
		{"bench_a", "lowercase alphanumeric"},
	}
	for _, tc := range cases {
		err := ValidateWorkcellName(tc.name)
		require.Error(t, err, "name %q should be rejected", tc.name)
		assert.Contains(t, err.Error(), tc.errText)
	}
}

func TestValidate_EmptyRobotAddress(t *testing.T) {
	config := &WorkcellConfig{
		Version:  "1.0",
		Workcell: "bench-a",
		Robot:    &RobotConfig{},
		Mix:      &MixConfig{Count: 1},
	}

	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "robot.address is empty")
}

func TestValidate_EmptyJournalURL(t *testing.T) {
	config := &WorkcellConfig{
		Version:  "1.0",
		Workcell: "bench-a",
		Journal:  &JournalConfig{},
		Mix:      &MixConfig{Count: 1},
	}

	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "journal.redis_url is empty")
}

func TestMixValidate_CountRequired(t *testing.T) {
	mix := &MixConfig{}

	err := mix.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "count must be at least 1")
}

func TestMixValidate_CountOverPlate(t *testing.T) {
	mix := &MixConfig{Count: 97}

	err := mix.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the 96 wells")
}

func TestMixValidate_InvalidStartTip(t *testing.T) {
	mix := &MixConfig{Count: 1, StartTip50: "Z9"}

	err := mix.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `start_tip_50 "Z9"`)
}

func TestMixValidate_PoolWellOffRack(t *testing.T) {
	mix := &MixConfig{
		Count:     1,
		SmallPool: []string{"E1"}, // tube rack rows stop at D
	}

	err := mix.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `vessel pool well "E1"`)
}

func TestMixValidate_DuplicatePoolWell(t *testing.T) {
	mix := &MixConfig{
		Count:     1,
		SmallPool: []string{"C1", "C2"},
		FinalPool: []string{"C1"},
	}

	err := mix.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "C1 listed twice")
}

func TestAliquotValidate_InvalidReagentTube(t *testing.T) {
	aliquot := &AliquotConfig{ReagentTube: "E9"}

	err := aliquot.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `reagent_tube "E9"`)
}

func TestAliquotValidate_NegativeIncubation(t *testing.T) {
	minutes := -5
	aliquot := &AliquotConfig{IncubationMinutes: &minutes}

	err := aliquot.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "incubation_minutes must be >= 0")
}

func TestDeckValidate_DuplicateNames(t *testing.T) {
	deck := &DeckConfig{Plate: "tubes"}

	err := deck.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "deck names must be distinct")
}

func TestDeckValidate_SameSwapSlot(t *testing.T) {
	deck := &DeckConfig{Tips50Slot: "B1", Tips50Hold: "B1"}

	err := deck.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must be different slots")
}

func TestMixRacks(t *testing.T) {
	config := &WorkcellConfig{
		Version:  "1.0",
		Workcell: "bench-a",
		Mix:      &MixConfig{Count: 1, StartTip50: "H3"},
	}
	require.NoError(t, config.Validate())

	racks := config.MixRacks()
	require.Len(t, racks, 2)

	assert.Equal(t, labware.Tip50, racks[0].Class)
	assert.Equal(t, robot.MountLeft, racks[0].Mount)
	assert.Equal(t, "tips50", racks[0].Labware)
	assert.Equal(t, "H3", racks[0].StartTip)
	assert.Equal(t, "tips50reserve", racks[0].Reserve)
	assert.Equal(t, "B1", racks[0].ActiveSlot)
	assert.Equal(t, "C4", racks[0].HoldSlot)

	assert.Equal(t, labware.Tip200, racks[1].Class)
	assert.Equal(t, robot.MountRight, racks[1].Mount)
	assert.Equal(t, "tips200", racks[1].Labware)
	assert.Empty(t, racks[1].Reserve)
}

func TestAliquotRacks(t *testing.T) {
	config := &WorkcellConfig{
		Version:  "1.0",
		Workcell: "bench-a",
		Mix:      &MixConfig{Count: 1},
	}
	require.NoError(t, config.Validate())

	racks := config.AliquotRacks()
	require.Len(t, racks, 2)

	assert.Equal(t, labware.Tip200, racks[0].Class)
	assert.Equal(t, robot.MountRight, racks[0].Mount)
	assert.Equal(t, labware.Tip1000, racks[1].Class)
	assert.Equal(t, robot.MountRight, racks[1].Mount)
	assert.Equal(t, "tips1000", racks[1].Labware)
	assert.Empty(t, racks[0].Reserve)
	assert.Empty(t, racks[1].Reserve)
}

func TestMixParams_Conversion(t *testing.T) {
	config := &WorkcellConfig{
		Version:  "1.0",
		Workcell: "bench-a",
		Mix: &MixConfig{
			Count:     5,
			SmallPool: []string{"C1", "C2"},
			FinalPool: []string{"D1", "D2"},
		},
	}
	require.NoError(t, config.Validate())

	params := config.MixParams()
	assert.Equal(t, 5, params.MixCount)
	assert.Equal(t, 6, params.MaxComponents)
	assert.Equal(t, 12, params.BatchSize)
	assert.True(t, params.Premix)
	assert.Equal(t, []string{"C1", "C2"}, params.SmallPool)
	assert.Equal(t, []string{"D1", "D2"}, params.FinalPool)
}

func TestAliquotParams_Conversion(t *testing.T) {
	config := &WorkcellConfig{
		Version:  "1.0",
		Workcell: "bench-a",
		Mix:      &MixConfig{Count: 1},
	}
	require.NoError(t, config.Validate())

	params := config.AliquotParams()
	assert.Equal(t, 12, params.MixCount)
	assert.Equal(t, 88.0, params.ReagentVolume)
	assert.Equal(t, 20.0, params.AliquotVolume)
	assert.Equal(t, "D6", params.ReagentTube)
	assert.Equal(t, "C1", params.FirstMixWell)
	assert.Equal(t, 2, params.MixRows)
	assert.Equal(t, 6, params.MixColumnsPerRow)
	assert.Equal(t, 15*time.Minute, params.Delay)
	assert.False(t, params.Premix)
	assert.Equal(t, 2.0, params.PremixVolume)
}
