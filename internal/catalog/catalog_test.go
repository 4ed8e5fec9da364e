package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ecoquest_miniapp/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	defs, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, defs)

	counts := map[model.Difficulty]int{}
	daily := map[model.Difficulty]int{}
	var persistent int
	for _, d := range defs {
		if d.Track == model.CatalogPersistent {
			persistent++
			continue
		}
		counts[d.Difficulty]++
		if d.DurationDays <= 1 && d.Type != model.MissionConsecutiveDays {
			daily[d.Difficulty]++
		}
	}

	assert.Positive(t, persistent)
	// Enough periodic definitions to fill the default quotas.
	assert.GreaterOrEqual(t, daily[model.DifficultyEasy], 4)
	assert.GreaterOrEqual(t, daily[model.DifficultyMedium], 1)
	assert.GreaterOrEqual(t, counts[model.DifficultyMedium], 4)
	assert.GreaterOrEqual(t, counts[model.DifficultyHard], 3)
	assert.GreaterOrEqual(t, counts[model.DifficultyExpert], 1)
}

func TestLoad_Defaults(t *testing.T) {
	defs, err := Load(strings.NewReader(`
missions:
  - id: 7
    track: periodic
    type: co2_saved
    title: Save
    target: 2
    xpReward: 10
    difficulty: easy
`))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, 1, defs[0].MinLevel)
	assert.Equal(t, 1, defs[0].DurationDays)
	assert.Equal(t, model.CatalogPeriodic, defs[0].Track)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown type",
			doc: `
missions:
  - {id: 1, track: periodic, type: trees_planted, title: T, target: 1, difficulty: easy}
`,
			want: `unknown type "trees_planted"`,
		},
		{
			name: "duplicate id",
			doc: `
missions:
  - {id: 1, track: periodic, type: co2_saved, title: A, target: 1, difficulty: easy}
  - {id: 1, track: periodic, type: co2_saved, title: B, target: 1, difficulty: easy}
`,
			want: "duplicate id",
		},
		{
			name: "window too long",
			doc: `
missions:
  - {id: 1, track: periodic, type: consecutive_days, title: A, target: 9, durationDays: 10, difficulty: hard}
`,
			want: "exceeds 7 days",
		},
		{
			name: "missing activity ids",
			doc: `
missions:
  - {id: 1, track: persistent, type: specific_activity, title: A, target: 5, difficulty: easy}
`,
			want: "required activity ids",
		},
		{
			name: "unknown field",
			doc: `
missions:
  - {id: 1, track: persistent, type: co2_saved, title: A, target: 5, difficulty: easy, reward: 3}
`,
			want: "reward",
		},
		{
			name: "empty",
			doc:  "",
			want: "catalog is empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missions.yaml")
	require.NoError(t, os.WriteFile(path, defaultCatalog, 0o600))

	fromFile, err := LoadFile(path)
	require.NoError(t, err)
	embedded, err := Default()
	require.NoError(t, err)
	assert.Equal(t, embedded, fromFile)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
