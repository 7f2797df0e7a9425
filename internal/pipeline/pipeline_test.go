package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ValidSixFlows(t *testing.T) {
	def := Default()
	require.Len(t, def.Flows, 6)
	for i, f := range def.Flows {
		assert.Equal(t, CanonicalFlowOrder[i], f.Name)
	}
	assert.Empty(t, Validate(def))
}

func TestDefault_BuildFlowShape(t *testing.T) {
	def := Default()
	build := def.Flow(FlowBuild)
	require.NotNil(t, build)

	assert.Equal(t, []string{"plan"}, build.Gates)
	assert.Equal(t, []string{"requirements.md"}, build.Needs)
	require.Len(t, build.Checks, 1)
	assert.Equal(t, "int-equal", build.Checks[0].Comparator)

	station, ok := build.StationFor("tests.txt")
	require.True(t, ok)
	assert.Equal(t, "test-station", station)
}

func TestFlowRank(t *testing.T) {
	assert.Equal(t, 0, FlowRank(FlowSignal))
	assert.Equal(t, 5, FlowRank(FlowWisdom))
	assert.Equal(t, -1, FlowRank("bogus"))
}

func TestDefinition_Owner(t *testing.T) {
	def := Default()
	flow, station, ok := def.Owner("requirements.md")
	require.True(t, ok)
	assert.Equal(t, FlowPlan, flow)
	assert.Equal(t, "requirements", station)

	_, _, ok = def.Owner("does-not-exist.md")
	assert.False(t, ok)
}

func TestFlow_Artifacts(t *testing.T) {
	def := Default()
	build := def.Flow(FlowBuild)
	require.NotNil(t, build)
	names := make([]string, 0)
	for _, a := range build.Artifacts() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"summary.txt", "tests.txt"}, names)
}

func minimalFlow(name string) Flow {
	return Flow{
		Name: name,
		Stations: []Station{
			{Name: name + "-station", Produces: []Artifact{{Name: name + ".md"}}},
		},
	}
}

func TestValidate_EmptyDefinition(t *testing.T) {
	errs := Validate(&Definition{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no flows")
}

func TestValidate_UnknownFlowName(t *testing.T) {
	errs := Validate(&Definition{Flows: []Flow{minimalFlow("launch")}})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "unknown flow name")
}

func TestValidate_DuplicateFlow(t *testing.T) {
	errs := Validate(&Definition{Flows: []Flow{minimalFlow("signal"), {
		Name:     "signal",
		Stations: []Station{{Name: "other", Produces: []Artifact{{Name: "other.md"}}}},
	}}})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "declared twice")
}

func TestValidate_OutOfOrderFlows(t *testing.T) {
	errs := Validate(&Definition{Flows: []Flow{minimalFlow("build"), minimalFlow("signal")}})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "canonical order")
}

func TestValidate_DuplicateArtifactOwnerAcrossFlows(t *testing.T) {
	def := &Definition{Flows: []Flow{
		{Name: "signal", Stations: []Station{{Name: "a", Produces: []Artifact{{Name: "shared.md"}}}}},
		{Name: "plan", Stations: []Station{{Name: "b", Produces: []Artifact{{Name: "shared.md"}}}}},
	}}
	errs := Validate(def)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "already owned")
}

func TestValidate_CountCollision(t *testing.T) {
	def := &Definition{Flows: []Flow{{
		Name: "build",
		Stations: []Station{{
			Name: "s",
			Produces: []Artifact{
				{Name: "a.md", Summary: &Summary{Keys: []Key{{Name: "n", Count: "total"}}}},
				{Name: "b.md", Markers: []Marker{{Prefix: "X:", Count: "total"}}},
			},
		}},
	}}}
	errs := Validate(def)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), `count "total"`)
}

func TestValidate_CheckRefs(t *testing.T) {
	base := Flow{
		Name: "build",
		Stations: []Station{{
			Name:     "s",
			Produces: []Artifact{{Name: "a.md"}},
		}},
	}

	t.Run("undeclared artifact", func(t *testing.T) {
		f := base
		f.Checks = []Check{{
			Description: "c",
			Claim:       FactRef{Artifact: "ghost.md", Key: "k"},
			Evidence:    FactRef{Artifact: "a.md", Key: "k"},
		}}
		errs := Validate(&Definition{Flows: []Flow{f}})
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "undeclared artifact")
	})

	t.Run("both key and prefix", func(t *testing.T) {
		f := base
		f.Checks = []Check{{
			Description: "c",
			Claim:       FactRef{Artifact: "a.md", Key: "k", Prefix: "P:"},
			Evidence:    FactRef{Artifact: "a.md", Key: "k"},
		}}
		errs := Validate(&Definition{Flows: []Flow{f}})
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "exactly one of key or prefix")
	})

	t.Run("unknown comparator", func(t *testing.T) {
		f := base
		f.Checks = []Check{{
			Description: "c",
			Claim:       FactRef{Artifact: "a.md", Key: "k"},
			Evidence:    FactRef{Artifact: "a.md", Key: "k"},
			Comparator:  "fuzzy",
		}}
		errs := Validate(&Definition{Flows: []Flow{f}})
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "unknown comparator")
	})
}

func TestValidate_Needs(t *testing.T) {
	t.Run("undeclared", func(t *testing.T) {
		f := minimalFlow("build")
		f.Needs = []string{"ghost.md"}
		errs := Validate(&Definition{Flows: []Flow{f}})
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "undeclared artifact")
	})

	t.Run("same flow is not earlier", func(t *testing.T) {
		f := minimalFlow("build")
		f.Needs = []string{"build.md"}
		errs := Validate(&Definition{Flows: []Flow{f}})
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "not produced by an earlier flow")
	})
}

func TestValidate_Gates(t *testing.T) {
	t.Run("unknown flow", func(t *testing.T) {
		f := minimalFlow("plan")
		f.Gates = []string{"launch"}
		errs := Validate(&Definition{Flows: []Flow{f}})
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "unknown flow")
	})

	t.Run("later flow", func(t *testing.T) {
		f := minimalFlow("plan")
		f.Gates = []string{"deploy"}
		errs := Validate(&Definition{Flows: []Flow{f}})
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "not an earlier flow")
	})
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	def := &Definition{Flows: []Flow{{
		Name:     "signal",
		Stations: []Station{},
		Gates:    []string{"deploy"},
	}}}
	errs := Validate(def)
	assert.GreaterOrEqual(t, len(errs), 2, "validation does not stop at the first problem")
}

func TestLoadDir(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, ErrCodeNotFound, le.Code)
	})

	t.Run("no cue files", func(t *testing.T) {
		_, err := LoadDir(t.TempDir())
		require.Error(t, err)
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, ErrCodeNoFiles, le.Code)
	})

	t.Run("missing pipeline field", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "p.cue"), []byte(`other: 1`), 0o644))
		_, err := LoadDir(dir)
		require.Error(t, err)
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, ErrCodeMissing, le.Code)
	})

	t.Run("valid definition", func(t *testing.T) {
		dir := t.TempDir()
		src := `pipeline: {
	flows: [
		{
			name: "signal"
			stations: [
				{name: "intake", produces: [{name: "signal_report.md", required: true}]},
			]
		},
	]
}
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "p.cue"), []byte(src), 0o644))
		def, err := LoadDir(dir)
		require.NoError(t, err)
		require.Len(t, def.Flows, 1)
		assert.Equal(t, "signal", def.Flows[0].Name)
		assert.True(t, def.Flows[0].Stations[0].Produces[0].Required)
		assert.Empty(t, Validate(def))
	})
}
