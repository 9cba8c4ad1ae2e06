package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundforge/soundforge/pkg/models"
)

func TestNodeTypeIDString(t *testing.T) {
	tests := []struct {
		name string
		id   models.NodeTypeID
		want string
	}{
		{
			"plain",
			models.NodeTypeID{Namespace: "sf", Name: "Sine", MajorVersion: 1},
			"sf.Sine@v1",
		},
		{
			"variant",
			models.NodeTypeID{Namespace: "sf", Name: "WavePlayer", Variant: "Mono", MajorVersion: 2},
			"sf.WavePlayer:Mono@v2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.String())
		})
	}
}

func TestParseNodeTypeID(t *testing.T) {
	tests := []struct {
		input string
		want  models.NodeTypeID
	}{
		{"sf.Sine@v1", models.NodeTypeID{Namespace: "sf", Name: "Sine", MajorVersion: 1}},
		{"sf.WavePlayer:Mono@v2", models.NodeTypeID{Namespace: "sf", Name: "WavePlayer", Variant: "Mono", MajorVersion: 2}},
		// Version suffix is optional and defaults to 1.
		{"game.Footstep", models.NodeTypeID{Namespace: "game", Name: "Footstep", MajorVersion: 1}},
		{"game.Footstep:Grass", models.NodeTypeID{Namespace: "game", Name: "Footstep", Variant: "Grass", MajorVersion: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := models.ParseNodeTypeID(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// String and Parse are inverses.
			back, err := models.ParseNodeTypeID(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, back)
		})
	}
}

func TestParseNodeTypeIDInvalid(t *testing.T) {
	inputs := []string{
		"",
		"NoNamespace",
		".LeadingDot",
		"trailing.",
		"sf.Sine@v0",
		"sf.Sine@vX",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := models.ParseNodeTypeID(input)
			assert.Error(t, err)
		})
	}
}

func TestJoinAssetPath(t *testing.T) {
	tests := []struct {
		path string
		name string
		want string
	}{
		{"/Game/Audio", "Pad", "/Game/Audio/Pad"},
		{"/Game/Audio/", "Pad", "/Game/Audio/Pad"},
		{"", "Pad", "Pad"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, models.JoinAssetPath(tt.path, tt.name))
		})
	}
}

func TestDataTypeHelpers(t *testing.T) {
	assert.True(t, models.EnumType("ENoiseType").IsEnum())
	assert.False(t, models.DataTypeFloat.IsEnum())

	arr := models.DataTypeFloat.Array()
	assert.True(t, arr.IsArray())
	assert.Equal(t, models.DataTypeFloat, arr.Elem())
	assert.Equal(t, arr, arr.Array())
	assert.Equal(t, models.DataTypeFloat, models.DataTypeFloat.Elem())
}

func TestLiteralAssignableTo(t *testing.T) {
	tests := []struct {
		name    string
		literal models.Literal
		dt      models.DataType
		want    bool
	}{
		{"float to float", models.FloatLiteral(440), models.DataTypeFloat, true},
		{"float to audio", models.FloatLiteral(440), models.DataTypeAudio, true},
		{"float to time", models.FloatLiteral(0.5), models.DataTypeTime, true},
		{"float to int", models.FloatLiteral(1), models.DataTypeInt32, false},
		{"int to int", models.IntLiteral(3), models.DataTypeInt32, true},
		{"int to float", models.IntLiteral(3), models.DataTypeFloat, true},
		{"int to enum", models.IntLiteral(1), models.EnumType("ENoiseType"), true},
		{"bool to bool", models.BoolLiteral(true), models.DataTypeBool, true},
		{"bool to trigger", models.BoolLiteral(true), models.DataTypeTrigger, false},
		{"string to string", models.StringLiteral("x"), models.DataTypeString, true},
		{"string to float", models.StringLiteral("440"), models.DataTypeFloat, false},
		{"object to wave asset", models.ObjectLiteral("/Game/Waves/Rain"), models.DataTypeWaveAsset, true},
		{"array of floats", models.ArrayLiteral(models.FloatLiteral(1), models.FloatLiteral(2)), models.DataTypeFloat.Array(), true},
		{"array with bad element", models.ArrayLiteral(models.FloatLiteral(1), models.StringLiteral("x")), models.DataTypeFloat.Array(), false},
		{"array to scalar", models.ArrayLiteral(models.FloatLiteral(1)), models.DataTypeFloat, false},
		{"scalar to array", models.FloatLiteral(1), models.DataTypeFloat.Array(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.literal.AssignableTo(tt.dt))
		})
	}
}

func TestLiteralEqual(t *testing.T) {
	assert.True(t, models.FloatLiteral(440).Equal(models.FloatLiteral(440)))
	assert.False(t, models.FloatLiteral(440).Equal(models.FloatLiteral(441)))
	assert.False(t, models.FloatLiteral(1).Equal(models.IntLiteral(1)))

	a := models.ArrayLiteral(models.IntLiteral(1), models.IntLiteral(2))
	b := models.ArrayLiteral(models.IntLiteral(1), models.IntLiteral(2))
	assert.True(t, a.Equal(b))

	c := models.ArrayLiteral(models.IntLiteral(1))
	assert.False(t, a.Equal(c))
}

func buildDocument() *models.GraphDocument {
	freq := models.FloatLiteral(330)

	return &models.GraphDocument{
		Name:      "pad",
		AssetType: models.AssetTypeSource,
		Nodes: []*models.GraphNode{
			{
				ID:       "n1",
				Type:     models.NodeTypeID{Namespace: "sf", Name: "Sine", MajorVersion: 1},
				Defaults: map[string]models.Literal{"Frequency": freq},
			},
			{
				ID:   "n2",
				Type: models.NodeTypeID{Namespace: "sf", Name: "Delay", MajorVersion: 1},
			},
		},
		Connections: []*models.Connection{
			{
				From: models.PortRef{NodeID: "n1", Pin: "Audio"},
				To:   models.PortRef{NodeID: "n2", Pin: "In"},
			},
		},
		Inputs: []models.GraphPort{
			{Name: "Pitch", Type: models.DataTypeFloat, Default: &freq},
		},
		Outputs: []models.GraphPort{
			{Name: "Out", Type: models.DataTypeAudio},
		},
	}
}

func TestDocumentClone(t *testing.T) {
	doc := buildDocument()
	clone := doc.Clone()

	require.True(t, doc.StructurallyEqual(clone))

	// Mutating the clone leaves the original untouched.
	clone.Nodes[0].Defaults["Frequency"] = models.FloatLiteral(880)
	clone.Connections[0].To.Pin = "Wet"
	clone.Inputs[0].Default = nil

	assert.True(t, doc.Nodes[0].Defaults["Frequency"].Equal(models.FloatLiteral(330)))
	assert.Equal(t, "In", doc.Connections[0].To.Pin)
	assert.NotNil(t, doc.Inputs[0].Default)
}

func TestStructurallyEqual(t *testing.T) {
	doc := buildDocument()

	t.Run("ignores name and node order", func(t *testing.T) {
		other := doc.Clone()
		other.Name = "renamed"
		other.Nodes[0], other.Nodes[1] = other.Nodes[1], other.Nodes[0]

		assert.True(t, doc.StructurallyEqual(other))
	})

	t.Run("detects default change", func(t *testing.T) {
		other := doc.Clone()
		other.Nodes[0].Defaults["Frequency"] = models.FloatLiteral(880)

		assert.False(t, doc.StructurallyEqual(other))
	})

	t.Run("detects rerouted connection", func(t *testing.T) {
		other := doc.Clone()
		other.Connections[0].To.Pin = "Wet"

		assert.False(t, doc.StructurallyEqual(other))
	})

	t.Run("detects missing port", func(t *testing.T) {
		other := doc.Clone()
		other.Outputs = nil

		assert.False(t, doc.StructurallyEqual(other))
	})

	t.Run("detects port default change", func(t *testing.T) {
		other := doc.Clone()
		def := models.FloatLiteral(999)
		other.Inputs[0].Default = &def

		assert.False(t, doc.StructurallyEqual(other))
	})
}

func TestDocumentLookups(t *testing.T) {
	doc := buildDocument()

	require.NotNil(t, doc.NodeByID("n1"))
	assert.Nil(t, doc.NodeByID("ghost"))

	conn := doc.IncomingConnection(models.PortRef{NodeID: "n2", Pin: "In"})
	require.NotNil(t, conn)
	assert.Equal(t, "n1", conn.From.NodeID)
	assert.Nil(t, doc.IncomingConnection(models.PortRef{NodeID: "n2", Pin: "Wet"}))

	require.NotNil(t, doc.InputByName("Pitch"))
	assert.Nil(t, doc.InputByName("Volume"))
	require.NotNil(t, doc.OutputByName("Out"))
	assert.Nil(t, doc.OutputByName("Aux"))
}

func TestValidAssetType(t *testing.T) {
	assert.True(t, models.ValidAssetType(models.AssetTypeSource))
	assert.True(t, models.ValidAssetType(models.AssetTypePatch))
	assert.True(t, models.ValidAssetType(models.AssetTypePreset))
	assert.False(t, models.ValidAssetType(models.AssetType("Banana")))
}
