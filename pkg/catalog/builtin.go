package catalog

import "github.com/soundforge/soundforge/pkg/models"

// RegisterBuiltinNodes loads the small built-in node set. It exists so the
// CLI and tests have a working catalog without a catalog file; real
// deployments sync the full set from the host engine.
func (c *StaticCatalog) RegisterBuiltinNodes() {
	for _, nt := range builtinNodes() {
		c.Register(nt)
	}
}

func builtinNodes() []*models.NodeType {
	floatDefault := func(v float64) *models.Literal {
		lit := models.FloatLiteral(v)

		return &lit
	}

	return []*models.NodeType{
		{
			ID:          models.NodeTypeID{Namespace: "sf", Name: "Sine", MajorVersion: 1},
			DisplayName: "Sine",
			Category:    "Generators",
			Description: "Sine wave oscillator.",
			Signature: models.PinSignature{
				Inputs: []models.PinDecl{
					{Name: "Frequency", Type: models.DataTypeFloat, Required: true, Default: floatDefault(440)},
					{Name: "Phase Offset", Type: models.DataTypeFloat, Default: floatDefault(0)},
				},
				Outputs: []models.PinDecl{
					{Name: "Audio", Type: models.DataTypeAudio},
				},
			},
			Tags: []string{"oscillator", "generator", "tone"},
		},
		{
			ID:          models.NodeTypeID{Namespace: "sf", Name: "Noise", MajorVersion: 1},
			DisplayName: "Noise",
			Category:    "Generators",
			Description: "White or pink noise generator.",
			Signature: models.PinSignature{
				Inputs: []models.PinDecl{
					{Name: "Type", Type: models.EnumType("ENoiseType")},
					{Name: "Seed", Type: models.DataTypeInt32},
				},
				Outputs: []models.PinDecl{
					{Name: "Audio", Type: models.DataTypeAudio},
				},
			},
			Tags: []string{"noise", "generator"},
		},
		{
			ID:          models.NodeTypeID{Namespace: "sf", Name: "WavePlayer", Variant: "Mono", MajorVersion: 1},
			DisplayName: "Wave Player (Mono)",
			Category:    "Generators",
			Description: "Plays a wave asset with pitch and loop control.",
			Signature: models.PinSignature{
				Inputs: []models.PinDecl{
					{Name: "Play", Type: models.DataTypeTrigger, Required: true},
					{Name: "Stop", Type: models.DataTypeTrigger},
					{Name: "Wave Asset", Type: models.DataTypeWaveAsset, Required: true},
					{Name: "Pitch Shift", Type: models.DataTypeFloat, Default: floatDefault(0)},
					{Name: "Loop", Type: models.DataTypeBool},
				},
				Outputs: []models.PinDecl{
					{Name: "On Finished", Type: models.DataTypeTrigger},
					{Name: "Out Mono", Type: models.DataTypeAudio},
				},
			},
			Tags: []string{"sample", "player", "wave"},
		},
		{
			ID:          models.NodeTypeID{Namespace: "sf", Name: "ADSR", MajorVersion: 1},
			DisplayName: "ADSR Envelope",
			Category:    "Envelopes",
			Description: "Attack/decay/sustain/release envelope generator.",
			Signature: models.PinSignature{
				Inputs: []models.PinDecl{
					{Name: "Trigger Attack", Type: models.DataTypeTrigger, Required: true},
					{Name: "Trigger Release", Type: models.DataTypeTrigger},
					{Name: "Attack Time", Type: models.DataTypeTime, Default: floatDefault(0.01)},
					{Name: "Decay Time", Type: models.DataTypeTime, Default: floatDefault(0.1)},
					{Name: "Sustain Level", Type: models.DataTypeFloat, Default: floatDefault(0.7)},
					{Name: "Release Time", Type: models.DataTypeTime, Default: floatDefault(0.2)},
				},
				Outputs: []models.PinDecl{
					{Name: "Envelope", Type: models.DataTypeAudio},
					{Name: "On Done", Type: models.DataTypeTrigger},
				},
			},
			Tags: []string{"envelope", "adsr", "dynamics"},
		},
		{
			ID:          models.NodeTypeID{Namespace: "sf", Name: "Multiply", Variant: "Audio", MajorVersion: 1},
			DisplayName: "Multiply (Audio)",
			Category:    "Math",
			Description: "Multiplies two audio signals, e.g. to apply an envelope.",
			Signature: models.PinSignature{
				Inputs: []models.PinDecl{
					{Name: "A", Type: models.DataTypeAudio, Required: true},
					{Name: "B", Type: models.DataTypeAudio, Required: true},
				},
				Outputs: []models.PinDecl{
					{Name: "Out", Type: models.DataTypeAudio},
				},
			},
			Tags: []string{"math", "multiply", "gain"},
		},
		{
			ID:          models.NodeTypeID{Namespace: "sf", Name: "MonoMixer", MajorVersion: 1},
			DisplayName: "Mono Mixer",
			Category:    "Mix",
			Description: "Mixes two mono signals with per-input gain.",
			Signature: models.PinSignature{
				Inputs: []models.PinDecl{
					{Name: "In 0", Type: models.DataTypeAudio, Required: true},
					{Name: "In 1", Type: models.DataTypeAudio},
					{Name: "Gain 0", Type: models.DataTypeFloat, Default: floatDefault(1)},
					{Name: "Gain 1", Type: models.DataTypeFloat, Default: floatDefault(1)},
				},
				Outputs: []models.PinDecl{
					{Name: "Out", Type: models.DataTypeAudio},
				},
			},
			Tags: []string{"mix", "mixer", "gain"},
		},
		{
			ID:          models.NodeTypeID{Namespace: "sf", Name: "Delay", MajorVersion: 1},
			DisplayName: "Delay",
			Category:    "Effects",
			Description: "Feedback delay line.",
			Signature: models.PinSignature{
				Inputs: []models.PinDecl{
					{Name: "In", Type: models.DataTypeAudio, Required: true},
					{Name: "Delay Time", Type: models.DataTypeTime, Default: floatDefault(0.25)},
					{Name: "Feedback", Type: models.DataTypeFloat, Default: floatDefault(0.3)},
					{Name: "Dry Wet", Type: models.DataTypeFloat, Default: floatDefault(0.5)},
				},
				Outputs: []models.PinDecl{
					{Name: "Out", Type: models.DataTypeAudio},
				},
			},
			Tags: []string{"delay", "effect", "echo"},
		},
	}
}
