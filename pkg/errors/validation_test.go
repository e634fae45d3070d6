package errors

import "testing"

func TestValidateModuleName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "arm", false},
		{"underscore", "front_leg", false},
		{"with digits", "spine2", false},
		{"empty", "", true},
		{"uppercase", "Arm", true},
		{"leading digit", "2arm", true},
		{"hyphen", "front-leg", true},
		{"space", "front leg", true},
		{"path separator", "arm/leg", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModuleName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateModuleName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNodeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"joint name", "l_shoulder", false},
		{"chain prefix", "ik_l_shoulder", false},
		{"control suffix", "fk_l_shoulder_ctrl", false},
		{"empty", "", true},
		{"slash", "l/shoulder", true},
		{"backslash", "l\\shoulder", true},
		{"pipe", "rig|joint", true},
		{"control char", "joint\x01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodeName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNodeName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateLayoutName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "biped", false},
		{"versioned", "biped_v2", false},
		{"empty", "", true},
		{"path separator", "a/b", true},
		{"traversal", "..secret", true},
		{"hidden", ".biped", true},
		{"null byte", "biped\x00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLayoutName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLayoutName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
