package models

import (
	"fmt"
	"strings"
)

// ModelKind selects the decision model.
type ModelKind string

const (
	ModelDDM  ModelKind = "ddm"
	ModelADDM ModelKind = "addm"
)

// Valid reports whether k names a supported model.
func (k ModelKind) Valid() bool {
	return k == ModelDDM || k == ModelADDM
}

// ParseModelKind maps a case-insensitive name to a ModelKind.
func ParseModelKind(s string) (ModelKind, error) {
	k := ModelKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown model %q (valid: ddm, addm)", s)
	}
	return k, nil
}

// ParameterSet holds the free parameters of the DDM or aDDM.
// Theta is ignored by the DDM.
type ParameterSet struct {
	D     float64 `json:"d" yaml:"d"`
	Sigma float64 `json:"sigma" yaml:"sigma"`
	Theta float64 `json:"theta" yaml:"theta"`
}

// Validate checks that the parameters describe a usable model.
func (p ParameterSet) Validate(kind ModelKind) error {
	if p.Sigma <= 0 {
		return fmt.Errorf("sigma must be positive, got %g", p.Sigma)
	}
	if kind == ModelADDM && (p.Theta < 0 || p.Theta > 1) {
		return fmt.Errorf("theta must be in [0, 1], got %g", p.Theta)
	}
	return nil
}

// Format renders the parameters relevant to kind.
func (p ParameterSet) Format(kind ModelKind) string {
	if kind == ModelDDM {
		return fmt.Sprintf("d=%g sigma=%g", p.D, p.Sigma)
	}
	return fmt.Sprintf("d=%g sigma=%g theta=%g", p.D, p.Sigma, p.Theta)
}

func (p ParameterSet) String() string {
	return fmt.Sprintf("(d=%g, sigma=%g, theta=%g)", p.D, p.Sigma, p.Theta)
}
