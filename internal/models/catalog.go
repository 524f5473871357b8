package models

import (
	"time"
)

// Pesticide is an administered reference record
type Pesticide struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	Description        string    `json:"description" db:"description"`
	ChemicalName       string    `json:"chemical_name" db:"chemical_name"`
	ToxicityLevel      string    `json:"toxicity_level" db:"toxicity_level"`
	ApplicationMethods string    `json:"application_methods" db:"application_methods"`
	SafetyPrecautions  string    `json:"safety_precautions" db:"safety_precautions"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// PesticideInput is the create/update payload for pesticides
type PesticideInput struct {
	Name               string `json:"name"`
	Description        string `json:"description"`
	ChemicalName       string `json:"chemical_name"`
	ToxicityLevel      string `json:"toxicity_level"`
	ApplicationMethods string `json:"application_methods"`
	SafetyPrecautions  string `json:"safety_precautions"`
}

// Pest is an administered reference record
type Pest struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PestInput is the create/update payload for pests
type PestInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ValidToxicityLevels defines accepted toxicity labels; empty is allowed
var ValidToxicityLevels = map[string]bool{
	"low":      true,
	"moderate": true,
	"high":     true,
	"extreme":  true,
}

// SeedResult summarises a catalog seed run
type SeedResult struct {
	PestsInserted      int `json:"pests_inserted"`
	PesticidesInserted int `json:"pesticides_inserted"`
	Skipped            int `json:"skipped"`
}
