// Package profile ingests the structured business profile a run is built
// from and persists it as brand memory for later runs.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Service is one offering with verified facts that must never be invented
// by a model.
type Service struct {
	Name     string `json:"name"`
	Price    string `json:"price,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// BrandProfile maps the business attributes a run is parameterized by.
// It is immutable once ingested; the controller owns it for the run.
type BrandProfile struct {
	Brand    string    `json:"brand"`
	Services []Service `json:"services"`
	Vibe     string    `json:"vibe,omitempty"`
	Industry string    `json:"industry,omitempty"`
}

// memoryPath is where ingested profiles are remembered between runs.
func memoryPath(workspace string) string {
	return filepath.Join(workspace, ".stitcher", "brand_memory.json")
}

// Load reads a profile from an explicit file, falling back to brand memory,
// falling back to a seeded demo profile. The returned profile is never nil.
func Load(workspace, profilePath string) (*BrandProfile, error) {
	if profilePath != "" {
		p, err := readProfile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load brand profile: %w", err)
		}
		return p, nil
	}

	if p, err := readProfile(memoryPath(workspace)); err == nil {
		return p, nil
	}

	return demoProfile(), nil
}

// SaveMemory persists the ingested profile so a later run can start from it.
func SaveMemory(workspace string, p *BrandProfile) error {
	path := memoryPath(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize brand memory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write brand memory: %w", err)
	}
	return nil
}

func readProfile(path string) (*BrandProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p BrandProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if p.Brand == "" {
		return nil, fmt.Errorf("profile %s has no brand name", path)
	}
	return &p, nil
}

// demoProfile seeds a structured profile when the operator supplies nothing.
func demoProfile() *BrandProfile {
	return &BrandProfile{
		Brand: "Luxury Pet Spa",
		Services: []Service{
			{Name: "Full Grooming", Price: "$85", Duration: "2hrs"},
			{Name: "Puppy Social", Price: "$45", Duration: "1hr"},
			{Name: "Medicated Bath", Price: "$60", Duration: "45mins"},
		},
		Vibe: "High-end, minimalist, serene",
	}
}
