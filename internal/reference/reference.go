// Package reference serves the static pest description and pesticide tables.
package reference

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/models"
)

const (
	// NoDescription is returned for pests missing from the description table
	NoDescription = "No detailed description available."
	// NoPesticideData names the placeholder pesticide entry
	NoPesticideData = "No pesticide data available"
)

type descriptionRecord struct {
	PestName    string `json:"pest_name"`
	Description string `json:"description"`
}

type pesticideRecord struct {
	PestName   string                   `json:"pest_name"`
	Pesticides []models.PesticideDosage `json:"pesticides"`
}

// Entry is one pest with everything the tables know about it
type Entry struct {
	Name        string
	Description string
	Pesticides  []models.PesticideDosage
}

// Store holds both tables keyed by folded pest name. It is read-only after
// Load and safe for concurrent use.
type Store struct {
	descriptions map[string]string
	pesticides   map[string][]models.PesticideDosage
	names        map[string]string
}

func foldKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Load reads both tables. A missing or malformed file is logged and treated
// as an empty table so lookups never fail.
func Load(descriptionsPath, pesticidesPath string, log zerolog.Logger) *Store {
	log = log.With().Str("component", "reference").Logger()
	s := &Store{
		descriptions: make(map[string]string),
		pesticides:   make(map[string][]models.PesticideDosage),
		names:        make(map[string]string),
	}

	var descriptions []descriptionRecord
	if err := readJSON(descriptionsPath, &descriptions); err != nil {
		log.Warn().Err(err).Str("path", descriptionsPath).Msg("Pest descriptions unavailable")
	}
	for _, rec := range descriptions {
		key := foldKey(rec.PestName)
		if key == "" {
			continue
		}
		s.descriptions[key] = rec.Description
		s.remember(key, rec.PestName)
	}

	var pesticides []pesticideRecord
	if err := readJSON(pesticidesPath, &pesticides); err != nil {
		log.Warn().Err(err).Str("path", pesticidesPath).Msg("Pesticide table unavailable")
	}
	for _, rec := range pesticides {
		key := foldKey(rec.PestName)
		if key == "" {
			continue
		}
		s.pesticides[key] = rec.Pesticides
		s.remember(key, rec.PestName)
	}

	log.Info().
		Int("descriptions", len(s.descriptions)).
		Int("pesticide_entries", len(s.pesticides)).
		Msg("Reference tables loaded")

	return s
}

// remember keeps the first spelling seen for a pest
func (s *Store) remember(key, name string) {
	if _, ok := s.names[key]; !ok {
		s.names[key] = strings.TrimSpace(name)
	}
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	return nil
}

// Lookup returns the description and pesticides for name, ignoring case and
// surrounding whitespace. Unknown pests get placeholder content. The
// requested name is echoed back unchanged.
func (s *Store) Lookup(name string) models.PestInfo {
	key := foldKey(name)
	info := models.PestInfo{
		PestName:    name,
		Description: NoDescription,
	}

	if desc, ok := s.descriptions[key]; ok {
		info.Description = desc
		info.Found = true
	}
	if pesticides, ok := s.pesticides[key]; ok {
		info.Found = true
		if len(pesticides) > 0 {
			info.Pesticides = append([]models.PesticideDosage(nil), pesticides...)
		}
	}
	if len(info.Pesticides) == 0 {
		info.Pesticides = []models.PesticideDosage{{Name: NoPesticideData}}
	}

	return info
}

// Entries lists every pest known to either table, sorted by name
func (s *Store) Entries() []Entry {
	entries := make([]Entry, 0, len(s.names))
	for key, name := range s.names {
		entries = append(entries, Entry{
			Name:        name,
			Description: s.descriptions[key],
			Pesticides:  s.pesticides[key],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries
}

// Len returns the number of distinct pests
func (s *Store) Len() int {
	return len(s.names)
}
