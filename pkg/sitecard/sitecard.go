// Package sitecard loads the YAML job card a technician carries into a
// testing session: client, site, and job identification echoed into
// report headers.
package sitecard

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Card is the job metadata for one testing session.
type Card struct {
	// Client is the account the work is billed to. Required.
	Client string `yaml:"client"`

	// Site names the premises under test. Required.
	Site string `yaml:"site"`

	// Address is the site street address.
	Address string `yaml:"address,omitempty"`

	// Technician is the person performing the tests.
	Technician string `yaml:"technician,omitempty"`

	// JobNumber is the work-order reference.
	JobNumber string `yaml:"job_number,omitempty"`
}

// Errors returned by Load.
var (
	// ErrEmptyCard indicates an empty card file.
	ErrEmptyCard = errors.New("site card is empty")

	// ErrMissingField indicates a required field is absent.
	ErrMissingField = errors.New("site card field is required")
)

// Load reads and validates a site card from the given YAML file.
func Load(path string) (*Card, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied by design
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("site card not found: %s", path)
		}
		return nil, fmt.Errorf("read site card: %w", err)
	}
	return Parse(data)
}

// Parse validates a site card from raw YAML bytes.
func Parse(data []byte) (*Card, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ErrEmptyCard
	}

	var card Card
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&card); err != nil {
		return nil, fmt.Errorf("parse site card: %w", err)
	}

	if strings.TrimSpace(card.Client) == "" {
		return nil, fmt.Errorf("%w: client", ErrMissingField)
	}
	if strings.TrimSpace(card.Site) == "" {
		return nil, fmt.Errorf("%w: site", ErrMissingField)
	}

	return &card, nil
}
