package config

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a named frequency band and duration window
type Profile struct {
	FreqMin     float64       `yaml:"freq_min"`
	FreqMax     float64       `yaml:"freq_max"`
	DurationMin time.Duration `yaml:"duration_min"`
	DurationMax time.Duration `yaml:"duration_max"`
}

type profileFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// BuiltinProfiles returns the profiles compiled into the binary
func BuiltinProfiles() map[string]Profile {
	return map[string]Profile{
		"bark": {
			FreqMin:     600,
			FreqMax:     1600,
			DurationMin: 60 * time.Millisecond,
			DurationMax: 250 * time.Millisecond,
		},
		"growl": {
			FreqMin:     300,
			FreqMax:     600,
			DurationMin: 200 * time.Millisecond,
			DurationMax: 2 * time.Second,
		},
	}
}

// LoadProfiles decodes a profile file. Unknown keys are an error.
//
//	profiles:
//	  small_dog:
//	    freq_min: 900
//	    freq_max: 2200
//	    duration_min: 40ms
//	    duration_max: 200ms
func LoadProfiles(r io.Reader) (map[string]Profile, error) {
	var file profileFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	profiles := make(map[string]Profile, len(file.Profiles))
	for name, p := range file.Profiles {
		profiles[strings.ToLower(name)] = p
	}
	return profiles, nil
}

// resolveProfile picks PROFILE from the built-in set overlaid with PROFILE_FILE
func (c *Config) resolveProfile() (Profile, error) {
	profiles := BuiltinProfiles()

	if c.ProfileFile != "" {
		f, err := os.Open(c.ProfileFile)
		if err != nil {
			return Profile{}, fmt.Errorf("open profile file %q: %w", c.ProfileFile, err)
		}
		defer f.Close()

		extra, err := LoadProfiles(f)
		if err != nil {
			return Profile{}, fmt.Errorf("profile file %q: %w", c.ProfileFile, err)
		}
		for name, p := range extra {
			profiles[name] = p
		}
	}

	p, ok := profiles[c.Profile]
	if !ok {
		names := make([]string, 0, len(profiles))
		for name := range profiles {
			names = append(names, name)
		}
		sort.Strings(names)
		return Profile{}, fmt.Errorf("unknown PROFILE %q; valid values: %s", c.Profile, strings.Join(names, ", "))
	}
	return p, nil
}
