package job

import (
	"fmt"
	"regexp"
	"strings"
)

// GhostRegion is the region literal that selects ghost mode.
const GhostRegion = "GHOST"

// DefaultGhostRegion is substituted for GhostRegion unless configured.
const DefaultGhostRegion = "BR"

// Limits enforced by Validate.
const (
	MaxAccountCount    = 1_000_000
	MaxThreadCount     = 64
	MaxRarityThreshold = 10
	maxPrefixLen       = 16
)

var (
	regionPattern = regexp.MustCompile(`^[A-Z]{2,5}$`)
	prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)
)

// Config is the immutable description of one job.
type Config struct {
	Region          string `json:"region"`
	Ghost           bool   `json:"ghost"`
	NamePrefix      string `json:"name_prefix"`
	PasswordPrefix  string `json:"password_prefix"`
	AccountCount    int64  `json:"account_count"`
	ThreadCount     int    `json:"thread_count"`
	AutoActivation  bool   `json:"auto_activation"`
	RarityThreshold int    `json:"rarity_threshold"`
}

// DefaultConfig returns the stock job parameters.
func DefaultConfig() Config {
	return Config{
		Region:          "IND",
		NamePrefix:      "KNX",
		PasswordPrefix:  "KNX",
		AccountCount:    100,
		ThreadCount:     5,
		AutoActivation:  true,
		RarityThreshold: 4,
	}
}

// Normalize trims and upper-cases the region and resolves GHOST to
// ghostRegion with Ghost set.
func (c Config) Normalize(ghostRegion string) Config {
	c.Region = strings.ToUpper(strings.TrimSpace(c.Region))
	c.NamePrefix = strings.TrimSpace(c.NamePrefix)
	c.PasswordPrefix = strings.TrimSpace(c.PasswordPrefix)
	if c.Region == GhostRegion {
		if ghostRegion == "" {
			ghostRegion = DefaultGhostRegion
		}
		c.Region = strings.ToUpper(ghostRegion)
		c.Ghost = true
	}
	return c
}

// Validate reports the first invalid field as a *ConfigError. It is stricter
// than a bare type check: the normalized region must be 2 to 5 letters,
// prefixes at most 16 letters, digits or underscores, and the rarity threshold
// between 0 and MaxRarityThreshold.
func (c Config) Validate() error {
	switch {
	case !regionPattern.MatchString(c.Region):
		return &ConfigError{Field: "region", Reason: fmt.Sprintf("%q is not a region code", c.Region)}
	case len(c.NamePrefix) > maxPrefixLen || !prefixPattern.MatchString(c.NamePrefix):
		return &ConfigError{Field: "name_prefix", Reason: "must be up to 16 letters, digits or underscores"}
	case len(c.PasswordPrefix) > maxPrefixLen || !prefixPattern.MatchString(c.PasswordPrefix):
		return &ConfigError{Field: "password_prefix", Reason: "must be up to 16 letters, digits or underscores"}
	case c.AccountCount <= 0 || c.AccountCount > MaxAccountCount:
		return &ConfigError{Field: "account_count", Reason: fmt.Sprintf("must be between 1 and %d", MaxAccountCount)}
	case c.ThreadCount <= 0 || c.ThreadCount > MaxThreadCount:
		return &ConfigError{Field: "thread_count", Reason: fmt.Sprintf("must be between 1 and %d", MaxThreadCount)}
	case c.RarityThreshold < 0 || c.RarityThreshold > MaxRarityThreshold:
		return &ConfigError{Field: "rarity_threshold", Reason: fmt.Sprintf("must be between 0 and %d", MaxRarityThreshold)}
	}
	return nil
}
