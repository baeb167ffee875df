// Package config loads the process configuration: FDTL limits, the cost
// tariff, operating policies and server settings.
//
// The file is read once at startup. Unknown keys, missing FDTL limits and
// non-positive values are configuration errors; nothing falls back to a default
// regulatory limit.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/recovery"
	"github.com/liamcoop/crewrecovery/rules"
)

// FDTL holds the regulatory limits. Pointers distinguish a missing key from zero.
type FDTL struct {
	MaxDailyFlightTime        *float64 `yaml:"max_daily_flight_time" validate:"required,gt=0"`
	WeeklyFlightTimeLimit     *float64 `yaml:"weekly_flight_time_limit" validate:"required,gt=0"`
	MaxConsecutiveNightDuties *int     `yaml:"max_consecutive_night_duties" validate:"required,gt=0"`
	MandatoryNightRestHours   *float64 `yaml:"mandatory_night_rest_hours" validate:"required,gt=0"`
}

// Tariff overrides the default cost tariff; omitted entries keep their default
type Tariff struct {
	Currency       string             `yaml:"currency"`
	DelayPerMinute *float64           `yaml:"delay_per_minute" validate:"omitempty,gte=0"`
	Base           map[string]float64 `yaml:"base" validate:"omitempty,dive,gte=0"`
}

// Policy is an operating policy seeded into the rules engine at startup
type Policy struct {
	ID         string `yaml:"id" validate:"required"`
	Name       string `yaml:"name"`
	Expression string `yaml:"expression" validate:"required"`
	Reason     string `yaml:"reason"`
	Active     *bool  `yaml:"active"`
}

// Server configures the HTTP service
type Server struct {
	Port        int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	DatabaseURL string `yaml:"database_url"`
	OperatorID  string `yaml:"operator_id"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// Config is the whole configuration file
type Config struct {
	FDTL         *FDTL    `yaml:"dgca_fdtl" validate:"required"`
	CostTariff   *Tariff  `yaml:"cost_tariff"`
	Policies     []Policy `yaml:"policies" validate:"dive"`
	SeedDefaults *bool    `yaml:"seed_default_policies"`
	Server       Server   `yaml:"server"`
}

// DefaultPort is used when neither the file nor PORT sets one
const DefaultPort = 8080

var validate = validator.New()

// Load reads and validates the file at path, then applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return nil, err
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes a YAML document, rejecting unknown keys, and validates it
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ConfigurationError{Err: errors.New("configuration is empty")}
		}
		return nil, &ConfigurationError{Err: fmt.Errorf("malformed configuration: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and that the rule set and tariff can be built
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &ConfigurationError{Err: describe(err)}
	}
	if _, err := c.RuleSet(); err != nil {
		return &ConfigurationError{Err: err}
	}
	if _, err := c.Tariff(); err != nil {
		return &ConfigurationError{Err: err}
	}

	builtin := make(map[string]bool)
	if c.SeedDefaults == nil || *c.SeedDefaults {
		for _, d := range rules.DefaultPolicies() {
			builtin[d.ID] = true
		}
	}
	seen := make(map[string]bool, len(c.Policies))
	for _, p := range c.Policies {
		if builtin[p.ID] {
			return &ConfigurationError{Err: fmt.Errorf(
				"policies: id %q is a built-in policy; set seed_default_policies: false to replace it", p.ID)}
		}
		if seen[p.ID] {
			return &ConfigurationError{Err: fmt.Errorf("policies: duplicate id %q", p.ID)}
		}
		seen[p.ID] = true
	}
	for _, r := range c.Rules() {
		if err := rules.ValidatePolicy(r); err != nil {
			return &ConfigurationError{Err: fmt.Errorf("policies: %s: %w", r.ID, err)}
		}
	}
	return nil
}

// describe turns validator output into config-key paths, e.g. dgca_fdtl.max_daily_flight_time
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := yamlPath(fe.Namespace())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		default:
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s, got %v", field, fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

var yamlNames = map[string]string{
	"FDTL":                      "dgca_fdtl",
	"MaxDailyFlightTime":        "max_daily_flight_time",
	"WeeklyFlightTimeLimit":     "weekly_flight_time_limit",
	"MaxConsecutiveNightDuties": "max_consecutive_night_duties",
	"MandatoryNightRestHours":   "mandatory_night_rest_hours",
	"CostTariff":                "cost_tariff",
	"DelayPerMinute":            "delay_per_minute",
	"Base":                      "base",
	"Policies":                  "policies",
	"Expression":                "expression",
	"ID":                        "id",
	"Server":                    "server",
	"Port":                      "port",
	"LogLevel":                  "log_level",
}

func yamlPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:] // drop the root struct name
	}
	for i, p := range parts {
		name, index, _ := strings.Cut(p, "[")
		if y, ok := yamlNames[name]; ok {
			name = y
		}
		if index != "" {
			name += "[" + index
		}
		parts[i] = name
	}
	return strings.Join(parts, ".")
}

// ApplyEnv overrides server settings from DATABASE_URL, PORT, LOG_LEVEL and OPERATOR_ID
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Server.DatabaseURL = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("PORT must be a valid port number, got %q", v)
		}
		c.Server.Port = port
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := getenv("OPERATOR_ID"); v != "" {
		c.Server.OperatorID = v
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	return nil
}

// RuleSet builds the validated FDTL rule set
func (c *Config) RuleSet() (*fdtl.RuleSet, error) {
	if c.FDTL == nil {
		return nil, &fdtl.ConfigurationError{Field: "dgca_fdtl", Reason: "is required"}
	}
	f := c.FDTL
	if f.MaxDailyFlightTime == nil || f.WeeklyFlightTimeLimit == nil ||
		f.MaxConsecutiveNightDuties == nil || f.MandatoryNightRestHours == nil {
		return nil, &fdtl.ConfigurationError{Field: "dgca_fdtl", Reason: "all four limits are required"}
	}
	return fdtl.NewRuleSet(*f.MaxDailyFlightTime, *f.WeeklyFlightTimeLimit,
		*f.MaxConsecutiveNightDuties, *f.MandatoryNightRestHours)
}

// Tariff merges cost_tariff over the default tariff
func (c *Config) Tariff() (recovery.Tariff, error) {
	t := recovery.DefaultTariff()
	if c.CostTariff == nil {
		return t, nil
	}

	if c.CostTariff.Currency != "" {
		t.Currency = c.CostTariff.Currency
	}
	if c.CostTariff.DelayPerMinute != nil {
		t.DelayPerMinute = *c.CostTariff.DelayPerMinute
	}
	for k, v := range c.CostTariff.Base {
		a, err := recovery.ParseActionType(k)
		if err != nil {
			return recovery.Tariff{}, &fdtl.ConfigurationError{Field: "cost_tariff.base", Reason: err.Error()}
		}
		t.Base[a] = v
	}
	return t, t.Validate()
}

// CostModel builds the cost model from the merged tariff
func (c *Config) CostModel() (*recovery.CostModel, error) {
	t, err := c.Tariff()
	if err != nil {
		return nil, err
	}
	return recovery.NewCostModel(t)
}

// Rules converts configured policies to rules; policies are active unless stated otherwise.
// The built-in policies come first unless seed_default_policies is false.
func (c *Config) Rules() []*rules.Rule {
	var out []*rules.Rule
	if c.SeedDefaults == nil || *c.SeedDefaults {
		out = append(out, rules.DefaultPolicies()...)
	}
	for _, p := range c.Policies {
		active := p.Active == nil || *p.Active
		name := p.Name
		if name == "" {
			name = p.ID
		}
		out = append(out, &rules.Rule{
			ID:         p.ID,
			Name:       name,
			Expression: p.Expression,
			Reason:     p.Reason,
			Active:     active,
		})
	}
	return out
}
