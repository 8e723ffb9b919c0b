package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults
const (
	DefaultEndpoint        = "https://api.github.com/graphql"
	DefaultUpdateSinceDays = 10
	DefaultPageSize        = 100
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

// Config holds every setting of a reconciliation run. It is resolved once at
// startup and passed explicitly to the components that need it.
type Config struct {
	Endpoint        string        `mapstructure:"graphql_url"`
	Token           string        `mapstructure:"token"`
	Org             string        `mapstructure:"org_name"`
	ProjectNumber   int           `mapstructure:"project_number"`
	Repositories    []string      `mapstructure:"-"`
	UpdateSinceDays int           `mapstructure:"update_since_days"`
	UpdateSince     string        `mapstructure:"update_since"`
	PageSize        int           `mapstructure:"page_size"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	DryRun          bool          `mapstructure:"dry_run"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"graphql_url":       "GITHUB_GRAPHQL_URL",
	"token":             "API_GITHUB_TOKEN",
	"org_name":          "GITHUB_ORG_NAME",
	"project_number":    "GITHUB_PROJECT_NUMBER",
	"repo_names":        "GITHUB_REPO_NAMES",
	"update_since_days": "GITHUB_UPDATE_SINCE_DAYS",
	"update_since":      "GITHUB_UPDATE_SINCE",
	"page_size":         "GITHUB_PAGE_SIZE",
	"http_timeout":      "GITHUB_HTTP_TIMEOUT",
	"dry_run":           "BOARDSYNC_DRY_RUN",
	"log_level":         "LOG_LEVEL",
	"log_format":        "LOG_FORMAT",
}

// NewViper returns a viper instance with defaults and environment bindings applied.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("graphql_url", DefaultEndpoint)
	v.SetDefault("update_since_days", DefaultUpdateSinceDays)
	v.SetDefault("page_size", DefaultPageSize)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	return v
}

// Load reads configuration from v. It does not validate; call Validate
// before using the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Repositories = repoNames(v)
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.Org = strings.TrimSpace(cfg.Org)

	return cfg, nil
}

// repoNames accepts either a comma separated string (environment) or a YAML list.
func repoNames(v *viper.Viper) []string {
	var raw []string
	if s, ok := v.Get("repo_names").(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = v.GetStringSlice("repo_names")
	}

	names := make([]string, 0, len(raw))
	for _, name := range raw {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Validate checks every required setting and returns ValidationErrors listing
// all problems found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Token == "" {
		errs.Add("token", "", "GitHub token is required (API_GITHUB_TOKEN)")
	}
	if c.Org == "" {
		errs.Add("org_name", "", "organization name is required (GITHUB_ORG_NAME)")
	}
	if len(c.Repositories) == 0 {
		errs.Add("repo_names", "", "at least one repository is required (GITHUB_REPO_NAMES)")
	}
	if c.ProjectNumber <= 0 {
		errs.Add("project_number", fmt.Sprint(c.ProjectNumber), "project number must be a positive integer (GITHUB_PROJECT_NUMBER)")
	}

	if u, err := url.Parse(c.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add("graphql_url", c.Endpoint, "must be an absolute URL")
	}
	if c.UpdateSinceDays < 0 {
		errs.Add("update_since_days", fmt.Sprint(c.UpdateSinceDays), "must not be negative")
	}
	if c.UpdateSince != "" {
		if _, err := ParseSince(c.UpdateSince); err != nil {
			errs.Add("update_since", c.UpdateSince, err.Error())
		}
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		errs.Add("page_size", fmt.Sprint(c.PageSize), "must be between 1 and 100")
	}
	if c.HTTPTimeout <= 0 {
		errs.Add("http_timeout", c.HTTPTimeout.String(), "must be positive")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs.Add("log_format", c.LogFormat, "must be json or text")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ParseSince parses a cutoff given as a date (2006-01-02) or an RFC 3339 timestamp.
func ParseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}

// Since returns the configured cutoff override, if any.
func (c *Config) Since() (time.Time, bool) {
	if c.UpdateSince == "" {
		return time.Time{}, false
	}
	t, err := ParseSince(c.UpdateSince)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
