package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"keepersecurity.com/iam-sync/reconcile"
)

const (
	SourceScim   = "scim"
	SourceGoogle = "google"

	SinkElasticsearch = "elasticsearch"
	SinkDatastore     = "datastore"
	SinkSqlite        = "sqlite"
	SinkLog           = "log"
)

const (
	iamClientSecretEnv = "IAM_CLIENT_SECRET"
	rucioAuthTokenEnv  = "RUCIO_AUTH_TOKEN"
	rucioPasswordEnv   = "RUCIO_PASSWORD"
)

type Config struct {
	Iam     IamConfig     `yaml:"iam"`
	Google  GoogleConfig  `yaml:"google"`
	Rucio   RucioConfig   `yaml:"rucio"`
	Sync    SyncConfig    `yaml:"sync"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type IamConfig struct {
	IssuerUrl    string `yaml:"oidc_issuer_url"`
	ClientId     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	PageSize     int    `yaml:"page_size"`
	MaxPages     int    `yaml:"max_pages"`
}

type GoogleConfig struct {
	CredentialsFile string   `yaml:"credentials_file"`
	Subject         string   `yaml:"subject"`
	Groups          []string `yaml:"groups"`

	// Credentials holds the service account JSON when it does not come from a file.
	Credentials []byte `yaml:"-"`
}

type RucioConfig struct {
	Url               string  `yaml:"url"`
	Account           string  `yaml:"account"`
	Username          string  `yaml:"username"`
	Password          string  `yaml:"password"`
	AuthToken         string  `yaml:"auth_token"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type SyncConfig struct {
	Source          string                              `yaml:"source"`
	AdminGroups     []string                            `yaml:"rucio_admin_iam_groups"`
	UserGroups      []string                            `yaml:"rucio_user_iam_groups"`
	SkipAccounts    []string                            `yaml:"skip_accounts"`
	ServiceAccounts map[string]reconcile.ServiceAccount `yaml:"service_accounts"`
	Quota           int64                               `yaml:"rse_quota"`
	UserAttributes  []string                            `yaml:"user_attributes"`
	AdminAttributes []string                            `yaml:"admin_attributes"`
	MaxNameLength   int                                 `yaml:"max_name_length"`
	DryRun          bool                                `yaml:"dry_run"`
	Verbose         bool                                `yaml:"verbose"`
	Concurrency     int                                 `yaml:"concurrency"`
}

type SinkConfig struct {
	Type string `yaml:"type"`
	// elasticsearch
	Uri   string `yaml:"uri"`
	Index string `yaml:"index"`
	// datastore
	ProjectId string `yaml:"project_id"`
	Kind      string `yaml:"kind"`
	// sqlite
	Path string `yaml:"path"`
}

type AuditConfig struct {
	Databases []SinkConfig `yaml:"databases"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the configuration every loaded file is applied on top of.
func Default() *Config {
	return &Config{
		Iam: IamConfig{
			PageSize: 100,
			MaxPages: 1000,
		},
		Rucio: RucioConfig{
			Account: "root",
		},
		Sync: SyncConfig{
			Source:          SourceScim,
			UserAttributes:  []string{"sign-gcs"},
			AdminAttributes: []string{"admin"},
			MaxNameLength:   reconcile.DefaultMaxNameLength,
			Concurrency:     reconcile.DefaultConcurrency,
		},
	}
}

// Parse reads a YAML document on top of the defaults and applies the environment overrides.
func Parse(data []byte) (cfg *Config, err error) {
	cfg = Default()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		err = fmt.Errorf("failed to parse configuration: %w", err)
		cfg = nil
		return
	}
	cfg.applyEnv(os.Getenv)
	return
}

func Load(path string) (cfg *Config, err error) {
	var data []byte
	if data, err = os.ReadFile(path); err != nil {
		err = fmt.Errorf("failed to read configuration: %w", err)
		return
	}
	if cfg, err = Parse(data); err != nil {
		return
	}
	if len(cfg.Google.CredentialsFile) > 0 && len(cfg.Google.Credentials) == 0 {
		if cfg.Google.Credentials, err = os.ReadFile(cfg.Google.CredentialsFile); err != nil {
			err = fmt.Errorf("failed to read Google credentials: %w", err)
			return
		}
	}
	return
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(iamClientSecretEnv); len(v) > 0 {
		c.Iam.ClientSecret = v
	}
	if v := getenv(rucioAuthTokenEnv); len(v) > 0 {
		c.Rucio.AuthToken = v
	}
	if v := getenv(rucioPasswordEnv); len(v) > 0 {
		c.Rucio.Password = v
	}
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	// every source binds OIDC identities under the issuer
	if len(c.Iam.IssuerUrl) == 0 {
		errs = append(errs, errors.New("iam.oidc_issuer_url is required"))
	}
	switch c.Sync.Source {
	case SourceScim:
	case SourceGoogle:
		if len(c.Google.Subject) == 0 {
			errs = append(errs, errors.New("google.subject is required"))
		}
		if len(c.Google.Groups) == 0 {
			errs = append(errs, errors.New("google.groups is required"))
		}
		if len(c.Google.Credentials) == 0 && len(c.Google.CredentialsFile) == 0 {
			errs = append(errs, errors.New("google.credentials_file is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("sync.source: unsupported identity source \"%s\"", c.Sync.Source))
	}

	if len(c.Rucio.Url) == 0 {
		errs = append(errs, errors.New("rucio.url is required"))
	}
	if len(c.Rucio.AuthToken) == 0 && (len(c.Rucio.Username) == 0 || len(c.Rucio.Password) == 0) {
		errs = append(errs, errors.New("rucio: either auth_token or username and password are required"))
	}

	if len(c.Sync.AdminGroups) == 0 && len(c.Sync.UserGroups) == 0 {
		errs = append(errs, errors.New("sync: at least one of rucio_admin_iam_groups, rucio_user_iam_groups is required"))
	}
	if c.Sync.Quota < 0 {
		errs = append(errs, errors.New("sync.rse_quota must not be negative"))
	}
	for name, sa := range c.Sync.ServiceAccounts {
		if len(sa.Subject) == 0 {
			errs = append(errs, fmt.Errorf("sync.service_accounts.%s: subject is required", name))
		}
	}

	for i, db := range c.Audit.Databases {
		switch db.Type {
		case SinkElasticsearch:
			if len(db.Uri) == 0 || len(db.Index) == 0 {
				errs = append(errs, fmt.Errorf("audit.databases[%d]: uri and index are required", i))
			}
		case SinkDatastore:
			if len(db.ProjectId) == 0 {
				errs = append(errs, fmt.Errorf("audit.databases[%d]: project_id is required", i))
			}
		case SinkSqlite:
			if len(db.Path) == 0 {
				errs = append(errs, fmt.Errorf("audit.databases[%d]: path is required", i))
			}
		case SinkLog:
		default:
			errs = append(errs, fmt.Errorf("audit.databases[%d]: unsupported type \"%s\"", i, db.Type))
		}
	}
	return errors.Join(errs...)
}

// Policy converts the sync section into the reconciliation policy.
func (c *Config) Policy() *reconcile.Policy {
	var policy = &reconcile.Policy{
		IssuerUrl:       c.Iam.IssuerUrl,
		AdminGroups:     reconcile.MakeSet(trimAll(c.Sync.AdminGroups)),
		UserGroups:      reconcile.MakeSet(trimAll(c.Sync.UserGroups)),
		SkipAccounts:    reconcile.MakeSet(trimAll(c.Sync.SkipAccounts)),
		ServiceAccounts: c.Sync.ServiceAccounts,
		Quota:           c.Sync.Quota,
		UserAttributes:  c.Sync.UserAttributes,
		AdminAttributes: c.Sync.AdminAttributes,
		MaxNameLength:   c.Sync.MaxNameLength,
	}
	if policy.ServiceAccounts == nil {
		policy.ServiceAccounts = make(map[string]reconcile.ServiceAccount)
	}
	return policy
}

func trimAll(values []string) (result []string) {
	for _, v := range values {
		if v = strings.TrimSpace(v); len(v) > 0 {
			result = append(result, v)
		}
	}
	return
}
