package env

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/multierr"
)

const (
	DEVELOPMENT = "development"
	PRODUCTION  = "production"
)

var ErrMissingValue = errors.New("configuration value is empty")

// EnvFiles are loaded in order before the process environment is read. Their
// values override variables already set.
var EnvFiles = []string{".env", ".env.local"}

// DatabaseConfig describes one Postgres-protocol connection.
type DatabaseConfig struct {
	Type     string `env:"TYPE,default=postgres"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Host     string `env:"HOST"`
	Port     string `env:"PORT,default=5432"`
	Name     string `env:"NAME"`
	SSLMode  string `env:"SSLMODE,default=disable"`
}

type Config struct {
	AppName  string `env:"APP_NAME,default=playground"`
	AppEnv   string `env:"APP_ENV,default=production"`
	LogLevel string `env:"LOG_LEVEL,default=warn"`
	LogDir   string `env:"LOG_DIR,default=logs"`
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`

	Postgres DatabaseConfig `env:",prefix=POSTGRES_DB_"`
	Oracle   DatabaseConfig `env:",prefix=ORACLE_DB_"`

	ComposeFile        string `env:"COMPOSE_FILE,default=docker-compose.yml"`
	ComposeProjectName string `env:"COMPOSE_PROJECT_NAME"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	for _, file := range EnvFiles {
		if err := godotenv.Overload(file); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "load %s", file)
		}
	}
	return LoadConfigWith(ctx, envconfig.OsLookuper())
}

// LoadConfigWith reads the configuration from lookuper without touching env
// files.
func LoadConfigWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &config,
		Lookuper: lookuper,
	}); err != nil {
		return nil, errors.Wrap(err, "process environment")
	}
	if config.AppEnv != DEVELOPMENT && config.AppEnv != PRODUCTION {
		return nil, errors.Errorf("APP_ENV must be %s or %s, got %q", DEVELOPMENT, PRODUCTION, config.AppEnv)
	}
	return &config, nil
}

func (config *Config) IsDevelopment() bool {
	return config.AppEnv == DEVELOPMENT
}

// Validate reports every POSTGRES_DB_* key that is empty. The server cannot
// start without them.
func (config *Config) Validate() error {
	return config.Postgres.validate("POSTGRES_DB_")
}

func (db DatabaseConfig) validate(prefix string) error {
	var errs error
	for _, field := range []struct {
		key   string
		value string
	}{
		{"TYPE", db.Type},
		{"USER", db.User},
		{"PASSWORD", db.Password},
		{"HOST", db.Host},
		{"PORT", db.Port},
		{"NAME", db.Name},
	} {
		if field.value == "" {
			errs = multierr.Append(errs, errors.Wrap(ErrMissingValue, prefix+field.key))
		}
	}
	return errs
}

// Configured reports whether enough is set to attempt a connection.
func (db DatabaseConfig) Configured() bool {
	return db.Host != "" && db.Name != ""
}

// DSN renders the connection URL understood by lib/pq.
func (db DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(db.Host, db.Port),
		Path:   "/" + db.Name,
	}
	if db.User != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	return u.String()
}

// String hides the password.
func (db DatabaseConfig) String() string {
	return fmt.Sprintf("%s://%s@%s/%s", db.Type, db.User, net.JoinHostPort(db.Host, db.Port), db.Name)
}
