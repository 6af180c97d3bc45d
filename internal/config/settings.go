package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/vestalhq/vestal/internal/versioning"
)

// Backends accepted by versions.backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendBadger   = "badger"
)

// Settings is the contents of vestal.yaml merged with VESTAL_* overrides.
type Settings struct {
	LogLevel   string                  `mapstructure:"log_level" validate:"oneof=trace debug info warn warning error disabled off"`
	LogPretty  bool                    `mapstructure:"log_pretty"`
	Versioning VersioningSettings      `mapstructure:"versioning"`
	Versions   StoreSettings           `mapstructure:"versions"`
	Kinds      map[string]KindSettings `mapstructure:"kinds" validate:"dive"`
}

type VersioningSettings struct {
	// SaveOnRemove saves the owner as soon as a relation is removed.
	SaveOnRemove bool `mapstructure:"save_on_remove"`
}

// StoreSettings selects where versions are kept. Records always live in the
// local SQLite database.
type StoreSettings struct {
	Backend string `mapstructure:"backend" validate:"oneof=sqlite postgres mysql badger"`
	// DSN is required by the postgres and mysql backends.
	DSN string `mapstructure:"dsn"`
	// Path is the badger directory, <data dir>/versions by default.
	Path string `mapstructure:"path"`
}

// KindSettings declares a versioned record kind.
type KindSettings struct {
	Columns    []string          `mapstructure:"columns" validate:"required,min=1,dive,required"`
	Only       []string          `mapstructure:"only"`
	Except     []string          `mapstructure:"except"`
	ExceptAll  bool              `mapstructure:"except_all"`
	Timestamps bool              `mapstructure:"timestamps"`
	Anchors    map[string]string `mapstructure:"anchors"`
}

// Policy converts the kind's options into a watch policy.
func (k KindSettings) Policy() versioning.Policy {
	return versioning.Policy{
		Only:       k.Only,
		Except:     k.Except,
		ExceptAll:  k.ExceptAll,
		Timestamps: k.Timestamps,
	}
}

// Load reads vestal.yaml from dir (when non-empty), the data directory and
// the working directory. A missing file is not an error.
func Load(dir string) (*Settings, error) {
	v := viper.New()
	v.SetConfigName("vestal")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(GetDataDir())
	v.AddConfigPath(".")

	v.SetEnvPrefix("VESTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(settings.Kinds) == 0 {
		settings.Kinds = defaultKinds()
	}
	settings.Versions.Backend = strings.ToLower(strings.TrimSpace(settings.Versions.Backend))
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))
	if settings.Versions.Backend == BackendBadger && settings.Versions.Path == "" {
		settings.Versions.Path = filepath.Join(GetDataDir(), "versions")
	}

	if err := settings.validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("versioning.save_on_remove", true)
	v.SetDefault("versions.backend", BackendSQLite)
	v.SetDefault("versions.dsn", "")
	v.SetDefault("versions.path", "")
}

// defaultKinds applies when no kind is configured.
func defaultKinds() map[string]KindSettings {
	return map[string]KindSettings{
		"note": {Columns: []string{"title", "body", "tags", "created_at", "updated_at"}},
	}
}

var settingsValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	v.RegisterStructValidation(validateStore, StoreSettings{})
	return v
}

// validateStore requires a DSN for the server backends.
func validateStore(sl validator.StructLevel) {
	store := sl.Current().Interface().(StoreSettings)
	switch store.Backend {
	case BackendPostgres, BackendMySQL:
		if store.DSN == "" {
			sl.ReportError(store.DSN, "dsn", "DSN", "required_for_backend", store.Backend)
		}
	}
}

func (s *Settings) validate() error {
	err := settingsValidator.Struct(s)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return fmt.Errorf("invalid settings: %w", err)
	}

	problems := make([]string, 0, len(invalid))
	for _, fe := range invalid {
		problems = append(problems, describe(fe))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(problems, "; "))
}

func describe(fe validator.FieldError) string {
	key := strings.TrimPrefix(fe.Namespace(), "Settings.")
	switch fe.Tag() {
	case "required_for_backend":
		return fmt.Sprintf("%s is required for the %s backend", key, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "required", "min":
		return fmt.Sprintf("%s must not be empty", key)
	default:
		return fmt.Sprintf("%s failed the %q check", key, fe.Tag())
	}
}
