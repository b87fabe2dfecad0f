// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ZoteroNS is the default vocabulary namespace for mapped predicates and
// classes when a mapping does not configure its own.
const ZoteroNS = "http://www.zotero.org/namespaces/export#"

// DefaultLanguageMap translates the language strings found in bibliographic
// records to BCP 47 tags. The empty key is the fallback for unknown values.
var DefaultLanguageMap = map[string]string{
	"de": "de", "deutsch": "de", "german": "de", "ger": "de",
	"en": "en", "english": "en", "eng": "en",
	"fr": "fr", "français": "fr", "french": "fr", "fre": "fr",
	"it": "it", "italiano": "it", "italian": "it", "ita": "it",
	"es": "es", "español": "es", "spanish": "es", "spa": "es",
	"la": "la", "latin": "la", "lat": "la",
	"pt": "pt", "português": "pt", "portuguese": "pt",
	"ru": "ru", "russian": "ru", "rus": "ru",
	"ja": "ja", "japanese": "ja", "jpn": "ja",
	"zh": "zh", "chinese": "zh", "chi": "zh",
	"ar": "ar", "arabic": "ar", "ara": "ar",
	"": "und",
}

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Store() StoreConfig
	Zotero() ZoteroConfig
	Libraries() []LibraryConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	ServerCfg  ServerConfig    `mapstructure:"server" yaml:"server"`
	StoreCfg   StoreConfig     `mapstructure:"store" yaml:"store"`
	ZoteroCfg  ZoteroConfig    `mapstructure:"zotero" yaml:"zotero"`
	LibraryCfg []LibraryConfig `mapstructure:"libraries" yaml:"libraries"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }
func (c *Config) Zotero() ZoteroConfig       { return c.ZoteroCfg }
func (c *Config) Libraries() []LibraryConfig { return c.LibraryCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig holds the HTTP admin surface and refresh scheduling settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// RefreshInterval in seconds. Values of 30 or more run a periodic
	// refresh loop; 0 runs exactly one pass at startup; -1 disables
	// ingestion and serves whatever the store already holds. Values in
	// 1..29 are invalid and treated as disabled after a warning.
	RefreshInterval int    `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	BackupDir       string `mapstructure:"backup_dir" yaml:"backup_dir"`
	ExportDir       string `mapstructure:"export_dir" yaml:"export_dir"`
	SchemaURL       string `mapstructure:"schema_url" yaml:"schema_url"`
}

// StoreConfig selects and configures the quad store backend.
type StoreConfig struct {
	// Mode is one of "memory", "directory", "postgres".
	Mode      string         `mapstructure:"mode" yaml:"mode"`
	Directory string         `mapstructure:"directory" yaml:"directory"`
	Postgres  PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// ZoteroConfig tunes the Web API client shared by all libraries.
type ZoteroConfig struct {
	BaseAPIURL     string        `mapstructure:"base_api_url" yaml:"base_api_url"`
	PageLimit      int           `mapstructure:"page_limit" yaml:"page_limit"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// LibraryConfig describes one data source: where its records come from, which
// named graphs they land in, and how its fields are mapped.
type LibraryConfig struct {
	Name               string            `mapstructure:"name" yaml:"name"`
	LibraryID          string            `mapstructure:"library_id" yaml:"library_id"`
	LibraryType        string            `mapstructure:"library_type" yaml:"library_type"`
	APIKey             string            `mapstructure:"api_key" yaml:"-"`
	BaseURL            string            `mapstructure:"base_url" yaml:"base_url"`
	BaseAPIURL         string            `mapstructure:"base_api_url" yaml:"base_api_url"`
	KnowledgeBaseGraph string            `mapstructure:"knowledge_base_graph" yaml:"knowledge_base_graph"`
	LoadMode           string            `mapstructure:"load_mode" yaml:"load_mode"`
	RDFExportFormat    string            `mapstructure:"rdf_export_format" yaml:"rdf_export_format"`
	ManualImportDir    string            `mapstructure:"manual_import_dir" yaml:"manual_import_dir"`
	JSONFile           string            `mapstructure:"json_file" yaml:"json_file"`
	Query              map[string]string `mapstructure:"query" yaml:"query"`
	Mapping            MappingConfig     `mapstructure:"mapping" yaml:"mapping"`
	Notes              NotesConfig       `mapstructure:"notes" yaml:"notes"`
}

// MappingConfig drives the record-to-graph transform rules for one library.
type MappingConfig struct {
	Namespace string   `mapstructure:"namespace" yaml:"namespace"`
	White     []string `mapstructure:"white" yaml:"white"`
	Black     []string `mapstructure:"black" yaml:"black"`
	// RDFMapping restricts entity creation to the listed fields. Fields
	// named here are always considered even when excluded by White.
	RDFMapping []string `mapstructure:"rdf_mapping" yaml:"rdf_mapping"`
	// EntityFields resolve to typed entities via fuzzy matching; defaults
	// to place, publisher, series.
	EntityFields         []string                 `mapstructure:"entity_fields" yaml:"entity_fields"`
	TypeFields           []string                 `mapstructure:"type_fields" yaml:"type_fields"`
	DefaultType          string                   `mapstructure:"default_type" yaml:"default_type"`
	AdditionalProperties []AdditionalPropertySpec `mapstructure:"additional_properties" yaml:"additional_properties"`
	Threshold            int                      `mapstructure:"threshold" yaml:"threshold"`
	LabelPredicates      []string                 `mapstructure:"label_predicates" yaml:"label_predicates"`
	Language             string                   `mapstructure:"language" yaml:"language"`
	LanguageMap          map[string]string        `mapstructure:"language_map" yaml:"language_map"`
	// NamedLibrary links every item and collection to a library node via
	// this property name and maps the library metadata itself. Empty
	// disables the library node.
	NamedLibrary string `mapstructure:"named_library" yaml:"named_library"`
}

// AdditionalPropertySpec is one fixed statement attached to every top-level
// node of a library. Value is a record field lookup unless prefixed with "_",
// which marks a literal constant.
type AdditionalPropertySpec struct {
	Property  string `mapstructure:"property" yaml:"property"`
	Value     string `mapstructure:"value" yaml:"value"`
	NamedNode bool   `mapstructure:"named_node" yaml:"named_node"`
}

// NotesConfig controls HTML note extraction and reconciliation.
type NotesConfig struct {
	// Mode is "auto" (run after each ingestion pass), "manual" (only via
	// the admin endpoint) or "off".
	Mode string `mapstructure:"mode" yaml:"mode"`
	// Predicate holding note HTML bodies; defaults to the vocabulary's
	// "note" predicate.
	Predicate string          `mapstructure:"predicate" yaml:"predicate"`
	Rules     []ReconcileRule `mapstructure:"rules" yaml:"rules"`
}

// ReconcileRule links extracted note entities to knowledge-base entities: for
// subjects typed DomainType, the object of DomainProperty is fuzzy-matched
// against RangeType entities on TargetProperty, and a hit asserts MapProperty.
type ReconcileRule struct {
	DomainTypes        []string `mapstructure:"domain_types" yaml:"domain_types"`
	RangeType          string   `mapstructure:"range_type" yaml:"range_type"`
	DomainProperty     string   `mapstructure:"domain_property" yaml:"domain_property"`
	TargetProperty     string   `mapstructure:"target_property" yaml:"target_property"`
	MapProperty        string   `mapstructure:"map_property" yaml:"map_property"`
	KnowledgeBaseGraph string   `mapstructure:"knowledge_base_graph" yaml:"knowledge_base_graph"`
}

// NewDefaultConfig creates a new configuration struct populated with default
// values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "zotero-rdf-server")
	v.SetDefault("logger.log_file", "zotero-rdf-server.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.refresh_interval", 0)
	v.SetDefault("server.backup_dir", "backup")
	v.SetDefault("server.export_dir", "export")
	v.SetDefault("server.schema_url", "")

	// -- Store --
	v.SetDefault("store.mode", "memory")
	v.SetDefault("store.directory", "data")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.password", "") // Should be set via env var
	v.SetDefault("store.postgres.dbname", "zotero_rdf")
	v.SetDefault("store.postgres.sslmode", "disable")

	// -- Zotero client --
	v.SetDefault("zotero.base_api_url", "https://api.zotero.org")
	v.SetDefault("zotero.page_limit", 100)
	v.SetDefault("zotero.rate_limit", 1.0)
	v.SetDefault("zotero.connect_timeout", "5s")
	v.SetDefault("zotero.request_timeout", "30s")
	v.SetDefault("zotero.max_retries", 5)
}

// NewConfigFromViper creates a new configuration instance from a viper
// object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("store.postgres.password", "ZRS_POSTGRES_PASSWORD")
	v.BindEnv("zotero.api_key", "ZRS_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// A global API key applies to every library that does not set its own.
	if key := os.Getenv("ZRS_API_KEY"); key != "" {
		for i := range cfg.LibraryCfg {
			if cfg.LibraryCfg[i].APIKey == "" {
				cfg.LibraryCfg[i].APIKey = key
			}
		}
	}

	for i := range cfg.LibraryCfg {
		cfg.LibraryCfg[i].applyDefaults(cfg.ZoteroCfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// Per-library defects are NOT checked here: those are soft-fail and reported
// by LibraryConfig.Problems so a misconfigured library still gets processed.
func (c *Config) Validate() error {
	if c.ServerCfg.Port <= 0 || c.ServerCfg.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	switch c.StoreCfg.Mode {
	case "memory", "directory", "postgres":
	default:
		return fmt.Errorf("store.mode must be one of memory, directory, postgres; got %q", c.StoreCfg.Mode)
	}
	if c.StoreCfg.Mode == "directory" && c.StoreCfg.Directory == "" {
		return fmt.Errorf("store.directory is required for directory mode")
	}
	if c.ZoteroCfg.PageLimit <= 0 {
		return fmt.Errorf("zotero.page_limit must be a positive integer")
	}
	return nil
}

// applyDefaults fills per-library gaps from global settings and hard-coded
// fallbacks.
func (l *LibraryConfig) applyDefaults(z ZoteroConfig) {
	if l.BaseAPIURL == "" {
		l.BaseAPIURL = z.BaseAPIURL
	}
	if l.LoadMode == "" {
		l.LoadMode = "json"
	}
	if l.RDFExportFormat == "" {
		l.RDFExportFormat = "rdf_zotero"
	}
	if l.Notes.Mode == "" {
		l.Notes.Mode = "off"
	}
	l.Mapping.applyDefaults()
}

func (m *MappingConfig) applyDefaults() {
	if m.Namespace == "" {
		m.Namespace = ZoteroNS
	}
	if m.Threshold == 0 {
		m.Threshold = 90
	}
	if len(m.EntityFields) == 0 {
		m.EntityFields = []string{"place", "publisher", "series"}
	}
	if len(m.TypeFields) == 0 {
		m.TypeFields = []string{"itemType"}
	}
	if len(m.LanguageMap) == 0 {
		m.LanguageMap = DefaultLanguageMap
	}
}

// Problems reports per-library configuration defects. Defects are logged by
// the caller and do not stop processing; the library runs with defaults.
func (l *LibraryConfig) Problems() []string {
	var out []string
	if !strings.HasPrefix(l.BaseURL, "http") {
		out = append(out, fmt.Sprintf("base_url %q is not an absolute URI", l.BaseURL))
	}
	if !strings.HasPrefix(l.BaseAPIURL, "http") {
		out = append(out, fmt.Sprintf("base_api_url %q is not an absolute URI", l.BaseAPIURL))
	}
	if !strings.HasPrefix(l.KnowledgeBaseGraph, "http") {
		out = append(out, fmt.Sprintf("knowledge_base_graph %q is not an absolute URI", l.KnowledgeBaseGraph))
	}
	if l.LibraryType != "knowledge base" && !isDigits(l.LibraryID) {
		out = append(out, fmt.Sprintf("library_id %q must be numeric for library_type %q", l.LibraryID, l.LibraryType))
	}
	switch l.LibraryType {
	case "groups", "user", "knowledge base":
	default:
		out = append(out, fmt.Sprintf("library_type %q is not one of groups, user, knowledge base", l.LibraryType))
	}
	switch l.LoadMode {
	case "json", "rdf", "manual_import":
	default:
		out = append(out, fmt.Sprintf("load_mode %q is not one of json, rdf, manual_import", l.LoadMode))
	}
	switch l.RDFExportFormat {
	case "rdf_zotero", "rdf_bibliontology":
	default:
		out = append(out, fmt.Sprintf("rdf_export_format %q is not one of rdf_zotero, rdf_bibliontology", l.RDFExportFormat))
	}
	if m := l.Mapping.Threshold; m < 0 || m > 100 {
		out = append(out, fmt.Sprintf("mapping.threshold %d is outside 0..100", m))
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
