// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// ErrMalformed is returned when the configuration file lacks a required section or key.
var ErrMalformed = errors.New("malformed configuration")

// ExportUsage is printed by fiscal-export when its configuration is malformed.
const ExportUsage = `The configuration file provided requires three sections:

    a. local, with the key 'directory'
    b. remote, with the keys 'host', 'user' 'directory', and 'keyname'
    c. database, with the key 'host'.

The file provided is missing one or more of these components.
`

// TransferUsage is printed by check-transfer when its configuration is malformed.
const TransferUsage = "malformed .ini file provided, quitting.\n"

// Section and key names.
const (
	SectionLocal    = "local"
	SectionRemote   = "remote"
	SectionDatabase = "database"
	SectionAudit    = "audit"
	SectionS3       = "s3"

	KeyDirectory            = "directory"
	KeyHost                 = "host"
	KeyUser                 = "user"
	KeyKeyName              = "keyname"
	KeyTempDirectory        = "temp_directory"
	KeyDestinationDirectory = "destination_directory"
	KeyDoneDirectory        = "done_directory"
)

const (
	// DefaultRowsPerFile leaves one row of a 50,000 line file for the header.
	DefaultRowsPerFile = 49999

	defaultSQLServerPort = 1433
	defaultMySQLPort     = 3306
	defaultAuditDatabase = "ga"
	defaultAuditTable    = "poliops_transfers"
	defaultS3Prefix      = "poliops"
)

// Remote describes the transfer host reached over SSH.
type Remote struct {
	Host          string
	User          string
	KeyName       string
	Directory     string
	DoneDirectory string
	MoveAll       bool
}

// Database describes a SQL connection. Password may be resolved later from
// Secrets Manager when Secret is set.
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Instance string
	Table    string
	Secret   string
	Region   string
}

// S3 describes the optional archive bucket.
type S3 struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether archiving to S3 was configured.
func (s S3) Enabled() bool {
	return s.Bucket != ""
}

// ExportConfig holds the configuration of the fiscal-year export.
type ExportConfig struct {
	LocalDirectory string
	RowsPerFile    int
	CatalogPath    string
	LogDirectory   string

	Remote   Remote
	Database Database
	S3       S3
}

// TransferConfig holds the configuration of the check file transfer.
type TransferConfig struct {
	TempDirectory        string
	DestinationDirectory string
	CatalogPath          string
	LogDirectory         string

	Remote Remote
	Audit  Database
	S3     S3

	// EnsureAuditSchema creates the audit table when it is missing.
	EnsureAuditSchema bool
}

// LoadExportConfig reads the fiscal-year export configuration from an INI file,
// then applies environment overrides and defaults.
func LoadExportConfig(path string) (*ExportConfig, error) {
	file, err := loadINI(path)
	if err != nil {
		return nil, err
	}

	cfg := &ExportConfig{}
	r := reader{file: file}

	cfg.LocalDirectory = r.required(SectionLocal, KeyDirectory)
	cfg.RowsPerFile = r.optionalInt(SectionLocal, "rows_per_file", DefaultRowsPerFile)
	cfg.CatalogPath = r.optional(SectionLocal, "catalog")
	cfg.LogDirectory = r.optional(SectionLocal, "log_directory")

	cfg.Remote.Host = r.required(SectionRemote, KeyHost)
	cfg.Remote.User = r.required(SectionRemote, KeyUser)
	cfg.Remote.KeyName = r.required(SectionRemote, KeyKeyName)
	cfg.Remote.Directory = r.optional(SectionRemote, KeyDirectory)

	cfg.Database = r.database(SectionDatabase, defaultSQLServerPort)
	cfg.S3 = r.s3()

	if r.err != nil {
		return nil, r.err
	}

	loadFromEnv(&cfg.Database, "POLIOPS_DB_PASSWORD", &cfg.S3)

	if cfg.RowsPerFile <= 0 {
		return nil, fmt.Errorf("%w: rows_per_file must be positive, got %d", ErrMalformed, cfg.RowsPerFile)
	}

	return cfg, nil
}

// LoadTransferConfig reads the check transfer configuration from an INI file,
// then applies environment overrides and defaults.
func LoadTransferConfig(path string) (*TransferConfig, error) {
	file, err := loadINI(path)
	if err != nil {
		return nil, err
	}

	cfg := &TransferConfig{}
	r := reader{file: file}

	cfg.TempDirectory = r.required(SectionLocal, KeyTempDirectory)
	cfg.DestinationDirectory = r.required(SectionLocal, KeyDestinationDirectory)
	cfg.CatalogPath = r.optional(SectionLocal, "catalog")
	cfg.LogDirectory = r.optional(SectionLocal, "log_directory")

	cfg.Remote.Host = r.required(SectionRemote, KeyHost)
	cfg.Remote.User = r.required(SectionRemote, KeyUser)
	cfg.Remote.KeyName = r.required(SectionRemote, KeyKeyName)
	cfg.Remote.Directory = r.required(SectionRemote, KeyDirectory)
	cfg.Remote.DoneDirectory = r.required(SectionRemote, KeyDoneDirectory)
	cfg.Remote.MoveAll = r.optionalBool(SectionRemote, "move_all")

	cfg.Audit = r.database(SectionAudit, defaultMySQLPort)
	cfg.EnsureAuditSchema = r.optionalBool(SectionAudit, "ensure_schema")
	if cfg.Audit.Name == "" {
		cfg.Audit.Name = defaultAuditDatabase
	}
	if cfg.Audit.Table == "" {
		cfg.Audit.Table = defaultAuditTable
	}
	cfg.S3 = r.s3()

	if r.err != nil {
		return nil, r.err
	}

	loadFromEnv(&cfg.Audit, "POLIOPS_AUDIT_PASSWORD", &cfg.S3)

	return cfg, nil
}

func loadINI(path string) (*ini.File, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return file, nil
}

// reader collects the first missing section or key so callers can read every
// value in sequence and check once.
type reader struct {
	file *ini.File
	err  error
}

func (r *reader) required(section, key string) string {
	if r.err != nil {
		return ""
	}
	sec, err := r.file.GetSection(section)
	if err != nil {
		r.err = fmt.Errorf("%w: missing section [%s]", ErrMalformed, section)
		return ""
	}
	k, err := sec.GetKey(key)
	if err != nil || k.String() == "" {
		r.err = fmt.Errorf("%w: missing key %q in section [%s]", ErrMalformed, key, section)
		return ""
	}
	return k.String()
}

func (r *reader) optional(section, key string) string {
	if !r.file.HasSection(section) {
		return ""
	}
	return r.file.Section(section).Key(key).String()
}

func (r *reader) optionalInt(section, key string, def int) int {
	if r.err != nil {
		return def
	}
	val := r.optional(section, key)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		r.err = fmt.Errorf("%w: key %q in section [%s] must be an integer", ErrMalformed, key, section)
		return def
	}
	return n
}

func (r *reader) optionalBool(section, key string) bool {
	if !r.file.HasSection(section) {
		return false
	}
	return r.file.Section(section).Key(key).MustBool(false)
}

func (r *reader) database(section string, defaultPort int) Database {
	db := Database{
		Host:     r.required(section, KeyHost),
		Port:     r.optionalInt(section, "port", defaultPort),
		User:     r.optional(section, KeyUser),
		Password: r.optional(section, "password"),
		Name:     r.optional(section, "database"),
		Instance: r.optional(section, "instance"),
		Table:    r.optional(section, "table"),
		Secret:   r.optional(section, "secret"),
		Region:   r.optional(section, "region"),
	}
	if db.Secret != "" && db.Region == "" && r.err == nil {
		r.err = fmt.Errorf("%w: key \"region\" is required in section [%s] when secret is set", ErrMalformed, section)
	}
	return db
}

func (r *reader) s3() S3 {
	s := S3{
		Bucket:          r.optional(SectionS3, "bucket"),
		Prefix:          r.optional(SectionS3, "prefix"),
		Region:          r.optional(SectionS3, "region"),
		AccessKeyID:     r.optional(SectionS3, "access_key_id"),
		SecretAccessKey: r.optional(SectionS3, "secret_access_key"),
	}
	if s.Prefix == "" {
		s.Prefix = defaultS3Prefix
	}
	return s
}

// loadFromEnv applies environment overrides, reading a .env file first if present.
func loadFromEnv(db *Database, passwordEnv string, s *S3) {
	_ = godotenv.Load()

	if val := os.Getenv(passwordEnv); val != "" {
		db.Password = val
	}
	if val := os.Getenv("POLIOPS_S3_BUCKET"); val != "" {
		s.Bucket = val
	}
	if val := os.Getenv("POLIOPS_AWS_REGION"); val != "" {
		s.Region = val
	}
	if s.Enabled() && s.Region == "" {
		s.Region = os.Getenv("AWS_REGION")
	}
}

// SQLServerURL returns the go-mssqldb connection URL for a Great Plains server.
func (d Database) SQLServerURL() string {
	query := url.Values{}
	if d.Name != "" {
		query.Add("database", d.Name)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		RawQuery: query.Encode(),
	}
	if d.Instance != "" {
		u.Host = d.Host
		u.Path = d.Instance
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	return u.String()
}

// HostPort returns host:port, omitting the port when it is the MySQL default.
func (d Database) HostPort() string {
	if d.Port > 0 && d.Port != defaultMySQLPort {
		return fmt.Sprintf("%s:%d", d.Host, d.Port)
	}
	return d.Host
}
