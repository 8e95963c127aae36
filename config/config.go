package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bassamadnan/ordermail/atomicfile"
	"github.com/bassamadnan/ordermail/report"
)

const (
	DefaultPath      = "ordermail.yaml"
	DefaultDaysBack  = 7
	DefaultOutputDir = "output"
	DefaultLogFile   = "ordermail.log"
	DefaultRetailer  = "target"

	SourceIMAP  = "imap"
	SourceGmail = "gmail"
)

var (
	ErrAccountExists   = errors.New("account already configured")
	ErrAccountNotFound = errors.New("account not configured")
)

// Account is one mailbox to scan.
type Account struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password,omitempty"`
	// PasswordEnv names an environment variable holding the password.
	PasswordEnv     string `yaml:"password_env,omitempty"`
	IMAPServer      string `yaml:"imap_server,omitempty"`
	Source          string `yaml:"source,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
	TokenFile       string `yaml:"token_file,omitempty"`
}

// Secret returns the password, preferring the inline value.
func (a Account) Secret() string {
	if a.Password != "" {
		return a.Password
	}
	if a.PasswordEnv != "" {
		return os.Getenv(a.PasswordEnv)
	}
	return ""
}

// SourceName is the normalized source kind; empty means imap.
func (a Account) SourceName() string {
	s := strings.ToLower(strings.TrimSpace(a.Source))
	if s == "" {
		return SourceIMAP
	}
	return s
}

// Filters drop messages before extraction.
type Filters struct {
	IgnoreSenders           []string `yaml:"ignore_senders"`
	IgnoreKeywordsInSubject []string `yaml:"ignore_keywords_in_subject"`
}

// Ignored reports whether a message is dropped by the filters, and the rule
// that matched.
func (f Filters) Ignored(sender, subject string) (bool, string) {
	from := strings.ToLower(sender)
	for _, s := range f.IgnoreSenders {
		if s != "" && strings.Contains(from, strings.ToLower(s)) {
			return true, "sender:" + s
		}
	}
	subj := strings.ToLower(subject)
	for _, k := range f.IgnoreKeywordsInSubject {
		if k != "" && strings.Contains(subj, strings.ToLower(k)) {
			return true, "subject:" + k
		}
	}
	return false, ""
}

type Config struct {
	Accounts           []Account     `yaml:"accounts"`
	DaysBack           int           `yaml:"days_back"`
	OutputDir          string        `yaml:"output_dir"`
	CacheBackend       string        `yaml:"cache_backend"`
	DefaultRetailer    string        `yaml:"default_retailer"`
	RetailersFile      string        `yaml:"retailers_file,omitempty"`
	AcceptUnrecognized bool          `yaml:"accept_unrecognized"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout,omitempty"`
	Filters            Filters       `yaml:"filters"`
	LogFile            string        `yaml:"log_file"`
}

// Default returns a config with every optional field filled in.
func Default() Config {
	return Config{
		Accounts:        []Account{},
		DaysBack:        DefaultDaysBack,
		OutputDir:       DefaultOutputDir,
		CacheBackend:    "json",
		DefaultRetailer: DefaultRetailer,
		Filters: Filters{
			IgnoreSenders:           []string{},
			IgnoreKeywordsInSubject: []string{},
		},
		LogFile: DefaultLogFile,
	}
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.DaysBack <= 0 {
		c.DaysBack = d.DaysBack
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.CacheBackend == "" {
		c.CacheBackend = d.CacheBackend
	}
	if c.DefaultRetailer == "" {
		c.DefaultRetailer = d.DefaultRetailer
	}
	if c.LogFile == "" {
		c.LogFile = d.LogFile
	}
	if c.Accounts == nil {
		c.Accounts = []Account{}
	}
	if c.Filters.IgnoreSenders == nil {
		c.Filters.IgnoreSenders = []string{}
	}
	if c.Filters.IgnoreKeywordsInSubject == nil {
		c.Filters.IgnoreKeywordsInSubject = []string{}
	}
}

// Validate checks the fields that cannot be defaulted.
func (c Config) Validate() error {
	switch strings.ToLower(c.CacheBackend) {
	case "json", "sqlite":
	default:
		return fmt.Errorf("cache_backend must be json or sqlite, got %q", c.CacheBackend)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must not be negative")
	}
	seen := make(map[string]bool)
	for i, a := range c.Accounts {
		key := strings.ToLower(strings.TrimSpace(a.Email))
		if key == "" {
			return fmt.Errorf("accounts[%d]: email is required", i)
		}
		if seen[key] {
			return fmt.Errorf("accounts[%d]: %w: %s", i, ErrAccountExists, a.Email)
		}
		seen[key] = true
		switch a.SourceName() {
		case SourceIMAP:
			if a.IMAPServer == "" {
				return fmt.Errorf("accounts[%d]: imap_server is required for imap accounts", i)
			}
		case SourceGmail:
		default:
			return fmt.Errorf("accounts[%d]: unknown source %q", i, a.Source)
		}
	}
	return nil
}

// Cutoff is the oldest message date a scan looks at.
func (c Config) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.DaysBack)
}

func (c Config) ReportPaths() report.Paths { return report.DefaultPaths(c.OutputDir) }

func (c Config) OrdersPath() string        { return c.ReportPaths().Orders }
func (c Config) CancellationsPath() string { return c.ReportPaths().Cancellations }
func (c Config) LockPath() string          { return c.ReportPaths().Lock }
func (c Config) CacheDir() string          { return filepath.Join(c.OutputDir, "cache") }

// Account looks up an account by address, ignoring case.
func (c Config) Account(email string) (Account, bool) {
	for _, a := range c.Accounts {
		if strings.EqualFold(a.Email, strings.TrimSpace(email)) {
			return a, true
		}
	}
	return Account{}, false
}

// Parse decodes YAML into a defaulted config.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Manager owns the config file and persists every mutation.
type Manager struct {
	filePath string
	cfg      Config
	mu       sync.RWMutex
}

// NewManager loads filePath, writing a default config there when the file
// does not exist yet.
func NewManager(filePath string) (*Manager, error) {
	m := &Manager{filePath: filePath, cfg: Default()}
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) Path() string { return m.filePath }

// Load re-reads the config file.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.cfg = Default()
			return m.save()
		}
		return err
	}
	cfg, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", m.filePath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", m.filePath, err)
	}
	m.cfg = cfg
	return nil
}

// save must be called with mu held.
func (m *Manager) save() error {
	data, err := yaml.Marshal(m.cfg)
	if err != nil {
		return err
	}
	return atomicfile.Write(m.filePath, data, 0o600)
}

// Get returns a copy of the current config.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.cfg
	c.Accounts = append([]Account(nil), m.cfg.Accounts...)
	c.Filters.IgnoreSenders = append([]string(nil), m.cfg.Filters.IgnoreSenders...)
	c.Filters.IgnoreKeywordsInSubject = append([]string(nil), m.cfg.Filters.IgnoreKeywordsInSubject...)
	return c
}

func (m *Manager) AddAccount(a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Email = strings.TrimSpace(a.Email)
	if a.Email == "" {
		return fmt.Errorf("account email is required")
	}
	if _, ok := m.cfg.Account(a.Email); ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, a.Email)
	}
	next := m.cfg
	next.Accounts = append(append([]Account(nil), m.cfg.Accounts...), a)
	if err := next.Validate(); err != nil {
		return err
	}
	m.cfg = next
	return m.save()
}

func (m *Manager) RemoveAccount(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]Account, 0, len(m.cfg.Accounts))
	for _, a := range m.cfg.Accounts {
		if !strings.EqualFold(a.Email, strings.TrimSpace(email)) {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(m.cfg.Accounts) {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, email)
	}
	m.cfg.Accounts = kept
	return m.save()
}

// AddIgnoreSender adds a sender to the ignore list and saves.
func (m *Manager) AddIgnoreSender(sender string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.cfg.Filters.IgnoreSenders {
		if s == sender {
			return nil
		}
	}
	m.cfg.Filters.IgnoreSenders = append(m.cfg.Filters.IgnoreSenders, sender)
	return m.save()
}

// AddIgnoreKeywordInSubject adds a subject keyword to the ignore list and saves.
func (m *Manager) AddIgnoreKeywordInSubject(keyword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.cfg.Filters.IgnoreKeywordsInSubject {
		if k == keyword {
			return nil
		}
	}
	m.cfg.Filters.IgnoreKeywordsInSubject = append(m.cfg.Filters.IgnoreKeywordsInSubject, keyword)
	return m.save()
}
