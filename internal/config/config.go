package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/inkdust2021/promptveil/internal/engine"
)

// Config is the main configuration structure.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Detect DetectConfig `yaml:"detect"`
	LLM    LLMConfig    `yaml:"llm"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen      string `yaml:"listen"`
	AuthEnabled bool   `yaml:"auth_enabled"`
}

// DetectConfig holds the detection pipeline configuration.
type DetectConfig struct {
	ScoreThreshold float64            `yaml:"score_threshold"`
	TypeThresholds map[string]float64 `yaml:"type_thresholds"`
	Builtin        []string           `yaml:"builtin"`
	Keywords       []KeywordPattern   `yaml:"keywords"`
	Regex          []RegexPattern     `yaml:"regex"`
	Exclude        []string           `yaml:"exclude"`
	Analyzer       AnalyzerConfig     `yaml:"analyzer"`
}

// KeywordPattern is an exact keyword to redact.
type KeywordPattern struct {
	Value    string `yaml:"value" json:"value"`
	Category string `yaml:"category" json:"category"`
}

// RegexPattern is a regex rule to redact.
type RegexPattern struct {
	Pattern  string  `yaml:"pattern" json:"pattern"`
	Category string  `yaml:"category" json:"category"`
	Score    float64 `yaml:"score" json:"score"`
}

// AnalyzerConfig points at an optional remote analyzer service.
type AnalyzerConfig struct {
	Enabled  bool     `yaml:"enabled"`
	URL      string   `yaml:"url"`
	Language string   `yaml:"language"`
	Entities []string `yaml:"entities"`
	// Timeout 为 time.ParseDuration 语法（如 "5s"）；yaml 不直接支持 time.Duration。
	Timeout string `yaml:"timeout"`
}

// TimeoutDuration parses Timeout, falling back to 5s.
func (c AnalyzerConfig) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return 5 * time.Second
}

// LLMConfig holds upstream model settings. The API key is deliberately not
// part of the file: it comes from the environment (OPENAI_API_KEY, optionally
// via .env) so configs can be committed and shared.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// TimeoutDuration parses Timeout, falling back to 120s.
func (c LLMConfig) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return 120 * time.Second
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

var defaultConfig = Config{
	Server: ServerConfig{
		Listen:      "127.0.0.1:8090",
		AuthEnabled: false,
	},
	Detect: DetectConfig{
		ScoreThreshold: 0.85,
		Builtin:        []string{"email", "us_phone", "us_ssn", "credit_card"},
		Analyzer: AnalyzerConfig{
			Language: "en",
			Timeout:  "5s",
		},
	},
	LLM: LLMConfig{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-3.5-turbo",
		Temperature: 0.2,
		MaxTokens:   1000,
		Timeout:     "120s",
	},
	Store: StoreConfig{
		Path: "~/.promptveil/promptveil.db",
	},
	Log: LogConfig{
		Level: "info",
	},
}

// ConfigPath returns the expanded global config file path.
func ConfigPath() string {
	if cfgPath := os.Getenv("PROMPTVEIL_CONFIG"); cfgPath != "" {
		return ExpandPath(cfgPath)
	}
	return filepath.Join(homeDir(), ".promptveil", "config.yaml")
}

// ProjectConfigPath returns the project-level override path.
func ProjectConfigPath() string {
	return ".promptveil.yaml"
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return os.Getenv("HOME")
}

// ExpandPath expands a leading "~/" to the current user's home directory.
func ExpandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// Manager handles config loading, merging, and hot reload.
type Manager struct {
	mu          sync.RWMutex
	config      Config
	watcher     *fsnotify.Watcher
	configPath  string
	projectPath string
}

// Load creates a Manager and loads configuration. cfgFile overrides the
// global path when non-empty.
func Load(cfgFile string) (*Manager, error) {
	configPath := ConfigPath()
	if cfgFile != "" {
		configPath = ExpandPath(cfgFile)
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	projectPath := ProjectConfigPath()
	if abs, err := filepath.Abs(projectPath); err == nil {
		projectPath = abs
	}

	m := &Manager{
		config:      defaultConfig,
		configPath:  configPath,
		projectPath: projectPath,
	}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads global and project config from disk.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := defaultConfig

	if data, err := os.ReadFile(m.configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return err
		}
		slog.Debug("Loaded config", "path", m.configPath)
	} else if !os.IsNotExist(err) {
		return err
	}

	if data, err := os.ReadFile(m.projectPath); err == nil {
		var projectCfg Config
		if err := yaml.Unmarshal(data, &projectCfg); err != nil {
			return err
		}
		cfg = mergeConfigs(cfg, projectCfg)
		slog.Debug("Merged project config", "path", m.projectPath)
	} else if !os.IsNotExist(err) {
		return err
	}

	// 规范化配置：清理不可见字符、归一分类名，避免“规则看起来已配置但实际不生效”
	// 或产生无法还原的占位符类型。
	sanitizeLoadedConfig(&cfg)

	m.config = cfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Watch reloads the config whenever the global or project file changes.
func (m *Manager) Watch(onChange func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		return nil // already watching
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	cfgPath := filepath.Clean(m.configPath)
	if err := watcher.Add(filepath.Dir(cfgPath)); err != nil {
		return err
	}
	projectPath := filepath.Clean(m.projectPath)
	if _, err := os.Stat(projectPath); err == nil {
		if err := watcher.Add(filepath.Dir(projectPath)); err != nil {
			return err
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Clean(event.Name)
				if name == cfgPath || name == projectPath {
					slog.Info("Config file changed, reloading...")
					if err := m.Reload(); err != nil {
						slog.Error("Failed to reload config", "error", err)
					} else if onChange != nil {
						onChange()
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watcher error", "error", err)
			}
		}
	}()

	return nil
}

// Close stops the config watcher.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func sanitizeLoadedConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Server.Listen = strings.TrimSpace(cfg.Server.Listen)

	if len(cfg.Detect.Keywords) > 0 {
		out := make([]KeywordPattern, 0, len(cfg.Detect.Keywords))
		for _, kw := range cfg.Detect.Keywords {
			val := SanitizePatternValue(kw.Value)
			if val == "" {
				continue
			}
			cat := string(engine.NormalizeType(kw.Category))
			if cat == "" {
				cat = "TEXT"
			}
			out = append(out, KeywordPattern{Value: val, Category: cat})
		}
		cfg.Detect.Keywords = out
	}

	if len(cfg.Detect.Regex) > 0 {
		out := make([]RegexPattern, 0, len(cfg.Detect.Regex))
		for _, rp := range cfg.Detect.Regex {
			pat := strings.TrimSpace(rp.Pattern)
			if pat == "" {
				continue
			}
			cat := string(engine.NormalizeType(rp.Category))
			if cat == "" {
				cat = "REGEX"
			}
			out = append(out, RegexPattern{Pattern: pat, Category: cat, Score: rp.Score})
		}
		cfg.Detect.Regex = out
	}

	if len(cfg.Detect.Exclude) > 0 {
		out := make([]string, 0, len(cfg.Detect.Exclude))
		for _, ex := range cfg.Detect.Exclude {
			if val := SanitizePatternValue(ex); val != "" {
				out = append(out, val)
			}
		}
		cfg.Detect.Exclude = out
	}

	if len(cfg.Detect.Builtin) > 0 {
		out := make([]string, 0, len(cfg.Detect.Builtin))
		for _, b := range cfg.Detect.Builtin {
			if v := strings.TrimSpace(b); v != "" {
				out = append(out, v)
			}
		}
		cfg.Detect.Builtin = out
	}

	if len(cfg.Detect.TypeThresholds) > 0 {
		out := make(map[string]float64, len(cfg.Detect.TypeThresholds))
		for typ, min := range cfg.Detect.TypeThresholds {
			if t := string(engine.NormalizeType(typ)); t != "" {
				out[t] = min
			}
		}
		cfg.Detect.TypeThresholds = out
	}
}

// mergeConfigs merges project config over global config. Lists append,
// scalars override when set.
func mergeConfigs(global, project Config) Config {
	result := global

	if len(project.Detect.Keywords) > 0 {
		result.Detect.Keywords = append(result.Detect.Keywords, project.Detect.Keywords...)
	}
	if len(project.Detect.Regex) > 0 {
		result.Detect.Regex = append(result.Detect.Regex, project.Detect.Regex...)
	}
	if len(project.Detect.Builtin) > 0 {
		result.Detect.Builtin = append(result.Detect.Builtin, project.Detect.Builtin...)
	}
	if len(project.Detect.Exclude) > 0 {
		result.Detect.Exclude = append(result.Detect.Exclude, project.Detect.Exclude...)
	}
	for typ, min := range project.Detect.TypeThresholds {
		if result.Detect.TypeThresholds == nil {
			result.Detect.TypeThresholds = make(map[string]float64)
		}
		result.Detect.TypeThresholds[typ] = min
	}

	if project.Server.Listen != "" {
		result.Server.Listen = project.Server.Listen
	}
	if project.Server.AuthEnabled {
		result.Server.AuthEnabled = true
	}
	if project.Detect.ScoreThreshold != 0 {
		result.Detect.ScoreThreshold = project.Detect.ScoreThreshold
	}
	if project.Detect.Analyzer.URL != "" {
		result.Detect.Analyzer = project.Detect.Analyzer
	}
	if project.LLM.BaseURL != "" {
		result.LLM.BaseURL = project.LLM.BaseURL
	}
	if project.LLM.Model != "" {
		result.LLM.Model = project.LLM.Model
	}
	if project.LLM.Temperature != 0 {
		result.LLM.Temperature = project.LLM.Temperature
	}
	if project.LLM.MaxTokens != 0 {
		result.LLM.MaxTokens = project.LLM.MaxTokens
	}
	if project.LLM.Timeout != "" {
		result.LLM.Timeout = project.LLM.Timeout
	}
	if project.Store.Path != "" {
		result.Store.Path = project.Store.Path
	}
	if project.Log.Level != "" {
		result.Log.Level = project.Log.Level
	}
	if project.Log.File != "" {
		result.Log.File = project.Log.File
	}

	return result
}
