package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/inkdust2021/promptveil/internal/config"
	"github.com/inkdust2021/promptveil/internal/detect"
	"github.com/inkdust2021/promptveil/internal/engine"
	"github.com/inkdust2021/promptveil/internal/llm"
	"github.com/inkdust2021/promptveil/internal/log"
	"github.com/inkdust2021/promptveil/internal/metrics"
	"github.com/inkdust2021/promptveil/internal/server"
	"github.com/inkdust2021/promptveil/internal/store"
	"github.com/inkdust2021/promptveil/internal/version"
)

var (
	cfgFile     string
	mappingFile string
	userRole    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "promptveil",
	Short: "PromptVeil anonymizing gateway for LLM prompts",
	Long: `PromptVeil redacts sensitive data (names, emails, phone numbers, etc.)
from prompts before sending them to an upstream LLM, then restores the
original values in the response. Placeholders like <PERSON_1> keep the
prompt coherent for the model while the real values never leave the host.`,
	RunE: func(cmd *cobra.Command, args []string) error { return cmd.Help() },
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE:  runServe,
}

var redactCmd = &cobra.Command{
	Use:   "redact [text]",
	Short: "Redact text once and print the result as JSON",
	Long: `Run the configured detection pipeline over the given text (or stdin
when no argument is given) and print the redacted text plus the
placeholder mapping as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRedact,
}

var restoreCmd = &cobra.Command{
	Use:   "restore [text]",
	Short: "Restore placeholders in text using a mapping file",
	Long: `Replace placeholder tokens in the given text (or stdin) with their
original values. The mapping comes from --mapping, a JSON file in the
format printed by 'promptveil redact'. Well-formed tokens that are not
in the mapping are removed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRestore,
}

var testCmd = &cobra.Command{
	Use:   "test [keyword] [text]",
	Short: "Test a redaction keyword",
	Long: `Test a keyword against sample text to see how it is redacted and
restored. The keyword is matched as an exact substring.`,
	Args: cobra.ExactArgs(2),
	RunE: runTest,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user for HTTP basic auth",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("PromptVeil %s\n", version.Version)
		fmt.Printf("  Git commit: %s\n", version.GitCommit)
		fmt.Printf("  Build date: %s\n", version.BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ~/.promptveil/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(redactCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(versionCmd)

	userCmd.AddCommand(userAddCmd)

	restoreCmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "mapping JSON file produced by 'promptveil redact' (required)")
	_ = restoreCmd.MarkFlagRequired("mapping")
	userAddCmd.Flags().StringVar(&userRole, "role", "user", "role stored with the user")
}

// loadEnv pulls in a local .env if present. The OpenAI key lives in the
// environment, never in the config file.
func loadEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env", "error", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	loadEnv()

	mgr, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer func() { _ = mgr.Close() }()

	c := mgr.Get()

	if err := log.Setup(c.Log.Level, c.Log.File); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	slog.Info("Starting PromptVeil", "version", version.Version, "listen", c.Server.Listen)

	pipeline, err := detect.NewPipelineFromConfig(c.Detect)
	if err != nil {
		return fmt.Errorf("failed to build detection pipeline: %w", err)
	}

	client := llm.New(llm.Options{
		BaseURL:     c.LLM.BaseURL,
		APIKey:      os.Getenv("OPENAI_API_KEY"),
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     c.LLM.TimeoutDuration(),
	})

	var st *store.Store
	if path := strings.TrimSpace(c.Store.Path); path != "" {
		path = config.ExpandPath(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
		st, err = store.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = st.Close() }()
	} else if c.Server.AuthEnabled {
		return errors.New("auth is enabled but store.path is empty")
	}

	srv := server.New(c, pipeline, client, st, metrics.New())

	// 启用配置热更新：改动规则文件后无需重启，替换整条检测流水线。
	if err := mgr.Watch(func() {
		p, err := detect.NewPipelineFromConfig(mgr.Get().Detect)
		if err != nil {
			slog.Error("Config reloaded but pipeline rebuild failed, keeping old pipeline", "error", err)
			return
		}
		srv.UpdatePipeline(p)
		slog.Info("Detection pipeline reloaded")
	}); err != nil {
		slog.Warn("Failed to enable config hot-reload; restart required after config changes", "error", err)
	}

	httpSrv := &http.Server{
		Addr:              c.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	}
}

func runRedact(cmd *cobra.Command, args []string) error {
	text, err := argOrStdin(cmd, args)
	if err != nil {
		return err
	}

	mgr, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer func() { _ = mgr.Close() }()

	pipeline, err := detect.NewPipelineFromConfig(mgr.Get().Detect)
	if err != nil {
		return fmt.Errorf("failed to build detection pipeline: %w", err)
	}

	spans := pipeline.Detect(cmd.Context(), text)
	res, err := engine.Redact(text, spans)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runRestore(cmd *cobra.Command, args []string) error {
	text, err := argOrStdin(cmd, args)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(mappingFile)
	if err != nil {
		return fmt.Errorf("failed to read mapping file: %w", err)
	}

	// 既接受 redact 子命令的完整输出，也接受裸映射数组。
	var res engine.Result
	if err := json.Unmarshal(data, &res); err != nil || len(res.Mapping) == 0 {
		var mapping []engine.MappingEntry
		if err := json.Unmarshal(data, &mapping); err != nil {
			return fmt.Errorf("mapping file is neither a redact result nor a mapping array: %w", err)
		}
		res.Mapping = mapping
	}

	fmt.Fprintln(cmd.OutOrStdout(), engine.Reconstruct(text, res.Mapping))
	return nil
}

func runTest(cmd *cobra.Command, args []string) error {
	keyword, text := args[0], args[1]

	d := detect.NewPatternDetector()
	// 仅关键词：只替换“关键词本身”，避免正则导致的过宽匹配。
	if err := d.AddKeyword(keyword, "TEST"); err != nil {
		return err
	}

	spans := detect.NewPipeline(0, d).Detect(cmd.Context(), text)
	res, err := engine.Redact(text, spans)
	if err != nil {
		return err
	}

	fmt.Printf("Original: %s\n", text)
	fmt.Printf("Redacted: %s\n", res.RedactedText)
	fmt.Printf("Matches:  %d\n", len(spans))
	if len(res.Mapping) > 0 {
		fmt.Println("\nPlaceholders registered:")
		for _, e := range res.Mapping {
			fmt.Printf("  %s -> %q\n", e.Placeholder, e.Original)
		}
		fmt.Printf("\nRestored: %s\n", engine.Reconstruct(res.RedactedText, res.Mapping))
	}
	return nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	username := strings.TrimSpace(args[0])
	if username == "" {
		return errors.New("empty username")
	}

	mgr, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer func() { _ = mgr.Close() }()

	path := config.ExpandPath(mgr.Get().Store.Path)
	if path == "" {
		return errors.New("store.path is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	reader := bufio.NewReader(cmd.InOrStdin())
	password, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	user, err := st.CreateUser(cmd.Context(), username, password, userRole)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "User %q created (role %s)\n", user.Username, user.Role)
	return nil
}

func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
