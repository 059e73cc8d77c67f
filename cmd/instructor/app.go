package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hamzaessahbaoui/ai-instructor/instructor"
	"github.com/hamzaessahbaoui/ai-instructor/internal/config"
	"github.com/hamzaessahbaoui/ai-instructor/pkg/models"
	"github.com/hamzaessahbaoui/ai-instructor/pkg/schema"
	"github.com/hamzaessahbaoui/ai-instructor/pkg/transport"
	anthropictransport "github.com/hamzaessahbaoui/ai-instructor/pkg/transport/anthropic"
	openaitransport "github.com/hamzaessahbaoui/ai-instructor/pkg/transport/openai"
)

type app struct {
	v          *viper.Viper
	configFile string
	envFile    string
	verbose    bool

	// newTransport builds the provider transport; replaced in tests.
	newTransport func(cfg *config.Config) (transport.Transport, error)
}

func newApp() *app {
	return &app{v: config.NewViper(), newTransport: sdkTransport}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "instructor",
		Short: "Structured extraction from LLM chat completions",
		Long: `Send a prompt to OpenAI or Anthropic with a response model injected as a tool,
then validate the tool call against the model and print it as JSON.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "configuration file path")
	pf.StringVar(&a.envFile, "env-file", "", "environment file to load (default .env)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	pf.String("provider", "", "LLM provider: openai or anthropic")
	pf.String("model", "", "model name sent with every request")
	pf.String("mode", "", "tool choice mode: function, auto, required or none")
	pf.Int("max-retries", 0, "total attempts on decode and validation failures")
	pf.String("base-url", "", "override the provider base URL")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	for key, flag := range map[string]string{
		"provider":    "provider",
		"model":       "model",
		"mode":        "mode",
		"max_retries": "max-retries",
		"base_url":    "base-url",
		"log_level":   "log-level",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(a.extractCmd(), a.schemaCmd(), a.modelsCmd(), a.configCmd())
	return root
}

func (a *app) loadConfig() (*config.Config, error) {
	var files []string
	if a.envFile != "" {
		files = append(files, a.envFile)
	}
	if err := config.LoadDotEnv(files...); err != nil {
		return nil, err
	}
	return config.Load(a.v, a.configFile)
}

// --- extract ---

func (a *app) extractCmd() *cobra.Command {
	var (
		mf     modelFlags
		system string
		many   bool
		vc     map[string]string
	)
	cmd := &cobra.Command{
		Use:   "extract [prompt]",
		Short: "Extract structured data from a prompt",
		Long: `Extract structured data described by a model descriptor file or a built-in
model. The prompt is
read from the arguments, or from stdin when none are given. With --many every
tool call of the answer becomes one element of a JSON array.`,
		Example: `  instructor extract -s user.json "Jason is 25 years old"
  instructor extract -b user_detail "Jason is 25 years old"
  echo "Answer %<question>s" | instructor extract -s answer.json --context question="What is Go?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			m, err := mf.model()
			if err != nil {
				return err
			}
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client, err := a.newClient(cfg, logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if cfg.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
				defer cancel()
			}

			rm := instructor.Single(m)
			if many {
				rm = instructor.Many(m)
			}
			opts := []instructor.CallOption{instructor.WithMaxRetries(cfg.MaxRetries)}
			if len(vc) > 0 {
				values := make(map[string]any, len(vc))
				for k, v := range vc {
					values[k] = v
				}
				opts = append(opts, instructor.WithValidationContext(values))
			}

			out, err := client.Call(ctx, buildParams(cfg, system, prompt), rm, opts...)
			if err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	mf.register(cmd)
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	cmd.Flags().BoolVar(&many, "many", false, "extract a collection of the model")
	cmd.Flags().StringToStringVar(&vc, "context", nil, "validation context values substituted into the prompt")
	return cmd
}

func (a *app) newClient(cfg *config.Config, logger *zap.Logger) (*instructor.Client, error) {
	mode, err := instructor.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	t, err := a.newTransport(cfg)
	if err != nil {
		return nil, err
	}
	t = transport.Chain(t, transport.WithLogging(logger.Named("transport")))

	opts := []instructor.Option{instructor.WithMode(mode), instructor.WithLogger(logger)}
	if cfg.Provider == config.ProviderAnthropic {
		return instructor.NewAnthropic(t, opts...), nil
	}
	return instructor.NewOpenAI(t, opts...), nil
}

func sdkTransport(cfg *config.Config) (transport.Transport, error) {
	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	if cfg.Provider == config.ProviderAnthropic {
		if cfg.BaseURL != "" {
			return anthropictransport.New(key, anthropicBaseURL(cfg.BaseURL)), nil
		}
		return anthropictransport.New(key), nil
	}
	return openaitransport.New(key, cfg.BaseURL), nil
}

// buildParams assembles the chat request. The system prompt is a message for
// OpenAI and a top-level field for Anthropic.
func buildParams(cfg *config.Config, system, prompt string) map[string]any {
	messages := []any{}
	params := map[string]any{"model": cfg.Model}
	if system != "" {
		if cfg.Provider == config.ProviderAnthropic {
			params["system"] = system
		} else {
			messages = append(messages, map[string]any{"role": "system", "content": system})
		}
	}
	params["messages"] = append(messages, map[string]any{"role": "user", "content": prompt})
	if cfg.MaxTokens > 0 {
		params["max_tokens"] = cfg.MaxTokens
	}
	return params
}

// --- schema ---

func (a *app) schemaCmd() *cobra.Command {
	var (
		mf  modelFlags
		raw bool
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the tool generated from a model descriptor",
		Long:  `Print the tool definition sent to the configured provider, or only the compiled JSON Schema with --raw.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			m, err := mf.model()
			if err != nil {
				return err
			}
			d, err := m.Descriptor()
			if err != nil {
				return err
			}
			fn, err := instructor.BuildFunction(d)
			if err != nil {
				return err
			}
			if raw {
				return writeJSON(cmd.OutOrStdout(), fn.Function.Parameters)
			}

			provider := instructor.OpenAI()
			if cfg.Provider == config.ProviderAnthropic {
				provider = instructor.Anthropic()
			}
			fn.Function.Name = provider.FunctionName(fn.Function.Name)
			return writeJSON(cmd.OutOrStdout(), provider.Tool(fn))
		},
	}
	mf.register(cmd)
	cmd.Flags().BoolVar(&raw, "raw", false, "print only the compiled JSON Schema")
	return cmd
}

// --- models ---

func (a *app) modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the built-in response models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), models.Builtin().Describe())
			return nil
		},
	}
}

// modelFlags selects the response model of a command: a descriptor file or a
// built-in model.
type modelFlags struct {
	schemaFile string
	builtin    string
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.schemaFile, "schema", "s", "", "model descriptor file (JSON)")
	cmd.Flags().StringVarP(&f.builtin, "builtin", "b", "", "built-in model name (see \"instructor models\")")
	cmd.MarkFlagsOneRequired("schema", "builtin")
	cmd.MarkFlagsMutuallyExclusive("schema", "builtin")
}

func (f *modelFlags) model() (instructor.Model, error) {
	if f.builtin != "" {
		return models.Builtin().Lookup(f.builtin)
	}
	d, err := readDescriptor(f.schemaFile)
	if err != nil {
		return nil, err
	}
	return instructor.FromDescriptor(d), nil
}

// --- config ---

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	initCmd := &cobra.Command{
		Use:   "init [filename]",
		Short: "Create a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := "instructor.json"
			if len(args) > 0 {
				filename = args[0]
			}
			if err := config.Default().SaveToFile(filename); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration saved to: %s\n", filename)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate [filename]",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.configFile = args[0]
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if _, err := instructor.ParseMode(cfg.Mode); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file '%s' is valid!\n", args[0])
			if a.verbose {
				fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
			}
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

// --- helpers ---

func readDescriptor(path string) (*schema.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model descriptor: %w", err)
	}
	var d schema.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse model descriptor %s: %w", path, err)
	}
	if err := d.Check(); err != nil {
		return nil, err
	}
	return &d, nil
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("a prompt is required")
	}
	return prompt, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if cfg.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// anthropicBaseURL makes sure relative endpoint paths resolve under baseURL.
func anthropicBaseURL(baseURL string) option.RequestOption {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return option.WithBaseURL(baseURL)
}
