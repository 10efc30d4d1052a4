package cmd

import (
	"encoding"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/jmylchreest/brickify/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for inspecting brickify configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file,
BRICKIFY_ environment variables and flags. The API token is masked.`,
	RunE: runConfigShow,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

Redirect the output to create a configuration template:

  brickify config dump > config.yaml

Environment variables use the BRICKIFY_ prefix and underscores for nesting.
Example: server.port -> BRICKIFY_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags, with
// durations and sizes in their human readable form.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			key = typ.Field(i).Name
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		case encoding.TextMarshaler:
			text, err := fv.MarshalText()
			if err != nil {
				result[key] = fmt.Sprint(fv)
			} else {
				result[key] = string(text)
			}
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(fv)
			} else {
				result[key] = fv
			}
		}
	}
	return result
}

func writeConfig(w io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server.APIToken != "" {
		cfg.Server.APIToken = redacted
	}
	return writeConfig(cmd.OutOrStdout(), cfg)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.Decode(v)
	if err != nil {
		return fmt.Errorf("loading defaults: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# brickify configuration file")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# All values shown below are defaults.")
	fmt.Fprintln(out, "# Duration format: 500ms, 30s, 5m")
	fmt.Fprintln(out, "# Size format: 256MiB, 1GB")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Environment variable overrides:")
	fmt.Fprintln(out, "#   BRICKIFY_SERVER_PORT, BRICKIFY_SERVER_API_TOKEN")
	fmt.Fprintln(out, "#   BRICKIFY_CAPTURE_SOURCE, BRICKIFY_EFFECT_BLOCK_SIZE")
	fmt.Fprintln(out, "#   BRICKIFY_LOGGING_LEVEL, BRICKIFY_LOGGING_FORMAT")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out)
	return writeConfig(out, cfg)
}
