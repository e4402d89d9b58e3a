package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/wizard"
	"gopkg.in/yaml.v3"
)

// secretMask stands in for a stored secret in configure show.
const secretMask = "********"

func newConfigureCommand(opts *rootOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Set the API provider, model and keys",
		Long: `Set the API provider, model and keys.

Without flags an interactive wizard asks for the provider, model and API key.
Use --set to write individual keys instead, for example:

  xamun configure --set apiProvider=openrouter --set openRouterApiKey=sk-...

Secret keys are written to the system keyring, everything else to the host
state database. An empty value clears the key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.openHost()
			if err != nil {
				return err
			}
			defer h.Close() //nolint:errcheck

			var values map[string]any
			if len(sets) > 0 {
				values, err = parseSetFlags(sets)
				if err != nil {
					return err
				}
			} else {
				current, err := h.store.GetAPIConfiguration(cmd.Context())
				if err != nil {
					return err
				}
				answers, err := wizard.RunConfigWizard(cmd.InOrStdin(), cmd.ErrOrStderr(), current)
				if err != nil {
					return err
				}
				values = answers.Values()
			}

			orch, err := h.oneShot()
			if err != nil {
				return err
			}
			if err := orch.UpdateConfiguration(cmd.Context(), values); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d configuration keys\n", len(values))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "Set a configuration key (key=value, repeatable)")
	cmd.AddCommand(newConfigureShowCommand(opts))

	return cmd
}

func newConfigureShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored API configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.openHost()
			if err != nil {
				return err
			}
			defer h.Close() //nolint:errcheck

			current, err := h.store.GetAPIConfiguration(cmd.Context())
			if err != nil {
				return err
			}
			return writeConfigYAML(cmd.OutOrStdout(), current)
		},
	}
}

// parseSetFlags turns key=value pairs into an updateConfiguration payload.
// Keys must belong to the configuration schema.
func parseSetFlags(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", pair)
		}
		if _, known := models.LookupConfigField(key); !known {
			return nil, fmt.Errorf("unknown configuration key %q", key)
		}
		values[key] = value
	}
	return values, nil
}

// writeConfigYAML prints the non-empty keys in schema order. Secret values
// are masked.
func writeConfigYAML(w io.Writer, cfg models.APIConfiguration) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range models.ConfigSchema {
		v := f.Get(&cfg)
		if v == "" {
			continue
		}
		if f.Class == models.KeySecret {
			v = secretMask
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: f.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: v},
		)
	}
	if len(doc.Content) == 0 {
		_, err := fmt.Fprintln(w, "No API configuration stored.")
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
