package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		redacted := *cfg
		redacted.Places.Key = redact(redacted.Places.Key)
		redacted.CSE.Key = redact(redacted.CSE.Key)
		redacted.Geocode.GoogleKey = redact(redacted.Geocode.GoogleKey)
		redacted.Hunter.Key = redact(redacted.Hunter.Key)
		redacted.PageSpeed.Key = redact(redacted.PageSpeed.Key)
		redacted.LLM.Key = redact(redacted.LLM.Key)

		out, err := yaml.Marshal(redacted)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		fmt.Print(string(out))
		return nil
	},
}

func redact(key string) string {
	if key == "" {
		return ""
	}
	return "<set>"
}

func init() {
	rootCmd.AddCommand(configCmd)
}
