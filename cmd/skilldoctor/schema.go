package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skilldoctor/pkg/presenter"
	"github.com/jingkaihe/skilldoctor/pkg/report"
)

// configRecordSchema describes the skill.yaml contract for host-side
// tooling. It mirrors the parsed shape in pkg/record, which keeps the
// document as a yaml.Node and cannot be reflected directly.
type configRecordSchema struct {
	Name               string   `json:"name" jsonschema:"description=Display name of the skill record"`
	Version            string   `json:"version" jsonschema:"description=Semantic version of the record"`
	Category           string   `json:"category" jsonschema:"description=Library category the record belongs to"`
	DependsOn          []string `json:"depends_on,omitempty" jsonschema:"description=Slugs of records this record depends on; the resulting graph must be acyclic"`
	IntegratesWith     []string `json:"integrates_with,omitempty" jsonschema:"description=Slugs of records this record integrates with"`
	ActivationTriggers []string `json:"activation_triggers,omitempty" jsonschema:"description=Phrases that activate the record in the host"`
}

var schemaCmd = &cobra.Command{
	Use:   "schema [config|report]",
	Short: "Print JSON Schemas for host-side tooling",
	Long: `Print the JSON Schema of the skill.yaml config record, or of the JSON
report emitted by scan --format json.

Examples:
  skilldoctor schema config
  skilldoctor schema report`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"config", "report"},
	Run: func(cmd *cobra.Command, args []string) {
		if err := printSchema(args[0]); err != nil {
			presenter.Error(err, "Failed to generate the schema")
			os.Exit(1)
		}
	},
}

func printSchema(kind string) error {
	reflector := jsonschema.Reflector{DoNotReference: true}

	var schema *jsonschema.Schema
	switch kind {
	case "config":
		schema = reflector.Reflect(&configRecordSchema{})
		schema.Title = "Skill record config (skill.yaml)"
	case "report":
		schema = reflector.Reflect(&report.Report{})
		schema.Title = "Scan report"
	default:
		return errors.Errorf("unknown schema %q: must be config or report", kind)
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode schema")
	}
	fmt.Println(string(data))
	return nil
}
