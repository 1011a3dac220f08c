package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/agentic-turing/atm/pkg/adversarial"
	"github.com/agentic-turing/atm/pkg/analysis"
	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/cost"
	"github.com/agentic-turing/atm/pkg/healing"
	"github.com/agentic-turing/atm/pkg/infotheory"
	"github.com/agentic-turing/atm/pkg/resonance"
	"github.com/agentic-turing/atm/pkg/sensitivity"
)

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var reportSchemas = map[string]func() *jsonschema.Schema{
	"analysis":    generateSchema[analysis.Results],
	"infotheory":  generateSchema[infotheory.Report],
	"healing":     generateSchema[healing.Report],
	"robustness":  generateSchema[adversarial.Report],
	"resonance":   generateSchema[resonance.Report],
	"sensitivity": generateSchema[sensitivity.Report],
	"cost":        generateSchema[cost.Report],
}

func reportNames() []string {
	names := make([]string, 0, len(reportSchemas))
	for name := range reportSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <report>",
		Short: "Print the JSON schema of a report",
		Long: fmt.Sprintf(`Print the JSON schema of one of the JSON reports atm writes.

Reports: %s`, strings.Join(reportNames(), ", ")),
		Args:      cobra.ExactArgs(1),
		ValidArgs: reportNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeSchema(cmd.OutOrStdout(), args[0])
		},
	}
}

func writeSchema(out io.Writer, name string) error {
	gen, ok := reportSchemas[name]
	if !ok {
		return atmerr.New(atmerr.KindValidation, "unknown report: "+name, atmerr.Details{"valid": reportNames()})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(gen())
}
