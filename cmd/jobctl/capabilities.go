package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/workflow"
)

// capabilityDoc is the exported shape of the role capability table.
type capabilityDoc struct {
	Actions map[model.Action][]model.Role `yaml:"actions" json:"actions"`
	Create  []model.Role                  `yaml:"create" json:"create"`
	Workers []model.Role                  `yaml:"ownJobsOnly" json:"ownJobsOnly"`
}

func newCapabilitiesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Print which roles may request which actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapabilities(cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}

func buildCapabilityDoc() capabilityDoc {
	doc := capabilityDoc{Actions: workflow.Capabilities()}
	for _, role := range model.ValidRoles {
		if workflow.CanCreate(role) {
			doc.Create = append(doc.Create, role)
		}
		if role.IsWorker() {
			doc.Workers = append(doc.Workers, role)
		}
	}
	return doc
}

func runCapabilities(out io.Writer, format string) error {
	doc := buildCapabilityDoc()

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("capabilities: encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	default:
		return fmt.Errorf("capabilities: unknown format %q", format)
	}
}
