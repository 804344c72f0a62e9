package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-knative/internal/k8s"
	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newKindsCmd(a *app) *cobra.Command {
	var output string
	var discover bool
	cmd := &cobra.Command{
		Use:   "kinds",
		Short: "List the event-source and channel kinds the builder knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			registry := topology.NewRegistry()
			if discover {
				client, err := k8s.NewClient(a.kubeconfig, a.context)
				if err != nil {
					return err
				}
				if _, err := client.DiscoverKinds(ctx, registry); err != nil {
					return err
				}
			}
			if output == "table" {
				_, err := fmt.Fprintln(a.stdout, kindsTable(registry))
				return err
			}
			return writeOutput(a.stdout, output, map[string][]topology.KindModel{
				"eventSources": registry.EventSources(),
				"channels":     registry.Channels(),
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	cmd.Flags().BoolVar(&discover, "discover", false, "add kinds registered by CRDs in the cluster")
	return cmd
}

func kindsTable(registry *topology.Registry) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("CATEGORY", "KIND", "GROUP/VERSION", "RESOURCE", "KAFKA").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	add := func(category string, models []topology.KindModel) {
		for _, m := range models {
			kafka := ""
			if m.Kafka {
				kafka = "yes"
			}
			t.Row(category, m.GVK.Kind, m.GVK.GroupVersion().String(), m.Resource, kafka)
		}
	}
	add("source", registry.EventSources())
	add("channel", registry.Channels())
	return t.String()
}
