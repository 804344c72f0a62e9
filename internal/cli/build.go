package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-knative/internal/k8s"
	"github.com/kubilitics/kubilitics-knative/internal/models"
	"github.com/kubilitics/kubilitics-knative/internal/service"
	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

type buildOptions struct {
	files     []string
	domain    string
	output    string
	namespace string
	live      bool
	discover  bool
}

func newBuildCmd(a *app) *cobra.Command {
	o := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a topology from manifests or a live cluster",
		Example: `  # Everything in a directory of manifests
  kntopo build -f ./manifests

  # Only the eventing graph, as YAML, from stdin
  cat demo.yaml | kntopo build -f - --domain eventing -o yaml

  # A live namespace, including CRD-registered sources and channels
  kntopo build --live --discover -n demo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBuild(cmd.Context(), o)
		},
	}
	cmd.Flags().StringArrayVarP(&o.files, "filename", "f", nil, "manifest file or directory; - reads stdin (repeatable)")
	cmd.Flags().StringVar(&o.domain, "domain", string(models.DomainAll), "serving, eventing, kamelets, kafkasinks or all")
	cmd.Flags().StringVarP(&o.output, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&o.namespace, "namespace", "n", "", "only include objects of this namespace")
	cmd.Flags().BoolVar(&o.live, "live", false, "read resources from the cluster instead of manifests")
	cmd.Flags().BoolVar(&o.discover, "discover", false, "with --live, register source and channel kinds from installed CRDs")
	return cmd
}

func (a *app) runBuild(ctx context.Context, o *buildOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	domain, err := service.ParseDomain(o.domain)
	if err != nil {
		return err
	}
	registry := topology.NewRegistry()
	log := a.logger()

	var res models.Resources
	switch {
	case o.live:
		if o.namespace == "" {
			return errors.New("--live requires --namespace")
		}
		client, err := k8s.NewClient(a.kubeconfig, a.context)
		if err != nil {
			return err
		}
		if o.discover {
			if _, err := client.DiscoverKinds(ctx, registry); err != nil {
				return err
			}
		}
		if res, err = k8s.NewCollector(client, registry, log).Collect(ctx, o.namespace); err != nil {
			return err
		}
	case len(o.files) > 0:
		objs, err := readManifests(o.files, a.stdin)
		if err != nil {
			return err
		}
		res = topology.ResourcesFromObjects(registry, objs, o.namespace)
	default:
		return errors.New("one of --filename or --live is required")
	}

	top := topology.NewBuilder(registry, topology.WithLogger(log)).Build(res)
	model, ok := top.Domain(domain)
	if !ok {
		return fmt.Errorf("unknown domain %q", domain)
	}
	return writeOutput(a.stdout, o.output, model)
}
