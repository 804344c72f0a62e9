// Package sink rewires event sources, triggers and subscriptions. Each helper
// returns an updated copy of the source resource ready to be written back to
// the cluster; the input is never modified.
package sink

import (
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

// SASL secret keys of a Kafka service account secret.
const (
	KafkaUserKey     = "client-id"
	KafkaPasswordKey = "client-secret"
)

var (
	ErrMissingSource              = errors.New("source resource is missing")
	ErrMissingTarget              = errors.New("target resource is missing")
	ErrSameResource               = errors.New("source and target are the same resource")
	ErrMissingKafkaConnectionInfo = errors.New("kafka connection has no bootstrap host or service account secret")
)

func checkPair(source, target *unstructured.Unstructured) error {
	if source == nil || len(source.Object) == 0 {
		return ErrMissingSource
	}
	if target == nil || len(target.Object) == 0 {
		return ErrMissingTarget
	}
	if sameResource(source, target) {
		return ErrSameResource
	}
	return nil
}

func sameResource(a, b *unstructured.Unstructured) bool {
	if a == b {
		return true
	}
	if a.GetUID() != "" || b.GetUID() != "" {
		return a.GetUID() == b.GetUID()
	}
	return a.GetKind() == b.GetKind() && a.GetName() == b.GetName() && a.GetNamespace() == b.GetNamespace()
}

// destination renders target as a Knative destination: {uri} for the
// resource built by topology.NewSinkURIResource, {ref} otherwise.
func destination(target *unstructured.Unstructured) (map[string]interface{}, error) {
	if target.GetKind() == topology.KindURI {
		uri, _, _ := unstructured.NestedString(target.Object, "spec", "sinkUri")
		if uri == "" {
			return nil, fmt.Errorf("%w: URI target has no spec.sinkUri", ErrMissingTarget)
		}
		return map[string]interface{}{"uri": uri}, nil
	}
	if target.GetName() == "" || target.GetKind() == "" {
		return nil, fmt.Errorf("%w: target has no kind or name", ErrMissingTarget)
	}
	return map[string]interface{}{
		"ref": map[string]interface{}{
			"apiVersion": target.GetAPIVersion(),
			"kind":       target.GetKind(),
			"name":       target.GetName(),
		},
	}, nil
}

// CreateEventSourceSink points the sink of an event source (or binding) at
// target, replacing any previous ref or uri.
func CreateEventSourceSink(source, target *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if err := checkPair(source, target); err != nil {
		return nil, err
	}
	dest, err := destination(target)
	if err != nil {
		return nil, err
	}
	updated := source.DeepCopy()
	if err := unstructured.SetNestedMap(updated.Object, dest, "spec", "sink"); err != nil {
		return nil, fmt.Errorf("set spec.sink: %w", err)
	}
	return updated, nil
}

// CreateEventingPubSubSink points the subscriber of a Trigger or
// Subscription at target.
func CreateEventingPubSubSink(subscription, target *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if err := checkPair(subscription, target); err != nil {
		return nil, err
	}
	dest, err := destination(target)
	if err != nil {
		return nil, err
	}
	updated := subscription.DeepCopy()
	if err := unstructured.SetNestedMap(updated.Object, dest, "spec", "subscriber"); err != nil {
		return nil, fmt.Errorf("set spec.subscriber: %w", err)
	}
	return updated, nil
}

// CreateEventSourceKafkaConnection configures a Kafka source to read from the
// cluster behind a KafkaConnection: its bootstrap host, SASL credentials from
// the connection's service account secret, and TLS.
func CreateEventSourceKafkaConnection(source, connection *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if err := checkPair(source, connection); err != nil {
		return nil, err
	}
	host, _, _ := unstructured.NestedString(connection.Object, "status", "bootstrapServerHost")
	secret, _, _ := unstructured.NestedString(connection.Object, "spec", "credentials", "serviceAccountSecretName")
	if host == "" || secret == "" {
		return nil, ErrMissingKafkaConnectionInfo
	}

	updated := source.DeepCopy()
	if err := unstructured.SetNestedStringSlice(updated.Object, []string{host}, "spec", "bootstrapServers"); err != nil {
		return nil, fmt.Errorf("set spec.bootstrapServers: %w", err)
	}
	sasl := map[string]interface{}{
		"enable": true,
		"user": map[string]interface{}{
			"secretKeyRef": map[string]interface{}{"name": secret, "key": KafkaUserKey},
		},
		"password": map[string]interface{}{
			"secretKeyRef": map[string]interface{}{"name": secret, "key": KafkaPasswordKey},
		},
	}
	if err := unstructured.SetNestedMap(updated.Object, sasl, "spec", "net", "sasl"); err != nil {
		return nil, fmt.Errorf("set spec.net.sasl: %w", err)
	}
	if err := unstructured.SetNestedField(updated.Object, true, "spec", "net", "tls", "enable"); err != nil {
		return nil, fmt.Errorf("set spec.net.tls: %w", err)
	}
	return updated, nil
}
