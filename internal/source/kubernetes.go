package source

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/curtisra-gif/simple-gslb/internal/model"
)

// GSLBConfigResource is the cluster-scoped custom resource holding domain
// definitions.
var GSLBConfigResource = schema.GroupVersionResource{
	Group:    "cyberun.cloud",
	Version:  "v1",
	Resource: "gslbconfigs",
}

// Kubernetes lists GSLB custom resources through the dynamic client.
type Kubernetes struct {
	log    *zap.Logger
	client dynamic.Interface
	gvr    schema.GroupVersionResource
}

func NewKubernetes(log *zap.Logger, client dynamic.Interface, gvr schema.GroupVersionResource) *Kubernetes {
	return &Kubernetes{log: log, client: client, gvr: gvr}
}

// RESTConfig prefers the in-cluster service account and falls back to the
// kubeconfig loading rules (KUBECONFIG, ~/.kube/config).
func RESTConfig() (*rest.Config, error) {
	cfg, err := rest.InClusterConfig()
	if err == nil {
		return cfg, nil
	}

	kubeCfg, kerr := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(),
		&clientcmd.ConfigOverrides{},
	).ClientConfig()
	if kerr != nil {
		return nil, errors.Join(err, kerr)
	}
	return kubeCfg, nil
}

func (k *Kubernetes) List(ctx context.Context) ([]model.DomainConfig, error) {
	list, err := k.client.Resource(k.gvr).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", k.gvr.GroupResource(), err)
	}

	entries := make([]Entry, 0, len(list.Items))
	for i := range list.Items {
		item := &list.Items[i]
		entry, err := entryFrom(item)
		if err != nil {
			k.log.Warn("skipping malformed gslb config",
				zap.String("name", item.GetName()),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, entry)
	}
	return Merge(entries), nil
}

func entryFrom(obj *unstructured.Unstructured) (Entry, error) {
	var entry Entry

	spec, found, err := unstructured.NestedMap(obj.Object, "spec")
	if err != nil {
		return entry, fmt.Errorf("reading spec: %w", err)
	}
	if !found {
		return entry, nil
	}

	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(spec, &entry); err != nil {
		return entry, fmt.Errorf("converting spec: %w", err)
	}
	return entry, nil
}
