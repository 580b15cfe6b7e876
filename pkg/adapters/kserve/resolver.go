package kserve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
)

var inferenceServiceGVR = schema.GroupVersionResource{
	Group:    "serving.kserve.io",
	Version:  "v1beta1",
	Resource: "inferenceservices",
}

// RunLabel marks the InferenceService serving a given run.
const RunLabel = "modeldb.verta.ai/experiment-run-id"

type Config struct {
	Namespace      string
	KubeConfigPath string
	InCluster      bool
}

// Resolver finds the predict URL of a run's InferenceService.
type Resolver struct {
	client    dynamic.Interface
	namespace string
}

var _ ports.EndpointResolver = (*Resolver)(nil)

// NewResolver builds a Resolver from kube configuration.
func NewResolver(cfg Config) (*Resolver, error) {
	var restCfg *rest.Config
	var err error

	if cfg.InCluster {
		restCfg, err = rest.InClusterConfig()
	} else if cfg.KubeConfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfigPath)
	} else {
		home, _ := os.UserHomeDir()
		restCfg, err = clientcmd.BuildConfigFromFlags("", filepath.Join(home, ".kube", "config"))
	}
	if err != nil {
		return nil, fmt.Errorf("build k8s config: %w", err)
	}

	client, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}
	return NewResolverWithClient(client, cfg.Namespace), nil
}

// NewResolverWithClient wraps an existing dynamic client.
func NewResolverWithClient(client dynamic.Interface, namespace string) *Resolver {
	if namespace == "" {
		namespace = "default"
	}
	return &Resolver{client: client, namespace: namespace}
}

// Resolve looks up the InferenceService labeled with runID, falling back to
// one named runID.
func (r *Resolver) Resolve(ctx context.Context, runID string) (ports.Endpoint, error) {
	obj, err := r.find(ctx, runID)
	if err != nil {
		return ports.Endpoint{}, err
	}

	return endpoint(obj)
}

func (r *Resolver) find(ctx context.Context, runID string) (*unstructured.Unstructured, error) {
	res := r.client.Resource(inferenceServiceGVR).Namespace(r.namespace)

	list, err := res.List(ctx, metav1.ListOptions{LabelSelector: RunLabel + "=" + runID})
	if err != nil {
		return nil, fmt.Errorf("list kserve inferenceservices: %w", err)
	}
	if len(list.Items) > 0 {
		return &list.Items[0], nil
	}

	obj, err := res.Get(ctx, runID, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, &domain.Error{Kind: domain.ErrNotFound, Resource: "inference service", Key: runID, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("get kserve inferenceservice: %w", err)
	}
	return obj, nil
}

// serviceStatus is the subset of InferenceService status the resolver reads.
type serviceStatus struct {
	URL     string `json:"url"`
	Address struct {
		URL string `json:"url"`
	} `json:"address"`
	Conditions []struct {
		Type    string `json:"type"`
		Status  string `json:"status"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"conditions"`
}

// endpoint turns a ready InferenceService into its v1 predict endpoint.
// Services without a Ready=True condition or without a url are rejected.
func endpoint(obj *unstructured.Unstructured) (ports.Endpoint, error) {
	fail := func(msg string) (ports.Endpoint, error) {
		return ports.Endpoint{}, &domain.Error{Kind: domain.ErrTransport, Resource: "inference service", Key: obj.GetName(), Message: msg}
	}

	var st serviceStatus
	if raw, found, _ := unstructured.NestedMap(obj.Object, "status"); found {
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(raw, &st); err != nil {
			return ports.Endpoint{}, &domain.Error{Kind: domain.ErrDeserialization, Resource: "inference service", Key: obj.GetName(), Err: err}
		}
	}

	ready, detail := false, ""
	for _, c := range st.Conditions {
		if c.Type != "Ready" {
			continue
		}
		ready = c.Status == string(metav1.ConditionTrue)
		detail = c.Message
		if detail == "" {
			detail = c.Reason
		}
	}
	if !ready {
		if detail != "" {
			return fail("inference service is not ready: " + detail)
		}
		return fail("inference service is not ready")
	}

	base := st.URL
	if base == "" {
		base = st.Address.URL
	}
	if base == "" {
		return fail("no url in status")
	}
	return ports.Endpoint{
		URL: fmt.Sprintf("%s/v1/models/%s:predict", strings.TrimRight(base, "/"), obj.GetName()),
	}, nil
}
