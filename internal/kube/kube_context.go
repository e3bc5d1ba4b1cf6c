package kube

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// loadKubeconfig reads the merged kubeconfig the same way kubectl does
// (KUBECONFIG, then ~/.kube/config). Tests replace it.
var loadKubeconfig = func() (*api.Config, error) {
	pathOptions := clientcmd.NewDefaultPathOptions()
	if pathOptions == nil {
		return nil, fmt.Errorf("failed to get default kubeconfig path options")
	}
	config, err := pathOptions.GetStartingConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get starting kubeconfig: %w", err)
	}
	return config, nil
}

// CurrentContext returns the kubeconfig's current context, if one is set.
func CurrentContext() (string, bool) {
	config, err := loadKubeconfig()
	if err != nil || config.CurrentContext == "" {
		return "", false
	}
	return config.CurrentContext, true
}

// CurrentNamespace returns the namespace configured on the current context,
// if any. kubectl falls back to EffectiveNamespace when it is unset.
func CurrentNamespace() (string, bool) {
	config, err := loadKubeconfig()
	if err != nil || config.CurrentContext == "" {
		return "", false
	}
	kubeContext, ok := config.Contexts[config.CurrentContext]
	if !ok || kubeContext == nil || kubeContext.Namespace == "" {
		return "", false
	}
	return kubeContext.Namespace, true
}

// EffectiveNamespace returns the namespace kubectl will use when a forward
// sets none.
func EffectiveNamespace() string {
	if ns, ok := CurrentNamespace(); ok {
		return ns
	}
	return corev1.NamespaceDefault
}
