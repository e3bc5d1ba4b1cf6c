// Package kube reads the user's kubeconfig to report the context and
// namespace kubectl falls back to when a forward does not name its own.
//
// The kubeconfig is located the way kubectl locates it: the KUBECONFIG
// environment variable first, then ~/.kube/config. Nothing here talks to a
// cluster.
package kube
