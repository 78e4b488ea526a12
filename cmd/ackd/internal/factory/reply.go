package factory

import (
	"context"
	"fmt"
	"os"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/config"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/logger"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/reply/filesystem"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/reply/kubernetes"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/reply/memory"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ReplySourceFactory creates reply sources based on configuration
type ReplySourceFactory struct {
	cfg       *config.Config
	clientset k8s.Interface
}

// NewReplySourceFactory creates a new reply source factory
func NewReplySourceFactory(cfg *config.Config) *ReplySourceFactory {
	return &ReplySourceFactory{cfg: cfg}
}

// WithClientset makes the factory use clientset instead of building one
// from kubeconfig or the in-cluster environment.
func (f *ReplySourceFactory) WithClientset(clientset k8s.Interface) *ReplySourceFactory {
	f.clientset = clientset
	return f
}

// Create creates a reply source based on configuration. Informer-backed
// sources run until ctx is done.
func (f *ReplySourceFactory) Create(ctx context.Context) (core.ReplyStore, error) {
	switch f.cfg.ReplySource {
	case config.ReplySourceMemory:
		return f.createMemorySource()
	case config.ReplySourceFile:
		return f.createFileSource()
	case config.ReplySourceKubernetes:
		return f.createKubernetesSource(ctx)
	default:
		return nil, fmt.Errorf("unknown reply source: %s", f.cfg.ReplySource)
	}
}

func (f *ReplySourceFactory) createMemorySource() (core.ReplyStore, error) {
	logger.Info("Creating Memory Reply Source", "bytes", len(f.cfg.ReplyText))
	return memory.NewSource(f.cfg.ReplyText), nil
}

func (f *ReplySourceFactory) createFileSource() (core.ReplyStore, error) {
	logger.Info("Creating File Reply Source", "path", f.cfg.ReplyFile)
	return filesystem.NewSource(f.cfg.ReplyFile), nil
}

func (f *ReplySourceFactory) createKubernetesSource(ctx context.Context) (core.ReplyStore, error) {
	logger.Info("Creating Kubernetes Reply Source",
		"namespace", f.cfg.Namespace,
		"configmap", f.cfg.ReplyConfigMap,
		"key", f.cfg.ReplyConfigMapKey)

	clientset := f.clientset
	if clientset == nil {
		var err error
		clientset, err = f.buildClientset()
		if err != nil {
			return nil, err
		}
	}

	source := kubernetes.NewConfigMapSource(clientset, f.cfg.Namespace, f.cfg.ReplyConfigMap, f.cfg.ReplyConfigMapKey)
	if err := source.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start configmap informer: %w", err)
	}
	logger.Info("Kubernetes reply source created successfully")
	return source, nil
}

func (f *ReplySourceFactory) buildClientset() (*k8s.Clientset, error) {
	kubeconfig := f.cfg.KubeConfigPath

	// Outside a cluster fall back to the user's kubeconfig
	if kubeconfig == "" && os.Getenv("KUBERNETES_SERVICE_HOST") == "" {
		if home := os.Getenv("HOME"); home != "" {
			kubeconfig = home + "/.kube/config"
		}
	}

	configOverrides := &clientcmd.ConfigOverrides{}
	if f.cfg.KubeContext != "" {
		configOverrides.CurrentContext = f.cfg.KubeContext
		logger.Info("Using specific Kubernetes context", "context", f.cfg.KubeContext)
	}

	var config *rest.Config
	var err error

	// Try kubeconfig first
	if kubeconfig != "" {
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			configOverrides,
		).ClientConfig()

		if err != nil {
			logger.Warn("Failed to load kubeconfig, will try in-cluster config", "error", err)
		} else {
			logger.Debug("Loaded kubeconfig", "path", kubeconfig, "host", config.Host)
		}
	}

	// Fallback to in-cluster config
	if config == nil {
		logger.Info("Attempting in-cluster Kubernetes configuration")
		config, err = clientcmd.BuildConfigFromFlags("", "")
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config (tried kubeconfig and in-cluster): %w", err)
		}
	}

	clientset, err := k8s.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return clientset, nil
}

// EnsureReply ensures the reply source can serve a reply. A missing
// reply is seeded with REPLY_TEXT when REPLY_AUTO_CREATE is set.
func (f *ReplySourceFactory) EnsureReply(ctx context.Context, store core.ReplyStore) error {
	reply, err := store.Reply(ctx)
	if err == nil {
		logger.Info("Reply loaded successfully", "bytes", len(reply))
		return nil
	}

	if !f.cfg.ReplyAutoCreate {
		return fmt.Errorf("reply not available and REPLY_AUTO_CREATE=false: %w", err)
	}
	logger.Info("Reply not found. Seeding reply source...", "source", f.cfg.ReplySource, "error", err)

	// Another instance may win the race to create it
	if err := store.Store(ctx, []byte(f.cfg.ReplyText)); err != nil {
		logger.Warn("Failed to store reply, attempting to load existing reply", "error", err)
	}
	if _, err := store.Reply(ctx); err != nil {
		return fmt.Errorf("failed to load reply after seeding: %w", err)
	}

	logger.Info("Successfully seeded reply source")
	return nil
}
