package kubernetes

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
)

// DefaultKey is the ConfigMap data key holding the reply.
const DefaultKey = "reply"

const resyncPeriod = 10 * time.Minute

// ConfigMapSource serves the reply from a ConfigMap. Lookups hit an
// informer cache, so edits to the ConfigMap apply to new connections
// without a restart.
type ConfigMapSource struct {
	clientset kubernetes.Interface
	namespace string
	name      string
	key       string

	factory informers.SharedInformerFactory
	store   cache.Store
}

func NewConfigMapSource(clientset kubernetes.Interface, namespace, name, key string) *ConfigMapSource {
	if key == "" {
		key = DefaultKey
	}
	factory := informers.NewSharedInformerFactoryWithOptions(clientset, resyncPeriod,
		informers.WithNamespace(namespace),
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.FieldSelector = fields.OneTermEqualSelector("metadata.name", name).String()
		}),
	)
	informer := factory.Core().V1().ConfigMaps().Informer()

	return &ConfigMapSource{
		clientset: clientset,
		namespace: namespace,
		name:      name,
		key:       key,
		factory:   factory,
		store:     informer.GetStore(),
	}
}

// Start runs the informer until ctx is done and waits for the initial
// sync.
func (s *ConfigMapSource) Start(ctx context.Context) error {
	s.factory.Start(ctx.Done())
	for typ, ok := range s.factory.WaitForCacheSync(ctx.Done()) {
		if !ok {
			return fmt.Errorf("failed to sync informer cache for %v", typ)
		}
	}
	return nil
}

// Reply returns the configured key of the ConfigMap. A cache miss falls
// back to a direct read, so a ConfigMap created after Start is visible
// before the informer catches up.
func (s *ConfigMapSource) Reply(ctx context.Context) (core.Reply, error) {
	obj, exists, err := s.store.GetByKey(s.namespace + "/" + s.name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up configmap %s/%s: %w", s.namespace, s.name, err)
	}

	var cm *corev1.ConfigMap
	if exists {
		var ok bool
		if cm, ok = obj.(*corev1.ConfigMap); !ok {
			return nil, fmt.Errorf("unexpected object %T in configmap cache", obj)
		}
	} else {
		cm, err = s.clientset.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("configmap %s/%s not found", s.namespace, s.name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get configmap %s/%s: %w", s.namespace, s.name, err)
		}
	}

	if v, ok := cm.Data[s.key]; ok {
		return core.Reply(v), nil
	}
	if v, ok := cm.BinaryData[s.key]; ok {
		return core.Reply(v), nil
	}
	return nil, fmt.Errorf("configmap %s/%s missing key %q", s.namespace, s.name, s.key)
}

// Store creates or updates the ConfigMap with the given reply.
func (s *ConfigMapSource) Store(ctx context.Context, reply []byte) error {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      s.name,
			Namespace: s.namespace,
		},
		Data: map[string]string{
			s.key: string(reply),
		},
	}

	configMaps := s.clientset.CoreV1().ConfigMaps(s.namespace)
	_, err := configMaps.Create(ctx, cm, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create configmap %s/%s: %w", s.namespace, s.name, err)
	}
	if _, err := configMaps.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update configmap %s/%s: %w", s.namespace, s.name, err)
	}
	return nil
}
