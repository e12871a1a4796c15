package repo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

const restartedAtAnnotation = "kubectl.kubernetes.io/restartedAt"

// KubeInfrastructure drives Deployments named after each service.
// Snapshots are in-process copies of the Deployment spec; they do not survive a restart.
type KubeInfrastructure struct {
	client    kubernetes.Interface
	namespace string
	clock     utils.Clock
	logger    *slog.Logger

	mu        sync.Mutex
	snapshots map[models.SnapshotID]*appsv1.Deployment
}

// NewKubeClient loads kubeconfig, falling back to in-cluster config when the path is empty.
func NewKubeClient(kubeconfig string) (kubernetes.Interface, error) {
	var (
		cfg *rest.Config
		err error
	)
	if kubeconfig == "" {
		cfg, err = rest.InClusterConfig()
	} else {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}
	return kubernetes.NewForConfig(cfg)
}

// NewKubeInfrastructure wraps client for namespace.
func NewKubeInfrastructure(client kubernetes.Interface, namespace string, clock utils.Clock, logger *slog.Logger) *KubeInfrastructure {
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KubeInfrastructure{
		client:    client,
		namespace: namespace,
		clock:     clock,
		logger:    logger.With(slog.String("component", "kube"), slog.String("namespace", namespace)),
		snapshots: make(map[models.SnapshotID]*appsv1.Deployment),
	}
}

func (k *KubeInfrastructure) get(ctx context.Context, op, service string) (*appsv1.Deployment, error) {
	d, err := k.client.AppsV1().Deployments(k.namespace).Get(ctx, service, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, utils.NotFound(op, service)
	}
	if err != nil {
		return nil, utils.NewAppError(op, service, err)
	}
	return d, nil
}

func (k *KubeInfrastructure) update(ctx context.Context, op string, d *appsv1.Deployment) error {
	if _, err := k.client.AppsV1().Deployments(k.namespace).Update(ctx, d, metav1.UpdateOptions{}); err != nil {
		return utils.NewAppError(op, d.Name, err)
	}
	return nil
}

func desired(d *appsv1.Deployment) int {
	if d.Spec.Replicas == nil {
		return 1
	}
	return int(*d.Spec.Replicas)
}

func imageTag(d *appsv1.Deployment) string {
	if len(d.Spec.Template.Spec.Containers) == 0 {
		return ""
	}
	image := d.Spec.Template.Spec.Containers[0].Image
	if i := strings.LastIndex(image, ":"); i >= 0 && !strings.Contains(image[i:], "/") {
		return image[i+1:]
	}
	return "latest"
}

// Status reports "Running" once all desired replicas are available, "Degraded" otherwise.
func (k *KubeInfrastructure) Status(ctx context.Context, service string) (models.ServiceStatus, error) {
	d, err := k.get(ctx, "kube.status", service)
	if err != nil {
		return models.ServiceStatus{}, err
	}
	state := "Degraded"
	if int(d.Status.AvailableReplicas) >= desired(d) {
		state = "Running"
	}
	return models.ServiceStatus{Service: service, State: state, Replicas: desired(d), Version: imageTag(d)}, nil
}

// Restart triggers a rolling restart the way kubectl rollout restart does.
func (k *KubeInfrastructure) Restart(ctx context.Context, service string) error {
	d, err := k.get(ctx, "kube.restart", service)
	if err != nil {
		return err
	}
	if d.Spec.Template.Annotations == nil {
		d.Spec.Template.Annotations = map[string]string{}
	}
	d.Spec.Template.Annotations[restartedAtAnnotation] = k.clock.Now().Format(time.RFC3339)
	if err := k.update(ctx, "kube.restart", d); err != nil {
		return err
	}
	k.logger.Info("rollout restart", slog.String("service", service))
	return nil
}

func (k *KubeInfrastructure) Scale(ctx context.Context, service string, replicas int) error {
	if replicas < 0 {
		return utils.NewAppError("kube.scale", service, fmt.Errorf("negative replica count %d", replicas))
	}
	d, err := k.get(ctx, "kube.scale", service)
	if err != nil {
		return err
	}
	n := int32(replicas)
	d.Spec.Replicas = &n
	if err := k.update(ctx, "kube.scale", d); err != nil {
		return err
	}
	k.logger.Info("scaled", slog.String("service", service), slog.Int("replicas", replicas))
	return nil
}

// Snapshot records the current Deployment spec for a later Restore.
func (k *KubeInfrastructure) Snapshot(ctx context.Context, service string) (models.SnapshotID, error) {
	d, err := k.get(ctx, "kube.snapshot", service)
	if err != nil {
		return "", err
	}
	id := models.SnapshotID(uuid.NewString()[:8])
	k.mu.Lock()
	k.snapshots[id] = d.DeepCopy()
	k.mu.Unlock()
	return id, nil
}

// Restore reapplies a snapshotted spec. It reports false for unknown ids.
func (k *KubeInfrastructure) Restore(ctx context.Context, id models.SnapshotID) (bool, error) {
	k.mu.Lock()
	snap, ok := k.snapshots[id]
	k.mu.Unlock()
	if !ok {
		return false, nil
	}
	current, err := k.get(ctx, "kube.restore", snap.Name)
	if err != nil {
		return false, err
	}
	current.Spec = *snap.Spec.DeepCopy()
	if err := k.update(ctx, "kube.restore", current); err != nil {
		return false, err
	}
	k.logger.Warn("rolled back", slog.String("service", snap.Name), slog.String("snapshot", string(id)))
	return true, nil
}
