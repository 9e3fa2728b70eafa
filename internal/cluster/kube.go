package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/me/evalzoo/pkg/model"
	batchv1 "k8s.io/api/batch/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/utils/ptr"
)

const (
	// LabelManagedBy marks jobs created by this scheduler.
	LabelManagedBy = "app.kubernetes.io/managed-by"
	// LabelPair records which pair a job evaluates, e.g. "41-38".
	LabelPair = "evalzoo/pair"

	managerName = "evalzoo"
	listPage    = 500
)

// KubeOptions configures a KubeGateway.
type KubeOptions struct {
	// Template is the job manifest with ${VAR} placeholders.
	Template []byte
	// Namespace is used when the template does not name one.
	Namespace string
	// Vars are extra template variables, e.g. EVAL_IMAGE.
	Vars map[string]string
}

// KubeGateway implements Gateway with the Kubernetes batch/v1 API.
type KubeGateway struct {
	client    kubernetes.Interface
	template  []byte
	namespace string
	vars      map[string]string
	logger    *slog.Logger
}

// NewKubeGateway returns a gateway over client.
func NewKubeGateway(client kubernetes.Interface, opts KubeOptions, logger *slog.Logger) *KubeGateway {
	tmpl := opts.Template
	if len(tmpl) == 0 {
		tmpl = DefaultTemplate()
	}
	ns := opts.Namespace
	if ns == "" {
		ns = metav1.NamespaceDefault
	}
	return &KubeGateway{
		client:    client,
		template:  tmpl,
		namespace: ns,
		vars:      maps.Clone(opts.Vars),
		logger:    logger.With("component", "cluster"),
	}
}

// NewClientset builds a clientset from kubeconfig, or from the in-cluster
// service account when kubeconfig is empty and one is available.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	var cfg *rest.Config
	if kubeconfig == "" {
		if c, err := rest.InClusterConfig(); err == nil {
			cfg = c
		}
	}
	if cfg == nil {
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		rules.ExplicitPath = kubeconfig
		c, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig: %w", err)
		}
		cfg = c
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return cs, nil
}

// SubmitMatch creates the "-bw" and "-wb" jobs of a match. Either both jobs
// exist when it returns Submitted, or neither of the jobs it created is left
// behind.
func (g *KubeGateway) SubmitMatch(ctx context.Context, req MatchRequest) (Submission, error) {
	if err := req.Validate(); err != nil {
		return Submission{}, err
	}

	legs := []struct {
		suffix, black, white string
	}{
		{"-bw", req.Black, req.White},
		{"-wb", req.White, req.Black},
	}

	jobs := make([]*batchv1.Job, 0, len(legs))
	for _, leg := range legs {
		vars := maps.Clone(g.vars)
		if vars == nil {
			vars = make(map[string]string)
		}
		vars[VarJobName] = req.Name + leg.suffix
		vars[VarModelBlack] = leg.black
		vars[VarModelWhite] = leg.white
		vars[VarBucket] = req.Bucket

		job, err := RenderJob(g.template, vars)
		if err != nil {
			return Submission{}, fmt.Errorf("render job %s%s: %w", req.Name, leg.suffix, err)
		}
		job.Spec.Completions = ptr.To(int32(req.Completions))
		if job.Namespace == "" {
			job.Namespace = g.namespace
		}
		if job.Labels == nil {
			job.Labels = make(map[string]string)
		}
		job.Labels[LabelManagedBy] = managerName
		if req.Pair != (model.Pair{}) {
			job.Labels[LabelPair] = req.Pair.Name()
		}
		jobs = append(jobs, job)
	}

	var (
		sub     Submission
		created []*batchv1.Job
	)
	for _, job := range jobs {
		j, err := g.client.BatchV1().Jobs(job.Namespace).Create(ctx, job, metav1.CreateOptions{})
		if err != nil {
			if rbErr := g.rollback(ctx, created); rbErr != nil {
				return Submission{}, fmt.Errorf("create job %s: %w", job.Name, errors.Join(err, rbErr))
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Submission{}, ctxErr
			}
			sub.Err = err
			if apierrors.IsAlreadyExists(err) || apierrors.IsConflict(err) {
				sub.Outcome = OutcomeConflict
			} else {
				sub.Outcome = OutcomeTransient
			}
			g.logger.Info("job not created", "job", job.Name, "outcome", sub.Outcome, "error", err)
			return sub, nil
		}
		g.logger.Debug("job created", "job", j.Name, "namespace", j.Namespace, "completions", req.Completions)
		created = append(created, j)
	}
	for _, j := range created {
		sub.Jobs = append(sub.Jobs, j.Name)
	}
	sub.Outcome = OutcomeSubmitted
	return sub, nil
}

// rollback deletes the jobs of a half-created match.
func (g *KubeGateway) rollback(ctx context.Context, jobs []*batchv1.Job) error {
	ctx = context.WithoutCancel(ctx)
	for _, j := range jobs {
		err := g.DeleteJob(ctx, j.Namespace, j.Name)
		if err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("roll back: %w", err)
		}
		g.logger.Info("job rolled back", "job", j.Name)
	}
	return nil
}

func (g *KubeGateway) ListJobs(ctx context.Context) ([]model.JobSummary, error) {
	var out []model.JobSummary
	opts := metav1.ListOptions{Limit: listPage}
	for {
		list, err := g.client.BatchV1().Jobs(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		for _, j := range list.Items {
			requested := 1
			if j.Spec.Completions != nil {
				requested = int(*j.Spec.Completions)
			}
			out = append(out, model.JobSummary{
				Namespace: j.Namespace,
				Name:      j.Name,
				Requested: requested,
				Succeeded: int(j.Status.Succeeded),
			})
		}
		if list.Continue == "" {
			return out, nil
		}
		opts.Continue = list.Continue
	}
}

func (g *KubeGateway) DeleteJob(ctx context.Context, namespace, name string) error {
	err := g.client.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: ptr.To(metav1.DeletePropagationBackground),
	})
	if err != nil {
		return fmt.Errorf("delete job %s/%s: %w", namespace, name, err)
	}
	return nil
}
