package scheduler

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/me/evalzoo/internal/catalog"
	"github.com/me/evalzoo/internal/cluster"
	"github.com/me/evalzoo/internal/store"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"
)

// TestIntegration_ZooLoop drives the loop against a SQLite store, a models
// directory and the Kubernetes fake clientset until the queue drains. One
// job name is already taken on the cluster, so that pair must be submitted
// with its colours flipped.
func TestIntegration_ZooLoop(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	// --- Store ---
	st, err := store.Open(ctx, ":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	// --- Models ---
	modelsDir := t.TempDir()
	for _, name := range []string{"000001-first.pb", "000002-second.pb", "000003-third.pb"} {
		if err := os.WriteFile(filepath.Join(modelsDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cat, err := catalog.New(ctx, modelsDir)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	// --- Cluster ---
	taken := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "evaluator-3-2-bw"},
		Spec:       batchv1.JobSpec{Completions: ptr.To[int32](4)},
	}
	cs := fake.NewSimpleClientset(taken)
	gw := cluster.NewKubeGateway(cs, cluster.KubeOptions{
		Vars: map[string]string{cluster.VarImage: "evaluator:test"},
	}, logger)

	// --- Scheduler ---
	cfg := DefaultConfig()
	cfg.Bucket = "eval-games"
	loop := NewLoop(st, gw, cat, nil, cfg, logger, WithRand(rand.New(rand.NewSource(7))))

	for i := 0; i < 10; i++ {
		if _, err := loop.Tick(ctx); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
		state, err := loop.State(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 && state.Pending.Len() == 0 {
			break
		}
	}

	saved, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Pending.Len() != 0 || saved.LastQueued != 3 {
		t.Fatalf("persisted state = %+v, want empty queue at version 3", saved)
	}

	list, err := cs.BatchV1().Jobs(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, j := range list.Items {
		names = append(names, j.Name)
	}
	sort.Strings(names)
	want := []string{
		"evaluator-2-1-bw", "evaluator-2-1-wb",
		"evaluator-2-3-bw", "evaluator-2-3-wb",
		"evaluator-3-1-bw", "evaluator-3-1-wb",
		"evaluator-3-2-bw",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("cluster jobs mismatch (-want +got):\n%s", diff)
	}
}
