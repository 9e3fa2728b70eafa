package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/me/evalzoo/internal/catalog"
	"github.com/me/evalzoo/internal/cluster"
	"github.com/me/evalzoo/internal/config"
	"github.com/me/evalzoo/internal/logging"
	"github.com/me/evalzoo/internal/ranking"
	"github.com/me/evalzoo/internal/scheduler"
	"github.com/me/evalzoo/internal/store"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
)

// deps are the process boundaries the commands reach through.
type deps struct {
	newKubeClient func(kubeconfig string) (kubernetes.Interface, error)
}

// app is the state shared by every command of one invocation.
type app struct {
	deps deps

	flagConfig     string
	flagState      string
	flagKubeconfig string
	flagDebug      bool
	flagLogLevel   string
	flagLogFormat  string

	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
}

// NewRootCmd creates the root cobra command for the evalzoo CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(deps{newKubeClient: cluster.NewClientset})
}

func newRootCmd(d deps) *cobra.Command {
	a := &app{deps: d}

	root := &cobra.Command{
		Use:   "evalzoo",
		Short: "evalzoo schedules evaluation matches between model versions",
		Long: "evalzoo pairs versions of an iteratively trained model, keeps a persisted\n" +
			"queue of pairs to play and submits each pair as two Kubernetes jobs while\n" +
			"keeping the cluster's outstanding work inside a window.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flagConfig, "config", "", "YAML config file")
	pf.StringVar(&a.flagState, "state", "", "State directory, or a .db SQLite file (default from config)")
	pf.StringVar(&a.flagKubeconfig, "kubeconfig", "", "Kubeconfig path (default: in-cluster, then standard rules)")
	pf.BoolVar(&a.flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&a.flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&a.flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newZooLoopCmd(a),
		newSameRunEvalCmd(a),
		newLaunchEvalJobCmd(a),
		newCleanupCmd(a),
		newAddTopPairsCmd(a),
		newAddUncertainPairsCmd(a),
		newQueueCmd(a),
	)
	return root
}

// setup loads configuration (defaults, file, environment, then flags) and
// builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flagConfig)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("state") {
		cfg.StatePath = a.flagState
	}
	if flags.Changed("kubeconfig") {
		cfg.Kubeconfig = a.flagKubeconfig
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.flagLogFormat
	}
	if a.flagDebug {
		cfg.LogLevel = "debug"
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(logging.Options{
		Level:     level,
		Format:    cfg.LogFormat,
		AddSource: a.flagDebug,
		Writer:    cmd.ErrOrStderr(),
	})
	a.out = cmd.OutOrStdout()
	return nil
}

// part selects what a command needs besides the state store.
type part int

const (
	needCluster part = 1 << iota
	needCatalog
	needRanking
	// needSubmit checks that jobs can be rendered. Implies needCluster.
	needSubmit
)

func (a *app) gateway(submit bool) (cluster.Gateway, error) {
	if submit && a.cfg.JobTemplate == "" && a.cfg.EvalImage == "" {
		return nil, errors.New("eval_image is required with the built-in job template")
	}
	tmpl, err := cluster.LoadTemplate(a.cfg.JobTemplate)
	if err != nil {
		return nil, err
	}
	client, err := a.deps.newKubeClient(a.cfg.Kubeconfig)
	if err != nil {
		return nil, err
	}
	vars := map[string]string{}
	if a.cfg.EvalImage != "" {
		vars[cluster.VarImage] = a.cfg.EvalImage
	}
	return cluster.NewKubeGateway(client, cluster.KubeOptions{
		Template:  tmpl,
		Namespace: a.cfg.Namespace,
		Vars:      vars,
	}, a.logger), nil
}

func (a *app) ranking() (ranking.Source, error) {
	argv := a.cfg.RankingArgv()
	if len(argv) == 0 {
		return nil, errors.New("ranking_command is not configured")
	}
	return ranking.NewCommandSource(argv, a.logger)
}

func (a *app) schedulerConfig() scheduler.Config {
	sc := scheduler.DefaultConfig()
	sc.MaxTasks = a.cfg.MaxTasks
	sc.MinTasks = a.cfg.MinTasks
	sc.Completions = a.cfg.Completions
	sc.Bucket = a.cfg.Bucket
	sc.EvalDir = a.cfg.EvalDir
	sc.MaxConflicts = a.cfg.MaxConflicts
	return sc
}

// loop opens the state store and whatever else need asks for and returns a
// scheduler bound to them. The caller must call the returned close function.
func (a *app) loop(ctx context.Context, need part, opts ...scheduler.Option) (*scheduler.Loop, func(), error) {
	var (
		gw   cluster.Gateway
		cat  catalog.Catalog
		rank ranking.Source
		err  error
	)
	if need&(needCluster|needSubmit) != 0 {
		if gw, err = a.gateway(need&needSubmit != 0); err != nil {
			return nil, nil, err
		}
	}
	if need&needCatalog != 0 {
		if cat, err = catalog.New(ctx, a.cfg.ModelsDir); err != nil {
			return nil, nil, err
		}
	}
	if need&needRanking != 0 {
		if rank, err = a.ranking(); err != nil {
			return nil, nil, err
		}
	}

	st, err := store.Open(ctx, a.cfg.StatePath, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open state %s: %w", a.cfg.StatePath, err)
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			a.logger.Warn("close state", "error", err)
		}
	}
	return scheduler.NewLoop(st, gw, cat, rank, a.schedulerConfig(), a.logger, opts...), closeFn, nil
}

