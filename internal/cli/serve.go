package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alnah/go-speechscreen/internal/server"
)

type serveOptions struct {
	addr       string
	configPath string
	modelDir   string
}

// ServeCmd creates the serve command.
func ServeCmd(env *Env) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the classification HTTP service",
		Long: `Run the classification HTTP service.

Endpoints:
  POST /v1/classifications             upload (multipart: file, language)
  GET  /v1/classifications/{id}        status and result
  POST /v1/classifications/{id}/cancel cancel a running request
  GET  /v1/languages                   supported languages
  GET  /healthz                        liveness and model version

Each upload runs in its own work directory. Ctrl+C stops accepting uploads,
cancels running requests and waits for their cleanup.`,
		Example: `  speechscreen serve
  speechscreen serve --addr :8080 --model-dir /srv/model`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, env, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/speechscreen/config.toml)")
	cmd.Flags().StringVar(&opts.modelDir, "model-dir", "", "Model bundle directory (default: paths.model_dir)")

	return cmd
}

func runServe(cmd *cobra.Command, env *Env, opts serveOptions) error {
	ctx := cmd.Context()

	cfg, log, err := setup(env, opts.configPath)
	if err != nil {
		return err
	}
	m, err := loadModel(env, cfg, opts.modelDir)
	if err != nil {
		return err
	}

	jobs := server.NewJobs(0)
	orch, err := newOrchestrator(ctx, env, cfg, log, m, jobs.Observe)
	if err != nil {
		return err
	}
	srv := server.New(orch, jobs,
		server.WithLogger(log),
		server.WithSpoolDir(filepath.Join(cfg.Paths.WorkRoot, "uploads")),
		server.WithMaxUpload(int64(cfg.Server.MaxUploadMB)<<20),
		server.WithModelVersion(m.Version()),
	)

	addr := opts.addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	fmt.Fprintf(env.Stderr, "Model %s loaded\nListening on %s\n", m.Version(), addr)
	return srv.Run(ctx, addr)
}
