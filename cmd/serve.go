package main

import (
	"context"
	"time"

	"github.com/desertthunder/jamknife/internal/queue"
	"github.com/desertthunder/jamknife/internal/scheduler"
	"github.com/desertthunder/jamknife/internal/server"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/desertthunder/jamknife/internal/tasks"
	"github.com/urfave/cli/v3"
)

const shutdownGrace = 30 * time.Second

// Serve runs the HTTP API, the cron scheduler and the task queue until ctx is done.
//
// Jobs still running at shutdown are cancelled; jobs left non-terminal by a crash are re-queued on the next start.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireServices(); err != nil {
		return err
	}
	engine, err := r.orchestrator()
	if err != nil {
		return err
	}
	store, clients := r.store, r.services()

	q, err := queue.Open(queue.Path(r.config.Database.Path), r.config.Queue, engine, store, shared.WithLogger(r.logger, "component", "queue"))
	if err != nil {
		return err
	}
	defer q.Close()

	if err := q.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		q.Stop(stopCtx)
	}()

	if !cmd.Bool("no-scheduler") {
		sched := scheduler.New(store.Playlists, engine, q, time.Local, shared.WithLogger(r.logger, "component", "scheduler"))
		if r.config.ListenBrainz.Username != "" {
			discovery := tasks.NewDiscovery(clients.ListenBrainz, store.Playlists, r.config.Schedule, shared.WithLogger(r.logger, "component", "discovery"))
			sched.Discover(r.config.Schedule.Discover, func(ctx context.Context) error {
				_, err := discovery.Run(ctx)
				return err
			})
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	api := server.NewAPI(engine, store, store.Playlists, q, clients.Yubal, shared.WithLogger(r.logger, "component", "api"))
	srv := server.New(addr, server.NewRouter(api, r.logger), r.logger)
	return srv.ListenAndServe(ctx)
}
