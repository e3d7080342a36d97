// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// setupCommand initializes the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml when missing, initialize the database and run migrations",
		Action: r.Setup,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Revert the most recent schema migration instead",
			},
		},
	}
}

// playlistCommand manages the registry of mirrored playlists
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"pl"},
		Usage:   "Manage mirrored ListenBrainz playlists",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a ListenBrainz playlist by MBID",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "ref"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Playlist name (fetched from ListenBrainz when omitted)",
					},
					&cli.StringFlag{
						Name:  "day",
						Usage: `Sync day: "daily" or a weekday name`,
					},
					&cli.StringFlag{
						Name:  "time",
						Usage: "Sync time as HH:MM",
					},
					&cli.BoolFlag{
						Name:  "disabled",
						Usage: "Register without enabling sync",
					},
				},
				Action: r.PlaylistAdd,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List registered playlists",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "enabled",
						Usage: "Only enabled playlists",
					},
					jsonFlag(),
				},
				Action: r.PlaylistList,
			},
			{
				Name:      "enable",
				Usage:     "Enable sync for a playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
				Action:    r.PlaylistEnable,
			},
			{
				Name:      "disable",
				Usage:     "Disable sync for a playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
				Action:    r.PlaylistDisable,
			},
			{
				Name:      "schedule",
				Usage:     "Set or clear the sync schedule of a playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "day",
						Usage: `Sync day: "daily" or a weekday name`,
					},
					&cli.StringFlag{
						Name:  "time",
						Usage: "Sync time as HH:MM",
					},
					&cli.BoolFlag{
						Name:  "clear",
						Usage: "Remove the schedule",
					},
				},
				Action: r.PlaylistSchedule,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove a playlist from the registry",
				Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
				Action:    r.PlaylistRemove,
			},
			{
				Name:   "discover",
				Usage:  "Register the generated playlists ListenBrainz created for the configured user",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.PlaylistDiscover,
			},
		},
	}
}

// syncCommand runs and inspects sync jobs
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run and inspect playlist sync jobs",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Sync a playlist in the foreground",
				Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.SyncRun,
			},
			{
				Name:      "start",
				Usage:     "Reserve a sync job and queue it for the server",
				Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.SyncStart,
			},
			{
				Name:      "status",
				Usage:     "Show a sync job",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.SyncStatus,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List sync jobs, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "playlist",
						Usage: "Playlist ID or ref",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only jobs in this status",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to return",
						Value: 20,
					},
					jsonFlag(),
				},
				Action: r.SyncList,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a sync job",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Action:    r.SyncCancel,
			},
			{
				Name:      "report",
				Usage:     "Write a report of a sync job",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "text, markdown, csv or json",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (prints to stdout when omitted)",
					},
				},
				Action: r.SyncReport,
			},
			{
				Name:      "watch",
				Usage:     "Follow a sync job in a terminal UI",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Polling interval",
						Value: 0,
					},
				},
				Action: r.SyncWatch,
			},
		},
	}
}

// downloadsCommand inspects album download requests
func downloadsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "downloads",
		Usage: "Inspect album download requests",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List album download requests",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "job",
						Usage: "Only requests of this job",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only requests in this status",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of requests to return",
						Value: 50,
					},
					jsonFlag(),
				},
				Action: r.DownloadsList,
			},
		},
	}
}

// serveCommand runs the HTTP API, scheduler and job queue
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API with the scheduler and background job queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Do not run scheduled syncs or discovery",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for interactive syncs.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI to pick and sync a playlist",
		Action:  r.TUI,
	}
}
