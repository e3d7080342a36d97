// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI runs in one of two modes:
//  - interactive: pick an enabled playlist in [PlaylistListView], confirm in [ConfirmView], follow
//    the orchestrator's progress updates in [SyncView] and browse per-track outcomes in [ResultView].
//  - watch: follow an existing job by polling its stored state, e.g. one dispatched by the server.
//
// Progress updates flow through a channel from the orchestrator; the model never blocks on them.
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, c, q) with contextual help
// displayed via charmbracelet/bubbles/help.
package ui
