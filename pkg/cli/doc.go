// Package cli implements the heartbeat command-line tool for reading the
// aggregate API from a terminal.
//
// # Commands
//
// daily: devices per day for one app, newest first
//
//	heartbeat daily com.example.app -env prod
//
// versions: devices per app version
//
//	heartbeat versions com.example.app
//
// leaderboard: apps ranked by devices on one day
//
//	heartbeat leaderboard -date 2026-10-15
//
// id: device hash stored in a local state file, never creating one
//
//	heartbeat id -state ~/.config/heartbeat/state.db
//
// Every query command accepts -server (default $HEARTBEAT_SERVER or
// http://localhost:8080) and -json to print the raw response.
package cli
