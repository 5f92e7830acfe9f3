//go:build heartbeat_dev

package ping

import "github.com/platinummonkey/heartbeat/pkg/heartbeat"

const buildEnvironment = heartbeat.EnvDev
