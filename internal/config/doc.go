// Package config loads shmem settings from YAML.
//
//	url: tcp://plc.local:5502
//	unit_id: 1
//	period: 200ms
//	layout: plc.cue
//	journal: shmem.db
//	monitor: ":8080"
//	supervise: true
package config
