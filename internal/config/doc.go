// Package config loads and validates the botdesk YAML configuration.
//
// # Format
//
// Configuration is a single YAML file:
//
//	database:
//	  path: /var/lib/botdesk/botdesk.db
//
//	reports:
//	  max_name_len: 128
//	  confirm_window: 5m
//	  sweep_interval: 1m
//
//	logging:
//	  level: info
//	  format: text
//
// Environment variables written as ${VAR_NAME} are expanded before parsing,
// and duration fields accept Go duration strings ("30s", "5m").
package config
