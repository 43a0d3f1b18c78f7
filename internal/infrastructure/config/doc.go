// Package config loads config.yaml for the console.
//
// Load starts from built-in defaults, overlays the file, applies
// BIOCONSOLE_* environment overrides and validates the result, reporting
// every problem in one error. A channels list in the file replaces the
// stock temp/ph/rpm set entirely.
//
// Broker credentials and the InfluxDB token belong in the environment
// (BIOCONSOLE_MQTT_PASSWORD, BIOCONSOLE_INFLUXDB_TOKEN), not the file.
package config
