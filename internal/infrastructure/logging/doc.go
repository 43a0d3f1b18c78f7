// Package logging builds the console's slog logger from the logging section
// of config.yaml.
//
// Every record carries service=bioconsole and the build version. Format is
// json or text; output is stdout, stderr or a file rotated by lumberjack:
//
//	logging:
//	  level: info
//	  format: json
//	  output: file
//	  file:
//	    path: ./logs/bioconsole.log
//	    max_size: 50     # megabytes
//	    max_backups: 5
//	    max_age: 30      # days
//	    compress: true
//
// Components take a narrow interface (Debug/Info/Warn/Error) and receive a
// child logger from With, e.g. log.With("component", "session").
//
// Broker passwords and the InfluxDB token must never be logged.
package logging
