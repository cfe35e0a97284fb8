// Package config loads the bridge configuration file.
//
// The configuration is a YAML document describing where the debugger
// connects, how the device agent is reached and how the debug session
// behaves. Every field has a default, so a missing file is not an error.
// Command line flags override values from the file.
//
// # Configuration File Location
//
// When no path is given the file is looked up in the platform location:
//   - Linux: $XDG_CONFIG_HOME/hbootdbg/config.yaml or $HOME/.config/hbootdbg/config.yaml
//   - macOS: $HOME/.config/hbootdbg/config.yaml
//   - Windows: %LOCALAPPDATA%\hbootdbg\config.yaml
//
// # Example
//
//	version: 1
//	listen:
//	  network: tcp
//	  address: 127.0.0.1:1234
//	  advertise: lab-bench
//	device:
//	  tty: /dev/ttyUSB0
//	  baud: 9600
//	  read_timeout: 100ms
//	  fastboot_mode: false
//	  reconnect_interval: 1s
//	session:
//	  first_run: false
//	  continue_poll: 100ms
//	  step_poll: 50ms
//	  packet_size: 1024
//	log_level: info
//	firmware: vision_0.85.0015
package config
