// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the lcdctl configuration.
//
// Configuration is read from YAML and may be overridden by environment
// variables named I2CLCD_SECTION_KEY:
//
//	I2CLCD_LOGGING_LEVEL    logging.level
//	I2CLCD_LOGGING_FORMAT   logging.format
//	I2CLCD_LOGGING_OUTPUT   logging.output
//	I2CLCD_PORT_BUS         bus of the first port
//	I2CLCD_SIMULATE         simulate
//
// A minimal file:
//
//	ports:
//	  - id: 0
//	    sda: GPIO2
//	    scl: GPIO3
//	displays:
//	  - name: front
//	    port: 0
//	    address: 0x27
//	    family: "1602"
package config
