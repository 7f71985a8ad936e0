// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
