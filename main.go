// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// evkit - evaluation board sensor streaming tool
//
// A CLI tool for arming evaluation boards with sensor streams and logging,
// monitoring and analyzing the data they send back.

package main

import (
	"os"

	"github.com/Thermoquad/evkit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
