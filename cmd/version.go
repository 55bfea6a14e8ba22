// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/evkit/pkg/evkit"
	"github.com/Thermoquad/evkit/pkg/stream"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Query the board's protocol engine generation",
	Long: `Ask the board which protocol engine it runs.

Engine 2 boards stream through macros, engine 1 boards through interrupt
payloads. Boards that do not report stream support cannot be used with the
stream or monitor commands.`,
	RunE: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	timeout, err := cfg.ReceiveTimeout()
	if err != nil {
		return err
	}
	link := evkit.NewLink(conn,
		evkit.WithReceiveTimeout(timeout),
		evkit.WithLinkLogger(log.StandardLogger()),
	)

	version, err := link.QueryVersion()
	if err != nil {
		return fmt.Errorf("version query failed: %w", err)
	}

	fmt.Printf("Connection:     %s\n", connInfo)
	fmt.Printf("Engine:         %s\n", version)
	fmt.Printf("Stream support: %t\n", version.StreamSupport)
	fmt.Printf("Strategy:       %s\n", strategyName(version))
	return nil
}

// strategyName describes how a session would drive a board of this version
func strategyName(v evkit.Version) string {
	if !v.StreamSupport {
		return "none (no stream support)"
	}
	switch stream.EngineVersion(v.Major) {
	case stream.EngineMacro:
		return "macro"
	case stream.EngineLegacy:
		return "interrupt payload (legacy)"
	default:
		return fmt.Sprintf("unsupported engine %d", v.Major)
	}
}
