// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/Thermoquad/evkit/pkg/evkit"
)

var (
	discoveryTimeout int
	discoveryAll     bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover evaluation boards on local serial ports",
	Long: `Probe serial ports for evaluation boards.

Every USB serial port is opened at the configured baud rate and sent a
VERSION_REQUEST. Ports that answer are listed with their protocol engine.
Non-USB ports are skipped unless --all is given.

Examples:
  # Probe USB serial ports
  evkit discovery

  # Probe every serial port with a longer timeout
  evkit discovery --all --timeout 3

Exit codes:
  0 - Discovery successful (at least one board found)
  1 - Discovery failed (no boards answered)
  2 - Port enumeration error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 1, "Timeout in seconds for each port")
	discoveryCmd.Flags().BoolVar(&discoveryAll, "all", false, "Also probe ports that are not USB devices")
}

type discoveryBoardInfo struct {
	port    string
	usbID   string
	serial  string
	version evkit.Version
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Port enumeration error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("evkit - Board Discovery\n")
	fmt.Printf("Baud: %d\n", cfg.Connection.Baud)
	fmt.Printf("Timeout: %d seconds per port\n\n", discoveryTimeout)

	boards := make([]discoveryBoardInfo, 0)
	for _, port := range ports {
		if !port.IsUSB && !discoveryAll {
			log.WithField("port", port.Name).Debug("skipping non-USB port")
			continue
		}

		fmt.Printf("Probing %s... ", port.Name)
		version, err := probePort(port.Name)
		if err != nil {
			fmt.Printf("no answer (%v)\n", err)
			continue
		}
		fmt.Printf("engine %s, stream=%t\n", version, version.StreamSupport)

		info := discoveryBoardInfo{port: port.Name, version: version}
		if port.IsUSB {
			info.usbID = fmt.Sprintf("%s:%s", port.VID, port.PID)
			info.serial = port.SerialNumber
		}
		boards = append(boards, info)
	}

	// Summary
	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Boards found: %d\n", len(boards))
	for _, b := range boards {
		fmt.Printf("  %s", b.port)
		if b.usbID != "" {
			fmt.Printf(" [%s", b.usbID)
			if b.serial != "" {
				fmt.Printf(" sn=%s", b.serial)
			}
			fmt.Printf("]")
		}
		fmt.Printf(" engine %s (%s)\n", b.version, strategyName(b.version))
	}

	if len(boards) == 0 {
		fmt.Printf("No boards discovered. Check connection and board power.\n")
		os.Exit(1)
	}

	return nil
}

func probePort(name string) (evkit.Version, error) {
	conn, err := OpenSerialConnection(name, cfg.Connection.Baud)
	if err != nil {
		return evkit.Version{}, err
	}
	defer conn.Close()

	link := evkit.NewLink(conn,
		evkit.WithReceiveTimeout(time.Duration(discoveryTimeout)*time.Second),
		evkit.WithLinkLogger(log.WithField("port", name)),
	)
	return link.QueryVersion()
}
