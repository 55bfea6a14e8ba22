// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/evkit/pkg/evkit"
)

var (
	packetTestTimeout int
	packetTestClass   string
	packetTestCount   int
	packetTestQuery   bool
)

var errPacketTimeout = errors.New("timeout waiting for packets")

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Wait for valid evkit frames of a given class",
	Long: `Wait until --count valid frames of the requested class arrive.

Every decoded frame is printed with its attribution key (macro id or
interrupt index) and the result of packet validation. Frames of another
class, and frames failing validation, are reported but not counted.

Classes: any, response, indication, error.

Without --query nothing is sent, so indications only arrive while a stream
is running. --query sends a VERSION_REQUEST first to get a response back.

Exit codes:
  0 - Requested frames received before timeout
  1 - Timeout reached
  2 - Connection error or bad arguments`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds")
	packetTestCmd.Flags().StringVar(&packetTestClass, "class", "any", "Frame class to wait for (any, response, indication, error)")
	packetTestCmd.Flags().IntVar(&packetTestCount, "count", 1, "Number of matching frames to wait for")
	packetTestCmd.Flags().BoolVar(&packetTestQuery, "query", false, "Send a VERSION_REQUEST before waiting")
}

// packetClass selects which message types packet_test counts
type packetClass string

const (
	classAny        packetClass = "any"
	classResponse   packetClass = "response"
	classIndication packetClass = "indication"
	classError      packetClass = "error"
)

func parsePacketClass(s string) (packetClass, error) {
	switch c := packetClass(strings.ToLower(s)); c {
	case classAny, classResponse, classIndication, classError:
		return c, nil
	}
	return "", fmt.Errorf("unknown frame class %q (any, response, indication, error)", s)
}

func (c packetClass) matches(msgType uint8) bool {
	switch c {
	case classResponse:
		return evkit.IsResponse(msgType)
	case classIndication:
		return evkit.IsIndication(msgType)
	case classError:
		return evkit.IsError(msgType)
	}
	return true
}

// packetTestResult counts what awaitPackets saw
type packetTestResult struct {
	Matched      int
	Skipped      int
	Invalid      int
	DecodeErrors int
}

// awaitPackets decodes frames from r until count frames of class pass
// validation. r must return (0, nil) on a read timeout so the deadline is
// honoured.
func awaitPackets(r io.Reader, class packetClass, count int, timeout time.Duration, out io.Writer) (packetTestResult, error) {
	var res packetTestResult
	decoder := evkit.NewDecoder()
	buf := make([]byte, 128)
	deadline := time.Now().Add(timeout)

	for res.Matched < count {
		if time.Now().After(deadline) {
			return res, errPacketTimeout
		}
		n, err := r.Read(buf)
		if err != nil {
			return res, err
		}
		for i := 0; i < n && res.Matched < count; i++ {
			p, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				res.DecodeErrors++
				continue
			}
			if p == nil {
				continue
			}
			reportFrame(out, p, class, &res)
		}
	}
	return res, nil
}

func reportFrame(out io.Writer, p *evkit.Packet, class packetClass, res *packetTestResult) {
	key := "-"
	if k, ok := evkit.AttributionKey(p); ok {
		key = fmt.Sprintf("%d", k)
	}
	line := fmt.Sprintf("%-20s key=%-4s len=%-3d", evkit.FormatMessageType(p.Type()), key, p.Length())

	if verrs := evkit.ValidatePacket(p); len(verrs) > 0 {
		res.Invalid++
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Message
		}
		fmt.Fprintf(out, "%s INVALID: %s\n", line, strings.Join(msgs, "; "))
		return
	}
	if !class.matches(p.Type()) {
		res.Skipped++
		fmt.Fprintf(out, "%s skipped (not %s)\n", line, class)
		return
	}
	res.Matched++
	fmt.Fprintf(out, "%s ok\n", line)
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	class, err := parsePacketClass(packetTestClass)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if packetTestCount < 1 {
		packetTestCount = 1
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("evkit - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Waiting for %d %s frame(s), timeout %ds\n\n", packetTestCount, class, packetTestTimeout)

	if packetTestQuery {
		if _, err := conn.Write(evkit.EncodePacket(evkit.NewVersionRequest())); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
	}

	res, err := awaitPackets(conn, class, packetTestCount,
		time.Duration(packetTestTimeout)*time.Second, os.Stdout)
	fmt.Printf("\nmatched=%d skipped=%d invalid=%d decode_errors=%d\n",
		res.Matched, res.Skipped, res.Invalid, res.DecodeErrors)

	switch {
	case err == nil:
		fmt.Println("SUCCESS")
		os.Exit(0)
	case errors.Is(err, errPacketTimeout):
		fmt.Fprintf(os.Stderr, "TIMEOUT: %d of %d frames within %d seconds\n",
			res.Matched, packetTestCount, packetTestTimeout)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}
	return nil
}
