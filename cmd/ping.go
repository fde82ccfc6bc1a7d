// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/sxscope/pkg/probe"
	"github.com/spf13/cobra"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the bridge by sending PING_REQUEST",
	Long: `Send PING_REQUEST packets to the sniffer bridge and wait for PING_RESPONSE.

This tests bidirectional communication with the bridge over serial or
WebSocket. The bridge answers with its uptime; bus events that arrive in
between are ignored.

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("sxscope - Bridge Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	// One reader for the whole run; responses to timed out pings are
	// drained before the next ping is sent
	responseChan := make(chan probe.PingResponse, pingCount)
	errChan := make(chan error, 1)
	go func() {
		decoder := probe.NewDecoder()
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			for _, b := range buf[:n] {
				packet, decodeErr := decoder.DecodeByte(b)
				if decodeErr != nil || packet == nil || packet.Type() != probe.MsgPingResponse {
					continue
				}
				if r, err := packet.Ping(); err == nil {
					select {
					case responseChan <- r:
					default:
					}
				}
			}
		}
	}()

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

	drain:
		for {
			select {
			case <-responseChan:
			default:
				break drain
			}
		}

		startTime := time.Now()
		if err := sendPacket(conn, probe.NewPingRequest(uint16(i))); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		select {
		case r := <-responseChan:
			rtt := time.Since(startTime)
			fmt.Printf("PONG from bridge, uptime=%s, rtt=%v\n", formatUptime(r.Uptime), rtt.Round(time.Millisecond))
			successCount++

		case err := <-errChan:
			fmt.Printf("READ FAILED: %v\n", err)
			failCount += pingCount - i + 1
			i = pingCount

		case <-time.After(time.Duration(pingTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
