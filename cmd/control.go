// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/sxscope/pkg/probe"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var controlTimeout int

var controlCmd = &cobra.Command{
	Use:   "control <start|stop>",
	Short: "Start or stop the bridge capture",
	Long: `Ask the sniffer bridge to start or stop streaming bus events.

The bridge acknowledges with a BRIDGE_STATUS packet, which is printed.

Exit codes:
  0 - Bridge acknowledged the command
  1 - No acknowledgement before timeout
  2 - Connection error`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"start", "stop"},
	RunE:      runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().IntVar(&controlTimeout, "timeout", 5, "Timeout in seconds to wait for the acknowledgement")
}

func runControl(cmd *cobra.Command, args []string) error {
	var start bool
	switch args[0] {
	case "start":
		start = true
	case "stop":
	default:
		return fmt.Errorf("unknown action %q (want start or stop)", args[0])
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("sxscope - Bridge Control\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	statusChan := make(chan probe.BridgeStatus, 1)
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
				if decodeErr != nil || packet == nil || packet.Type() != probe.MsgBridgeStatus {
					continue
				}
				if status, err := packet.Status(); err == nil {
					statusChan <- status
					return
				}
			}
		}
	}()

	if err := sendPacket(conn, probe.NewCaptureCommand(0, start)); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	select {
	case status := <-statusChan:
		if start {
			fmt.Printf("Capture started\n")
		} else {
			fmt.Printf("Capture stopped\n")
		}
		printBridgeStatus(&status)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(controlTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No acknowledgement within %d seconds\n", controlTimeout)
		os.Exit(1)
	}
	return nil
}

// connectionManager handles connection lifecycle and reconnection for the TUI
type connectionManager struct {
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	seq      uint16
	p        *tea.Program
	done     chan struct{}
	monitor  *linkMonitor
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// send writes a bridge command built for the next sequence number
func (cm *connectionManager) send(build func(seq uint16) *probe.Packet) error {
	cm.mu.Lock()
	conn := cm.conn
	seq := cm.seq
	cm.seq++
	cm.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return sendPacket(conn, build(seq))
}

// readerLoop reads from the connection, reconnecting when it is lost
func (cm *connectionManager) readerLoop() {
	for {
		select {
		case <-cm.done:
			return
		default:
		}

		if cm.readFromConnection() {
			cm.p.Send(connectionLostMsg{})
			if !cm.reconnect() {
				return
			}
		}
	}
}

// readFromConnection feeds the link monitor until the connection fails.
// Returns true if the connection was lost, false if shutdown was requested.
func (cm *connectionManager) readFromConnection() bool {
	cm.monitor.reset()

	// Buffered channel for batching updates
	updates := make(chan linkUpdate, 1024)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		buf := make([]byte, 256)
		for {
			select {
			case <-cm.done:
				return
			default:
			}

			conn := cm.getConn()
			if conn == nil {
				return
			}

			n, err := conn.Read(buf)
			if err != nil {
				select {
				case <-cm.done:
					return
				default:
					if err == ErrConnectionClosed {
						return
					}
					// Transient (serial) errors are retried
					time.Sleep(10 * time.Millisecond)
					continue
				}
			}

			cm.monitor.feed(buf[:n], func(u linkUpdate) {
				select {
				case updates <- u:
				default:
				}
			})
		}
	}()

	// Batch sender - forwards updates to the TUI at a fixed rate
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-cm.done:
				return
			case <-readerDone:
				return
			case <-ticker.C:
				var batch linkBatchMsg
			drainLoop:
				for {
					select {
					case u := <-updates:
						batch.updates = append(batch.updates, u)
					default:
						break drainLoop
					}
				}
				if len(batch.updates) > 0 {
					cm.p.Send(batch)
				}
			}
		}
	}()

	<-readerDone

	select {
	case <-cm.done:
		return false
	default:
		return true
	}
}

// reconnect attempts to reconnect with exponential backoff.
// Returns false if shutdown was requested during reconnection.
func (cm *connectionManager) reconnect() bool {
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
