package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/katzenpost/strand/internal/workerutil"
)

var listenAddr string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Accept one connection, perform the responder handshake, and relay the stream to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		ln, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return err
		}
		defer ln.Close()

		sessionLog := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			ReportTimestamp: true,
			Prefix:          "strandcat",
		})
		plog.Infof("listening on %s", listenAddr)

		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		defer nc.Close()

		sess, peerMIC, err := acceptResponder(nc, sessionLog)
		if err != nil {
			return fmt.Errorf("handshake failed: %w", err)
		}
		plog.Infof("peer authenticated, node_id=%x", peerMIC.NodeID[:8])

		return runRelay(sess)
	},
}

func init() {
	listenCmd.Flags().StringVar(&listenAddr, "addr", "127.0.0.1:4455", "Address to listen on")
	rootCmd.AddCommand(listenCmd)
}

// runRelay wires the three long-lived activities of a strandcat session
// behind a workerutil.Worker: the inbound pump (blocking socket reads),
// the tick pump (periodic congestion/retransmit bookkeeping), and the
// stdout writer fed by decoded stream payloads. Stdin is read on the
// calling goroutine since Send is itself non-blocking.
func runRelay(sess *session) error {
	var w workerutil.Worker
	streamID, err := sess.openDemoStream()
	if err != nil {
		return err
	}

	w.Go(func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-w.HaltCh():
				w.Done()
				return
			case <-ticker.C:
				if err := sess.pumpOutbound(time.Now); err != nil {
					sess.log.Error("outbound pump failed", "err", err)
					w.Halt()
				}
				sess.core.Tick(time.Now())
			}
		}
	})

	w.Go(func() {
		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()
		err := sess.pumpInbound(w.HaltCh(), func(_ uint32, payload []byte) {
			out.Write(payload)
			out.Flush()
		})
		if err != nil {
			sess.log.Error("inbound pump ended", "err", err)
		}
		w.Halt()
		w.Done()
	})

	in := bufio.NewScanner(os.Stdin)
stdinLoop:
	for in.Scan() {
		select {
		case <-w.HaltCh():
			break stdinLoop
		default:
		}
		line := append(in.Bytes(), '\n')
		if err := sess.core.Send(streamID, line, 0); err != nil {
			sess.log.Error("send failed", "err", err)
			break stdinLoop
		}
	}

	w.Halt()
	w.Wait()
	return nil
}
