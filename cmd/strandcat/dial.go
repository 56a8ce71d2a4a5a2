package main

import (
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var dialAddr string

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Connect to a listener, perform the initiator handshake, and relay stdin/stdout over the stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionLog := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			ReportTimestamp: true,
			Prefix:          "strandcat",
		})

		sess, peerMIC, err := dialInitiator(dialAddr, sessionLog)
		if err != nil {
			return fmt.Errorf("handshake failed: %w", err)
		}
		defer sess.nc.Close()
		plog.Infof("peer authenticated, node_id=%x", peerMIC.NodeID[:8])

		return runRelay(sess)
	},
}

func init() {
	dialCmd.Flags().StringVar(&dialAddr, "addr", "127.0.0.1:4455", "Address to connect to")
	rootCmd.AddCommand(dialCmd)
}
