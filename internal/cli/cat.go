package cli

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/overlaymesh/rlnc"
	"github.com/overlaymesh/rlnc/internal/cli/config"
	"github.com/overlaymesh/rlnc/logging"
	"github.com/overlaymesh/rlnc/qlog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// frameHeaderLen is the length prefix of every datagram sent by cat.
// Datagrams have a fixed size, the prefix tells how much of it is data.
const frameHeaderLen = 2

var catFlags struct {
	local        string
	remote       string
	broadcast    bool
	ttl          int
	loss         float64
	datagramSize int
	window       int
	rate         float64
	linger       time.Duration
}

var catCmd = &cobra.Command{
	Use:   "cat",
	Short: "Send stdin to a peer over UDP and print what the peer sends",
	Long: `cat opens a network coded link over UDP. Data read from stdin is split into
datagrams and sent reliably and in order, data received from the peer is written to stdout.
Without a remote address, cat replies to whoever sends to it first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		linkConf, connConf := catConfig(cmd)
		if connConf.DatagramSize <= frameHeaderLen {
			return errors.Errorf("datagram size must be larger than %d", frameHeaderLen)
		}

		var opts []rlnc.UDPOption
		if linkConf.Broadcast {
			opts = append(opts, rlnc.WithBroadcast())
		}
		if linkConf.TTL > 0 {
			opts = append(opts, rlnc.WithTTL(linkConf.TTL))
		}
		udp, err := rlnc.ListenUDP(linkConf.Local, linkConf.Remote, opts...)
		if err != nil {
			return errors.Wrapf(err, "listening on %s", linkConf.Local)
		}
		var link rlnc.Link = udp
		if linkConf.LossRate > 0 {
			link = rlnc.NewLossyLink(udp, linkConf.LossRate, uint64(time.Now().UnixNano()))
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s\n", udp.LocalAddr())

		if cfg.QlogDir != "" {
			dir := cfg.QlogDir
			connConf.Tracer = func() *logging.ConnectionTracer {
				t, err := qlog.NewFileConnectionTracer(dir, "cat")
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "not tracing:", err)
					return nil
				}
				return t
			}
		}
		conn, err := rlnc.NewConn(link, connConf)
		if err != nil {
			udp.Close()
			return errors.Wrap(err, "starting connection")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		err = runCat(ctx, conn, cmd.InOrStdin(), cmd.OutOrStdout(), catFlags.linger)
		if closeErr := conn.Close(); err == nil {
			err = closeErr
		}
		return err
	},
}

// runCat copies in to the connection and the connection to out.
// Once in is exhausted, it waits for linger before returning, or until ctx is done if linger is 0.
func runCat(ctx context.Context, conn *rlnc.Conn, in io.Reader, out io.Writer, linger time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	size := conn.DatagramSize()

	g.Go(func() error {
		buf := make([]byte, size-frameHeaderLen)
		for {
			n, err := io.ReadFull(in, buf)
			if n > 0 {
				if err := conn.SendDatagram(ctx, frame(buf[:n], size)); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return errors.Wrap(err, "sending datagram")
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			if err != nil {
				return errors.Wrap(err, "reading input")
			}
		}
		if linger > 0 {
			select {
			case <-time.After(linger):
				cancel()
			case <-ctx.Done():
			}
		}
		return nil
	})
	g.Go(func() error {
		for {
			d, err := conn.ReceiveDatagram(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "receiving datagram")
			}
			data, err := unframe(d)
			if err != nil {
				return err
			}
			if _, err := out.Write(data); err != nil {
				return errors.Wrap(err, "writing output")
			}
		}
	})
	return g.Wait()
}

// frame prefixes data with its length and pads it to size bytes.
func frame(data []byte, size int) []byte {
	d := make([]byte, size)
	binary.BigEndian.PutUint16(d, uint16(len(data)))
	copy(d[frameHeaderLen:], data)
	return d
}

func unframe(d []byte) ([]byte, error) {
	if len(d) < frameHeaderLen {
		return nil, errors.Errorf("datagram too short: %d bytes", len(d))
	}
	n := int(binary.BigEndian.Uint16(d))
	if n > len(d)-frameHeaderLen {
		return nil, errors.Errorf("invalid frame length %d in %d byte datagram", n, len(d))
	}
	return d[frameHeaderLen : frameHeaderLen+n], nil
}

// catConfig merges the config file with the flags that were set.
func catConfig(cmd *cobra.Command) (config.Link, *rlnc.Config) {
	l, c := cfg.Link, cfg.Conn
	flags := cmd.Flags()
	if flags.Changed("local") {
		l.Local = catFlags.local
	}
	if flags.Changed("remote") {
		l.Remote = catFlags.remote
	}
	if flags.Changed("broadcast") {
		l.Broadcast = catFlags.broadcast
	}
	if flags.Changed("ttl") {
		l.TTL = catFlags.ttl
	}
	if flags.Changed("loss") {
		l.LossRate = catFlags.loss
	}
	if flags.Changed("datagram-size") {
		c.DatagramSize = catFlags.datagramSize
	}
	if flags.Changed("window") {
		c.MaxWindowSize = catFlags.window
	}
	if flags.Changed("rate") {
		c.PacketRate = catFlags.rate
	}
	return l, &rlnc.Config{
		MaxWindowSize: c.MaxWindowSize,
		DatagramSize:  c.DatagramSize,
		PacketRate:    c.PacketRate,
		PacketBurst:   c.PacketBurst,
	}
}

func init() {
	f := catCmd.Flags()
	f.StringVar(&catFlags.local, "local", "0.0.0.0:4110", "local address")
	f.StringVar(&catFlags.remote, "remote", "", "peer address (default: learned from the first packet)")
	f.BoolVar(&catFlags.broadcast, "broadcast", false, "allow sending to a broadcast address")
	f.IntVar(&catFlags.ttl, "ttl", 0, "TTL of sent packets")
	f.Float64Var(&catFlags.loss, "loss", 0, "drop this share of sent packets")
	f.IntVar(&catFlags.datagramSize, "datagram-size", 1024, "datagram size, must match the peer")
	f.IntVar(&catFlags.window, "window", 16, "maximum window size (power of two, at most 32)")
	f.Float64Var(&catFlags.rate, "rate", 1000, "packets per second")
	f.DurationVar(&catFlags.linger, "linger", 0, "time to keep receiving after stdin is exhausted (default: until interrupted)")
	rootCmd.AddCommand(catCmd)
}
