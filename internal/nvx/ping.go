package nvx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// PingMode selects how device latency is measured.
type PingMode string

const (
	PingICMP PingMode = "icmp"
	PingTCP  PingMode = "tcp"
)

// ErrPingFailed is returned when no attempt got a reply.
var ErrPingFailed = errors.New("nvx: ping failed")

// Pinger measures round trip time to the device.
type Pinger struct {
	Host     string
	Port     int
	Mode     PingMode
	Attempts int
	Timeout  time.Duration
}

// Ping returns the average round trip over all successful attempts. Results
// below one millisecond are reported as one millisecond.
func (p Pinger) Ping(ctx context.Context) (time.Duration, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	var (
		total   time.Duration
		ok      int
		lastErr error
	)
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var (
			rtt time.Duration
			err error
		)
		if p.Mode == PingTCP {
			rtt, err = p.tcp(ctx, timeout)
		} else {
			rtt, err = p.icmp(i, timeout)
		}
		if err != nil {
			lastErr = err
			continue
		}
		total += rtt
		ok++
	}
	if ok == 0 {
		return 0, fmt.Errorf("%w: %v", ErrPingFailed, lastErr)
	}

	avg := total / time.Duration(ok)
	if avg < time.Millisecond {
		avg = time.Millisecond
	}
	return avg, nil
}

func (p Pinger) tcp(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	d := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)
	conn.Close()
	return rtt, nil
}

// icmp sends one echo request. It prefers an unprivileged datagram socket
// and falls back to a raw socket.
func (p Pinger) icmp(seq int, timeout time.Duration) (time.Duration, error) {
	addr, err := net.ResolveIPAddr("ip4", p.Host)
	if err != nil {
		return 0, err
	}

	network := "udp4"
	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		network = "ip4:icmp"
		conn, err = icmp.ListenPacket(network, "0.0.0.0")
		if err != nil {
			return 0, err
		}
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: seq + 1, Data: []byte("nvxd")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	var dst net.Addr = addr
	if network == "udp4" {
		dst = &net.UDPAddr{IP: addr.IP}
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return 0, err
	}
	if err := conn.SetReadDeadline(start.Add(timeout)); err != nil {
		return 0, err
	}

	rb := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return 0, err
		}
		reply, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), rb[:n])
		if err != nil {
			continue
		}
		if reply.Type == ipv4.ICMPTypeEchoReply {
			return time.Since(start), nil
		}
	}
}
