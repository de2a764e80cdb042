package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-sockaddr"
	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andydunstall/swim/pkg/backoff"
	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/pkg/swim"
	"github.com/andydunstall/swim/pkg/transport"
	"github.com/andydunstall/swim/server/admin"
	"github.com/andydunstall/swim/server/config"
	"github.com/andydunstall/swim/server/membership"
)

var (
	// ErrJoinFailed is returned when the node is configured with members
	// to join but none respond.
	ErrJoinFailed = errors.New("failed to join any members")
)

const (
	minJoinBackoff = time.Millisecond * 100
	maxJoinBackoff = time.Second * 5
)

// Server runs a group member node.
//
// The server binds the UDP transport and admin server, joins the configured
// members, then runs until the context is cancelled.
type Server struct {
	conf *config.Config

	transport *transport.UDPTransport
	node      *swim.Node

	adminLn     net.Listener
	adminServer *admin.Server

	registry *prometheus.Registry

	logger log.Logger
}

func NewServer(conf *config.Config, logger log.Logger) (*Server, error) {
	advertiseAddr, err := advertiseAddr(conf.Transport)
	if err != nil {
		return nil, fmt.Errorf("advertise addr: %w", err)
	}

	registry := prometheus.NewRegistry()

	transportMetrics := transport.NewMetrics()
	transportMetrics.Register(registry)

	tr, err := transport.ListenUDP(
		conf.Transport.BindAddr,
		advertiseAddr,
		transport.WithMetrics(transportMetrics),
		transport.WithMaxPacketSize(conf.Transport.MaxPacketSize),
		transport.WithInboundBuffer(conf.Transport.InboundBuffer),
		transport.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	adminLn, err := net.Listen("tcp", conf.Admin.BindAddr)
	if err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
	}

	nodeMetrics := swim.NewMetrics()
	nodeMetrics.Register(registry)

	node := swim.NewNode(
		conf.Swim,
		tr,
		swim.WithMetrics(nodeMetrics),
		swim.WithWatcher(membership.NewLoggingWatcher(logger)),
		swim.WithLogger(logger),
	)

	adminServer := admin.NewServer(registry, logger)
	adminServer.AddStatus("/membership", membership.NewStatus(node))

	return &Server{
		conf:        conf,
		transport:   tr,
		node:        node,
		adminLn:     adminLn,
		adminServer: adminServer,
		registry:    registry,
		logger:      logger,
	}, nil
}

// Node returns the local group member.
func (s *Server) Node() *swim.Node {
	return s.node
}

// AdminAddr returns the bound address of the admin server.
func (s *Server) AdminAddr() net.Addr {
	return s.adminLn.Addr()
}

// Run joins the group and serves until ctx is cancelled or a component
// fails. Once Run returns the server is closed.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(
		"starting node",
		zap.String("addr", s.node.Addr().String()),
		zap.Any("conf", s.conf),
	)

	var group rungroup.Group

	// Termination handler.
	runCtx, runCancel := context.WithCancel(ctx)
	group.Add(func() error {
		<-runCtx.Done()
		s.logger.Info("shutting down")
		return nil
	}, func(error) {
		runCancel()
	})

	// Join.
	joinCtx, joinCancel := context.WithCancel(ctx)
	group.Add(func() error {
		if err := s.join(joinCtx); err != nil {
			return err
		}
		<-joinCtx.Done()
		return nil
	}, func(error) {
		joinCancel()
	})

	// Admin server.
	s.adminServer.SetReady(false)
	group.Add(func() error {
		if err := s.adminServer.Serve(s.adminLn); err != nil {
			return fmt.Errorf("admin server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.conf.GracePeriod,
		)
		defer cancel()

		if err := s.adminServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
		}

		s.logger.Info("admin server shut down")
	})

	err := group.Run()

	s.node.Leave()
	if closeErr := s.close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	if err != nil {
		return err
	}

	s.logger.Info("shutdown complete")

	return nil
}

func (s *Server) close() error {
	var errs []error
	if err := s.node.Close(); err != nil {
		errs = append(errs, fmt.Errorf("node: %w", err))
	}
	if err := s.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}
	return errors.Join(errs...)
}

// join attempts to join the configured members, retrying with backoff if no
// members respond.
func (s *Server) join(ctx context.Context) error {
	defer s.adminServer.SetReady(true)

	addrs, err := s.resolveJoin(ctx)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	if len(addrs) == 0 {
		// Either nothing to join or we are the only member.
		return nil
	}

	b := backoff.New(s.conf.Cluster.JoinRetries, minJoinBackoff, maxJoinBackoff)
	for {
		joined := s.joinOnce(ctx, addrs)
		if len(joined) > 0 {
			s.logger.Info("joined group", zap.Stringers("members", joined))
			return nil
		}

		s.logger.Warn(
			"failed to join group",
			zap.Stringers("members", addrs),
			zap.Int("attempts", b.Attempts()+1),
		)

		if !b.Wait(ctx) {
			break
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	if s.conf.Cluster.AbortIfJoinFails {
		return ErrJoinFailed
	}

	// The node may still be discovered by other members later.
	s.logger.Warn("continuing without joining group")
	return nil
}

// joinOnce sends a join probe to each address concurrently and returns the
// addresses that responded.
func (s *Server) joinOnce(ctx context.Context, addrs []swim.Address) []swim.Address {
	var (
		joined []swim.Address
		mu     sync.Mutex
	)

	var g errgroup.Group
	for _, addr := range addrs {
		g.Go(func() error {
			if s.node.Join(ctx, addr) {
				mu.Lock()
				joined = append(joined, addr)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return joined
}

// resolveJoin resolves the configured join addresses, excluding the local
// node. Hostnames may resolve to multiple addresses.
func (s *Server) resolveJoin(ctx context.Context) ([]swim.Address, error) {
	self := s.node.Addr()

	var addrs []swim.Address
	for _, join := range s.conf.Cluster.Join {
		resolved, err := resolveAddr(ctx, join, self.Port())
		if err != nil {
			return nil, err
		}
		for _, addr := range resolved {
			if addr == self {
				continue
			}
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

// resolveAddr resolves 'host[:port]' into addresses, using defaultPort if
// no port is given.
func resolveAddr(ctx context.Context, s string, defaultPort uint16) ([]swim.Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// Assume the address doesn't include a port.
		host = strings.Trim(s, "[]")
		portStr = strconv.Itoa(int(defaultPort))
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port: %s", s)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return []swim.Address{
			swim.NormalizeAddress(netip.AddrPortFrom(ip, uint16(port))),
		}, nil
	}

	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolve: %s: %w", host, err)
	}
	addrs := make([]swim.Address, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, swim.NormalizeAddress(netip.AddrPortFrom(ip, uint16(port))))
	}
	return addrs, nil
}

// advertiseAddr returns the configured advertise address, or if not set
// derives the address from the bind address.
func advertiseAddr(conf transport.Config) (swim.Address, error) {
	addr := conf.AdvertiseAddr
	if addr == "" {
		var err error
		addr, err = advertiseAddrFromBindAddr(conf.BindAddr)
		if err != nil {
			return swim.Address{}, err
		}
	}
	return swim.ParseAddress(addr)
}

func advertiseAddrFromBindAddr(bindAddr string) (string, error) {
	if strings.HasPrefix(bindAddr, ":") {
		bindAddr = "0.0.0.0" + bindAddr
	}

	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return "", fmt.Errorf("invalid bind addr: %s: %w", bindAddr, err)
	}

	if host == "0.0.0.0" {
		ip, err := sockaddr.GetPrivateIP()
		if err != nil {
			return "", fmt.Errorf("get interface addr: %w", err)
		}
		if ip == "" {
			return "", fmt.Errorf("no private ip found")
		}
		return net.JoinHostPort(ip, port), nil
	}
	return bindAddr, nil
}
